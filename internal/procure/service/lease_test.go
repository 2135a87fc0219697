package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func exerciseLeaseStore(t *testing.T, store LeaseStore) {
	t.Helper()
	ctx := context.Background()
	key := "req-lease-" + time.Now().Format("150405.000000")

	ok, err := store.Acquire(ctx, key, "alice", time.Minute)
	if err != nil || !ok {
		t.Fatalf("alice should acquire: ok=%v err=%v", ok, err)
	}
	ok, err = store.Acquire(ctx, key, "alice", time.Minute)
	if err != nil || !ok {
		t.Fatalf("alice should refresh her own lease: ok=%v err=%v", ok, err)
	}
	ok, err = store.Acquire(ctx, key, "bob", time.Minute)
	if err != nil || ok {
		t.Fatalf("bob must not acquire a held lease: ok=%v err=%v", ok, err)
	}

	// releasing someone else's lease is a no-op
	if err := store.Release(ctx, key, "bob"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := store.Acquire(ctx, key, "bob", time.Minute); ok {
		t.Fatal("bob's release must not free alice's lease")
	}

	if err := store.Release(ctx, key, "alice"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = store.Acquire(ctx, key, "bob", time.Minute)
	if err != nil || !ok {
		t.Fatalf("bob should acquire after release: ok=%v err=%v", ok, err)
	}
	store.Release(ctx, key, "bob")
}

func TestMemoryLeaseStore(t *testing.T) {
	exerciseLeaseStore(t, NewMemoryLeaseStore())
}

func TestMemoryLeaseExpiry(t *testing.T) {
	store := NewMemoryLeaseStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := store.Acquire(ctx, "k", "alice", time.Second); !ok {
		t.Fatal("alice should acquire")
	}
	now = now.Add(2 * time.Second)
	if ok, _ := store.Acquire(ctx, "k", "bob", time.Second); !ok {
		t.Fatal("bob should take over an expired lease")
	}
}

func TestRedisLeaseStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	exerciseLeaseStore(t, NewRedisLeaseStore(client, "procure:test:lease:"))
}
