package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LeaseStore grants a single user the right to edit a requisition's
// comparison for a bounded time. Acquire returns true when owner holds the
// lease afterwards, refreshing its TTL if it already did.
type LeaseStore interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// MemoryLeaseStore 单实例部署与测试使用
type MemoryLeaseStore struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

type memoryLease struct {
	owner   string
	expires time.Time
}

func NewMemoryLeaseStore() *MemoryLeaseStore {
	return &MemoryLeaseStore{
		leases: make(map[string]memoryLease),
		now:    time.Now,
	}
}

func (m *MemoryLeaseStore) Acquire(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cur, ok := m.leases[key]; ok && cur.owner != owner && now.Before(cur.expires) {
		return false, nil
	}
	m.leases[key] = memoryLease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (m *MemoryLeaseStore) Release(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.leases[key]; ok && cur.owner == owner {
		delete(m.leases, key)
	}
	return nil
}

// RedisLeaseStore 多实例部署使用，SET NX PX 实现
type RedisLeaseStore struct {
	client *redis.Client
	prefix string
}

func NewRedisLeaseStore(client *redis.Client, prefix string) *RedisLeaseStore {
	if prefix == "" {
		prefix = "procure:lease:"
	}
	return &RedisLeaseStore{client: client, prefix: prefix}
}

// 持有者续期：值匹配时刷新过期时间
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// 持有者释放：值匹配时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (r *RedisLeaseStore) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	k := r.prefix + key
	ok, err := r.client.SetNX(ctx, k, owner, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	refreshed, err := refreshScript.Run(ctx, r.client, []string{k}, owner, ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return refreshed == 1, nil
}

func (r *RedisLeaseStore) Release(ctx context.Context, key, owner string) error {
	err := releaseScript.Run(ctx, r.client, []string{r.prefix + key}, owner).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
