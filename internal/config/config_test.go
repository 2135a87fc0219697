package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Procure.LeaseTTL != 5*time.Minute {
		t.Fatalf("expected default lease ttl 5m, got %v", cfg.Procure.LeaseTTL)
	}
	if cfg.Procure.Currency != "INR" || cfg.Procure.POCodePrefix != "PO" {
		t.Fatalf("unexpected procure defaults: %+v", cfg.Procure)
	}
	if cfg.MinIO.Endpoint != "" || cfg.MinIO.Bucket != "procure-exports" {
		t.Fatalf("unexpected minio defaults: %+v", cfg.MinIO)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LEASE_TTL", "30s")
	t.Setenv("PO_CODE_PREFIX", "WO")
	t.Setenv("DB_NAME", "procure_test")
	t.Setenv("MINIO_ENDPOINT", "minio.local:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Procure.LeaseTTL != 30*time.Second {
		t.Fatalf("expected lease ttl 30s, got %v", cfg.Procure.LeaseTTL)
	}
	if cfg.Procure.POCodePrefix != "WO" {
		t.Fatalf("expected prefix WO, got %s", cfg.Procure.POCodePrefix)
	}
	if cfg.Database.DBName != "procure_test" {
		t.Fatalf("expected dbname procure_test, got %s", cfg.Database.DBName)
	}
	if cfg.MinIO.Endpoint != "minio.local:9000" {
		t.Fatalf("expected minio endpoint override, got %q", cfg.MinIO.Endpoint)
	}
}
