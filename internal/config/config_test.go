package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate, got: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "banana" },
			want:   "unknown mode",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.LogLevel = "verbose" },
			want:   "unknown log_level",
		},
		{
			name:   "empty redis addr",
			mutate: func(c *Config) { c.Redis.Addr = "" },
			want:   "redis: addr",
		},
		{
			name:   "bad postgres port",
			mutate: func(c *Config) { c.Postgres.Port = 70000 },
			want:   "postgres: port",
		},
		{
			name:   "pool mins above max",
			mutate: func(c *Config) { c.Postgres.PoolMinConns = 50 },
			want:   "pool_min_conns",
		},
		{
			name:   "zero snapshot interval",
			mutate: func(c *Config) { c.Portfolio.SnapshotInterval = 0 },
			want:   "snapshot_interval",
		},
		{
			name:   "zero lock ttl",
			mutate: func(c *Config) { c.Portfolio.LockTTL = duration{} },
			want:   "lock_ttl",
		},
		{
			name: "archive enabled without bucket",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.S3.Bucket = ""
			},
			want: "s3: bucket",
		},
		{
			name: "bad server port",
			mutate: func(c *Config) {
				c.Server.Port = 0
			},
			want: "server: port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "replay"
log_level = "debug"

[postgres]
database = "trader_test"

[portfolio]
snapshot_interval = 25
lock_ttl = "30s"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "replay" {
		t.Errorf("mode = %q, want replay", cfg.Mode)
	}
	if cfg.Postgres.Database != "trader_test" {
		t.Errorf("database = %q, want trader_test", cfg.Postgres.Database)
	}
	if cfg.Portfolio.SnapshotInterval != 25 {
		t.Errorf("snapshot_interval = %d, want 25", cfg.Portfolio.SnapshotInterval)
	}
	if cfg.Portfolio.LockTTL.Duration != 30*time.Second {
		t.Errorf("lock_ttl = %s, want 30s", cfg.Portfolio.LockTTL.Duration)
	}
	// Untouched fields keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q, want default", cfg.Redis.Addr)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("mode = \"server\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("STOCKTRADER_MODE", "archive")
	t.Setenv("STOCKTRADER_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("STOCKTRADER_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("STOCKTRADER_PORTFOLIO_LOCK_TTL", "45s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "archive" {
		t.Errorf("mode = %q, want archive", cfg.Mode)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr = %q, want redis.internal:6380", cfg.Redis.Addr)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v, want two trimmed entries", cfg.Server.CORSOrigins)
	}
	if cfg.Portfolio.LockTTL.Duration != 45*time.Second {
		t.Errorf("lock_ttl = %s, want 45s", cfg.Portfolio.LockTTL.Duration)
	}
}
