package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies STOCKTRADER_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STOCKTRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// Postgres
	setStr(&cfg.Postgres.DSN, "STOCKTRADER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "STOCKTRADER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STOCKTRADER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STOCKTRADER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STOCKTRADER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STOCKTRADER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STOCKTRADER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "STOCKTRADER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "STOCKTRADER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "STOCKTRADER_POSTGRES_RUN_MIGRATIONS")

	// Redis
	setStr(&cfg.Redis.Addr, "STOCKTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STOCKTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STOCKTRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STOCKTRADER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STOCKTRADER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STOCKTRADER_REDIS_TLS_ENABLED")

	// S3
	setStr(&cfg.S3.Endpoint, "STOCKTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STOCKTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "STOCKTRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STOCKTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STOCKTRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STOCKTRADER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STOCKTRADER_S3_FORCE_PATH_STYLE")

	// Portfolio
	setInt64(&cfg.Portfolio.SnapshotInterval, "STOCKTRADER_PORTFOLIO_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Portfolio.LockTTL, "STOCKTRADER_PORTFOLIO_LOCK_TTL")

	// Archive
	setBool(&cfg.Archive.Enabled, "STOCKTRADER_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "STOCKTRADER_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Schedule, "STOCKTRADER_ARCHIVE_SCHEDULE")

	// Server
	setBool(&cfg.Server.Enabled, "STOCKTRADER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "STOCKTRADER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "STOCKTRADER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "STOCKTRADER_SERVER_API_KEY")

	// Top-level
	setStr(&cfg.Mode, "STOCKTRADER_MODE")
	setStr(&cfg.LogLevel, "STOCKTRADER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
