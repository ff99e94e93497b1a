package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/Dineshdataengineer/reactive-stock-trader/internal/blob/s3"
	"github.com/Dineshdataengineer/reactive-stock-trader/internal/cache/redis"
	"github.com/Dineshdataengineer/reactive-stock-trader/internal/config"
	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
	"github.com/Dineshdataengineer/reactive-stock-trader/internal/service"
	"github.com/Dineshdataengineer/reactive-stock-trader/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Journal   domain.JournalStore
	Snapshots domain.SnapshotStore
	Summaries domain.SummaryStore
	Audit     domain.AuditStore

	// Redis
	StateCache  domain.StateCache
	SignalBus   domain.SignalBus
	LockManager domain.LockManager

	// Blob storage (nil unless archival is wired)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Service layer
	Portfolios *service.PortfolioService

	// Raw clients kept for health checks. S3 is nil unless archival is
	// wired.
	Postgres *postgres.Client
	Redis    *redis.Client
	S3       *s3blob.Client
}

// needsS3 returns true when object storage must be wired: either the mode is
// archive or background archival is enabled alongside the server.
func needsS3(cfg *config.Config) bool {
	return cfg.Archive.Enabled || strings.ToLower(cfg.Mode) == "archive"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL: journal, snapshots, summaries, audit ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Postgres = pgClient
	deps.Journal = postgres.NewJournalStore(pool)
	deps.Snapshots = postgres.NewSnapshotStore(pool)
	deps.Summaries = postgres.NewSummaryStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- Redis: state cache, signal bus, writer locks ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.StateCache = redis.NewStateCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- S3 blob storage (only when archival is in play) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.S3 = s3Client
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Journal, deps.Summaries, deps.Audit)
	}

	// --- Service layer ---
	deps.Portfolios = service.NewPortfolioService(
		deps.Journal,
		deps.Snapshots,
		deps.Summaries,
		deps.StateCache,
		deps.SignalBus,
		deps.LockManager,
		deps.Audit,
		logger,
		service.Options{
			SnapshotInterval: cfg.Portfolio.SnapshotInterval,
			LockTTL:          cfg.Portfolio.LockTTL.Duration,
		},
	)

	return deps, cleanup, nil
}
