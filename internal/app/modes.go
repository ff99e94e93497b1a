package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/archive"
	"github.com/Dineshdataengineer/reactive-stock-trader/internal/server"
	"github.com/Dineshdataengineer/reactive-stock-trader/internal/server/handler"
	"github.com/Dineshdataengineer/reactive-stock-trader/internal/server/ws"
)

// defaultArchiveCron is used in server mode when background archival is
// enabled without an explicit schedule.
const defaultArchiveCron = "0 3 * * *"

// ServerMode runs the HTTP and WebSocket API plus, when enabled, the
// background archival schedule. It blocks until the context is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	pingers := map[string]handler.Pinger{
		"postgres": deps.Postgres,
		"redis":    deps.Redis,
	}
	if deps.S3 != nil {
		pingers["s3"] = deps.S3
	}

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(pingers, a.logger),
		Portfolios: handler.NewPortfolioHandler(deps.Portfolios, a.logger),
		Transfers:  handler.NewTransferHandler(deps.Portfolios, a.logger),
		Orders:     handler.NewOrderHandler(deps.Portfolios, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	// Background archival alongside the API.
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		schedule := a.cfg.Archive.Schedule
		if schedule == "" {
			schedule = defaultArchiveCron
		}
		runner := archive.NewRunner(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
		g.Go(func() error {
			return runner.RunCron(ctx, schedule)
		})
	}

	return g.Wait()
}

// ReplayMode rebuilds every portfolio's snapshot, summary projection, and
// state cache from the journal, then exits.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode")

	start := time.Now()
	rebuilt, err := deps.Portfolios.RebuildAll(ctx)
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}

	a.logger.InfoContext(ctx, "replay complete",
		slog.Int("portfolios_rebuilt", rebuilt),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// ArchiveMode moves the journals of long-closed portfolios to object storage.
// With a cron schedule configured it keeps running; otherwise it performs a
// single pass and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: object storage is not wired")
	}

	runner := archive.NewRunner(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	if a.cfg.Archive.Schedule != "" {
		return runner.RunCron(ctx, a.cfg.Archive.Schedule)
	}
	return runner.Run(ctx)
}
