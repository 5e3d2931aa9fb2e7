package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/poolbet/internal/indexer"
	"github.com/alanyoungcy/poolbet/internal/server"
	"github.com/alanyoungcy/poolbet/internal/server/handler"
	"github.com/alanyoungcy/poolbet/internal/server/ws"
)

// shutdownTimeout bounds the graceful HTTP shutdown on context cancel.
const shutdownTimeout = 10 * time.Second

// ServeMode runs the HTTP and WebSocket API on top of the live engine. The
// indexer mirrors every engine event into PostgreSQL and Redis; the archival
// sweep does not run in this mode.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Indexer.Run(ctx)
	})

	if err := a.startHTTPServer(ctx, g, deps); err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	return g.Wait()
}

// IndexMode runs the event indexer and the cold-storage archival sweep without
// exposing the HTTP API. Useful for a dedicated worker next to one or more
// serve instances sharing the same PostgreSQL and Redis.
func (a *App) IndexMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting index mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Indexer.Run(ctx)
	})

	a.startArchiveJob(ctx, g, deps)

	return g.Wait()
}

// FullMode starts every subsystem: the live engine API, the event indexer, and
// the archival sweep.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Indexer.Run(ctx)
	})

	a.startArchiveJob(ctx, g, deps)
	if err := a.startHTTPServer(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	return g.Wait()
}

// startArchiveJob adds the periodic cold-storage sweep to the errgroup when
// archival is enabled and S3 is wired.
func (a *App) startArchiveJob(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Indexer.ArchiveEnabled {
		return
	}
	if deps.Archiver == nil || deps.LockManager == nil {
		a.logger.WarnContext(ctx, "archival enabled but archiver or lock manager is missing; sweep disabled")
		return
	}

	retention := time.Duration(a.cfg.Indexer.ArchiveRetentionDays) * 24 * time.Hour
	job := indexer.NewArchiveJob(
		deps.Archiver,
		deps.LockManager,
		retention,
		a.cfg.Indexer.ArchiveInterval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return job.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server and the WebSocket hub to the errgroup.
// The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled by configuration")
		return nil
	}

	apiKey, err := a.cfg.Server.ResolveAPIKey()
	if err != nil {
		return fmt.Errorf("resolve api key: %w", err)
	}
	if apiKey == "" {
		a.logger.WarnContext(ctx, "no api key configured; authentication disabled")
	}

	startedAt := time.Now().UTC()

	// WebSocket hub bridges the Redis signal bus to connected clients.
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, deps.Registry, startedAt),
		Pools:  handler.NewPoolHandler(deps.Registry, deps.PoolStore, deps.PriceCache, deps.BookCache, a.logger),
		Trades: handler.NewTradeHandler(deps.Registry, deps.OrderStore, deps.FillStore, deps.EventStore, a.logger),
		Settle: handler.NewSettleHandler(deps.Registry, deps.ClaimStore, a.logger),
		Oracle: handler.NewOracleHandler(deps.Oracles, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      apiKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
	return nil
}
