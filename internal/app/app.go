// Package app provides the top-level application lifecycle for the position
// monitoring engine. It wires together the engine, the tick feed, the HTTP
// API, and the optional backends, and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/awsshrinath/autotrade/internal/config"
	"github.com/awsshrinath/autotrade/internal/engine"
	"github.com/awsshrinath/autotrade/internal/feed"
	"github.com/awsshrinath/autotrade/internal/server"
	"github.com/awsshrinath/autotrade/internal/server/handler"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the engine, the tick feed, and the HTTP
// server, and blocks until the context is cancelled. On return all resources
// are released.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.Bool("paper_only", a.cfg.Broker.PaperOnly),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	defer a.Close()

	eng, err := engine.New(EngineOptions(a.cfg), engine.Deps{
		Feed:         deps.Feed,
		PaperGateway: deps.PaperGateway,
		LiveGateway:  deps.LiveGateway,
		Snapshots:    deps.Snapshots,
		Archiver:     deps.Archiver,
		ExitLog:      deps.ExitLog,
		Bus:          deps.Bus,
		Alerter:      deps.Notifier,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("app: build engine: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return eng.Run(gctx) })

	if a.cfg.Broker.TickWSURL != "" {
		tickFeed := feed.NewTickerFeed(
			a.cfg.Broker.TickWSURL,
			deps.PriceSink,
			func() []string { return liveSymbols(eng) },
			a.logger,
		)
		g.Go(func() error { return tickFeed.Run(gctx) })
	}

	if a.cfg.Server.Enabled {
		srv := a.buildServer(eng, deps)
		g.Go(func() error {
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			select {
			case err := <-errCh:
				return err
			case <-gctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

func (a *App) buildServer(eng *engine.Engine, deps *Dependencies) *server.Server {
	pingers := map[string]handler.Pinger{}
	if deps.RedisClient != nil {
		pingers["redis"] = deps.RedisClient
	}
	if deps.PgPing != nil {
		pingers["postgres"] = pingerFunc(deps.PgPing)
	}

	return server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(pingers, a.logger),
			Positions: handler.NewPositionHandler(eng, a.logger),
			Stats:     handler.NewStatsHandler(eng, deps.ExitLog, a.logger),
		},
		a.logger,
	)
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// liveSymbols asks the engine for the symbols its live positions hold.
func liveSymbols(eng *engine.Engine) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range eng.Positions() {
		if !p.Status.Live() || seen[p.Symbol] {
			continue
		}
		seen[p.Symbol] = true
		out = append(out, p.Symbol)
	}
	return out
}

// pingerFunc adapts a plain function to the handler.Pinger interface.
type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
