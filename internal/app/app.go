package app

import (
	"context"
	"fmt"

	"talon/internal/config"
	"talon/internal/logger"
	"talon/internal/scheduler"
	"talon/internal/service"
	transport "talon/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App owns application-level orchestration: build dependencies from the
// frozen config, then run the HTTP facade and the background sweeps until the
// context is cancelled.
type App struct {
	cfg    *config.Config
	core   *service.Core
	server *transport.Server
	closer func()
}

// NewApp builds the application object without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return build(cfg)
}

// Core exposes the pipeline facade for tests and replay harnesses.
func (a *App) Core() *service.Core {
	if a == nil {
		return nil
	}
	return a.core
}

// Run starts the HTTP server, the exit sweep and the context cache sweep,
// blocking until the context is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.closer()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	exitSweep := scheduler.NewPeriodicScheduler(ctx, "exit-sweep", a.cfg.Exit.SweepInterval())
	group.Go(func() error {
		exitSweep.Start(func() {
			if _, err := a.core.EvaluateOpenPositions(ctx); err != nil {
				logger.Errorf("app: exit sweep failed: %v", err)
			}
		})
		return nil
	})

	// Expired fragments are also dropped lazily on read; the periodic sweep
	// just bounds memory for symbols nobody asks about.
	ctxSweep := scheduler.NewPeriodicScheduler(ctx, "context-sweep", a.cfg.Context.FreshnessWindow())
	group.Go(func() error {
		ctxSweep.Start(func() {
			if n := a.core.SweepContexts(); n > 0 {
				logger.Debugf("app: context sweep dropped %d stale fragments", n)
			}
		})
		return nil
	})

	return group.Wait()
}
