// Package app assembles the service from configuration and runs it.
package app

import (
	"context"
	"fmt"

	"sigrelay/internal/config"
	"sigrelay/internal/hub"
	"sigrelay/internal/logger"
	"sigrelay/internal/router"
	"sigrelay/internal/scheduler"
	"sigrelay/internal/source"
	"sigrelay/internal/store/sqlite"
	webhttp "sigrelay/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg    *config.Config
	src    source.Source
	router *router.Router
	hub    *hub.Hub
	http   *webhttp.Server
	store  *sqlite.SettingsStore

	fastSweep *scheduler.IntervalScheduler
	slowSweep *scheduler.IntervalScheduler
}

// NewApp builds the application object without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return build(cfg)
}

// Run starts every component and blocks until ctx cancels or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	a.router.Start()
	defer a.router.Stop()
	defer a.hub.Close()
	defer func() {
		if err := a.store.Close(); err != nil {
			logger.Warnf("settings store close failed: %v", err)
		}
	}()
	defer func() {
		if err := a.src.Disconnect(); err != nil {
			logger.Warnf("source disconnect failed: %v", err)
		}
	}()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		a.fastSweep.Start(ctx, func() { a.router.FastSweep(ctx) })
		return nil
	})

	lookback := a.cfg.Sweep.HistoryLookback()
	group.Go(func() error {
		a.slowSweep.Start(ctx, func() { a.router.SlowSweep(ctx, lookback) })
		return nil
	})

	group.Go(func() error {
		if err := a.src.Connect(ctx); err != nil {
			// The source surfaces its own status events; a failed initial
			// connect is retried via observer command, not fatal.
			logger.Warnf("initial source connect failed: %v", err)
		}
		return nil
	})

	logger.Infof("sigrelay listening on %s", a.http.Addr())
	return group.Wait()
}
