package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// tradingLockKey guards the trading account against a second live engine.
const tradingLockKey = "live-trading"

// DryRunMode runs discovery, feeds, detection and the risk gate, and
// simulates every execution without touching a venue's order entry.
func (a *App) DryRunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: dry run, no orders will be placed")
	return a.serve(ctx, deps)
}

// LiveMode takes the single-instance trading lock and then runs the full
// pipeline with real order entry.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.LockManager == nil {
		a.logger.WarnContext(ctx, "app: no lock manager, cannot guard against a second live instance")
	} else {
		unlock, err := deps.LockManager.Acquire(ctx, tradingLockKey, a.cfg.Execution.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("app: trading lock: %w", err)
		}
		defer unlock()
		a.logger.InfoContext(ctx, "app: trading lock acquired")
	}
	a.logger.WarnContext(ctx, "app: LIVE trading enabled")
	return a.serve(ctx, deps)
}

// serve builds the runtime and runs the engine, the dashboard hub and the
// API until ctx is cancelled or one of them fails.
func (a *App) serve(ctx context.Context, deps *Dependencies) error {
	rt, err := a.Build(ctx, deps)
	if err != nil {
		return err
	}
	defer rt.Publisher.Close(5 * time.Second)

	if deps.Archiver != nil {
		// Catch up on a day that closed while the engine was down.
		go a.archiveDay(deps.Archiver, time.Now().UTC().AddDate(0, 0, -1).Format(time.DateOnly))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Engine.Run(gctx) })
	g.Go(func() error { return rt.Hub.Run(gctx) })
	if rt.Server != nil {
		g.Go(func() error {
			a.logger.InfoContext(gctx, "app: api listening", slog.Int("port", a.cfg.Server.Port))
			return rt.Server.Run(gctx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}
