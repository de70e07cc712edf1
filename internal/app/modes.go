package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/boldengine/internal/scheduler"
	"github.com/alanyoungcy/boldengine/internal/server"
	"github.com/alanyoungcy/boldengine/internal/server/handler"
	"github.com/alanyoungcy/boldengine/internal/service"
)

// Task names, also used as distributed lock keys.
const (
	taskProvision = "provision"
	taskSettle    = "settle"
)

// FullMode runs vault provisioning and bet settlement side by side.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runTasks(ctx, deps, a.provisionTask(deps), a.settleTask(deps))
}

// ProvisionMode runs only vault provisioning.
func (a *App) ProvisionMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting provision mode")
	return a.runTasks(ctx, deps, a.provisionTask(deps))
}

// SettleMode runs only bet settlement.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settle mode")
	return a.runTasks(ctx, deps, a.settleTask(deps))
}

// hooks assembles the side channels shared by both services.
func (a *App) hooks(deps *Dependencies) service.Hooks {
	h := service.Hooks{
		Audit:   deps.AuditStore,
		Events:  deps.EventBus,
		Metrics: deps.Metrics,
	}
	if deps.Notifier.Enabled() {
		h.Alerts = deps.Notifier
	}
	return h
}

func (a *App) provisionTask(deps *Dependencies) scheduler.Task {
	prov := service.NewProvisioner(
		deps.MarketStore,
		deps.VaultKeys,
		a.hooks(deps),
		service.ProvisionerConfig{
			Concurrency:       a.cfg.Engine.Concurrency,
			ReuseExistingKeys: a.cfg.Vault.ReuseExistingKeys,
		},
		a.logger,
	)
	return scheduler.Task{
		Name:     taskProvision,
		Interval: a.cfg.Engine.ProvisionEvery(),
		Run:      prov.ProvisionPass,
	}
}

func (a *App) settleTask(deps *Dependencies) scheduler.Task {
	rec := service.NewReconciler(
		deps.BetStore,
		deps.Ledger,
		a.hooks(deps),
		service.ReconcilerConfig{
			Concurrency:       a.cfg.Engine.Concurrency,
			RetryLedgerErrors: a.cfg.Engine.RetryLedgerErrors,
		},
		a.logger,
	)
	return scheduler.Task{
		Name:     taskSettle,
		Interval: a.cfg.Engine.SettleEvery(),
		Run:      rec.SettlePass,
	}
}

// runTasks schedules tasks and, when enabled, the ops HTTP server, and blocks
// until ctx is cancelled or a component fails.
func (a *App) runTasks(ctx context.Context, deps *Dependencies, tasks ...scheduler.Task) error {
	opts := []scheduler.Option{scheduler.WithMetrics(deps.Metrics)}
	if deps.Notifier.Enabled() {
		opts = append(opts, scheduler.WithAlerter(deps.Notifier))
	}
	if a.cfg.Engine.DistributedLock {
		if deps.LockManager == nil {
			return errors.New("app: distributed_lock is set but redis is not configured")
		}
		opts = append(opts, scheduler.WithLockManager(deps.LockManager, a.cfg.Engine.LockTTL.Duration))
	}

	sched := scheduler.New(a.logger, opts...)
	for _, t := range tasks {
		if err := sched.Add(t); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, sched)
	}

	return g.Wait()
}

// startHTTPServer serves health, audit and metrics endpoints until ctx is
// cancelled, then drains in-flight requests within the shutdown timeout.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, sched *scheduler.Scheduler) {
	srv := server.NewServer(
		server.Config{
			Port:   a.cfg.Server.Port,
			APIKey: a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(sched, deps.Checks, a.logger),
			Audit:   handler.NewAuditHandler(deps.AuditStore, a.logger),
			Metrics: deps.Metrics.Handler(),
		},
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Engine.ShutdownTimeout.Duration)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})
}
