// Command horcruxd is the control-core daemon: it owns the persistence
// store, the hypervisor adapter(s), every domain manager under internal/,
// the background drivers, and the HTTP/WS surface that fronts all of it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/horcrux-project/horcrux/internal/authz"
	"github.com/horcrux-project/horcrux/internal/drivers"
	"github.com/horcrux-project/horcrux/internal/httpapi"
	httpmw "github.com/horcrux-project/horcrux/internal/httpmw"
	otelinit "github.com/horcrux-project/horcrux/internal/otelinit"
)

func main() {
	if err := run(); err != nil {
		slog.Error("horcruxd terminated", "error", err)
		os.Exit(1)
	}
	slog.Info("horcruxd exiting normally")
}

func run() error {
	cfg := ProvideConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	otelCfg := otelinit.Config{
		Enabled:           cfg.OtelEnabled,
		Endpoint:          cfg.OtelEndpoint,
		ServiceName:       cfg.OtelServiceName,
		ServiceInstanceID: cfg.OtelServiceInstanceID,
		Insecure:          cfg.OtelInsecure,
		Version:           cfg.Version,
		Env:               cfg.Env,
	}
	otelProvider, otelShutdown, err := otelinit.Init(context.Background(), otelCfg)
	if err != nil {
		slog.Warn("failed to initialize OpenTelemetry, continuing without telemetry", "error", err)
	}
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				slog.Warn("error shutting down OpenTelemetry", "error", err)
			}
		}()
	}
	if otelProvider != nil && otelProvider.LogHandler != nil {
		otelinit.SetGlobalLogHandler(otelProvider.LogHandler)
	}

	app, cleanup, err := initializeApp()
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer cleanup()

	logger := app.Logger
	if cfg.AuthJwtSecret == "" {
		logger.Warn("HORCRUX_AUTH_JWT_SECRET not configured - token-based authentication will fail")
	}

	ctx, stop := signal.NotifyContext(app.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrapRBAC(ctx, app.Authz); err != nil {
		return fmt.Errorf("bootstrap RBAC roles: %w", err)
	}

	logger.Info("reconciling VM/container state...")
	if err := app.Lifecycle.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile lifecycle state: %w", err)
	}
	logger.Info("reconciliation complete")

	app.Bus.Start(ctx)

	var httpMetricsMW func(http.Handler) http.Handler
	if otelProvider != nil && otelProvider.Meter != nil {
		if hm, err := httpmw.NewHTTPMetrics(otelProvider.Meter); err == nil {
			httpMetricsMW = hm.Middleware
		}
	}
	if httpMetricsMW == nil {
		httpMetricsMW = httpmw.NoopHTTPMetrics()
	}

	deps := httpapi.Deps{
		Lifecycle: app.Lifecycle,
		Inventory: app.Inventory,
		Authn:     app.Authn,
		Authz:     app.Authz,
		Volumes:   app.Volumes,
		Console:   app.Console,
		Bus:       app.Bus,
		Adapter:   app.Adapter,
		Logger:    logger,
	}
	deps.Argon2.MemoryKB = cfg.AuthArgon2MemoryKB
	deps.Argon2.Iterations = cfg.AuthArgon2Iterations

	srv := httpapi.NewServer(deps, cfg.OtelServiceName, httpMetricsMW)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: srv,
	}

	// BackupScheduler and AlertEvaluator run with empty job/rule sets until
	// HORCRUX_BACKUPS_* / HORCRUX_ALERTS_RULES_* config surfaces exist to
	// populate them per-VM; they're still supervised so the cron loop and
	// edge-triggered evaluator are live from process start, not bolted on
	// later.
	supervisor := drivers.NewSupervisor(logger,
		drivers.NewCollector(app.Inventory, app.Adapter, nil, app.Metrics, app.Bus, logger),
		drivers.NewReaper(app.Console, logger),
		drivers.NewAuditFlusher(app.Inventory, logger),
		drivers.NewBackupScheduler(nil, app.Lifecycle, app.Bus, logger),
		drivers.NewAlertEvaluator(nil, app.Bus, logger),
	)

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		logger.Info("starting horcruxd HTTP surface", "port", cfg.ServerPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			return err
		}
		return nil
	})

	grp.Go(func() error {
		return supervisor.Run(gctx)
	})

	grp.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx := context.WithoutCancel(gctx)
		shutdownCtx, cancel := context.WithTimeout(shutdownCtx, 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown http server", "error", err)
			return err
		}
		app.Bus.Stop()
		logger.Info("http server shutdown complete")
		return nil
	})

	err = grp.Wait()
	logger.Info("all goroutines finished")
	return err
}

// bootstrapRBAC seeds the default admin/operator/viewer roles (§5) the
// first time horcruxd starts against an empty store; an existing role set
// is left untouched so operator-edited rules survive a restart.
func bootstrapRBAC(ctx context.Context, az authz.Manager) error {
	roles, err := az.ListRoles(ctx)
	if err != nil {
		return err
	}
	if len(roles) > 0 {
		return nil
	}
	for _, r := range authz.DefaultRoles() {
		if err := az.CreateRole(ctx, r); err != nil {
			return fmt.Errorf("seed role %q: %w", r.ID, err)
		}
	}
	return nil
}
