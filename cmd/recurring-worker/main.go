package main

import (
	"context"
	"time"

	"finman/internal/backend"
	"finman/internal/cli"
	applog "finman/internal/log"
	"finman/internal/scheduler"
	"finman/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(applog.ComponentApp)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}

	result, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err, "backend", backendCfg.Type.String())
	}

	loc, err := cfg.Location()
	if err != nil {
		cli.Fatal(logger, "Invalid recurring timezone", err, "timezone", cfg.RecurringTimezone)
	}

	// The pass date and the cron schedule share one zone.
	processor := services.NewRecurringProcessor(result.Backend,
		services.WithClock(services.LocationClock(loc)),
		services.WithConcurrency(cfg.RecurringConcurrency),
		services.WithNotifier(result.Notifier),
	)

	sched, err := scheduler.New(processor, scheduler.Config{
		Spec:         cfg.RecurringSchedule,
		Location:     loc,
		RunOnStartup: cfg.RecurringRunOnStartup,
		PassTimeout:  cfg.RecurringPassTimeout,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to create scheduler", err, "schedule", cfg.RecurringSchedule)
	}

	logger.Info("Recurring processor configured",
		applog.FieldBackend, backendCfg.Type.String(),
		"schedule", cfg.RecurringSchedule,
		"timezone", loc.String(),
		"concurrency", cfg.RecurringConcurrency,
		"run_on_startup", cfg.RecurringRunOnStartup,
		"amqp_enabled", cfg.AMQPURL != "")

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := sched.Stop(ctx); err != nil {
			logger.Warn("Scheduler did not stop cleanly", applog.FieldError, err)
		}
		if err := result.Cleanup(); err != nil {
			logger.Error("Failed to release backend resources", applog.FieldError, err)
		}
	})

	sched.Start()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker stopped", applog.FieldOperation, applog.OpShutdown)
}
