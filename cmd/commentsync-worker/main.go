// Package main provides the entry point for the commentsync worker.
// The worker drains YouTube comment threads into the configured sink, triggered
// over HTTP or by a cron schedule, and checkpoints its position between runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/janovincze/commentsync/internal/api"
	"github.com/janovincze/commentsync/internal/app"
	"github.com/janovincze/commentsync/internal/config"
	"github.com/janovincze/commentsync/internal/ingest/health"
	"github.com/janovincze/commentsync/internal/ingest/run"
	"github.com/janovincze/commentsync/internal/metrics"
	"github.com/janovincze/commentsync/internal/scheduler"
	"github.com/janovincze/commentsync/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := runWorker(ctx, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting commentsync worker",
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	secrets, err := vault.NewSecretProvider(ctx, app.VaultConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("create secret provider: %w", err)
	}
	defer secrets.Close()

	components, err := app.Build(ctx, cfg, secrets, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	runner := run.NewRunner(components.Controller, logger)

	// Neither trigger configured: run once and exit with the run outcome.
	if !cfg.API.Enabled && !cfg.Schedule.Enabled {
		_, err := runner.Trigger(ctx, run.TriggerCLI)
		return err
	}

	if cfg.Metrics.Enabled {
		metrics.Register()
	}

	healthManager := health.NewManager(5*time.Second, logger)
	healthManager.Register(health.NewPingChecker("checkpoint_store", components.Checkpoints.Ping))
	healthManager.Register(health.NewRunChecker(runner))

	var sched *scheduler.Scheduler
	if cfg.Schedule.Enabled {
		sched, err = scheduler.New(scheduler.Config{
			Cron:       cfg.Schedule.Cron,
			Timezone:   cfg.Schedule.Timezone,
			RunTimeout: cfg.Schedule.RunTimeout,
		}, runner, logger)
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		sched.Start()
		logger.Info("schedule enabled", "cron", cfg.Schedule.Cron, "next_run", sched.Next())
	}

	errCh := make(chan error, 1)
	var server *api.Server
	if cfg.API.Enabled {
		serverCfg := api.DefaultServerConfig(cfg, logger)
		serverCfg.Runs = runner
		serverCfg.Checkpoints = components.Checkpoints
		serverCfg.HealthManager = healthManager

		server = api.NewServer(serverCfg)
		go func() {
			if err := server.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if server != nil {
		if err := server.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop api server: %w", err))
		}
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	logger.Info("commentsync worker stopped gracefully")
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
