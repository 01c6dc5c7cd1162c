// Package main provides the commentsync command line tool.
// It runs a single ingestion pass and inspects or edits stored checkpoints.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/janovincze/commentsync/internal/api/handlers"
	"github.com/janovincze/commentsync/internal/api/models"
	"github.com/janovincze/commentsync/internal/app"
	"github.com/janovincze/commentsync/internal/config"
	"github.com/janovincze/commentsync/internal/ingest"
	"github.com/janovincze/commentsync/internal/ingest/checkpoint"
	"github.com/janovincze/commentsync/internal/ingest/run"
	"github.com/janovincze/commentsync/internal/vault"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		printUsage(out)
		return nil
	}

	switch cmd := args[0]; cmd {
	case "version", "-v", "--version":
		fmt.Fprintf(out, "commentsync version %s (commit %s, built %s)\n",
			versionString(), handlers.GitCommit, handlers.BuildTime)
	case "help", "-h", "--help":
		printUsage(out)
	case "run":
		return cmdRun(ctx, out)
	case "status":
		return cmdStatus(ctx, out)
	case "reset-progress":
		if len(args) != 2 || args[1] == "" {
			return fmt.Errorf("usage: commentsync reset-progress <video_id>")
		}
		return cmdResetProgress(ctx, args[1], out)
	default:
		printUsage(out)
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `commentsync - YouTube comment ingestion

Usage:
  commentsync <command> [arguments]

Commands:
  run                        Run one ingestion pass and print its report
  status                     Print the stored watermark and per-video progress
  reset-progress <video_id>  Drop the stored cursor of one video
  version                    Show version information
  help                       Show this help message

Configuration is read from COMMENTSYNC_* environment variables.`)
}

func versionString() string {
	if v := os.Getenv("COMMENTSYNC_VERSION"); v != "" {
		return v
	}
	return "dev"
}

func cliLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadEnv(ctx context.Context) (*config.Config, vault.SecretProvider, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := cliLogger(cfg)

	secrets, err := vault.NewSecretProvider(ctx, app.VaultConfig(cfg), logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create secret provider: %w", err)
	}
	return cfg, secrets, logger, nil
}

func cmdRun(ctx context.Context, out io.Writer) error {
	cfg, secrets, logger, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer secrets.Close()

	components, err := app.Build(ctx, cfg, secrets, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	runner := run.NewRunner(components.Controller, logger)
	report, runErr := runner.Trigger(ctx, run.TriggerCLI)
	if report != nil {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	}
	return runErr
}

func openCheckpoints(ctx context.Context) (*checkpoint.Manager, func(), error) {
	cfg, secrets, logger, err := loadEnv(ctx)
	if err != nil {
		return nil, nil, err
	}

	manager, err := app.BuildCheckpoints(ctx, cfg, secrets, logger)
	if err != nil {
		secrets.Close()
		return nil, nil, err
	}
	return manager, func() {
		manager.Close()
		secrets.Close()
	}, nil
}

func cmdStatus(ctx context.Context, out io.Writer) error {
	manager, closeFn, err := openCheckpoints(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	return printCheckpoints(ctx, manager, time.Now(), out)
}

func printCheckpoints(ctx context.Context, cp handlers.CheckpointReader, now time.Time, out io.Writer) error {
	w, err := cp.LoadWatermark(ctx, now)
	if err != nil {
		return fmt.Errorf("load watermark: %w", err)
	}
	p, err := cp.LoadProgress(ctx)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	return writeJSON(out, models.NewCheckpointsResponse(w, p))
}

func cmdResetProgress(ctx context.Context, videoID string, out io.Writer) error {
	manager, closeFn, err := openCheckpoints(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	return resetProgress(ctx, manager, videoID, out)
}

// progressEditor is the part of checkpoint.Manager used by reset-progress.
type progressEditor interface {
	LoadProgress(ctx context.Context) (ingest.Progress, error)
	SaveProgress(ctx context.Context, p ingest.Progress) error
}

func resetProgress(ctx context.Context, cp progressEditor, videoID string, out io.Writer) error {
	p, err := cp.LoadProgress(ctx)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	if _, ok := p[videoID]; !ok {
		return fmt.Errorf("no stored cursor for video %s", videoID)
	}

	delete(p, videoID)
	if err := cp.SaveProgress(ctx, p); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}

	fmt.Fprintf(out, "Removed cursor for video %s, %d videos still pending\n", videoID, len(p))
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
