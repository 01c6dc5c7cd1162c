// Package scheduler triggers ingestion runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/janovincze/commentsync/internal/ingest/run"
)

// Triggerer starts one run.
type Triggerer interface {
	Trigger(ctx context.Context, trigger string) (*run.Report, error)
}

// Config holds scheduler configuration.
type Config struct {
	// Cron is a five-field cron expression or a descriptor such as "@hourly".
	Cron string

	// Timezone is the IANA zone used to evaluate Cron. Empty means UTC.
	Timezone string

	// RunTimeout bounds each scheduled run. Zero means no timeout.
	RunTimeout time.Duration
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks the cron expression and timezone.
func (c Config) Validate() error {
	if c.Cron == "" {
		return errors.New("cron expression is required")
	}
	if _, err := location(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	if _, err := parser.Parse(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

func location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

// Scheduler fires runs on a cron schedule. A tick that arrives while the
// previous scheduled run is still going is skipped.
type Scheduler struct {
	cfg    Config
	runs   Triggerer
	cron   *cron.Cron
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. It does not start it.
func New(cfg Config, runs Triggerer, logger *slog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	loc, _ := location(cfg.Timezone)
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:    cfg,
		runs:   runs,
		cron:   c,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := c.AddFunc(cfg.Cron, s.fire); err != nil {
		cancel()
		return nil, fmt.Errorf("add cron job: %w", err)
	}
	return s, nil
}

// fire runs one scheduled trigger.
func (s *Scheduler) fire() {
	ctx := s.ctx
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	report, err := s.runs.Trigger(ctx, run.TriggerSchedule)
	switch {
	case errors.Is(err, run.ErrRunInProgress):
		s.logger.Info("scheduled run skipped, another run is in progress")
	case err != nil:
		s.logger.Error("scheduled run failed", "error", err)
	case report != nil && report.Status != nil:
		s.logger.Info("scheduled run finished", "run_id", report.ID, "message", report.Status.Message)
	}
}

// Start begins firing runs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "cron", s.cfg.Cron, "timezone", s.cfg.Timezone, "next", s.Next())
}

// Next returns the next scheduled time, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop prevents new runs and cancels the active one. It returns when the
// active run has returned or ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()

	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
