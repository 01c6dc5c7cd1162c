package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/janovincze/commentsync/internal/metrics"
)

// ErrRunInProgress is returned when a run is triggered while another is active.
var ErrRunInProgress = errors.New("run already in progress")

// Trigger names what started a run.
const (
	TriggerHTTP     = "http"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// Executor runs one ingestion pass.
type Executor interface {
	Run(ctx context.Context) (*Status, error)
}

// Report describes a finished run.
type Report struct {
	ID         string        `json:"id"`
	Trigger    string        `json:"trigger"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Status     *Status       `json:"status,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// Runner serializes runs within one process and remembers the last outcome.
type Runner struct {
	exec   Executor
	state  *StateMachine
	logger *slog.Logger

	mu   sync.RWMutex
	last *Report
}

// NewRunner creates a Runner around exec.
func NewRunner(exec Executor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	sm := NewStateMachine()
	sm.AddListener(func(_, to State) {
		metrics.RunState.Set(float64(to))
	})

	return &Runner{
		exec:   exec,
		state:  sm,
		logger: logger.With("component", "runner"),
	}
}

// Trigger executes one run unless another is in progress.
func (r *Runner) Trigger(ctx context.Context, trigger string) (*Report, error) {
	if err := r.state.Transition(StateRunning); err != nil {
		metrics.RunsTotal.WithLabelValues(trigger, "skipped").Inc()
		r.logger.Warn("run skipped, another run is in progress", "trigger", trigger)
		return nil, ErrRunInProgress
	}

	report := &Report{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	logger := r.logger.With("run_id", report.ID, "trigger", trigger)
	logger.Info("run started")

	// A panic still ends the run as failed, then reaches the caller's recovery.
	defer func() {
		if p := recover(); p != nil {
			r.finish(logger, report, nil, fmt.Errorf("run panicked: %v", p))
			panic(p)
		}
	}()

	status, err := r.exec.Run(ctx)
	return r.finish(logger, report, status, err)
}

// finish records the outcome of a run and moves the state machine out of running.
func (r *Runner) finish(logger *slog.Logger, report *Report, status *Status, err error) (*Report, error) {
	report.FinishedAt = time.Now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	report.Status = status
	report.Success = err == nil
	if err != nil {
		report.Error = err.Error()
	}
	metrics.RunDuration.WithLabelValues(report.Trigger).Observe(report.Duration.Seconds())

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	if err != nil {
		metrics.RunsTotal.WithLabelValues(report.Trigger, "failure").Inc()
		logger.Error("run failed", "error", err, "duration", report.Duration)
		if terr := r.state.Transition(StateFailed); terr != nil {
			logger.Error("failed to record run state", "error", terr)
		}
		return report, err
	}

	metrics.RunsTotal.WithLabelValues(report.Trigger, "success").Inc()
	logger.Info("run completed",
		"message", status.Message,
		"duration", report.Duration,
	)
	if terr := r.state.Transition(StateIdle); terr != nil {
		logger.Error("failed to record run state", "error", terr)
	}
	return report, nil
}

// Last returns the most recent run report, or nil before the first run.
func (r *Runner) Last() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// State returns the current run state.
func (r *Runner) State() State {
	return r.state.State()
}
