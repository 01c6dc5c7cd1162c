package health

import (
	"context"
	"time"

	"github.com/janovincze/commentsync/internal/ingest/run"
)

// PingChecker reports a dependency healthy when its ping succeeds.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingChecker creates a checker around ping.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

// Name returns the component name.
func (c *PingChecker) Name() string {
	return c.name
}

// Check performs the health check.
func (c *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := c.ping(ctx)

	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "reachable",
		Duration:  time.Since(start),
		LastCheck: start,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = "unreachable"
		result.Error = err.Error()
	}
	return result
}

// LastRunSource exposes the most recent run report.
type LastRunSource interface {
	Last() *run.Report
}

// RunChecker reports degraded when the most recent run failed.
type RunChecker struct {
	runs LastRunSource
}

// NewRunChecker creates a RunChecker.
func NewRunChecker(runs LastRunSource) *RunChecker {
	return &RunChecker{runs: runs}
}

// Name returns the component name.
func (c *RunChecker) Name() string {
	return "last_run"
}

// Check performs the health check.
func (c *RunChecker) Check(context.Context) CheckResult {
	now := time.Now()
	result := CheckResult{Name: c.Name(), LastCheck: now}

	last := c.runs.Last()
	switch {
	case last == nil:
		result.Status = StatusHealthy
		result.Message = "no run yet"
	case last.Success:
		result.Status = StatusHealthy
		if last.Status != nil {
			result.Message = last.Status.Message
		}
	default:
		result.Status = StatusDegraded
		result.Message = "last run failed"
		result.Error = last.Error
	}
	return result
}

var (
	_ Checker = (*PingChecker)(nil)
	_ Checker = (*RunChecker)(nil)
)
