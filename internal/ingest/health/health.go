// Package health aggregates component health checks for the ingestion worker.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates the component works but its last outcome was bad.
	StatusDegraded Status = "degraded"
	// StatusUnknown indicates the health status is unknown.
	StatusUnknown Status = "unknown"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ms"`
	LastCheck time.Time     `json:"last_check"`
	Error     string        `json:"error,omitempty"`
}

// Checker performs a health check for one component.
type Checker interface {
	Check(ctx context.Context) CheckResult
	Name() string
}

// Overall is the aggregated health of all components.
type Overall struct {
	Status     Status                 `json:"status"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Manager runs registered checkers and remembers their last results.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	results  map[string]CheckResult
	timeout  time.Duration
	logger   *slog.Logger
}

// NewManager creates a health manager. Each check is bounded by timeout.
func NewManager(timeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		results: make(map[string]CheckResult),
		timeout: timeout,
		logger:  logger.With("component", "health-manager"),
	}
}

// Register adds a checker.
func (m *Manager) Register(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
	m.logger.Debug("registered health checker", "name", checker.Name())
}

// CheckAll runs every checker and returns the results by name.
func (m *Manager) CheckAll(ctx context.Context) map[string]CheckResult {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	for _, checker := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		results[checker.Name()] = checker.Check(checkCtx)
		cancel()
	}

	m.mu.Lock()
	for name, r := range results {
		m.results[name] = r
	}
	m.mu.Unlock()

	return results
}

// Last returns the last result for a checker.
func (m *Manager) Last(name string) (CheckResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[name]
	return r, ok
}

// Overall runs every checker and folds the results into one status.
// Unhealthy wins over unknown, which wins over degraded.
func (m *Manager) Overall(ctx context.Context) Overall {
	results := m.CheckAll(ctx)

	overall := Overall{
		Status:     StatusHealthy,
		Components: results,
		Timestamp:  time.Now(),
	}
	for _, r := range results {
		if rank(r.Status) > rank(overall.Status) {
			overall.Status = r.Status
		}
	}
	return overall
}

// IsReady reports whether no component is unhealthy or unknown.
func (m *Manager) IsReady(ctx context.Context) bool {
	switch m.Overall(ctx).Status {
	case StatusHealthy, StatusDegraded:
		return true
	default:
		return false
	}
}

func rank(s Status) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnknown:
		return 2
	default:
		return 3
	}
}
