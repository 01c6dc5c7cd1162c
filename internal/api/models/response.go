package models

import (
	"time"

	"github.com/janovincze/commentsync/internal/ingest"
	"github.com/janovincze/commentsync/internal/ingest/run"
)

// VersionResponse contains version information.
type VersionResponse struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	GoVersion  string `json:"go_version,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
	GitCommit  string `json:"git_commit,omitempty"`
}

// HealthResponse represents the overall health status.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	LastCheck  time.Time `json:"last_check"`
	Error      string    `json:"error,omitempty"`
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// RunResponse is returned by POST /api/v1/runs and GET /api/v1/runs/last.
type RunResponse struct {
	// Message is the run outcome message, e.g. "No new videos found".
	Message string `json:"message"`

	// State is the current run state (idle, running, failed).
	State string `json:"state"`

	// Run is the full report of the run.
	Run *run.Report `json:"run,omitempty"`
}

// NewRunResponse builds a RunResponse from a report.
func NewRunResponse(report *run.Report, state run.State) RunResponse {
	resp := RunResponse{State: state.String(), Run: report}
	if report != nil && report.Status != nil {
		resp.Message = report.Status.Message
	}
	return resp
}

// CheckpointsResponse shows the persisted checkpoint documents.
type CheckpointsResponse struct {
	// LastFetched is the watermark, in RFC 3339 UTC.
	LastFetched string `json:"last_fetched"`

	// Progress is the per-video pagination document.
	Progress ingest.Progress `json:"progress"`

	// Pending is the number of videos with a stored cursor.
	Pending int `json:"pending"`
}

// NewCheckpointsResponse builds a CheckpointsResponse.
func NewCheckpointsResponse(w ingest.Watermark, p ingest.Progress) CheckpointsResponse {
	if p == nil {
		p = ingest.Progress{}
	}
	return CheckpointsResponse{
		LastFetched: ingest.FormatTimestamp(w.LastFetched),
		Progress:    p,
		Pending:     len(p),
	}
}
