// Package drain implements the per-video resume and pagination loop that
// decides when a batch of videos is fully drained.
package drain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/janovincze/commentsync/internal/ingest"
	"github.com/janovincze/commentsync/internal/ingest/source"
	"github.com/janovincze/commentsync/internal/metrics"
)

// State is the outcome of draining one video in a run.
type State string

const (
	// StateExhausted means the last page had no further cursor.
	StateExhausted State = "exhausted"
	// StatePending means a cursor was stored for a future run.
	StatePending State = "pending"
	// StateEmpty means the source returned an empty page.
	StateEmpty State = "empty"
	// StateFailed means the page fetch failed.
	StateFailed State = "failed"
)

// ProgressWriter persists the whole progress map.
type ProgressWriter interface {
	SaveProgress(ctx context.Context, p ingest.Progress) error
}

// FetchError is a page fetch failure for a single video.
type FetchError struct {
	VideoID string
	Cursor  ingest.Cursor
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page for video %s: %v", e.VideoID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Outcome describes what happened to one video.
type Outcome struct {
	VideoID  string
	State    State
	Comments int
	Cursor   ingest.Cursor
	Err      error
}

// Result is the outcome of draining a batch of videos.
type Result struct {
	// Comments holds every fetched comment, in video then page order.
	Comments []ingest.Comment

	// Progress is the updated progress map.
	Progress ingest.Progress

	// FullyDrained is true when no candidate was left with a pending cursor
	// (or, under PolicyRetain, with a failed fetch).
	FullyDrained bool

	// Outcomes holds one entry per candidate, in input order.
	Outcomes []Outcome

	// Saves counts the progress documents written during the drain.
	Saves int
}

// Failed returns the outcomes whose fetch failed.
func (r *Result) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.State == StateFailed {
			out = append(out, o)
		}
	}
	return out
}

// Engine drains comment pages for a batch of videos.
type Engine struct {
	source source.Source
	writer ProgressWriter
	policy FetchErrorPolicy
	logger *slog.Logger
}

// NewEngine creates a drain Engine.
func NewEngine(src source.Source, writer ProgressWriter, policy FetchErrorPolicy, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = PolicyRetain
	}
	return &Engine{
		source: src,
		writer: writer,
		policy: policy,
		logger: logger.With("component", "drain-engine"),
	}
}

// Policy returns the fetch error policy in use.
func (e *Engine) Policy() FetchErrorPolicy {
	return e.policy
}

// Drain fetches at most one page per video, in input order, and persists the
// progress map each time a video's entry changes. progress is not mutated.
// Only progress write failures are returned as errors.
func (e *Engine) Drain(ctx context.Context, videoIDs []string, progress ingest.Progress) (*Result, error) {
	result := &Result{
		Progress: progress.Clone(),
		Outcomes: make([]Outcome, 0, len(videoIDs)),
	}

	blocked := false
	for _, id := range videoIDs {
		outcome, changed := e.drainOne(ctx, id, result)
		result.Outcomes = append(result.Outcomes, outcome)
		metrics.DrainVideosTotal.WithLabelValues(string(outcome.State)).Inc()

		if outcome.State == StateFailed && e.policy.blocksWatermark() {
			blocked = true
		}

		if !changed {
			continue
		}
		if err := e.writer.SaveProgress(ctx, result.Progress); err != nil {
			return result, fmt.Errorf("persist progress for video %s: %w", id, err)
		}
		result.Saves++
	}

	result.FullyDrained = !blocked && !anyPending(result.Progress, videoIDs)

	e.logger.Info("drain completed",
		"videos", len(videoIDs),
		"comments", len(result.Comments),
		"pending_videos", len(result.Progress),
		"fully_drained", result.FullyDrained,
	)

	return result, nil
}

// drainOne fetches one page for id and updates result in place.
// It reports whether the progress map changed.
func (e *Engine) drainOne(ctx context.Context, id string, result *Result) (Outcome, bool) {
	cursor := result.Progress.Cursor(id)
	logger := e.logger.With("video_id", id)
	if !cursor.IsZero() {
		logger.Debug("resuming from stored cursor", "next_page_token", string(cursor))
	}

	page, err := e.source.FetchPage(ctx, id, cursor)
	if err != nil {
		ferr := &FetchError{VideoID: id, Cursor: cursor, Err: err}
		logger.Error("failed to fetch comments",
			"error", err,
			"policy", e.policy.String(),
		)
		return Outcome{VideoID: id, State: StateFailed, Cursor: cursor, Err: ferr}, false
	}

	if page.IsEmpty() {
		_, had := result.Progress[id]
		delete(result.Progress, id)
		logger.Debug("no comments returned")
		return Outcome{VideoID: id, State: StateEmpty}, had
	}

	result.Comments = append(result.Comments, page.Comments...)
	metrics.DrainCommentsTotal.Add(float64(len(page.Comments)))

	if page.HasMore() {
		prev, had := result.Progress[id]
		result.Progress[id] = page.NextCursor
		logger.Info("fetched comments, more pages remain",
			"comments", len(page.Comments),
			"next_page_token", string(page.NextCursor),
		)
		return Outcome{
			VideoID:  id,
			State:    StatePending,
			Comments: len(page.Comments),
			Cursor:   page.NextCursor,
		}, !had || prev != page.NextCursor
	}

	_, had := result.Progress[id]
	delete(result.Progress, id)
	logger.Info("fetched comments, video exhausted", "comments", len(page.Comments))
	return Outcome{VideoID: id, State: StateExhausted, Comments: len(page.Comments)}, had
}

func anyPending(p ingest.Progress, videoIDs []string) bool {
	for _, id := range videoIDs {
		if p.Pending(id) {
			return true
		}
	}
	return false
}
