// Package run drives a single ingestion run: candidate selection, drain,
// delivery and the watermark advance decision.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/janovincze/commentsync/internal/ingest"
	"github.com/janovincze/commentsync/internal/ingest/drain"
	"github.com/janovincze/commentsync/internal/ingest/sink"
	"github.com/janovincze/commentsync/internal/ingest/source"
)

// DefaultMaxCandidates caps the videos considered in one run.
const DefaultMaxCandidates = 20

// MessageNoVideos is the status message of a run without candidates.
const MessageNoVideos = "No new videos found"

// Checkpoints loads and saves the run's checkpoint documents.
type Checkpoints interface {
	LoadWatermark(ctx context.Context, now time.Time) (ingest.Watermark, error)
	SaveWatermark(ctx context.Context, w ingest.Watermark) error
	LoadProgress(ctx context.Context) (ingest.Progress, error)
	SaveProgress(ctx context.Context, p ingest.Progress) error
}

// Config holds controller configuration.
type Config struct {
	// MaxCandidates caps the number of videos listed per run.
	MaxCandidates int

	// FetchErrorPolicy decides how a failed page fetch affects the run.
	FetchErrorPolicy drain.FetchErrorPolicy
}

// Status is the outcome of one run.
type Status struct {
	// Message is the human-readable result.
	Message string `json:"message"`

	// Candidates is the number of videos listed.
	Candidates int `json:"candidates"`

	// Comments is the number of comments delivered.
	Comments int `json:"comments"`

	// Pending is the number of videos left with a stored cursor.
	Pending int `json:"pending"`

	// FailedVideos lists videos whose page fetch failed.
	FailedVideos []string `json:"failed_videos,omitempty"`

	// FullyDrained reports whether every candidate was exhausted.
	FullyDrained bool `json:"fully_drained"`

	// WatermarkAdvanced reports whether the watermark moved.
	WatermarkAdvanced bool `json:"watermark_advanced"`

	// Since is the watermark the run started from.
	Since time.Time `json:"since"`

	// Watermark is the watermark after the run.
	Watermark time.Time `json:"watermark"`

	// StartedAt is the run start time.
	StartedAt time.Time `json:"started_at"`
}

// Controller runs one ingestion pass against its collaborators.
type Controller struct {
	source      source.Source
	checkpoints Checkpoints
	sink        sink.Sink
	engine      *drain.Engine
	cfg         Config
	now         func() time.Time
	logger      *slog.Logger
}

// NewController creates a Controller.
func NewController(src source.Source, checkpoints Checkpoints, snk sink.Sink, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	if cfg.FetchErrorPolicy == "" {
		cfg.FetchErrorPolicy = drain.PolicyRetain
	}

	return &Controller{
		source:      src,
		checkpoints: checkpoints,
		sink:        snk,
		engine:      drain.NewEngine(src, checkpoints, cfg.FetchErrorPolicy, logger),
		cfg:         cfg,
		now:         time.Now,
		logger:      logger.With("component", "run-controller"),
	}
}

// Run executes one ingestion pass.
// Checkpoint writes, listing and delivery failures are returned; page fetch
// failures are handled by the fetch error policy.
func (c *Controller) Run(ctx context.Context) (*Status, error) {
	start := c.now().UTC()
	status := &Status{StartedAt: start}

	watermark, err := c.checkpoints.LoadWatermark(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("load watermark: %w", err)
	}
	status.Since = watermark.LastFetched
	status.Watermark = watermark.LastFetched

	c.logger.Info("fetching data", "since", ingest.FormatTimestamp(watermark.LastFetched))

	videoIDs, err := c.source.ListRecent(ctx, watermark.LastFetched, c.cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("list recent videos: %w", err)
	}
	if len(videoIDs) == 0 {
		c.logger.Info("no new videos found")
		status.Message = MessageNoVideos
		return status, nil
	}
	if len(videoIDs) > c.cfg.MaxCandidates {
		videoIDs = videoIDs[:c.cfg.MaxCandidates]
	}
	status.Candidates = len(videoIDs)

	c.logger.Info("found videos", "videos", len(videoIDs))

	progress, err := c.checkpoints.LoadProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	result, err := c.engine.Drain(ctx, videoIDs, progress)
	if err != nil {
		return nil, fmt.Errorf("drain videos: %w", err)
	}
	status.Pending = len(result.Progress)
	status.FullyDrained = result.FullyDrained
	for _, o := range result.Failed() {
		status.FailedVideos = append(status.FailedVideos, o.VideoID)
	}

	if len(result.Comments) > 0 {
		c.logger.Info("sending comments", "comments", len(result.Comments), "sink", c.sink.Name())
		if err := c.sink.Deliver(ctx, result.Comments); err != nil {
			return nil, fmt.Errorf("deliver comments: %w", err)
		}
		status.Comments = len(result.Comments)
	}

	switch {
	case result.FullyDrained && !start.After(watermark.LastFetched):
		// Never move the watermark backwards, e.g. after clock skew or a restore.
		c.logger.Warn("stored watermark is not before run start, keeping it",
			"watermark", ingest.FormatTimestamp(watermark.LastFetched),
			"started_at", ingest.FormatTimestamp(start),
		)
	case result.FullyDrained:
		if err := c.checkpoints.SaveWatermark(ctx, ingest.Watermark{LastFetched: start}); err != nil {
			return nil, fmt.Errorf("advance watermark: %w", err)
		}
		status.WatermarkAdvanced = true
		status.Watermark = start
		c.logger.Info("updated last fetch time after fetching all comments")
	default:
		c.logger.Info("not all comments were fetched, will resume in the next run",
			"pending_videos", status.Pending,
			"failed_videos", len(status.FailedVideos),
		)
	}

	status.Message = fmt.Sprintf("Fetched and processed comments from %d videos", len(videoIDs))
	return status, nil
}
