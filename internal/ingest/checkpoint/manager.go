package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/janovincze/commentsync/internal/ingest"
	"github.com/janovincze/commentsync/internal/metrics"
)

const (
	documentWatermark = "watermark"
	documentProgress  = "progress"
)

// Manager loads and saves the watermark and progress documents.
type Manager struct {
	store  Store
	keys   Keys
	logger *slog.Logger
}

// NewManager creates a Manager over store. Empty keys fall back to DefaultKeys.
func NewManager(store Store, keys Keys, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultKeys()
	if keys.Watermark == "" {
		keys.Watermark = defaults.Watermark
	}
	if keys.Progress == "" {
		keys.Progress = defaults.Progress
	}

	return &Manager{
		store:  store,
		keys:   keys,
		logger: logger.With("component", "checkpoint-manager"),
	}
}

// Keys returns the document keys in use.
func (m *Manager) Keys() Keys {
	return m.keys
}

// LoadWatermark returns the persisted watermark.
// A missing or corrupt document yields DefaultWatermark(now).
func (m *Manager) LoadWatermark(ctx context.Context, now time.Time) (ingest.Watermark, error) {
	data, err := m.store.Load(ctx, m.keys.Watermark)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			w := ingest.DefaultWatermark(now)
			m.logger.Info("no previous fetch time found, defaulting to start of year",
				"last_fetched", ingest.FormatTimestamp(w.LastFetched),
			)
			metrics.CheckpointDefaultsTotal.WithLabelValues(documentWatermark).Inc()
			return w, nil
		}
		return ingest.Watermark{}, fmt.Errorf("load watermark: %w", err)
	}

	var w ingest.Watermark
	if err := json.Unmarshal(data, &w); err != nil {
		w = ingest.DefaultWatermark(now)
		m.logger.Warn("corrupt watermark document, defaulting to start of year",
			"key", m.keys.Watermark,
			"error", err,
		)
		metrics.CheckpointDefaultsTotal.WithLabelValues(documentWatermark).Inc()
		return w, nil
	}

	metrics.WatermarkTimestamp.Set(float64(w.LastFetched.Unix()))
	return w, nil
}

// SaveWatermark overwrites the watermark document.
func (m *Manager) SaveWatermark(ctx context.Context, w ingest.Watermark) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal watermark: %w", err)
	}

	if err := m.store.Save(ctx, m.keys.Watermark, data); err != nil {
		metrics.CheckpointWritesTotal.WithLabelValues(documentWatermark, "error").Inc()
		return fmt.Errorf("save watermark: %w", err)
	}

	metrics.CheckpointWritesTotal.WithLabelValues(documentWatermark, "success").Inc()
	metrics.WatermarkTimestamp.Set(float64(w.LastFetched.Unix()))

	m.logger.Info("updated last fetched time",
		"last_fetched", ingest.FormatTimestamp(w.LastFetched),
	)
	return nil
}

// LoadProgress returns the persisted progress map.
// A missing or corrupt document yields an empty map.
func (m *Manager) LoadProgress(ctx context.Context) (ingest.Progress, error) {
	data, err := m.store.Load(ctx, m.keys.Progress)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.CheckpointDefaultsTotal.WithLabelValues(documentProgress).Inc()
			return ingest.Progress{}, nil
		}
		return nil, fmt.Errorf("load progress: %w", err)
	}

	var p ingest.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		m.logger.Warn("corrupt progress document, starting with empty progress",
			"key", m.keys.Progress,
			"error", err,
		)
		metrics.CheckpointDefaultsTotal.WithLabelValues(documentProgress).Inc()
		return ingest.Progress{}, nil
	}

	metrics.DrainPendingVideos.Set(float64(len(p)))
	return p, nil
}

// SaveProgress overwrites the progress document with p.
func (m *Manager) SaveProgress(ctx context.Context, p ingest.Progress) error {
	if p == nil {
		p = ingest.Progress{}
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	if err := m.store.Save(ctx, m.keys.Progress, data); err != nil {
		metrics.CheckpointWritesTotal.WithLabelValues(documentProgress, "error").Inc()
		return fmt.Errorf("save progress: %w", err)
	}

	metrics.CheckpointWritesTotal.WithLabelValues(documentProgress, "success").Inc()
	metrics.DrainPendingVideos.Set(float64(len(p)))

	m.logger.Debug("progress saved", "pending_videos", len(p))
	return nil
}

// Ping checks that the underlying store is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
