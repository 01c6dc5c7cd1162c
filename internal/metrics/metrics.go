// Package metrics provides Prometheus metrics for commentsync components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var registerOnce sync.Once

const (
	// Namespace is the Prometheus namespace for all commentsync metrics.
	Namespace = "commentsync"

	// Subsystem constants for metric organization.
	SubsystemRun        = "run"
	SubsystemDrain      = "drain"
	SubsystemSource     = "source"
	SubsystemSink       = "sink"
	SubsystemCheckpoint = "checkpoint"
	SubsystemAPI        = "api"
)

// Label constants for consistent labeling across metrics.
const (
	LabelTrigger   = "trigger"
	LabelOutcome   = "outcome"
	LabelOperation = "operation"
	LabelSink      = "sink"
	LabelDocument  = "document"
	LabelEndpoint  = "endpoint"
	LabelMethod    = "method"
	LabelStatus    = "status"
)

var (
	// Run Metrics

	// RunsTotal counts completed runs by trigger and status.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemRun,
			Name:      "total",
			Help:      "Total number of ingestion runs",
		},
		[]string{LabelTrigger, LabelStatus},
	)

	// RunDuration tracks the duration of runs.
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemRun,
			Name:      "duration_seconds",
			Help:      "Duration of ingestion runs in seconds",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{LabelTrigger},
	)

	// RunState represents the current run lifecycle state.
	// Values: 0=idle, 1=running, 2=failed
	RunState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemRun,
			Name:      "state",
			Help:      "Current run state (0=idle, 1=running, 2=failed)",
		},
	)

	// WatermarkTimestamp exposes the persisted watermark as unix seconds.
	WatermarkTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemRun,
			Name:      "watermark_timestamp_seconds",
			Help:      "Watermark of the last fully drained run, as unix seconds",
		},
	)

	// Drain Metrics

	// DrainVideosTotal counts per-video drain outcomes.
	DrainVideosTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemDrain,
			Name:      "videos_total",
			Help:      "Total number of videos processed, by outcome",
		},
		[]string{LabelOutcome},
	)

	// DrainCommentsTotal counts comments collected by the drain engine.
	DrainCommentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemDrain,
			Name:      "comments_total",
			Help:      "Total number of comments collected",
		},
	)

	// DrainPendingVideos tracks the number of videos with a stored cursor.
	DrainPendingVideos = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemDrain,
			Name:      "pending_videos",
			Help:      "Number of videos with unfetched comment pages",
		},
	)

	// Source Metrics

	// SourceRequestsTotal counts requests to the item source.
	SourceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSource,
			Name:      "requests_total",
			Help:      "Total number of item source requests",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// SourceRetriesTotal counts retry attempts against the item source.
	SourceRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSource,
			Name:      "retries_total",
			Help:      "Total number of retry attempts",
		},
		[]string{LabelOperation},
	)

	// Sink Metrics

	// SinkChunksTotal counts delivered chunks by sink and status.
	SinkChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSink,
			Name:      "chunks_total",
			Help:      "Total number of chunks delivered to the sink",
		},
		[]string{LabelSink, LabelStatus},
	)

	// SinkRecordsTotal counts records delivered to the sink.
	SinkRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSink,
			Name:      "records_total",
			Help:      "Total number of records delivered to the sink",
		},
		[]string{LabelSink},
	)

	// SinkBytesTotal counts payload bytes delivered to the sink.
	SinkBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSink,
			Name:      "bytes_total",
			Help:      "Total payload bytes delivered to the sink",
		},
		[]string{LabelSink},
	)

	// Checkpoint Metrics

	// CheckpointWritesTotal counts checkpoint document writes.
	CheckpointWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemCheckpoint,
			Name:      "writes_total",
			Help:      "Total number of checkpoint document writes",
		},
		[]string{LabelDocument, LabelStatus},
	)

	// CheckpointDefaultsTotal counts loads that fell back to a default value.
	CheckpointDefaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemCheckpoint,
			Name:      "defaults_total",
			Help:      "Total number of checkpoint loads that fell back to a default",
		},
		[]string{LabelDocument},
	)

	// API Metrics

	// APIRequestsTotal counts the total number of API requests.
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{LabelEndpoint, LabelMethod, LabelStatus},
	)

	// APIRequestDuration tracks the duration of API requests.
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{LabelEndpoint, LabelMethod},
	)

	// allMetrics contains all metrics for registration.
	allMetrics = []prometheus.Collector{
		// Run
		RunsTotal,
		RunDuration,
		RunState,
		WatermarkTimestamp,
		// Drain
		DrainVideosTotal,
		DrainCommentsTotal,
		DrainPendingVideos,
		// Source
		SourceRequestsTotal,
		SourceRetriesTotal,
		// Sink
		SinkChunksTotal,
		SinkRecordsTotal,
		SinkBytesTotal,
		// Checkpoint
		CheckpointWritesTotal,
		CheckpointDefaultsTotal,
		// API
		APIRequestsTotal,
		APIRequestDuration,
	}
)

// Register registers all commentsync metrics with the default Prometheus registry.
// It is safe to call multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		for _, m := range allMetrics {
			prometheus.MustRegister(m)
		}
	})
}

// RegisterWith registers all commentsync metrics with the given registry.
func RegisterWith(reg prometheus.Registerer) {
	for _, m := range allMetrics {
		reg.MustRegister(m)
	}
}

// NewRegistry creates a new Prometheus registry with all commentsync metrics
// and standard Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	RegisterWith(reg)

	return reg
}
