package sink

import (
	"context"
	"sync"

	"github.com/janovincze/commentsync/internal/ingest"
	"github.com/janovincze/commentsync/internal/metrics"
)

// Memory is a Sink that keeps delivered chunks in memory.
// It backs dry runs and tests.
type Memory struct {
	mu     sync.Mutex
	limits Limits
	chunks [][]ingest.Comment
	calls  int
	err    error
}

// NewMemory creates a Memory sink.
func NewMemory(limits Limits) *Memory {
	return &Memory{limits: limits}
}

// Deliver records the comments as chunks.
func (m *Memory) Deliver(_ context.Context, comments []ingest.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		metrics.SinkChunksTotal.WithLabelValues(m.Name(), "error").Inc()
		return m.err
	}

	chunks, err := Chunk(comments, m.limits)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		m.chunks = append(m.chunks, chunk)
		metrics.SinkChunksTotal.WithLabelValues(m.Name(), "success").Inc()
		metrics.SinkRecordsTotal.WithLabelValues(m.Name()).Add(float64(len(chunk)))
		metrics.SinkBytesTotal.WithLabelValues(m.Name()).Add(float64(TotalBytes(chunk)))
	}
	return nil
}

// Name returns the name of this sink.
func (m *Memory) Name() string {
	return "memory"
}

// Fail makes subsequent deliveries return err.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of Deliver calls.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Chunks returns the delivered chunks.
func (m *Memory) Chunks() [][]ingest.Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]ingest.Comment(nil), m.chunks...)
}

// Comments returns every delivered comment, in order.
func (m *Memory) Comments() []ingest.Comment {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ingest.Comment
	for _, chunk := range m.chunks {
		out = append(out, chunk...)
	}
	return out
}

var _ Sink = (*Memory)(nil)
