// Package sink delivers collected comments to downstream systems in bounded chunks.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/janovincze/commentsync/internal/ingest"
)

// ErrRecordTooLarge is returned when a single comment exceeds the chunk byte limit.
var ErrRecordTooLarge = errors.New("record exceeds maximum chunk size")

// Sink accepts the comments of one run.
type Sink interface {
	// Deliver sends all comments, chunked as the transport requires.
	// A failure of any chunk fails the whole delivery.
	Deliver(ctx context.Context, comments []ingest.Comment) error

	// Name returns the name/identifier of this sink.
	Name() string
}

// Limits bounds the size of a single delivery chunk.
type Limits struct {
	// MaxRecords is the maximum number of comments per chunk. Zero means unlimited.
	MaxRecords int

	// MaxBytes is the maximum summed payload size per chunk. Zero means unlimited.
	MaxBytes int
}

// Chunk splits comments into consecutive chunks that respect limits.
// Order is preserved.
func Chunk(comments []ingest.Comment, limits Limits) ([][]ingest.Comment, error) {
	if len(comments) == 0 {
		return nil, nil
	}

	var (
		chunks  [][]ingest.Comment
		current []ingest.Comment
		size    int
	)

	for _, c := range comments {
		if limits.MaxBytes > 0 && c.Size() > limits.MaxBytes {
			return nil, fmt.Errorf("comment %s (%d bytes, limit %d): %w", c.ID, c.Size(), limits.MaxBytes, ErrRecordTooLarge)
		}

		full := limits.MaxRecords > 0 && len(current) == limits.MaxRecords
		overflow := limits.MaxBytes > 0 && size+c.Size() > limits.MaxBytes
		if len(current) > 0 && (full || overflow) {
			chunks = append(chunks, current)
			current = nil
			size = 0
		}

		current = append(current, c)
		size += c.Size()
	}

	return append(chunks, current), nil
}

// TotalBytes returns the summed payload size of comments.
func TotalBytes(comments []ingest.Comment) int {
	total := 0
	for _, c := range comments {
		total += c.Size()
	}
	return total
}
