// Package parquet archives comments as Parquet files in object storage.
package parquet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/janovincze/commentsync/internal/ingest"
	"github.com/janovincze/commentsync/internal/ingest/sink"
	"github.com/janovincze/commentsync/internal/metrics"
	"github.com/janovincze/commentsync/internal/storage"
)

const (
	sinkName    = "parquet"
	contentType = "application/vnd.apache.parquet"
)

// Config holds Parquet sink configuration.
type Config struct {
	// Bucket receives the Parquet files.
	Bucket string

	// Prefix is prepended to every object key.
	Prefix string

	// Limits bounds the rows of a single file.
	Limits sink.Limits

	// CompressionCodec is the compression codec to use.
	CompressionCodec parquet.CompressionCodec
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Prefix:           "comments",
		Limits:           sink.Limits{MaxRecords: 10000},
		CompressionCodec: parquet.CompressionCodec_SNAPPY,
	}
}

// CommentRecord is the Parquet row for one comment.
type CommentRecord struct {
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	VideoID    string `parquet:"name=video_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Payload    string `parquet:"name=payload, type=BYTE_ARRAY, convertedtype=UTF8"`
	IngestedAt int64  `parquet:"name=ingested_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// Sink writes each chunk of comments as one Parquet object.
type Sink struct {
	cfg     Config
	objects storage.ObjectStore
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a Parquet sink.
func New(cfg Config, objects storage.ObjectStore, logger *slog.Logger) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("parquet sink bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		cfg:     cfg,
		objects: objects,
		now:     time.Now,
		logger:  logger.With("component", "parquet-sink", "bucket", cfg.Bucket),
	}, nil
}

// EnsureBucket creates the archive bucket if needed.
func (s *Sink) EnsureBucket(ctx context.Context) error {
	return s.objects.EnsureBucket(ctx, s.cfg.Bucket)
}

// Name returns the name of this sink.
func (s *Sink) Name() string {
	return sinkName
}

// Deliver encodes and uploads one Parquet file per chunk.
func (s *Sink) Deliver(ctx context.Context, comments []ingest.Comment) error {
	if len(comments) == 0 {
		return nil
	}

	chunks, err := sink.Chunk(comments, s.cfg.Limits)
	if err != nil {
		return fmt.Errorf("chunk comments: %w", err)
	}

	now := s.now().UTC()
	for i, chunk := range chunks {
		data, err := s.encode(chunk, now)
		if err != nil {
			metrics.SinkChunksTotal.WithLabelValues(sinkName, "error").Inc()
			return fmt.Errorf("encode chunk %d of %d: %w", i+1, len(chunks), err)
		}

		key := s.objectKey(now)
		if err := s.objects.Upload(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
			metrics.SinkChunksTotal.WithLabelValues(sinkName, "error").Inc()
			return fmt.Errorf("upload chunk %d of %d: %w", i+1, len(chunks), err)
		}

		metrics.SinkChunksTotal.WithLabelValues(sinkName, "success").Inc()
		metrics.SinkRecordsTotal.WithLabelValues(sinkName).Add(float64(len(chunk)))
		metrics.SinkBytesTotal.WithLabelValues(sinkName).Add(float64(len(data)))

		s.logger.Debug("uploaded parquet file", "key", key, "comments", len(chunk), "bytes", len(data))
	}

	s.logger.Info("archived comments", "comments", len(comments), "files", len(chunks))
	return nil
}

// encode converts comments to Parquet format.
func (s *Sink) encode(comments []ingest.Comment, now time.Time) ([]byte, error) {
	buf := new(bytes.Buffer)
	fw := buffer.NewBufferFileFromBytes(buf.Bytes())

	pw, err := writer.NewParquetWriter(fw, new(CommentRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = s.cfg.CompressionCodec

	for _, c := range comments {
		record := &CommentRecord{
			ID:         c.ID,
			VideoID:    c.VideoID,
			Payload:    string(c.Payload),
			IngestedAt: now.UnixMilli(),
		}
		if err := pw.Write(record); err != nil {
			return nil, fmt.Errorf("write record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}

	return fw.Bytes(), nil
}

// objectKey returns <prefix>/dt=YYYY-MM-DD/<uuid>-<millis>.parquet.
func (s *Sink) objectKey(now time.Time) string {
	name := fmt.Sprintf("%s-%d.parquet", uuid.New().String(), now.UnixMilli())
	return path.Join(s.cfg.Prefix, "dt="+now.Format("2006-01-02"), name)
}

var _ sink.Sink = (*Sink)(nil)
