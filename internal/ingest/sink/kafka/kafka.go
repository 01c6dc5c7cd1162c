// Package kafka delivers comments to a Kafka topic, including Azure Event Hubs
// through its Kafka-compatible endpoint.
package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"

	"github.com/janovincze/commentsync/internal/ingest"
	"github.com/janovincze/commentsync/internal/ingest/sink"
	"github.com/janovincze/commentsync/internal/metrics"
)

const sinkName = "kafka"

// Config holds Kafka sink configuration.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// Topic receives one message per comment.
	Topic string

	// ClientID identifies this producer to the cluster.
	ClientID string

	// SASLUser and SASLPassword enable SASL/PLAIN when SASLUser is set.
	// For Event Hubs use "$ConnectionString" and the namespace connection string.
	SASLUser     string
	SASLPassword string

	// TLS enables TLS on broker connections.
	TLS bool

	// Limits bounds each SendMessages batch.
	Limits sink.Limits

	// ConnectTimeout is the dial timeout for broker connections.
	ConnectTimeout time.Duration

	// ConnectMaxElapsed bounds the total time spent retrying producer creation.
	ConnectMaxElapsed time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ClientID: "commentsync",
		Limits: sink.Limits{
			MaxRecords: 500,
			MaxBytes:   1000000,
		},
		ConnectTimeout:    10 * time.Second,
		ConnectMaxElapsed: time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka brokers are required")
	}
	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}
	if c.SASLUser != "" && c.SASLPassword == "" {
		return errors.New("kafka sasl password is required when sasl user is set")
	}
	return nil
}

// ProducerFactory opens a new producer.
type ProducerFactory func() (sarama.SyncProducer, error)

// Sink is a sink.Sink that produces to a Kafka topic.
// Each Deliver call acquires its own producer and closes it before returning.
type Sink struct {
	cfg     Config
	connect ProducerFactory
	logger  *slog.Logger
}

// New creates a Kafka sink that connects to cfg.Brokers.
func New(cfg Config, logger *slog.Logger) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}

	saramaCfg := NewSaramaConfig(cfg)
	factory := func() (sarama.SyncProducer, error) {
		return sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	}
	return NewWithFactory(cfg, factory, logger), nil
}

// NewWithFactory creates a Kafka sink that opens producers through factory.
func NewWithFactory(cfg Config, factory ProducerFactory, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		cfg:     cfg,
		connect: factory,
		logger:  logger.With("component", "kafka-sink", "topic", cfg.Topic),
	}
}

// NewSaramaConfig builds the producer configuration.
func NewSaramaConfig(cfg Config) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID

	// Producer settings
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	if cfg.Limits.MaxBytes > 0 {
		config.Producer.MaxMessageBytes = cfg.Limits.MaxBytes
	}

	if cfg.ConnectTimeout > 0 {
		config.Net.DialTimeout = cfg.ConnectTimeout
	}

	if cfg.SASLUser != "" {
		config.Net.SASL.Enable = true
		config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		config.Net.SASL.User = cfg.SASLUser
		config.Net.SASL.Password = cfg.SASLPassword
	}
	if cfg.TLS {
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	config.Version = sarama.V1_0_0_0

	return config
}

// Name returns the name of this sink.
func (s *Sink) Name() string {
	return sinkName
}

// Deliver produces every comment, one SendMessages call per chunk.
func (s *Sink) Deliver(ctx context.Context, comments []ingest.Comment) error {
	if len(comments) == 0 {
		return nil
	}

	chunks, err := sink.Chunk(comments, s.cfg.Limits)
	if err != nil {
		return fmt.Errorf("chunk comments: %w", err)
	}

	producer, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := producer.Close(); cerr != nil {
			s.logger.Warn("failed to close producer", "error", cerr)
		}
	}()

	for i, chunk := range chunks {
		msgs := make([]*sarama.ProducerMessage, 0, len(chunk))
		for _, c := range chunk {
			msgs = append(msgs, &sarama.ProducerMessage{
				Topic: s.cfg.Topic,
				Key:   sarama.StringEncoder(c.VideoID),
				Value: sarama.ByteEncoder(c.Payload),
			})
		}

		if err := producer.SendMessages(msgs); err != nil {
			metrics.SinkChunksTotal.WithLabelValues(sinkName, "error").Inc()
			return fmt.Errorf("send chunk %d of %d: %w", i+1, len(chunks), err)
		}

		metrics.SinkChunksTotal.WithLabelValues(sinkName, "success").Inc()
		metrics.SinkRecordsTotal.WithLabelValues(sinkName).Add(float64(len(chunk)))
		metrics.SinkBytesTotal.WithLabelValues(sinkName).Add(float64(sink.TotalBytes(chunk)))
	}

	s.logger.Info("sent comments", "comments", len(comments), "chunks", len(chunks))
	return nil
}

// acquire opens a producer, retrying with exponential backoff.
func (s *Sink) acquire(ctx context.Context) (sarama.SyncProducer, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	if s.cfg.ConnectMaxElapsed > 0 {
		expBackoff.MaxElapsedTime = s.cfg.ConnectMaxElapsed
	}

	var producer sarama.SyncProducer
	operation := func() error {
		p, err := s.connect()
		if err != nil {
			s.logger.Warn("failed to create producer, retrying", "error", err)
			return fmt.Errorf("creating producer: %w", err)
		}
		producer = p
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		metrics.SinkChunksTotal.WithLabelValues(sinkName, "error").Inc()
		return nil, fmt.Errorf("failed to connect producer after retries: %w", err)
	}
	return producer, nil
}

var _ sink.Sink = (*Sink)(nil)
