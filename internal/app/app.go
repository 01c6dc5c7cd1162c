// Package app wires configuration, secrets and adapters into a run controller.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/janovincze/commentsync/internal/config"
	"github.com/janovincze/commentsync/internal/ingest/checkpoint"
	"github.com/janovincze/commentsync/internal/ingest/drain"
	"github.com/janovincze/commentsync/internal/ingest/run"
	"github.com/janovincze/commentsync/internal/ingest/sink"
	"github.com/janovincze/commentsync/internal/ingest/sink/kafka"
	"github.com/janovincze/commentsync/internal/ingest/sink/parquet"
	"github.com/janovincze/commentsync/internal/ingest/source"
	"github.com/janovincze/commentsync/internal/ingest/source/youtube"
	"github.com/janovincze/commentsync/internal/retry"
	"github.com/janovincze/commentsync/internal/storage"
	"github.com/janovincze/commentsync/internal/vault"
)

// Components are the collaborators of one worker process.
type Components struct {
	Checkpoints *checkpoint.Manager
	Source      source.Source
	Sink        sink.Sink
	Controller  *run.Controller

	objects *storage.MinIOClient
}

// Close releases the checkpoint store.
func (c *Components) Close() error {
	if c.Checkpoints == nil {
		return nil
	}
	return c.Checkpoints.Close()
}

// Build creates every component named by cfg. Credentials from secrets
// override the values in cfg.
func Build(ctx context.Context, cfg *config.Config, secrets vault.SecretProvider, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ApplySecrets(ctx, cfg, secrets, logger); err != nil {
		return nil, err
	}

	policy, err := drain.ParseFetchErrorPolicy(cfg.Drain.FetchErrorPolicy)
	if err != nil {
		return nil, err
	}

	c := &Components{}
	if c.Checkpoints, err = c.buildCheckpoints(ctx, cfg, logger); err != nil {
		return nil, err
	}

	if c.Source, err = youtube.New(ctx, YouTubeConfig(cfg), logger); err != nil {
		c.Close()
		return nil, fmt.Errorf("create source: %w", err)
	}

	if c.Sink, err = c.buildSink(ctx, cfg, logger); err != nil {
		c.Close()
		return nil, err
	}

	c.Controller = run.NewController(c.Source, c.Checkpoints, c.Sink, run.Config{
		MaxCandidates:    cfg.Drain.MaxCandidates,
		FetchErrorPolicy: policy,
	}, logger)

	logger.Info("components configured",
		"checkpoint_backend", cfg.Checkpoint.Backend,
		"sink", c.Sink.Name(),
		"source", c.Source.Name(),
		"query", cfg.Source.Query,
		"fetch_error_policy", policy.String(),
	)
	return c, nil
}

// BuildCheckpoints creates only the checkpoint manager, for tools that
// inspect or edit checkpoints without running.
func BuildCheckpoints(ctx context.Context, cfg *config.Config, secrets vault.SecretProvider, logger *slog.Logger) (*checkpoint.Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// The YouTube key is not needed to read or edit checkpoints.
	applyCheckpointSecrets(ctx, cfg, secrets, logger)
	c := &Components{}
	return c.buildCheckpoints(ctx, cfg, logger)
}

func (c *Components) objectStore(cfg *config.Config, logger *slog.Logger) (*storage.MinIOClient, error) {
	if c.objects != nil {
		return c.objects, nil
	}
	objects, err := storage.NewMinIOClient(storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Region:    cfg.Storage.Region,
	}, logger)
	if err != nil {
		return nil, err
	}
	c.objects = objects
	return objects, nil
}

func (c *Components) buildCheckpoints(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*checkpoint.Manager, error) {
	keys := checkpoint.Keys{
		Watermark: cfg.Checkpoint.WatermarkKey,
		Progress:  cfg.Checkpoint.ProgressKey,
	}

	var store checkpoint.Store
	switch cfg.Checkpoint.Backend {
	case config.CheckpointBackendMemory:
		logger.Warn("using in-memory checkpoints, progress is lost on restart")
		store = checkpoint.NewMemoryStore()

	case config.CheckpointBackendMinIO:
		objects, err := c.objectStore(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create checkpoint store: %w", err)
		}
		ms := checkpoint.NewMinIOStore(objects, cfg.Checkpoint.Bucket, logger)
		if err := ms.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure checkpoint bucket: %w", err)
		}
		store = ms

	case config.CheckpointBackendPostgres:
		ps, err := checkpoint.NewPostgresStore(ctx, checkpoint.PostgresConfig{
			DSN:          cfg.Database.DSN(),
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
			CreateTable:  cfg.Database.CreateTable,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create checkpoint store: %w", err)
		}
		store = ps

	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}

	return checkpoint.NewManager(store, keys, logger), nil
}

func (c *Components) buildSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sink.Sink, error) {
	switch cfg.Sink.Kind {
	case config.SinkKindKafka:
		s, err := kafka.New(KafkaConfig(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("create kafka sink: %w", err)
		}
		return s, nil

	case config.SinkKindParquet:
		objects, err := c.objectStore(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create parquet sink: %w", err)
		}
		pc := parquet.DefaultConfig()
		pc.Bucket = cfg.Sink.Parquet.Bucket
		pc.Prefix = cfg.Sink.Parquet.Prefix
		if cfg.Sink.Parquet.MaxRows > 0 {
			pc.Limits.MaxRecords = cfg.Sink.Parquet.MaxRows
		}
		s, err := parquet.New(pc, objects, logger)
		if err != nil {
			return nil, fmt.Errorf("create parquet sink: %w", err)
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure parquet bucket: %w", err)
		}
		return s, nil

	case config.SinkKindMemory:
		logger.Warn("using in-memory sink, comments are not delivered anywhere")
		return sink.NewMemory(sink.Limits{}), nil

	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Sink.Kind)
	}
}

// YouTubeConfig maps cfg onto the YouTube source configuration.
func YouTubeConfig(cfg *config.Config) youtube.Config {
	yc := youtube.DefaultConfig()
	yc.APIKey = cfg.Source.APIKey
	yc.Query = cfg.Source.Query
	yc.Order = cfg.Source.Order
	yc.PageSize = int64(cfg.Source.PageSize)
	yc.Endpoint = cfg.Source.Endpoint
	yc.RequestsPerSecond = cfg.Source.RequestsPerSecond
	yc.Burst = cfg.Source.Burst
	yc.Timeout = cfg.Source.Timeout
	yc.Retry = retry.Policy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
		Multiplier:      cfg.Retry.Multiplier,
		Jitter:          true,
	}
	return yc
}

// KafkaConfig maps cfg onto the Kafka sink configuration.
func KafkaConfig(cfg *config.Config) kafka.Config {
	kc := kafka.DefaultConfig()
	kc.Brokers = cfg.Sink.Kafka.Brokers
	kc.Topic = cfg.Sink.Kafka.Topic
	kc.ClientID = cfg.Sink.Kafka.ClientID
	kc.SASLUser = cfg.Sink.Kafka.SASLUser
	kc.SASLPassword = cfg.Sink.Kafka.SASLPassword
	kc.TLS = cfg.Sink.Kafka.TLS
	if cfg.Sink.Kafka.BatchRecords > 0 {
		kc.Limits.MaxRecords = cfg.Sink.Kafka.BatchRecords
	}
	if cfg.Sink.Kafka.BatchBytes > 0 {
		kc.Limits.MaxBytes = cfg.Sink.Kafka.BatchBytes
	}
	if cfg.Sink.Kafka.ConnectTimeout > 0 {
		kc.ConnectTimeout = cfg.Sink.Kafka.ConnectTimeout
	}
	if cfg.Sink.Kafka.ConnectMaxElapsed > 0 {
		kc.ConnectMaxElapsed = cfg.Sink.Kafka.ConnectMaxElapsed
	}
	return kc
}

// VaultConfig maps cfg onto the Vault client configuration.
func VaultConfig(cfg *config.Config) *vault.Config {
	v := cfg.Vault
	return &vault.Config{
		Enabled:               v.Enabled,
		Address:               v.Address,
		Namespace:             v.Namespace,
		AuthMethod:            v.AuthMethod,
		Role:                  v.Role,
		TokenPath:             v.TokenPath,
		Token:                 v.Token,
		TLSSkipVerify:         v.TLSSkipVerify,
		CACert:                v.CACert,
		SecretMountPath:       v.SecretMountPath,
		TokenRenewalInterval:  v.TokenRenewalInterval,
		SecretRefreshInterval: v.SecretRefreshInterval,
		FallbackToEnv:         v.FallbackToEnv,
		SecretPaths: vault.SecretPaths{
			YouTube:  v.SecretPathYouTube,
			Storage:  v.SecretPathStorage,
			Database: v.SecretPathDatabase,
			Kafka:    v.SecretPathKafka,
		},
	}
}

// ApplySecrets overwrites credentials in cfg with those held by secrets.
// Only credentials of the selected backends are requested. A secret the
// provider cannot supply keeps the configured value; the YouTube API key is
// required.
func ApplySecrets(ctx context.Context, cfg *config.Config, secrets vault.SecretProvider, logger *slog.Logger) error {
	if secrets == nil {
		if cfg.Source.APIKey == "" {
			return errors.New("youtube api key is not configured")
		}
		return nil
	}

	key, err := secrets.YouTubeAPIKey(ctx)
	switch {
	case err == nil && key != "":
		cfg.Source.APIKey = key
	case cfg.Source.APIKey != "":
		logger.Debug("youtube api key not resolved, using configured value", "error", err)
	case err != nil:
		return fmt.Errorf("resolve youtube api key: %w", err)
	default:
		return errors.New("youtube api key is empty")
	}

	applyCheckpointSecrets(ctx, cfg, secrets, logger)

	if cfg.Sink.Kind == config.SinkKindParquet && cfg.Checkpoint.Backend != config.CheckpointBackendMinIO {
		applyStorageCredentials(ctx, cfg, secrets, logger)
	}

	if cfg.Sink.Kind == config.SinkKindKafka && cfg.Sink.Kafka.SASLUser != "" {
		if pw, err := secrets.KafkaPassword(ctx); err == nil {
			cfg.Sink.Kafka.SASLPassword = pw
		} else {
			logger.Debug("kafka password not resolved, using configured value", "error", err)
		}
	}
	return nil
}

// applyCheckpointSecrets resolves the credentials of the checkpoint backend.
func applyCheckpointSecrets(ctx context.Context, cfg *config.Config, secrets vault.SecretProvider, logger *slog.Logger) {
	if secrets == nil {
		return
	}

	switch cfg.Checkpoint.Backend {
	case config.CheckpointBackendMinIO:
		applyStorageCredentials(ctx, cfg, secrets, logger)
	case config.CheckpointBackendPostgres:
		if pw, err := secrets.DatabasePassword(ctx); err == nil {
			cfg.Database.Password = pw
		} else {
			logger.Debug("database password not resolved, using configured value", "error", err)
		}
	}
}

func applyStorageCredentials(ctx context.Context, cfg *config.Config, secrets vault.SecretProvider, logger *slog.Logger) {
	if ak, sk, err := secrets.StorageCredentials(ctx); err == nil {
		cfg.Storage.AccessKey, cfg.Storage.SecretKey = ak, sk
	} else {
		logger.Debug("storage credentials not resolved, using configured values", "error", err)
	}
}
