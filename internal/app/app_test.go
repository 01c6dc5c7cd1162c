package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/janovincze/commentsync/internal/config"
	"github.com/janovincze/commentsync/internal/vault"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeSecrets struct {
	apiKey     string
	apiKeyErr  error
	accessKey  string
	secretKey  string
	storageErr error
	dbPassword string
	kafkaPass  string
}

func (f *fakeSecrets) YouTubeAPIKey(context.Context) (string, error) {
	return f.apiKey, f.apiKeyErr
}

func (f *fakeSecrets) StorageCredentials(context.Context) (string, string, error) {
	return f.accessKey, f.secretKey, f.storageErr
}

func (f *fakeSecrets) DatabasePassword(context.Context) (string, error) {
	if f.dbPassword == "" {
		return "", errors.New("not set")
	}
	return f.dbPassword, nil
}

func (f *fakeSecrets) KafkaPassword(context.Context) (string, error) {
	if f.kafkaPass == "" {
		return "", errors.New("not set")
	}
	return f.kafkaPass, nil
}

func (f *fakeSecrets) Refresh(context.Context) error { return nil }
func (f *fakeSecrets) Close() error                  { return nil }

func memoryConfig() *config.Config {
	return &config.Config{
		Source: config.SourceConfig{
			Query:             "Azure",
			PageSize:          100,
			RequestsPerSecond: 5,
			Burst:             5,
			Timeout:           30 * time.Second,
		},
		Checkpoint: config.CheckpointConfig{
			Backend:      config.CheckpointBackendMemory,
			WatermarkKey: "last_fetched.json",
			ProgressKey:  "fetch_progress.json",
		},
		Sink:  config.SinkConfig{Kind: config.SinkKindMemory},
		Drain: config.DrainConfig{MaxCandidates: 20, FetchErrorPolicy: "retain"},
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
			Multiplier:      2,
		},
	}
}

func TestBuild_MemoryBackends(t *testing.T) {
	cfg := memoryConfig()
	secrets := &fakeSecrets{apiKey: "vault-key"}

	c, err := Build(context.Background(), cfg, secrets, quietLogger())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer c.Close()

	if cfg.Source.APIKey != "vault-key" {
		t.Errorf("expected api key from secrets, got %q", cfg.Source.APIKey)
	}
	if c.Source.Name() != "youtube" {
		t.Errorf("expected youtube source, got %q", c.Source.Name())
	}
	if c.Controller == nil || c.Checkpoints == nil || c.Sink == nil {
		t.Fatal("expected all components to be built")
	}

	keys := c.Checkpoints.Keys()
	if keys.Watermark != "last_fetched.json" || keys.Progress != "fetch_progress.json" {
		t.Errorf("unexpected keys %+v", keys)
	}

	// Fresh memory store yields the default watermark and an empty map.
	progress, err := c.Checkpoints.LoadProgress(context.Background())
	if err != nil {
		t.Fatalf("LoadProgress() error = %v", err)
	}
	if len(progress) != 0 {
		t.Errorf("expected empty progress, got %v", progress)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "bad policy", mutate: func(c *config.Config) { c.Drain.FetchErrorPolicy = "ignore" }},
		{name: "bad backend", mutate: func(c *config.Config) { c.Checkpoint.Backend = "redis" }},
		{name: "bad sink", mutate: func(c *config.Config) { c.Sink.Kind = "stdout" }},
		{name: "kafka without brokers", mutate: func(c *config.Config) {
			c.Sink.Kind = config.SinkKindKafka
			c.Sink.Kafka.Topic = "youtube-comments"
		}},
		{name: "bad page size", mutate: func(c *config.Config) { c.Source.PageSize = 500 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			tt.mutate(cfg)
			if _, err := Build(context.Background(), cfg, &fakeSecrets{apiKey: "k"}, quietLogger()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApplySecrets(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		secrets *fakeSecrets
		wantErr bool
		check   func(*testing.T, *config.Config)
	}{
		{
			name:    "configured key kept when provider fails",
			mutate:  func(c *config.Config) { c.Source.APIKey = "env-key" },
			secrets: &fakeSecrets{apiKeyErr: errors.New("unavailable")},
			check: func(t *testing.T, c *config.Config) {
				if c.Source.APIKey != "env-key" {
					t.Errorf("expected env-key, got %q", c.Source.APIKey)
				}
			},
		},
		{
			name:    "missing key",
			secrets: &fakeSecrets{apiKeyErr: errors.New("unavailable")},
			wantErr: true,
		},
		{
			name: "storage credentials for minio backend",
			mutate: func(c *config.Config) {
				c.Checkpoint.Backend = config.CheckpointBackendMinIO
			},
			secrets: &fakeSecrets{apiKey: "k", accessKey: "ak", secretKey: "sk"},
			check: func(t *testing.T, c *config.Config) {
				if c.Storage.AccessKey != "ak" || c.Storage.SecretKey != "sk" {
					t.Errorf("unexpected storage credentials %q/%q", c.Storage.AccessKey, c.Storage.SecretKey)
				}
			},
		},
		{
			name: "storage credentials for parquet sink",
			mutate: func(c *config.Config) {
				c.Sink.Kind = config.SinkKindParquet
			},
			secrets: &fakeSecrets{apiKey: "k", accessKey: "ak", secretKey: "sk"},
			check: func(t *testing.T, c *config.Config) {
				if c.Storage.AccessKey != "ak" || c.Storage.SecretKey != "sk" {
					t.Errorf("unexpected storage credentials %q/%q", c.Storage.AccessKey, c.Storage.SecretKey)
				}
			},
		},
		{
			name:    "storage credentials not requested for memory backend",
			secrets: &fakeSecrets{apiKey: "k", accessKey: "ak", secretKey: "sk"},
			check: func(t *testing.T, c *config.Config) {
				if c.Storage.AccessKey != "" {
					t.Errorf("expected no storage credentials, got %q", c.Storage.AccessKey)
				}
			},
		},
		{
			name: "database password for postgres backend",
			mutate: func(c *config.Config) {
				c.Checkpoint.Backend = config.CheckpointBackendPostgres
				c.Database.Password = "configured"
			},
			secrets: &fakeSecrets{apiKey: "k", dbPassword: "from-vault"},
			check: func(t *testing.T, c *config.Config) {
				if c.Database.Password != "from-vault" {
					t.Errorf("expected vault password, got %q", c.Database.Password)
				}
			},
		},
		{
			name: "kafka password only with sasl user",
			mutate: func(c *config.Config) {
				c.Sink.Kind = config.SinkKindKafka
				c.Sink.Kafka.SASLUser = "$ConnectionString"
			},
			secrets: &fakeSecrets{apiKey: "k", kafkaPass: "Endpoint=sb://ns/"},
			check: func(t *testing.T, c *config.Config) {
				if c.Sink.Kafka.SASLPassword != "Endpoint=sb://ns/" {
					t.Errorf("unexpected sasl password %q", c.Sink.Kafka.SASLPassword)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := ApplySecrets(context.Background(), cfg, tt.secrets, quietLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplySecrets() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestApplySecrets_NilProvider(t *testing.T) {
	cfg := memoryConfig()
	if err := ApplySecrets(context.Background(), cfg, nil, quietLogger()); err == nil {
		t.Error("expected error without api key")
	}

	cfg.Source.APIKey = "env-key"
	if err := ApplySecrets(context.Background(), cfg, nil, quietLogger()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildCheckpoints_WithoutAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		secrets *fakeSecrets
	}{
		{name: "no provider"},
		{name: "provider without key", secrets: &fakeSecrets{apiKeyErr: errors.New("unavailable")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			var secrets vault.SecretProvider
			if tt.secrets != nil {
				secrets = tt.secrets
			}

			manager, err := BuildCheckpoints(context.Background(), cfg, secrets, quietLogger())
			if err != nil {
				t.Fatalf("BuildCheckpoints() error = %v", err)
			}
			defer manager.Close()

			if _, err := manager.LoadProgress(context.Background()); err != nil {
				t.Errorf("LoadProgress() error = %v", err)
			}
		})
	}
}

func TestApplyCheckpointSecrets(t *testing.T) {
	cfg := memoryConfig()
	cfg.Checkpoint.Backend = config.CheckpointBackendPostgres

	applyCheckpointSecrets(context.Background(), cfg, &fakeSecrets{dbPassword: "from-vault"}, quietLogger())

	if cfg.Database.Password != "from-vault" {
		t.Errorf("expected vault password, got %q", cfg.Database.Password)
	}
	if cfg.Source.APIKey != "" {
		t.Errorf("expected api key untouched, got %q", cfg.Source.APIKey)
	}
}

func TestConfigMapping(t *testing.T) {
	cfg := memoryConfig()
	cfg.Source.APIKey = "k"
	cfg.Source.PageSize = 50
	cfg.Sink.Kafka = config.KafkaConfig{
		Brokers:      []string{"ns.servicebus.windows.net:9093"},
		Topic:        "youtube-comments",
		BatchRecords: 100,
		TLS:          true,
	}
	cfg.Vault = config.VaultConfig{Enabled: true, Address: "http://vault:8200", SecretPathKafka: "commentsync/kafka"}

	yc := YouTubeConfig(cfg)
	if yc.PageSize != 50 || yc.Retry.MaxAttempts != 3 || !yc.Retry.Jitter {
		t.Errorf("unexpected youtube config %+v", yc)
	}

	kc := KafkaConfig(cfg)
	if kc.Limits.MaxRecords != 100 || kc.Limits.MaxBytes != 1000000 || !kc.TLS {
		t.Errorf("unexpected kafka config %+v", kc)
	}
	if kc.ClientID != "commentsync" {
		t.Errorf("expected default client id, got %q", kc.ClientID)
	}

	vc := VaultConfig(cfg)
	if !vc.Enabled || vc.SecretPaths.Kafka != "commentsync/kafka" {
		t.Errorf("unexpected vault config %+v", vc)
	}
}
