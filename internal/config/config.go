// Package config provides configuration loading for commentsync services.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Checkpoint backends.
const (
	CheckpointBackendMemory   = "memory"
	CheckpointBackendMinIO    = "minio"
	CheckpointBackendPostgres = "postgres"
)

// Sink kinds.
const (
	SinkKindKafka   = "kafka"
	SinkKindParquet = "parquet"
	SinkKindMemory  = "memory"
)

// Config holds all configuration for commentsync services.
type Config struct {
	// Version is the application version
	Version string

	// Environment is the deployment environment (development, staging, production)
	Environment string

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string

	// API configuration
	API APIConfig

	// Source holds the YouTube Data API configuration
	Source SourceConfig

	// Checkpoint selects where the watermark and progress documents live
	Checkpoint CheckpointConfig

	// MinIO/S3 configuration
	Storage StorageConfig

	// Database configuration for the postgres checkpoint backend
	Database DatabaseConfig

	// Sink configuration
	Sink SinkConfig

	// Drain holds per-run limits and the fetch error policy
	Drain DrainConfig

	// Schedule holds the cron trigger configuration
	Schedule ScheduleConfig

	// Retry holds the retry policy for source calls
	Retry RetryConfig

	// Metrics configuration
	Metrics MetricsConfig

	// Vault configuration
	Vault VaultConfig
}

// APIConfig holds API server configuration.
type APIConfig struct {
	// Enabled starts the HTTP trigger and ops endpoints
	Enabled bool

	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// A run triggered over HTTP must finish inside it.
	WriteTimeout time.Duration

	// CORSOrigins is a list of allowed CORS origins (use "*" for all)
	CORSOrigins []string

	// RateLimitRPS is the rate limit in requests per second
	RateLimitRPS float64

	// RateLimitBurst is the maximum burst size for rate limiting
	RateLimitBurst int
}

// SourceConfig holds YouTube Data API configuration.
type SourceConfig struct {
	// APIKey is the Data API key
	APIKey string

	// Query is the search term for candidate videos
	Query string

	// Order is the search order; empty uses the API default
	Order string

	// PageSize is the number of comment threads per page (1-100)
	PageSize int

	// Endpoint overrides the API base URL
	Endpoint string

	// RequestsPerSecond throttles API calls
	RequestsPerSecond float64

	// Burst is the throttle burst size
	Burst int

	// Timeout bounds each API call
	Timeout time.Duration
}

// CheckpointConfig holds checkpoint store configuration.
type CheckpointConfig struct {
	// Backend is one of memory, minio or postgres
	Backend string

	// Bucket holds the documents for the minio backend
	Bucket string

	// WatermarkKey is the key of the last-fetched document
	WatermarkKey string

	// ProgressKey is the key of the per-video progress document
	ProgressKey string
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Endpoint is the S3/MinIO endpoint
	Endpoint string

	// AccessKey is the access key
	AccessKey string

	// SecretKey is the secret key
	SecretKey string

	// UseSSL enables SSL for the connection
	UseSSL bool

	// Region is the S3 region (optional for MinIO)
	Region string
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the database host
	Host string

	// Port is the database port
	Port int

	// Name is the database name
	Name string

	// User is the database user
	User string

	// Password is the database password
	Password string

	// SSLMode is the SSL mode (disable, require, verify-ca, verify-full)
	SSLMode string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// CreateTable creates the checkpoint table on startup
	CreateTable bool
}

// DSN returns the database connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode,
	)
}

// SinkConfig holds comment sink configuration.
type SinkConfig struct {
	// Kind is one of kafka, parquet or memory
	Kind string

	// Kafka holds the Kafka / Event Hubs producer settings
	Kafka KafkaConfig

	// Parquet holds the object storage archive settings
	Parquet ParquetConfig
}

// KafkaConfig holds Kafka producer configuration.
type KafkaConfig struct {
	// Brokers is the list of bootstrap brokers
	Brokers []string

	// Topic receives the comments (the Event Hub name)
	Topic string

	// ClientID identifies the producer
	ClientID string

	// SASLUser enables SASL/PLAIN when set
	SASLUser string

	// SASLPassword is the SASL password
	SASLPassword string

	// TLS enables TLS on broker connections
	TLS bool

	// BatchRecords is the maximum number of messages per batch
	BatchRecords int

	// BatchBytes is the maximum payload bytes per batch
	BatchBytes int

	// ConnectTimeout is the broker dial timeout
	ConnectTimeout time.Duration

	// ConnectMaxElapsed bounds retries of producer creation
	ConnectMaxElapsed time.Duration
}

// ParquetConfig holds Parquet archive configuration.
type ParquetConfig struct {
	// Bucket receives the Parquet files
	Bucket string

	// Prefix is prepended to object keys
	Prefix string

	// MaxRows is the maximum rows per file
	MaxRows int
}

// DrainConfig holds run limits.
type DrainConfig struct {
	// MaxCandidates caps the videos considered per run
	MaxCandidates int

	// FetchErrorPolicy is retain or abandon
	FetchErrorPolicy string
}

// ScheduleConfig holds cron trigger configuration.
type ScheduleConfig struct {
	// Enabled starts the cron scheduler
	Enabled bool

	// Cron is a standard five-field cron expression
	Cron string

	// Timezone is the IANA zone the expression is evaluated in
	Timezone string

	// RunTimeout bounds a scheduled run
	RunTimeout time.Duration
}

// RetryConfig holds retry policy configuration.
type RetryConfig struct {
	// MaxAttempts is the maximum number of retry attempts
	MaxAttempts int

	// InitialInterval is the initial backoff interval
	InitialInterval time.Duration

	// MaxInterval is the maximum backoff interval
	MaxInterval time.Duration

	// Multiplier is the backoff multiplier
	Multiplier float64
}

// MetricsConfig holds metrics/observability configuration.
type MetricsConfig struct {
	// Enabled exposes /metrics on the API server
	Enabled bool
}

// VaultConfig holds HashiCorp Vault configuration.
type VaultConfig struct {
	// Enabled enables Vault integration
	Enabled bool

	// Address is the Vault server URL
	Address string

	// Namespace is the Vault namespace
	Namespace string

	// AuthMethod is kubernetes or token
	AuthMethod string

	// Role is the Kubernetes auth role
	Role string

	// TokenPath is the service account token path
	TokenPath string

	// Token is a static token
	Token string

	// TLSSkipVerify skips TLS verification
	TLSSkipVerify bool

	// CACert is a CA certificate path
	CACert string

	// SecretMountPath is the KV v2 mount
	SecretMountPath string

	// TokenRenewalInterval is how often the token is renewed
	TokenRenewalInterval time.Duration

	// SecretRefreshInterval is how long cached secrets stay valid
	SecretRefreshInterval time.Duration

	// FallbackToEnv uses environment secrets when Vault is unavailable
	FallbackToEnv bool

	// SecretPathYouTube holds api_key
	SecretPathYouTube string

	// SecretPathStorage holds access_key and secret_key
	SecretPathStorage string

	// SecretPathDatabase holds password
	SecretPathDatabase string

	// SecretPathKafka holds password
	SecretPathKafka string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Version:     getEnv("COMMENTSYNC_VERSION", "0.1.0"),
		Environment: getEnv("COMMENTSYNC_ENV", "development"),
		LogLevel:    getEnv("COMMENTSYNC_LOG_LEVEL", "info"),

		API: APIConfig{
			Enabled:        getBoolEnv("COMMENTSYNC_API_ENABLED", true),
			ListenAddr:     getEnv("COMMENTSYNC_API_LISTEN_ADDR", ":8080"),
			ReadTimeout:    getDurationEnv("COMMENTSYNC_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDurationEnv("COMMENTSYNC_API_WRITE_TIMEOUT", 10*time.Minute),
			CORSOrigins:    getSliceEnv("COMMENTSYNC_API_CORS_ORIGINS", []string{"*"}),
			RateLimitRPS:   getFloatEnv("COMMENTSYNC_API_RATE_LIMIT_RPS", 10),
			RateLimitBurst: getIntEnv("COMMENTSYNC_API_RATE_LIMIT_BURST", 20),
		},

		Source: SourceConfig{
			APIKey:            getEnv("COMMENTSYNC_SOURCE_API_KEY", ""),
			Query:             getEnv("COMMENTSYNC_SOURCE_QUERY", "Azure"),
			Order:             getEnv("COMMENTSYNC_SOURCE_ORDER", ""),
			PageSize:          getIntEnv("COMMENTSYNC_SOURCE_PAGE_SIZE", 100),
			Endpoint:          getEnv("COMMENTSYNC_SOURCE_ENDPOINT", ""),
			RequestsPerSecond: getFloatEnv("COMMENTSYNC_SOURCE_RPS", 5),
			Burst:             getIntEnv("COMMENTSYNC_SOURCE_BURST", 5),
			Timeout:           getDurationEnv("COMMENTSYNC_SOURCE_TIMEOUT", 30*time.Second),
		},

		Checkpoint: CheckpointConfig{
			Backend:      strings.ToLower(getEnv("COMMENTSYNC_CHECKPOINT_BACKEND", CheckpointBackendMinIO)),
			Bucket:       getEnv("COMMENTSYNC_CHECKPOINT_BUCKET", "checkpoints"),
			WatermarkKey: getEnv("COMMENTSYNC_CHECKPOINT_WATERMARK_KEY", "last_fetched.json"),
			ProgressKey:  getEnv("COMMENTSYNC_CHECKPOINT_PROGRESS_KEY", "fetch_progress.json"),
		},

		Storage: StorageConfig{
			Endpoint:  getEnv("COMMENTSYNC_STORAGE_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("COMMENTSYNC_STORAGE_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("COMMENTSYNC_STORAGE_SECRET_KEY", "minioadmin"),
			UseSSL:    getBoolEnv("COMMENTSYNC_STORAGE_USE_SSL", false),
			Region:    getEnv("COMMENTSYNC_STORAGE_REGION", ""),
		},

		Database: DatabaseConfig{
			Host:         getEnv("COMMENTSYNC_DB_HOST", "localhost"),
			Port:         getIntEnv("COMMENTSYNC_DB_PORT", 5432),
			Name:         getEnv("COMMENTSYNC_DB_NAME", "commentsync"),
			User:         getEnv("COMMENTSYNC_DB_USER", "commentsync"),
			Password:     getEnv("COMMENTSYNC_DB_PASSWORD", "commentsync"),
			SSLMode:      getEnv("COMMENTSYNC_DB_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("COMMENTSYNC_DB_MAX_OPEN_CONNS", 5),
			MaxIdleConns: getIntEnv("COMMENTSYNC_DB_MAX_IDLE_CONNS", 2),
			CreateTable:  getBoolEnv("COMMENTSYNC_DB_CREATE_TABLE", true),
		},

		Sink: SinkConfig{
			Kind: strings.ToLower(getEnv("COMMENTSYNC_SINK_KIND", SinkKindKafka)),
			Kafka: KafkaConfig{
				Brokers:           getSliceEnv("COMMENTSYNC_KAFKA_BROKERS", []string{"localhost:9092"}),
				Topic:             getEnv("COMMENTSYNC_KAFKA_TOPIC", "youtube-comments"),
				ClientID:          getEnv("COMMENTSYNC_KAFKA_CLIENT_ID", "commentsync"),
				SASLUser:          getEnv("COMMENTSYNC_KAFKA_SASL_USER", ""),
				SASLPassword:      getEnv("COMMENTSYNC_KAFKA_SASL_PASSWORD", ""),
				TLS:               getBoolEnv("COMMENTSYNC_KAFKA_TLS", false),
				BatchRecords:      getIntEnv("COMMENTSYNC_KAFKA_BATCH_RECORDS", 500),
				BatchBytes:        getIntEnv("COMMENTSYNC_KAFKA_BATCH_BYTES", 1000000),
				ConnectTimeout:    getDurationEnv("COMMENTSYNC_KAFKA_CONNECT_TIMEOUT", 10*time.Second),
				ConnectMaxElapsed: getDurationEnv("COMMENTSYNC_KAFKA_CONNECT_MAX_ELAPSED", time.Minute),
			},
			Parquet: ParquetConfig{
				Bucket:  getEnv("COMMENTSYNC_PARQUET_BUCKET", "comments"),
				Prefix:  getEnv("COMMENTSYNC_PARQUET_PREFIX", "comments"),
				MaxRows: getIntEnv("COMMENTSYNC_PARQUET_MAX_ROWS", 10000),
			},
		},

		Drain: DrainConfig{
			MaxCandidates:    getIntEnv("COMMENTSYNC_DRAIN_MAX_CANDIDATES", 20),
			FetchErrorPolicy: getEnv("COMMENTSYNC_DRAIN_FETCH_ERROR_POLICY", "retain"),
		},

		Schedule: ScheduleConfig{
			Enabled:    getBoolEnv("COMMENTSYNC_SCHEDULE_ENABLED", false),
			Cron:       getEnv("COMMENTSYNC_SCHEDULE_CRON", "*/15 * * * *"),
			Timezone:   getEnv("COMMENTSYNC_SCHEDULE_TIMEZONE", "UTC"),
			RunTimeout: getDurationEnv("COMMENTSYNC_SCHEDULE_RUN_TIMEOUT", 10*time.Minute),
		},

		Retry: RetryConfig{
			MaxAttempts:     getIntEnv("COMMENTSYNC_RETRY_MAX_ATTEMPTS", 3),
			InitialInterval: getDurationEnv("COMMENTSYNC_RETRY_INITIAL_INTERVAL", time.Second),
			MaxInterval:     getDurationEnv("COMMENTSYNC_RETRY_MAX_INTERVAL", 30*time.Second),
			Multiplier:      getFloatEnv("COMMENTSYNC_RETRY_MULTIPLIER", 2.0),
		},

		Metrics: MetricsConfig{
			Enabled: getBoolEnv("COMMENTSYNC_METRICS_ENABLED", true),
		},

		Vault: VaultConfig{
			Enabled:               getBoolEnv("COMMENTSYNC_VAULT_ENABLED", false),
			Address:               getEnv("COMMENTSYNC_VAULT_ADDRESS", "http://localhost:8200"),
			Namespace:             getEnv("COMMENTSYNC_VAULT_NAMESPACE", ""),
			AuthMethod:            getEnv("COMMENTSYNC_VAULT_AUTH_METHOD", "kubernetes"),
			Role:                  getEnv("COMMENTSYNC_VAULT_ROLE", "commentsync"),
			TokenPath:             getEnv("COMMENTSYNC_VAULT_TOKEN_PATH", "/var/run/secrets/kubernetes.io/serviceaccount/token"),
			Token:                 getEnv("COMMENTSYNC_VAULT_TOKEN", ""),
			TLSSkipVerify:         getBoolEnv("COMMENTSYNC_VAULT_TLS_SKIP_VERIFY", false),
			CACert:                getEnv("COMMENTSYNC_VAULT_CA_CERT", ""),
			SecretMountPath:       getEnv("COMMENTSYNC_VAULT_SECRET_MOUNT_PATH", "secret"),
			TokenRenewalInterval:  getDurationEnv("COMMENTSYNC_VAULT_TOKEN_RENEWAL_INTERVAL", time.Hour),
			SecretRefreshInterval: getDurationEnv("COMMENTSYNC_VAULT_SECRET_REFRESH_INTERVAL", 5*time.Minute),
			FallbackToEnv:         getBoolEnv("COMMENTSYNC_VAULT_FALLBACK_TO_ENV", true),
			SecretPathYouTube:     getEnv("COMMENTSYNC_VAULT_SECRET_PATH_YOUTUBE", "commentsync/youtube"),
			SecretPathStorage:     getEnv("COMMENTSYNC_VAULT_SECRET_PATH_STORAGE", "commentsync/storage"),
			SecretPathDatabase:    getEnv("COMMENTSYNC_VAULT_SECRET_PATH_DATABASE", "commentsync/database"),
			SecretPathKafka:       getEnv("COMMENTSYNC_VAULT_SECRET_PATH_KAFKA", "commentsync/kafka"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// maxSearchResults is the largest maxResults search.list accepts.
const maxSearchResults = 50

// Validate checks enumerations and limits. Credentials are checked where they
// are used, since they may still arrive from Vault.
func (c *Config) Validate() error {
	var errs []error

	switch c.Checkpoint.Backend {
	case CheckpointBackendMemory, CheckpointBackendMinIO, CheckpointBackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown checkpoint backend %q", c.Checkpoint.Backend))
	}
	if c.Checkpoint.WatermarkKey == "" || c.Checkpoint.ProgressKey == "" {
		errs = append(errs, errors.New("checkpoint keys must not be empty"))
	}
	if c.Checkpoint.WatermarkKey == c.Checkpoint.ProgressKey {
		errs = append(errs, errors.New("checkpoint watermark and progress keys must differ"))
	}
	if c.Checkpoint.Backend == CheckpointBackendMinIO && c.Checkpoint.Bucket == "" {
		errs = append(errs, errors.New("checkpoint bucket is required for the minio backend"))
	}

	switch c.Sink.Kind {
	case SinkKindKafka, SinkKindParquet, SinkKindMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown sink kind %q", c.Sink.Kind))
	}

	switch strings.ToLower(strings.TrimSpace(c.Drain.FetchErrorPolicy)) {
	case "", "retain", "abandon":
	default:
		errs = append(errs, fmt.Errorf("unknown fetch error policy %q", c.Drain.FetchErrorPolicy))
	}
	if c.Drain.MaxCandidates < 1 || c.Drain.MaxCandidates > maxSearchResults {
		errs = append(errs, fmt.Errorf("drain max candidates must be between 1 and %d, got %d", maxSearchResults, c.Drain.MaxCandidates))
	}

	if c.Source.PageSize < 1 || c.Source.PageSize > 100 {
		errs = append(errs, fmt.Errorf("source page size must be between 1 and 100, got %d", c.Source.PageSize))
	}
	if c.Schedule.Enabled && c.Schedule.Cron == "" {
		errs = append(errs, errors.New("schedule cron expression is required when scheduling is enabled"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		if result := splitAndTrim(value, ","); len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
