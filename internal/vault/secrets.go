package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// SecretProvider resolves the credentials commentsync needs.
type SecretProvider interface {
	// YouTubeAPIKey returns the YouTube Data API key
	YouTubeAPIKey(ctx context.Context) (string, error)

	// StorageCredentials returns MinIO/S3 access and secret keys
	StorageCredentials(ctx context.Context) (accessKey, secretKey string, err error)

	// DatabasePassword returns the checkpoint database password
	DatabasePassword(ctx context.Context) (string, error)

	// KafkaPassword returns the Kafka SASL password
	KafkaPassword(ctx context.Context) (string, error)

	// Refresh refreshes all cached secrets
	Refresh(ctx context.Context) error

	// Close cleans up resources
	Close() error
}

// secretReader is the part of Client used by VaultSecretProvider.
type secretReader interface {
	GetSecret(ctx context.Context, path string) (map[string]any, error)
	Close() error
}

type cachedSecret struct {
	data    map[string]any
	fetched time.Time
}

// VaultSecretProvider reads secrets from Vault and caches them per path.
type VaultSecretProvider struct {
	client  secretReader
	paths   SecretPaths
	ttl     time.Duration
	logger  *slog.Logger
	mu      sync.RWMutex
	cache   map[string]cachedSecret
	stop    context.Context
	cancel  context.CancelFunc
	nowFunc func() time.Time
}

// NewVaultSecretProvider creates a VaultSecretProvider. Cached secrets expire after ttl.
func NewVaultSecretProvider(client *Client, paths SecretPaths, ttl time.Duration, logger *slog.Logger) *VaultSecretProvider {
	return newVaultSecretProvider(client, paths, ttl, logger)
}

func newVaultSecretProvider(client secretReader, paths SecretPaths, ttl time.Duration, logger *slog.Logger) *VaultSecretProvider {
	if logger == nil {
		logger = slog.Default()
	}
	stop, cancel := context.WithCancel(context.Background())
	return &VaultSecretProvider{
		client:  client,
		paths:   paths,
		ttl:     ttl,
		logger:  logger.With("component", "vault-secrets"),
		cache:   make(map[string]cachedSecret),
		stop:    stop,
		cancel:  cancel,
		nowFunc: time.Now,
	}
}

// secret returns the data at path, from cache while it is fresh.
func (p *VaultSecretProvider) secret(ctx context.Context, path string) (map[string]any, error) {
	if path == "" {
		return nil, errors.New("secret path not configured")
	}

	p.mu.RLock()
	cached, ok := p.cache[path]
	p.mu.RUnlock()
	if ok && p.nowFunc().Sub(cached.fetched) <= p.ttl {
		return cached.data, nil
	}

	data, err := p.client.GetSecret(ctx, path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[path] = cachedSecret{data: data, fetched: p.nowFunc()}
	p.mu.Unlock()
	return data, nil
}

func (p *VaultSecretProvider) field(ctx context.Context, path, key string) (string, error) {
	data, err := p.secret(ctx, path)
	if err != nil {
		return "", err
	}
	return stringField(data, path, key)
}

// YouTubeAPIKey returns the YouTube Data API key.
func (p *VaultSecretProvider) YouTubeAPIKey(ctx context.Context) (string, error) {
	key, err := p.field(ctx, p.paths.YouTube, SecretKeyAPIKey)
	if err != nil {
		return "", fmt.Errorf("get youtube api key: %w", err)
	}
	return key, nil
}

// StorageCredentials returns MinIO/S3 credentials.
func (p *VaultSecretProvider) StorageCredentials(ctx context.Context) (string, string, error) {
	data, err := p.secret(ctx, p.paths.Storage)
	if err != nil {
		return "", "", fmt.Errorf("get storage credentials: %w", err)
	}
	ak, err := stringField(data, p.paths.Storage, SecretKeyAccessKey)
	if err != nil {
		return "", "", fmt.Errorf("get storage credentials: %w", err)
	}
	sk, err := stringField(data, p.paths.Storage, SecretKeySecretKey)
	if err != nil {
		return "", "", fmt.Errorf("get storage credentials: %w", err)
	}
	return ak, sk, nil
}

// DatabasePassword returns the checkpoint database password.
func (p *VaultSecretProvider) DatabasePassword(ctx context.Context) (string, error) {
	password, err := p.field(ctx, p.paths.Database, SecretKeyPassword)
	if err != nil {
		return "", fmt.Errorf("get database password: %w", err)
	}
	return password, nil
}

// KafkaPassword returns the Kafka SASL password.
func (p *VaultSecretProvider) KafkaPassword(ctx context.Context) (string, error) {
	password, err := p.field(ctx, p.paths.Kafka, SecretKeyPassword)
	if err != nil {
		return "", fmt.Errorf("get kafka password: %w", err)
	}
	return password, nil
}

// Refresh re-reads every configured path. Paths that fail keep their cached value.
func (p *VaultSecretProvider) Refresh(ctx context.Context) error {
	var errs []error
	for _, path := range []string{p.paths.YouTube, p.paths.Storage, p.paths.Database, p.paths.Kafka} {
		if path == "" {
			continue
		}
		data, err := p.client.GetSecret(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		p.mu.Lock()
		p.cache[path] = cachedSecret{data: data, fetched: p.nowFunc()}
		p.mu.Unlock()
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("refresh secrets: %w", err)
	}
	p.logger.Debug("secrets refreshed")
	return nil
}

// StartRefreshLoop refreshes secrets every ttl until Close.
func (p *VaultSecretProvider) StartRefreshLoop() {
	go func() {
		ticker := time.NewTicker(p.ttl)
		defer ticker.Stop()

		for {
			select {
			case <-p.stop.Done():
				return
			case <-ticker.C:
				if err := p.Refresh(p.stop); err != nil {
					p.logger.Warn("failed to refresh secrets", "error", err)
				}
			}
		}
	}()
}

// Close stops the refresh loop and the underlying client.
func (p *VaultSecretProvider) Close() error {
	p.cancel()
	return p.client.Close()
}

// Environment variables read by EnvSecretProvider.
const (
	EnvYouTubeAPIKey    = "COMMENTSYNC_SOURCE_API_KEY"
	EnvStorageAccessKey = "COMMENTSYNC_STORAGE_ACCESS_KEY"
	EnvStorageSecretKey = "COMMENTSYNC_STORAGE_SECRET_KEY"
	EnvDatabasePassword = "COMMENTSYNC_DB_PASSWORD"
	EnvKafkaPassword    = "COMMENTSYNC_KAFKA_SASL_PASSWORD"
)

// EnvSecretProvider reads secrets from environment variables.
type EnvSecretProvider struct {
	lookup func(string) string
	logger *slog.Logger
}

// NewEnvSecretProvider creates an EnvSecretProvider.
func NewEnvSecretProvider(logger *slog.Logger) *EnvSecretProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnvSecretProvider{
		lookup: os.Getenv,
		logger: logger.With("component", "env-secrets"),
	}
}

func (p *EnvSecretProvider) required(name string) (string, error) {
	v := p.lookup(name)
	if v == "" {
		return "", fmt.Errorf("%s not set", name)
	}
	return v, nil
}

// YouTubeAPIKey returns the API key from the environment.
func (p *EnvSecretProvider) YouTubeAPIKey(context.Context) (string, error) {
	return p.required(EnvYouTubeAPIKey)
}

// StorageCredentials returns storage credentials from the environment.
func (p *EnvSecretProvider) StorageCredentials(context.Context) (string, string, error) {
	ak, err := p.required(EnvStorageAccessKey)
	if err != nil {
		return "", "", err
	}
	sk, err := p.required(EnvStorageSecretKey)
	if err != nil {
		return "", "", err
	}
	return ak, sk, nil
}

// DatabasePassword returns the database password from the environment.
func (p *EnvSecretProvider) DatabasePassword(context.Context) (string, error) {
	return p.required(EnvDatabasePassword)
}

// KafkaPassword returns the Kafka SASL password from the environment.
func (p *EnvSecretProvider) KafkaPassword(context.Context) (string, error) {
	return p.required(EnvKafkaPassword)
}

// Refresh is a no-op.
func (p *EnvSecretProvider) Refresh(context.Context) error {
	return nil
}

// Close is a no-op.
func (p *EnvSecretProvider) Close() error {
	return nil
}

// NewSecretProvider returns a Vault-backed provider when Vault is enabled and
// reachable. Otherwise it returns an EnvSecretProvider if FallbackToEnv is set.
func NewSecretProvider(ctx context.Context, cfg *Config, logger *slog.Logger) (SecretProvider, error) {
	if cfg == nil {
		return nil, errors.New("vault config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if !cfg.Enabled {
		logger.Info("vault disabled, using environment secrets")
		return NewEnvSecretProvider(logger), nil
	}

	fallback := func(stage string, err error) (SecretProvider, error) {
		if cfg.FallbackToEnv {
			logger.Warn("vault unavailable, falling back to environment", "stage", stage, "error", err)
			return NewEnvSecretProvider(logger), nil
		}
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	client, err := NewClient(cfg, logger)
	if err != nil {
		return fallback("create vault client", err)
	}
	if err := client.Authenticate(ctx); err != nil {
		client.Close()
		return fallback("authenticate to vault", err)
	}

	provider := NewVaultSecretProvider(client, cfg.SecretPaths, cfg.SecretRefreshInterval, logger)
	if err := provider.Refresh(ctx); err != nil {
		provider.Close()
		return fallback("fetch initial secrets", err)
	}

	client.StartTokenRenewal()
	provider.StartRefreshLoop()

	logger.Info("using vault secret provider")
	return provider, nil
}

var (
	_ SecretProvider = (*VaultSecretProvider)(nil)
	_ SecretProvider = (*EnvSecretProvider)(nil)
)
