package vault

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"
)

// Client reads KV v2 secrets and keeps its token valid.
type Client struct {
	cfg    *Config
	api    *api.Client
	logger *slog.Logger

	mu       sync.RWMutex
	token    string
	tokenExp time.Time

	stop   context.Context
	cancel context.CancelFunc
}

// NewClient creates a Vault client. It does not authenticate.
func NewClient(cfg *Config, logger *slog.Logger) (*Client, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("vault config is required")
	case !cfg.Enabled:
		return nil, errors.New("vault is not enabled")
	case cfg.Address == "":
		return nil, errors.New("vault address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address

	if cfg.TLSSkipVerify {
		apiCfg.HttpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // explicitly requested
		}
	}
	if cfg.CACert != "" {
		if err := apiCfg.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("configure vault tls: %w", err)
		}
	}

	apiClient, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		apiClient.SetNamespace(cfg.Namespace)
	}

	stop, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		api:    apiClient,
		logger: logger.With("component", "vault-client"),
		stop:   stop,
		cancel: cancel,
	}, nil
}

// Authenticate logs in with the configured method.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}

// login must be called with the write lock held.
func (c *Client) login(ctx context.Context) error {
	switch c.cfg.AuthMethod {
	case AuthMethodToken:
		if c.cfg.Token == "" {
			return errors.New("vault token is required for token auth method")
		}
		c.setToken(c.cfg.Token, 0)

	case AuthMethodKubernetes:
		jwt, err := os.ReadFile(c.cfg.TokenPath)
		if err != nil {
			return fmt.Errorf("read service account token: %w", err)
		}
		resp, err := c.api.Logical().WriteWithContext(ctx, "auth/kubernetes/login", map[string]any{
			"role": c.cfg.Role,
			"jwt":  string(jwt),
		})
		if err != nil {
			return fmt.Errorf("kubernetes login: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return errors.New("kubernetes login: empty auth response")
		}
		c.setToken(resp.Auth.ClientToken, resp.Auth.LeaseDuration)

	default:
		return fmt.Errorf("unsupported auth method: %s", c.cfg.AuthMethod)
	}

	c.logger.Info("authenticated to vault", "auth_method", c.cfg.AuthMethod)
	return nil
}

func (c *Client) setToken(token string, leaseSeconds int) {
	c.token = token
	c.api.SetToken(token)
	c.tokenExp = time.Time{}
	if leaseSeconds > 0 {
		c.tokenExp = time.Now().Add(time.Duration(leaseSeconds) * time.Second)
	}
}

// expiring reports whether the token is missing or close to its lease end.
// Caller must hold at least the read lock.
func (c *Client) expiring() bool {
	if c.token == "" {
		return true
	}
	if c.cfg.AuthMethod == AuthMethodToken || c.tokenExp.IsZero() {
		return false
	}
	return time.Now().Add(c.cfg.TokenRenewalInterval / 10).After(c.tokenExp)
}

// ensureToken re-authenticates when the token is missing or expiring.
func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.RLock()
	expiring := c.expiring()
	c.mu.RUnlock()
	if !expiring {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.expiring() {
		return nil
	}
	if err := c.login(ctx); err != nil {
		return fmt.Errorf("re-authenticate: %w", err)
	}
	return nil
}

// GetSecret reads the data map of a KV v2 secret.
func (c *Client) GetSecret(ctx context.Context, path string) (map[string]any, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	fullPath := fmt.Sprintf("%s/data/%s", c.cfg.SecretMountPath, path)
	c.logger.Debug("fetching secret", "path", fullPath)

	c.mu.RLock()
	secret, err := c.api.Logical().ReadWithContext(ctx, fullPath)
	c.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("read secret at %s: %w", fullPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret found at %s", fullPath)
	}

	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected secret format at %s", fullPath)
	}
	return data, nil
}

// GetSecretString reads one string field of a KV v2 secret.
func (c *Client) GetSecretString(ctx context.Context, path, key string) (string, error) {
	data, err := c.GetSecret(ctx, path)
	if err != nil {
		return "", err
	}
	return stringField(data, path, key)
}

func stringField(data map[string]any, path, key string) (string, error) {
	value, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in secret at %s", key, path)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value for key %s is not a string", key)
	}
	return s, nil
}

// StartTokenRenewal renews the token in the background until Close.
// Static tokens are never renewed.
func (c *Client) StartTokenRenewal() {
	if c.cfg.AuthMethod == AuthMethodToken {
		return
	}

	go func() {
		ticker := time.NewTicker(c.cfg.TokenRenewalInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop.Done():
				return
			case <-ticker.C:
				if err := c.renew(); err != nil {
					c.logger.Error("failed to renew token, re-authenticating", "error", err)
					if err := c.Authenticate(c.stop); err != nil {
						c.logger.Error("failed to re-authenticate", "error", err)
					}
				}
			}
		}
	}()

	c.logger.Info("started token renewal", "interval", c.cfg.TokenRenewalInterval)
}

func (c *Client) renew() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.api.Auth().Token().RenewSelfWithContext(c.stop, 0)
	if err != nil {
		return fmt.Errorf("renew token: %w", err)
	}
	if resp.Auth != nil && resp.Auth.LeaseDuration > 0 {
		c.tokenExp = time.Now().Add(time.Duration(resp.Auth.LeaseDuration) * time.Second)
	}
	return nil
}

// HealthCheck checks that Vault is initialized and unsealed.
func (c *Client) HealthCheck(ctx context.Context) error {
	health, err := c.api.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check: %w", err)
	}
	if !health.Initialized {
		return errors.New("vault is not initialized")
	}
	if health.Sealed {
		return errors.New("vault is sealed")
	}
	return nil
}

// Close stops token renewal.
func (c *Client) Close() error {
	c.cancel()
	return nil
}
