// Package vault resolves commentsync credentials from HashiCorp Vault.
package vault

import "time"

// Config holds Vault client configuration.
type Config struct {
	// Enabled enables Vault integration
	Enabled bool

	// Address is the Vault server URL
	Address string

	// Namespace is the Vault namespace (Enterprise feature)
	Namespace string

	// AuthMethod is the authentication method ("kubernetes" or "token")
	AuthMethod string

	// Role is the Vault role for Kubernetes authentication
	Role string

	// TokenPath is the path to the Kubernetes service account token
	TokenPath string

	// Token is a static Vault token (for development/testing)
	Token string

	// TLSSkipVerify skips TLS certificate verification
	TLSSkipVerify bool

	// CACert is the path to a CA certificate file
	CACert string

	// SecretMountPath is the mount path for the KV v2 secrets engine
	SecretMountPath string

	// TokenRenewalInterval is how often to renew the Vault token
	TokenRenewalInterval time.Duration

	// SecretRefreshInterval is how long cached secrets stay valid
	SecretRefreshInterval time.Duration

	// FallbackToEnv falls back to environment variables if Vault is unavailable
	FallbackToEnv bool

	// SecretPaths contains the Vault paths for each secret
	SecretPaths SecretPaths
}

// SecretPaths defines the KV paths of each credential. An empty path is not read.
type SecretPaths struct {
	// YouTube holds the Data API key under "api_key"
	YouTube string

	// Storage holds MinIO/S3 "access_key" and "secret_key"
	Storage string

	// Database holds the checkpoint database "password"
	Database string

	// Kafka holds the SASL "password" (the Event Hubs connection string)
	Kafka string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AuthMethod:            AuthMethodKubernetes,
		Role:                  "commentsync",
		TokenPath:             DefaultTokenPath,
		SecretMountPath:       "secret",
		TokenRenewalInterval:  time.Hour,
		SecretRefreshInterval: 5 * time.Minute,
		FallbackToEnv:         true,
		SecretPaths: SecretPaths{
			YouTube:  "commentsync/youtube",
			Storage:  "commentsync/storage",
			Database: "commentsync/database",
			Kafka:    "commentsync/kafka",
		},
	}
}

// Authentication method constants.
const (
	// AuthMethodKubernetes uses Kubernetes service account authentication
	AuthMethodKubernetes = "kubernetes"

	// AuthMethodToken uses a static Vault token
	AuthMethodToken = "token"
)

// DefaultTokenPath is the default path to the Kubernetes service account token.
const DefaultTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// Secret key constants for Vault KV secrets.
const (
	SecretKeyAPIKey    = "api_key"
	SecretKeyPassword  = "password"
	SecretKeyAccessKey = "access_key"
	SecretKeySecretKey = "secret_key"
)
