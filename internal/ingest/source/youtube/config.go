// Package youtube implements the comment source on top of the YouTube Data API v3.
package youtube

import (
	"errors"
	"time"

	"github.com/janovincze/commentsync/internal/retry"
)

// Config holds YouTube source configuration.
type Config struct {
	// APIKey is the YouTube Data API key.
	APIKey string

	// Query is the search term used to find candidate videos.
	Query string

	// Order is the search result order (e.g., "date"); empty uses the API default.
	Order string

	// PageSize is the number of comment threads requested per page (1-100).
	PageSize int64

	// Endpoint overrides the API base URL (used by tests and proxies).
	Endpoint string

	// RequestsPerSecond throttles calls to stay within quota. Zero disables throttling.
	RequestsPerSecond float64

	// Burst is the limiter burst size.
	Burst int

	// Timeout bounds each individual API call. Zero means no per-call timeout.
	Timeout time.Duration

	// Retry is the retry policy for transient API failures.
	Retry retry.Policy
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Query:             "Azure",
		PageSize:          100,
		RequestsPerSecond: 5,
		Burst:             5,
		Timeout:           30 * time.Second,
		Retry:             retry.DefaultPolicy(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("youtube api key is required")
	}
	if c.Query == "" {
		return errors.New("youtube search query is required")
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return errors.New("youtube page size must be between 1 and 100")
	}
	return nil
}
