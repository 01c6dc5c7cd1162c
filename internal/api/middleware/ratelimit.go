package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/janovincze/commentsync/internal/api/models"
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	// RequestsPerSecond is the rate limit in requests per second.
	RequestsPerSecond float64

	// BurstSize is the maximum burst size.
	BurstSize int

	// PerClient keys limiters by client IP instead of sharing one.
	PerClient bool

	// ClientTTL is how long an idle client limiter is kept. Defaults to 1 hour.
	ClientTTL time.Duration

	// CleanupInterval is how often idle limiters are evicted. Defaults to 10 minutes.
	CleanupInterval time.Duration

	// ExemptPaths are never limited (health probes, metrics scrapes).
	ExemptPaths []string
}

// DefaultRateLimitConfig returns a RateLimitConfig with sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		PerClient:         true,
		ClientTTL:         time.Hour,
		CleanupInterval:   10 * time.Minute,
		ExemptPaths:       []string{"/health", "/health/live", "/health/ready", "/metrics"},
	}
}

// RateLimiter limits request rate. Cleanup of per-client limiters stops when
// ctx is done.
func RateLimiter(ctx context.Context, cfg RateLimitConfig) gin.HandlerFunc {
	exempt := make(map[string]struct{}, len(cfg.ExemptPaths))
	for _, p := range cfg.ExemptPaths {
		exempt[p] = struct{}{}
	}

	var limiterFor func(c *gin.Context) *rate.Limiter
	if cfg.PerClient {
		store := newLimiterStore(cfg)
		go store.run(ctx)
		limiterFor = func(c *gin.Context) *rate.Limiter {
			return store.get(c.ClientIP(), time.Now())
		}
	} else {
		shared := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize)
		limiterFor = func(*gin.Context) *rate.Limiter { return shared }
	}

	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(c *gin.Context) {
		if _, ok := exempt[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		if !limiterFor(c).Allow() {
			c.Header("Retry-After", "1")
			c.Header("X-RateLimit-Remaining", "0")
			models.RespondWithError(c, models.NewRateLimitedError(c.Request.URL.Path))
			c.Abort()
			return
		}
		c.Next()
	}
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterStore keeps one limiter per client IP.
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rps      rate.Limit
	burst    int
	ttl      time.Duration
	interval time.Duration
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	s := &limiterStore{
		limiters: make(map[string]*clientLimiter),
		rps:      rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.BurstSize,
		ttl:      cfg.ClientTTL,
		interval: cfg.CleanupInterval,
	}
	if s.ttl <= 0 {
		s.ttl = time.Hour
	}
	if s.interval <= 0 {
		s.interval = 10 * time.Minute
	}
	return s
}

func (s *limiterStore) get(clientIP string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	cl, ok := s.limiters[clientIP]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.limiters[clientIP] = cl
	}
	cl.lastAccess = now
	return cl.limiter
}

// evict drops limiters idle for longer than ttl.
func (s *limiterStore) evict(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ip, cl := range s.limiters {
		if now.Sub(cl.lastAccess) > s.ttl {
			delete(s.limiters, ip)
		}
	}
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *limiterStore) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.evict(now)
		}
	}
}
