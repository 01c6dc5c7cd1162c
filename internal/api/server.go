// Package api provides the HTTP trigger and ops endpoints of the commentsync worker.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/janovincze/commentsync/internal/api/handlers"
	"github.com/janovincze/commentsync/internal/api/middleware"
	"github.com/janovincze/commentsync/internal/config"
	"github.com/janovincze/commentsync/internal/ingest/health"
)

// Server is the HTTP API server.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	router     *gin.Engine
	cancel     context.CancelFunc
}

// ServerConfig holds server dependencies and options.
type ServerConfig struct {
	// Config is the application configuration.
	Config *config.Config

	// Logger is the structured logger.
	Logger *slog.Logger

	// Runs triggers runs and reports the last one.
	Runs handlers.RunTrigger

	// Checkpoints reads the persisted checkpoint documents.
	Checkpoints handlers.CheckpointReader

	// HealthManager aggregates component health. Nil reports always healthy.
	HealthManager *health.Manager

	// Gatherer serves /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	// CORSConfig is the CORS configuration.
	CORSConfig middleware.CORSConfig

	// RateLimitConfig is the rate limiting configuration.
	RateLimitConfig middleware.RateLimitConfig
}

// DefaultServerConfig returns a ServerConfig built from cfg.
func DefaultServerConfig(cfg *config.Config, logger *slog.Logger) ServerConfig {
	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.API.CORSOrigins) > 0 {
		corsCfg.AllowedOrigins = cfg.API.CORSOrigins
	}

	rl := middleware.DefaultRateLimitConfig()
	if cfg.API.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.API.RateLimitRPS
	}
	if cfg.API.RateLimitBurst > 0 {
		rl.BurstSize = cfg.API.RateLimitBurst
	}

	return ServerConfig{
		Config:          cfg,
		Logger:          logger,
		CORSConfig:      corsCfg,
		RateLimitConfig: rl,
	}
}

// NewServer creates a new API server.
func NewServer(serverCfg ServerConfig) *Server {
	logger := serverCfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := serverCfg.Config

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics())
	}
	router.Use(middleware.Logger(logger, "/health/live", "/health/ready", "/metrics"))
	router.Use(middleware.CORS(serverCfg.CORSConfig))
	router.Use(middleware.RateLimiter(ctx, serverCfg.RateLimitConfig))

	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "api-server"),
		router: router,
		cancel: cancel,
	}
	s.registerRoutes(serverCfg)

	s.httpServer = &http.Server{
		Addr:         cfg.API.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.ReadTimeout * 4,
	}

	return s
}

func (s *Server) registerRoutes(serverCfg ServerConfig) {
	healthHandler := handlers.NewHealthHandler(serverCfg.HealthManager)
	versionHandler := handlers.NewVersionHandler(s.cfg.Version)

	s.router.GET("/health", healthHandler.GetHealth)
	s.router.GET("/health/live", healthHandler.GetLiveness)
	s.router.GET("/health/ready", healthHandler.GetReadiness)

	if s.cfg.Metrics.Enabled {
		gatherer := serverCfg.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/version", versionHandler.GetVersion)

		if serverCfg.Runs != nil {
			runHandler := handlers.NewRunHandler(serverCfg.Runs)
			v1.POST("/runs", runHandler.Trigger)
			v1.GET("/runs/last", runHandler.GetLast)
		}

		if serverCfg.Checkpoints != nil {
			checkpointHandler := handlers.NewCheckpointHandler(serverCfg.Checkpoints)
			v1.GET("/checkpoints", checkpointHandler.Get)
		}
	}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.cfg.API.ListenAddr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")
	defer s.cancel()

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying Gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
