// Package http serves the operational endpoints of a long-running
// repoindex process: health and Prometheus metrics.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/vectorstore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthChecker reports vector store consistency.
type HealthChecker interface {
	Health(ctx context.Context) (*vectorstore.Health, error)
}

// Server serves /health and /metrics.
type Server struct {
	echo   *echo.Echo
	health HealthChecker
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration

	// Gatherer backs /metrics. Nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer
}

// NewServer creates a Server.
func NewServer(health HealthChecker, logger *zap.Logger, cfg *Config) (*Server, error) {
	if health == nil {
		return nil, fmt.Errorf("health checker cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(globalRequestMetrics(logger).middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		health: health,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))
}

// Health status values.
const (
	StatusOK          = "ok"
	StatusDegraded    = "degraded"
	StatusUnavailable = "unavailable"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status      string            `json:"status"`
	Engine      string            `json:"engine,omitempty"`
	Collections *CollectionCounts `json:"collections,omitempty"`
	// Inconsistent lists repositories whose engine state disagrees with
	// the manifest.
	Inconsistent []string          `json:"inconsistent,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// CollectionCounts groups collections by health.
type CollectionCounts struct {
	Healthy      int `json:"healthy"`
	Empty        int `json:"empty"`
	Inconsistent int `json:"inconsistent"`
	Total        int `json:"total"`
}

// summarize converts a store health report into a response.
func summarize(h *vectorstore.Health) HealthResponse {
	resp := HealthResponse{
		Status: StatusOK,
		Engine: h.Engine,
		Collections: &CollectionCounts{
			Healthy:      len(h.Healthy),
			Empty:        len(h.Empty),
			Inconsistent: len(h.Inconsistent),
			Total:        len(h.Healthy) + len(h.Empty) + len(h.Inconsistent),
		},
	}
	if !h.IsHealthy() {
		resp.Status = StatusDegraded
		resp.Inconsistent = h.Inconsistent
		resp.Details = h.Details
	}
	return resp
}

// handleHealth answers 200 for a consistent store, 503 otherwise.
func (s *Server) handleHealth(c echo.Context) error {
	h, err := s.health.Health(c.Request().Context())
	if err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: StatusUnavailable, Error: err.Error()})
	}

	resp := summarize(h)
	if resp.Status != StatusOK {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run serves until ctx is done, then shuts down within the configured
// timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
