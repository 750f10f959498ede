// Package server exposes a running goal-seek over HTTP.
//
// Routes:
//   - GET /health  liveness plus telemetry health
//   - GET /status  live progress of the tracked seek
//   - GET /metrics Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goalseek/internal/goalseek"
	"github.com/fyrsmithlabs/goalseek/internal/logging"
	"github.com/fyrsmithlabs/goalseek/internal/telemetry"
)

// Config configures the server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	ServiceName     string
}

// Server serves health, status and metrics for one goalseek process.
type Server struct {
	config    Config
	echo      *echo.Echo
	tracker   *goalseek.Tracker
	telemetry *telemetry.Telemetry
	gatherer  prometheus.Gatherer
	logger    *logging.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithTracker serves tracker snapshots on /status.
func WithTracker(t *goalseek.Tracker) Option {
	return func(s *Server) { s.tracker = t }
}

// WithTelemetry includes telemetry health in /health.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Server) { s.telemetry = t }
}

// WithGatherer replaces the default Prometheus registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the request logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Service   string                  `json:"service"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// New creates a server. Nothing listens until Start is called.
func New(cfg Config, opts ...Option) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "goalseek"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		config:   cfg,
		echo:     e,
		gatherer: prometheus.DefaultGatherer,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug(c.Request().Context(), "http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:  "ok",
		Service: s.config.ServiceName,
	}
	if s.telemetry != nil {
		h := s.telemetry.Health()
		resp.Telemetry = &h
		if h.Degraded {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c echo.Context) error {
	if s.tracker == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no seek is being tracked")
	}
	return c.JSON(http.StatusOK, s.tracker.Snapshot())
}

// Start listens on the configured address and blocks until ctx is
// cancelled, then shuts down gracefully.
//
// Returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Addr returns the listening address once Start has bound it, or "".
func (s *Server) Addr() string {
	if addr := s.echo.ListenerAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}
