// Package http provides the admin HTTP server: liveness, readiness and Prometheus
// metrics endpoints.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/tokenvault/internal/metrics"
)

// ReadinessCheck probes one dependency. A nil error means the dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Server represents the admin HTTP server.
type Server struct {
	server *http.Server
	router *gin.Engine
	checks map[string]ReadinessCheck
	logger *slog.Logger
}

// NewServer creates a new admin server. checks is keyed by component name
// (e.g. "database", "redis").
func NewServer(
	host string,
	port int,
	checks map[string]ReadinessCheck,
	logger *slog.Logger,
) *Server {
	return &Server{
		logger: logger,
		checks: checks,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter builds the router. /metrics is only registered when metricsProvider
// is not nil.
func (s *Server) SetupRouter(metricsProvider *metrics.Provider, metricsNamespace string) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), metricsNamespace))
		router.GET("/metrics", gin.WrapH(metricsProvider.Handler()))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("readiness check failed", slog.String("component", name), slog.Any("error", err))
			components[name] = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{"status": state, "components": components})
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		s.SetupRouter(nil, "")
	}
	s.server.Handler = s.router

	s.logger.Info("starting admin server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start admin server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down admin server")
	return s.server.Shutdown(ctx)
}
