// Package server exposes the read-only status surface for a grading run:
// health, the latest run summary, and Prometheus metrics.
package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gradeflow/internal/grader"
)

// Server wraps the Echo server.
type Server struct {
	echo *echo.Echo

	mu      sync.RWMutex
	summary *grader.Summary
}

// New creates the status server. The metrics endpoint serves the given
// registry so it carries exactly the pipeline's collectors.
func New(registry *prometheus.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/health", s.health)
	e.GET("/summary", s.latestSummary)
	e.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return s
}

// SetSummary publishes a finished run's summary.
func (s *Server) SetSummary(summary grader.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = &summary
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) latestSummary(c echo.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.summary == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no run has completed yet"})
	}
	return c.JSON(http.StatusOK, s.summary)
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements http.Handler so the server works with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
