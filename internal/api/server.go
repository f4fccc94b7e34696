// Package api assembles the HTTP front: function routes, liveness and
// metrics on an echo server.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cryguy/edgefn/internal/dispatcher"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the edgefn HTTP server.
type Server struct {
	echo   *echo.Echo
	logger *slog.Logger
}

// Options configures NewServer. A nil Gatherer leaves /metrics unrouted.
type Options struct {
	Prefix   string
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewServer routes <prefix>/:id (and anything below it) to d for every
// method, /health to the liveness handler and /metrics to the gatherer.
func NewServer(d *dispatcher.Dispatcher, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/health", dispatcher.Health)
	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	e.Any(opts.Prefix+"/:id", d.ServeFunction)
	e.Any(opts.Prefix+"/:id/*", d.ServeFunction)

	return &Server{echo: e, logger: logger}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("api: listening", "address", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
