package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	edgefn "github.com/cryguy/edgefn"
	"github.com/cryguy/edgefn/internal/api"
	"github.com/cryguy/edgefn/internal/coordinator"
	"github.com/cryguy/edgefn/internal/dispatcher"
	"github.com/cryguy/edgefn/internal/metrics"
	"github.com/cryguy/edgefn/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveAddress, "address", "", "override the listen address (e.g. :8080)")
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if serveAddress != "" {
		settings.Address = serveAddress
	}
	logger := newLogger(settings.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	var (
		m        *metrics.Metrics
		gatherer prometheus.Gatherer
	)
	if settings.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		gatherer = reg
	}

	tracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:   settings.TracingEndpoint,
		Insecure:   settings.TracingInsecure,
		SampleRate: 1,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("serve: tracing shutdown failed", "error", err)
		}
	}()

	coord := coordinator.New(edgefn.NewBackend(), settings.Engine,
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(m),
		coordinator.WithTracer(tracing.Tracer()),
	)
	disp := dispatcher.New(b.Registry, b.Secrets, coord,
		dispatcher.WithLogger(logger),
		dispatcher.WithMetrics(m),
		dispatcher.WithTracer(tracing.Tracer()),
		dispatcher.WithMaxBodyBytes(settings.MaxBodyBytes),
	)
	srv := api.NewServer(disp, api.Options{
		Prefix:   settings.Prefix,
		Gatherer: gatherer,
		Logger:   logger,
	})

	logger.Info("serve: starting edgefn",
		slog.String("version", version),
		slog.String("engine", coord.Backend()),
		slog.String("registry", settings.RegistryDriver),
		slog.String("secrets", settings.SecretsDriver),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(settings.Address) }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), settings.Engine.ExecutionTimeout+5*time.Second)
	defer cancel()
	drain(drainCtx, logger, srv, coord)
	return nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// drain stops the HTTP server first, then waits for live executions.
func drain(ctx context.Context, logger *slog.Logger, srv, engine shutdowner) {
	logger.Info("serve: shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("serve: http shutdown failed", "error", err)
	}
	if err := engine.Shutdown(ctx); err != nil {
		logger.Warn("serve: engine shutdown failed", "error", err)
	}
}
