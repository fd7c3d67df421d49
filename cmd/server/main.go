package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JonMunkholm/simplestruct/internal/application"
	"github.com/JonMunkholm/simplestruct/internal/config"
	"github.com/JonMunkholm/simplestruct/internal/core"
	_ "github.com/JonMunkholm/simplestruct/internal/core/tables" // Register all reports
	"github.com/JonMunkholm/simplestruct/internal/logging"
	"github.com/JonMunkholm/simplestruct/internal/web"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store_driver", cfg.Store.Driver,
		"root_type", cfg.Flatten.RootType,
		"batch_size", cfg.Flatten.BatchSize,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	backend, err := application.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service, err := application.NewService(ctx, cfg, backend, core.WithMetrics(core.NewMetrics(reg)))
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	slog.Info("reports registered",
		"count", core.ReportCount(),
		"groups", len(core.Groups()),
	)
	for _, group := range core.Groups() {
		slog.Debug("report group", "group", group, "reports", len(core.ByGroup(group)))
	}

	server := web.NewServer(service, cfg, reg)

	// Scheduled rebuilds stop before the server drains.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartScheduler(jobCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	drainRuns := func(ctx context.Context) {
		cancelJobs()
		if status := service.RunLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for runs to complete", "active", status.Active)
			if err := service.WaitForRuns(ctx); err != nil {
				slog.Warn("runs did not complete in time", "error", err)
			} else {
				slog.Info("all runs completed")
			}
		}
	}

	if err := serve(server, sigCh, drainRuns, cfg.Server.ShutdownTimeout); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

type httpServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serve runs srv until a signal arrives on sigCh, then drains runs and
// shuts the server down within timeout. It returns only after the shutdown
// has finished, so in-flight requests and progress streams are not cut.
func serve(srv httpServer, sigCh <-chan os.Signal, drain func(context.Context), timeout time.Duration) error {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-sigCh

		slog.Info("shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		drain(ctx)
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-drained
	return nil
}
