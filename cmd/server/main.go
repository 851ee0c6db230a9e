// Command server starts the FlowerPower introspection HTTP server: the
// run/enqueue/schedule endpoints over a project's pipelines and its job
// queue, plus health/ready/metrics (SPEC_FULL.md §2).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/legout/flowerpower/internal/app"
	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/fs"
	"github.com/legout/flowerpower/internal/observability"
	"github.com/legout/flowerpower/internal/project"
)

func main() {
	cfg, err := config.LoadRuntimeConfig()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	osFS := fs.OS{}
	proj, err := project.Load(osFS, cfg.ProjectDir)
	if err != nil {
		slog.Error("project load failed", slog.Any("error", err))
		os.Exit(1)
	}
	if proj == nil {
		slog.Error("no flowerpower project found", slog.String("project_dir", cfg.ProjectDir))
		os.Exit(1)
	}
	slog.Info("project loaded", slog.String("name", proj.Name()), slog.String("backend", string(proj.Config.JobQueue.Type)))

	ctx := context.Background()
	if err := proj.JobQueue.StartScheduler(ctx, true, 0); err != nil {
		slog.Error("scheduler start failed", slog.Any("error", err))
	}

	var broker app.Pinger
	if pinger, ok := proj.JobQueue.(app.Pinger); ok {
		broker = pinger
	}
	brokerCheck, registryCheck := app.BuildReadinessChecks(proj.Config.JobQueue, broker, proj.Registry)

	srv := app.NewServer(proj)
	handler := app.BuildRouter(cfg, srv, brokerCheck, registryCheck)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = proj.JobQueue.StopScheduler(shutdownCtx)
	_ = srvHTTP.Shutdown(shutdownCtx)
}
