// Command worker runs a project's job-queue worker pool and scheduler: it
// dequeues jobs enqueued by add_job/add_schedule and drives them through
// PipelineRunner, with a dedicated /metrics mux for Prometheus scraping
// (SPEC_FULL.md §1, §4.9.4).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/legout/flowerpower/internal/app"
	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/fs"
	"github.com/legout/flowerpower/internal/observability"
	"github.com/legout/flowerpower/internal/project"
)

func main() {
	cfg, err := config.LoadRuntimeConfig()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	numWorkers := proj.Config.JobQueue.WorkerMin
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if err := proj.JobQueue.StartWorkerPool(ctx, numWorkers, true); err != nil {
		slog.Error("worker pool start failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := proj.JobQueue.StartScheduler(ctx, true, 0); err != nil {
		slog.Error("scheduler start failed", slog.Any("error", err))
	}

	sweepMaxAge := proj.Config.JobQueue.StuckJobMaxAge
	sweepInterval := proj.Config.JobQueue.StuckJobSweepPeriod
	if sweeper := app.NewStuckJobSweeper(proj.JobQueue, sweepMaxAge, sweepInterval); sweeper != nil {
		go sweeper.Run(ctx)
	}

	slog.Info("worker started successfully, waiting for shutdown signal")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))

	cancel()
	_ = proj.JobQueue.StopWorkerPool(context.Background())
	_ = proj.JobQueue.StopScheduler(context.Background())
	slog.Info("worker stopped")
}
