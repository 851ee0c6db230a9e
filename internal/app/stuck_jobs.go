package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/jobqueue"
	"github.com/legout/flowerpower/internal/observability"
)

// StuckJobSweeper periodically scans every queue for jobs stuck in the
// running state past maxProcessingAge (spec §4.9.7's worker-crash case).
// Each jobqueue.Manager backend already reclaims its own stuck jobs
// internally (memoryjq's worker-heartbeat sweep, asynq's lease expiry); this
// sweeper is a backend-agnostic safety net that works against the public
// jobqueue.Manager surface alone, for deployments where the backend's own
// sweep interval is too coarse or the worker process that would run it is
// down. It can only observe and surface stuck jobs through GetJobs/
// CancelJob — it has no authority to force a status transition a backend
// didn't already expose.
type StuckJobSweeper struct {
	jobs             jobqueue.Manager
	maxProcessingAge time.Duration
	interval         time.Duration
}

// NewStuckJobSweeper returns nil if jobs is nil, mirroring the teacher's
// nil-receiver-safe constructor pattern.
func NewStuckJobSweeper(jobs jobqueue.Manager, maxProcessingAge, interval time.Duration) *StuckJobSweeper {
	if jobs == nil {
		return nil
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 3 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckJobSweeper{jobs: jobs, maxProcessingAge: maxProcessingAge, interval: interval}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil || s.jobs == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckJobSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "StuckJobSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.maxProcessingAge)
	span.SetAttributes(attribute.Float64("jobs.max_processing_age_seconds", s.maxProcessingAge.Seconds()))

	byQueue, err := s.jobs.GetJobs(ctx, "")
	if err != nil {
		span.RecordError(err)
		slog.Error("stuck job sweep failed to list jobs", slog.Any("error", err))
		return
	}

	totalChecked, totalStuck := 0, 0
	for queue, jobs := range byQueue {
		for _, j := range jobs {
			totalChecked++
			if j.Status != domain.JobRunning || j.StartedAt == nil || !j.StartedAt.Before(cutoff) {
				continue
			}
			totalStuck++
			slog.Warn("job stuck past max processing age",
				slog.String("job_id", j.ID),
				slog.String("queue", queue),
				slog.Duration("age", time.Since(*j.StartedAt)))
			if _, err := s.jobs.CancelJob(ctx, j.ID); err != nil {
				slog.Error("stuck job sweep failed to cancel job", slog.String("job_id", j.ID), slog.Any("error", err))
				continue
			}
			observability.RecordRetry(j.Func.Name)
		}
	}

	span.SetAttributes(
		attribute.Int("jobs.total_checked", totalChecked),
		attribute.Int("jobs.total_stuck", totalStuck),
	)
}
