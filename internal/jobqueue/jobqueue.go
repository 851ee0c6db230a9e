// Package jobqueue declares the JobQueueManager contract (C9) and the
// options/results its operations share, implemented concretely by
// internal/jobqueue/memoryjq (single-process/test backend) and
// internal/jobqueue/asynqjq (Redis-backed, via github.com/hibiken/asynq).
package jobqueue

import (
	"context"
	"time"

	"github.com/legout/flowerpower/internal/domain"
)

// AddJobOptions is add_job's parameter set (spec §4.9.2).
type AddJobOptions struct {
	JobID      string
	QueueName  string
	RunAt      *time.Time
	RunIn      time.Duration
	Retry      domain.JobRetrySpec
	Repeat     domain.RepeatSpec
	ResultTTL  time.Duration
	TTL        time.Duration
	Timeout    time.Duration
	FailureTTL time.Duration
	Meta       map[string]any
	GroupID    string
	OnSuccess  *domain.FunctionRef
	OnFailure  *domain.FunctionRef
	OnStopped  *domain.FunctionRef

	// IdempotencyKey: a second AddJob call with the same key returns the
	// existing job id instead of enqueuing a duplicate (SPEC_FULL §4
	// supplemented feature, grounded on the teacher's idemKey pattern).
	IdempotencyKey string
}

// AddScheduleOptions is add_schedule's parameter set (spec §4.9.3). Exactly
// one of Cron, Interval, Date must be set.
type AddScheduleOptions struct {
	ScheduleID string
	Cron       string
	Interval   time.Duration
	Date       *time.Time

	ConflictPolicy domain.ScheduleConflictPolicy

	QueueName string
	TTL       time.Duration
	ResultTTL time.Duration
	Timeout   time.Duration
	Repeat    domain.RepeatSpec
	Meta      map[string]any
	OnSuccess *domain.FunctionRef
	OnFailure *domain.FunctionRef

	UseLocalTimeZone  bool
	MisfireGraceTime  time.Duration
	MisfireGracePolicy domain.MisfireGracePolicy
}

// ScheduleResultIndex selects entries from a schedule's execution history
// (spec §4.9.6 get_schedule_result's `index` parameter).
type ScheduleResultIndex struct {
	Single  *int
	All     bool
	Latest  bool
	Earliest bool
	Indices []int
}

// Manager is JobQueueManager's full contract.
type Manager interface {
	Capabilities() domain.BackendCapabilities

	AddJob(ctx context.Context, fn domain.FunctionRef, opts AddJobOptions) (*domain.Job, error)
	AddSchedule(ctx context.Context, fn domain.FunctionRef, opts AddScheduleOptions) (*domain.Schedule, error)

	StartWorker(ctx context.Context, background bool, queueNames []string, withScheduler bool) error
	StopWorker(ctx context.Context) error
	StartWorkerPool(ctx context.Context, numWorkers int, background bool) error
	StopWorkerPool(ctx context.Context) error
	StartScheduler(ctx context.Context, background bool, interval time.Duration) error
	StopScheduler(ctx context.Context) error

	GetJobs(ctx context.Context, queueName string) (map[string][]*domain.Job, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	GetJobResult(ctx context.Context, jobID string, deleteResult bool) (any, error)
	CancelJob(ctx context.Context, jobID string) (bool, error)
	DeleteJob(ctx context.Context, jobID string, ttl time.Duration) (bool, error)
	CancelAllJobs(ctx context.Context, queueName string) error
	DeleteAllJobs(ctx context.Context, queueName string) error

	GetSchedules(ctx context.Context, until *time.Time, offset, length int) ([]*domain.Schedule, error)
	GetSchedule(ctx context.Context, scheduleID string) (*domain.Schedule, error)
	GetScheduleResult(ctx context.Context, scheduleID string, idx ScheduleResultIndex) (any, error)
	// PauseSchedule and ResumeSchedule toggle domain.Schedule.Paused (spec
	// §4.9.1: "no new jobs spawned while paused"), distinct from
	// CancelSchedule/DeleteSchedule which discard the schedule outright.
	PauseSchedule(ctx context.Context, scheduleID string) error
	ResumeSchedule(ctx context.Context, scheduleID string) error
	CancelSchedule(ctx context.Context, scheduleID string) error
	CancelAllSchedules(ctx context.Context) error
	DeleteSchedule(ctx context.Context, scheduleID string) error
	DeleteAllSchedules(ctx context.Context) error

	// GetDeadLetterJobs is the supplemented DLQ read-side index (SPEC_FULL
	// §4): jobs that reached `failed` after exhausting retries.
	GetDeadLetterJobs(ctx context.Context) ([]*domain.Job, error)

	WorkerStats(ctx context.Context) ([]domain.WorkerStats, error)
}
