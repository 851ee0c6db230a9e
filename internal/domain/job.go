package domain

import "time"

// JobStatus captures the lifecycle state of a queued job (spec §4.9.1).
type JobStatus string

// Job status values. Transitions are documented in spec §4.9.1: pending ->
// queued -> running -> (succeeded | failed | retrying -> queued | cancelled).
// scheduled is an alternative initial state used by jobs spawned from a
// Schedule with a future fire time.
const (
	JobPending   JobStatus = "pending"
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
	JobRetrying  JobStatus = "retrying"
	JobScheduled JobStatus = "scheduled"
)

// Terminal reports whether the status is one of the terminal states that a
// Job's status monotonically advances toward (invariant 3.3.4).
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// FunctionRef identifies a callable registered by name, plus the positional
// and keyword arguments it should be invoked with. This is the systems-
// language form of spec §4.11's "live function reference" — callers register
// implementations under a string name (see internal/hooks) and store only
// the name plus arguments in persisted state.
type FunctionRef struct {
	Name   string         `json:"name" yaml:"name"`
	Args   []any          `json:"args,omitempty" yaml:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty" yaml:"kwargs,omitempty"`
}

// JobRetrySpec is the job-level retry specification accepted by AddJob
// (spec §4.9.2): either a bare max-attempt count or {max, interval}.
type JobRetrySpec struct {
	Max      int           `json:"max" yaml:"max"`
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// RepeatSpec is the job-level repeat specification accepted by AddJob.
type RepeatSpec struct {
	Max      int           `json:"max,omitempty" yaml:"max,omitempty"`
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// Job is one queued execution unit (spec §3.1 Job entity).
type Job struct {
	ID         string
	Status     JobStatus
	QueueName  string
	Func       FunctionRef
	OnSuccess  *FunctionRef
	OnFailure  *FunctionRef
	OnStopped  *FunctionRef
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Result     any
	Error      string
	RetrySpec  JobRetrySpec
	RetriesUsed int
	WorkerID   string
	Meta       map[string]any
	ResultTTL  time.Duration
	TTL        time.Duration
	Timeout    time.Duration
	FailureTTL time.Duration
	GroupID    string
}

// ScheduleConflictPolicy governs what happens when AddSchedule is called
// with a schedule id that already exists (invariant 3.3.3).
type ScheduleConflictPolicy string

const (
	ConflictReject     ScheduleConflictPolicy = "reject"
	ConflictReplace    ScheduleConflictPolicy = "replace"
	ConflictDoNothing  ScheduleConflictPolicy = "do_nothing"
)

// MisfireGracePolicy governs what happens when a schedule's fire time is
// missed by more than its grace period (spec §4.9.7).
type MisfireGracePolicy string

const (
	MisfireDrop   MisfireGracePolicy = "drop"
	MisfireLatest MisfireGracePolicy = "latest"
)

// Schedule is a recurring or future-scheduled job specification (spec §3.1).
// Exactly one of Cron, Interval, Date is set.
type Schedule struct {
	ID       string
	Cron     string
	Interval time.Duration
	Date     *time.Time

	QueueName string
	Func      FunctionRef
	OnSuccess *FunctionRef
	OnFailure *FunctionRef

	TTL               time.Duration
	ResultTTL         time.Duration
	Timeout           time.Duration
	Repeat            RepeatSpec
	Meta              map[string]any
	UseLocalTimeZone  bool
	MisfireGraceTime  time.Duration
	MisfireGracePolicy MisfireGracePolicy

	Paused    bool
	CreatedAt time.Time

	// FireCount tracks how many child jobs this schedule has spawned; used
	// to test S5's "at least 2 child jobs" scenario and for introspection.
	FireCount int
}

// BackendCapabilities describes what a given JobQueueManager implementation
// supports (spec §3.1 BackendCapabilities).
type BackendCapabilities struct {
	SupportsScheduling       bool
	SupportsPriorities       bool
	SupportsWorkerControl    bool
	SupportsCancellation     bool
	SupportsQueueInspection  bool
	SupportsResultFetching   bool
	SupportsWorkerStats      bool
}

// WorkerStats reports a single worker's activity (spec §4.9.4 introspection).
type WorkerStats struct {
	WorkerID      string
	JobsProcessed int64
	JobsFailed    int64
	LastJobID     string
	LastActive    time.Time
}
