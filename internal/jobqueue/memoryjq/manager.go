// Package memoryjq implements JobQueueManager (C9) entirely in process
// memory: the reference implementation used by tests and single-process
// deployments, and the backend selected by ProjectConfig.JobQueue.Type ==
// "memory" (spec §4.8's memory backend, §4.9's full manager contract).
package memoryjq

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/hooks"
	"github.com/legout/flowerpower/internal/jobqueue"
)

// Manager is the in-memory JobQueueManager.
type Manager struct {
	cfg   config.JobQueueConfig
	hooks *hooks.Registry
	clock func() time.Time

	mu          sync.Mutex
	jobs        map[string]*domain.Job
	queueFIFO   map[string][]string
	deferred    deferredHeap
	idempotency map[string]string
	jobCancel   map[string]context.CancelFunc
	dlq         map[string]bool

	schedules       map[string]*domain.Schedule
	scheduleHistory map[string][]scheduleFire
	cronSchedules   map[string]cron.Schedule

	workerCancel    context.CancelFunc
	workerWG        sync.WaitGroup
	schedulerCancel context.CancelFunc
	sweepCancel     context.CancelFunc

	workerStats map[string]*domain.WorkerStats
}

type scheduleFire struct {
	firedAt time.Time
	jobID   string
	result  any
	err     string
}

var _ jobqueue.Manager = (*Manager)(nil)

// New constructs a Manager bound to a hook registry (for resolving and
// invoking job/callback functions by name) and job-queue settings.
func New(cfg config.JobQueueConfig, hookReg *hooks.Registry) *Manager {
	if len(cfg.Queues) == 0 {
		cfg.Queues = []string{"default", "scheduled"}
	}
	m := &Manager{
		cfg:             cfg,
		hooks:           hookReg,
		clock:           time.Now,
		jobs:            map[string]*domain.Job{},
		queueFIFO:       map[string][]string{},
		idempotency:     map[string]string{},
		jobCancel:       map[string]context.CancelFunc{},
		dlq:             map[string]bool{},
		schedules:       map[string]*domain.Schedule{},
		scheduleHistory: map[string][]scheduleFire{},
		cronSchedules:   map[string]cron.Schedule{},
		workerStats:     map[string]*domain.WorkerStats{},
	}
	heap.Init(&m.deferred)
	return m
}

func (m *Manager) Capabilities() domain.BackendCapabilities {
	return domain.BackendCapabilities{
		SupportsScheduling:      true,
		SupportsPriorities:      false,
		SupportsWorkerControl:   true,
		SupportsCancellation:    true,
		SupportsQueueInspection: true,
		SupportsResultFetching:  true,
		SupportsWorkerStats:     true,
	}
}

func (m *Manager) defaultQueue() string {
	if len(m.cfg.Queues) == 0 {
		return "default"
	}
	return m.cfg.Queues[0]
}

func (m *Manager) validQueue(name string) bool {
	for _, q := range m.cfg.Queues {
		if q == name {
			return true
		}
	}
	return false
}

// AddJob implements spec §4.9.2's routing: deferred by run_at/run_in, else
// pushed onto the named (or default) queue; an unrecognized queue name
// falls back to the default queue with a logged warning.
func (m *Manager) AddJob(ctx context.Context, fn domain.FunctionRef, opts jobqueue.AddJobOptions) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if opts.IdempotencyKey != "" {
		if existingID, ok := m.idempotency[opts.IdempotencyKey]; ok {
			if existing, ok := m.jobs[existingID]; ok {
				return existing, nil
			}
		}
	}

	queueName := opts.QueueName
	if queueName == "" {
		queueName = m.defaultQueue()
	} else if !m.validQueue(queueName) {
		slog.Warn("add_job: unknown queue, falling back to default", slog.String("requested", queueName), slog.String("default", m.defaultQueue()))
		queueName = m.defaultQueue()
	}

	id := opts.JobID
	if id == "" {
		id = newSortableID()
	}

	job := &domain.Job{
		ID:         id,
		Status:     domain.JobPending,
		QueueName:  queueName,
		Func:       fn,
		OnSuccess:  opts.OnSuccess,
		OnFailure:  opts.OnFailure,
		OnStopped:  opts.OnStopped,
		CreatedAt:  m.clock(),
		RetrySpec:  opts.Retry,
		Meta:       opts.Meta,
		ResultTTL:  opts.ResultTTL,
		TTL:        opts.TTL,
		Timeout:    opts.Timeout,
		FailureTTL: opts.FailureTTL,
		GroupID:    opts.GroupID,
	}
	if job.Meta == nil {
		job.Meta = map[string]any{}
	}

	fireAt := resolveFireTime(opts.RunAt, opts.RunIn, m.clock())
	if fireAt != nil {
		job.Status = domain.JobScheduled
		heap.Push(&m.deferred, &deferredJob{fireAt: *fireAt, jobID: id, targetQueue: queueName})
	} else {
		job.Status = domain.JobQueued
		m.queueFIFO[queueName] = append(m.queueFIFO[queueName], id)
	}

	m.jobs[id] = job
	if opts.IdempotencyKey != "" {
		m.idempotency[opts.IdempotencyKey] = id
	}
	return job, nil
}

func resolveFireTime(runAt *time.Time, runIn time.Duration, now time.Time) *time.Time {
	if runAt != nil {
		return runAt
	}
	if runIn > 0 {
		t := now.Add(runIn)
		return &t
	}
	return nil
}

func newSortableID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), nil).String()
}

func newUUID() string { return uuid.NewString() }

// GetJob returns the job or nil (spec §4.9.5).
func (m *Manager) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, nil
	}
	return job, nil
}

// GetJobs returns every queue's current contents, by queue name.
func (m *Manager) GetJobs(_ context.Context, queueName string) (map[string][]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[string][]*domain.Job{}
	queues := m.cfg.Queues
	if queueName != "" {
		queues = []string{queueName}
	}
	for _, q := range queues {
		for _, id := range m.queueFIFO[q] {
			out[q] = append(out[q], m.jobs[id])
		}
	}
	return out, nil
}

// GetJobResult returns a job's stored result, optionally deleting the job
// afterward (spec §4.9.5).
func (m *Manager) GetJobResult(_ context.Context, jobID string, deleteResult bool) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("op=memoryjq.GetJobResult: %w", &domain.JobNotFoundError{JobID: jobID})
	}
	result := job.Result
	if deleteResult {
		delete(m.jobs, jobID)
	}
	return result, nil
}

// CancelJob removes a queued job or cooperatively signals a running one
// (spec §5 "Cancellation").
func (m *Manager) CancelJob(_ context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return false, nil
	}
	switch job.Status {
	case domain.JobQueued:
		m.removeFromQueue(job.QueueName, jobID)
		job.Status = domain.JobCancelled
		return true, nil
	case domain.JobRunning:
		if cancel, ok := m.jobCancel[jobID]; ok {
			cancel()
		}
		return true, nil
	case domain.JobScheduled:
		m.deferred.removeByID(jobID)
		job.Status = domain.JobCancelled
		return true, nil
	default:
		return false, nil
	}
}

func (m *Manager) removeFromQueue(queueName, jobID string) {
	fifo := m.queueFIFO[queueName]
	for i, id := range fifo {
		if id == jobID {
			m.queueFIFO[queueName] = append(fifo[:i], fifo[i+1:]...)
			return
		}
	}
}

// DeleteJob removes a job immediately, or after ttl if ttl > 0.
func (m *Manager) DeleteJob(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	if ttl > 0 {
		time.AfterFunc(ttl, func() {
			m.mu.Lock()
			delete(m.jobs, jobID)
			delete(m.dlq, jobID)
			m.mu.Unlock()
		})
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.jobs[jobID]
	delete(m.jobs, jobID)
	delete(m.dlq, jobID)
	return existed, nil
}

// CancelAllJobs cancels every queued/running job in queueName (or every
// queue when empty).
func (m *Manager) CancelAllJobs(ctx context.Context, queueName string) error {
	m.mu.Lock()
	ids := make([]string, 0)
	for _, job := range m.jobs {
		if queueName == "" || job.QueueName == queueName {
			ids = append(ids, job.ID)
		}
	}
	m.mu.Unlock()
	for _, id := range ids {
		if _, err := m.CancelJob(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAllJobs removes every job in queueName (or every queue when empty).
func (m *Manager) DeleteAllJobs(_ context.Context, queueName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, job := range m.jobs {
		if queueName == "" || job.QueueName == queueName {
			delete(m.jobs, id)
			delete(m.dlq, id)
		}
	}
	if queueName == "" {
		m.queueFIFO = map[string][]string{}
	} else {
		delete(m.queueFIFO, queueName)
	}
	return nil
}

// GetDeadLetterJobs is the supplemented DLQ read-side index.
func (m *Manager) GetDeadLetterJobs(context.Context) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Job, 0, len(m.dlq))
	for id := range m.dlq {
		if job, ok := m.jobs[id]; ok {
			out = append(out, job)
		}
	}
	return out, nil
}

// WorkerStats reports per-worker activity counters.
func (m *Manager) WorkerStats(context.Context) ([]domain.WorkerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.WorkerStats, 0, len(m.workerStats))
	for _, s := range m.workerStats {
		out = append(out, *s)
	}
	return out, nil
}
