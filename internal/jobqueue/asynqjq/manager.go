// Package asynqjq implements JobQueueManager (C9) on top of Redis via
// github.com/hibiken/asynq: the production backend selected by
// ProjectConfig.JobQueue.Type == "rq" (spec §4.8's Redis backend, §6.4).
//
// asynq owns task delivery (enqueue, retry backoff, worker pool dispatch);
// this package owns the domain.Job/domain.Schedule bookkeeping asynq knows
// nothing about, persisted alongside it in the same Redis instance under a
// configurable key prefix.
package asynqjq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/hooks"
	"github.com/legout/flowerpower/internal/jobqueue"
	"github.com/legout/flowerpower/internal/jobqueue/backend"
)

// taskType is the single asynq task type this package registers; the actual
// job function to run travels inside the payload as a jobID lookup key, not
// as the asynq type, since FunctionRef names are arbitrary user strings.
const taskType = "flowerpower:job"

const jobSchemaVersion = 1

type taskPayload struct {
	JobID string `json:"job_id"`
}

// jobRecord is the envelope stored at <prefix>:job:<id>; Version exists so a
// future field change can be migrated on read.
type jobRecord struct {
	Version int         `json:"version"`
	Job     *domain.Job `json:"job"`
}

// Manager is the Redis-backed JobQueueManager.
type Manager struct {
	cfg      config.JobQueueConfig
	backend  *backend.Redis
	redisOpt asynq.RedisClientOpt
	rdb      *redis.Client
	hooks    *hooks.Registry
	client   *asynq.Client
	inspector *asynq.Inspector
	clock    func() time.Time
	workerID string

	mu              sync.Mutex
	server          *asynq.Server
	serverCancel    context.CancelFunc
	schedulerCancel context.CancelFunc
	schedulerWG     sync.WaitGroup
}

var _ jobqueue.Manager = (*Manager)(nil)

// New constructs a Manager bound to the given Redis backend connection
// settings and hook registry (resolving FunctionRef names to job funcs).
func New(be *backend.Redis, cfg config.JobQueueConfig, hookReg *hooks.Registry) (*Manager, error) {
	if len(cfg.Queues) == 0 {
		cfg.Queues = []string{"default", "scheduled"}
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "flowerpower"
	}

	opts := be.RedisOptions()
	ropt := asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}

	client, err := be.Client(context.Background())
	if err != nil {
		return nil, fmt.Errorf("op=asynqjq.New: %w", err)
	}
	rdb, ok := client.(*redis.Client)
	if !ok {
		return nil, fmt.Errorf("op=asynqjq.New: %w: backend did not return a *redis.Client", domain.ErrInvalidArgument)
	}

	m := &Manager{
		cfg:       cfg,
		backend:   be,
		redisOpt:  ropt,
		rdb:       rdb,
		hooks:     hookReg,
		client:    asynq.NewClient(ropt),
		inspector: asynq.NewInspector(ropt),
		clock:     time.Now,
		workerID:  uuid.NewString(),
	}
	return m, nil
}

func (m *Manager) Capabilities() domain.BackendCapabilities {
	return m.backend.Capabilities()
}

// Ping satisfies app.Pinger so the readiness surface can check broker
// connectivity without internal/app importing asynq or redis directly.
func (m *Manager) Ping(ctx context.Context) error {
	return m.rdb.Ping(ctx).Err()
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

func (m *Manager) key(parts ...string) string {
	out := m.cfg.Prefix
	for _, p := range parts {
		out += ":" + p
	}
	return out
}

func (m *Manager) jobKey(id string) string          { return m.key("job", id) }
func (m *Manager) queueIndexKey(queue string) string { return m.key("queue", queue) }
func (m *Manager) idemKey(key string) string         { return m.key("idem", key) }
func (m *Manager) dlqKey() string                    { return m.key("dlq") }

// AddJob implements spec §4.9.2. Deferred jobs (RunAt/RunIn) are handed to
// asynq's own ProcessAt scheduling; asynq's MaxRetry/Timeout/Retention
// options carry the retry and TTL semantics on the wire alongside our own
// domain.Job bookkeeping record.
func (m *Manager) AddJob(ctx context.Context, fn domain.FunctionRef, opts jobqueue.AddJobOptions) (*domain.Job, error) {
	if opts.IdempotencyKey != "" {
		if existingID, err := m.rdb.Get(ctx, m.idemKey(opts.IdempotencyKey)).Result(); err == nil && existingID != "" {
			if existing, err := m.GetJob(ctx, existingID); err == nil && existing != nil {
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
		id = uuid.NewString()
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

	payload, err := json.Marshal(taskPayload{JobID: id})
	if err != nil {
		return nil, fmt.Errorf("op=asynqjq.AddJob: %w", err)
	}

	taskOpts := []asynq.Option{asynq.TaskID(id), asynq.Queue(queueName)}
	if opts.Retry.Max > 0 {
		taskOpts = append(taskOpts, asynq.MaxRetry(opts.Retry.Max))
	} else {
		taskOpts = append(taskOpts, asynq.MaxRetry(0))
	}
	if opts.Timeout > 0 {
		taskOpts = append(taskOpts, asynq.Timeout(opts.Timeout))
	}
	retention := opts.ResultTTL
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	taskOpts = append(taskOpts, asynq.Retention(retention))

	fireAt := resolveFireTime(opts.RunAt, opts.RunIn, m.clock())
	if fireAt != nil {
		job.Status = domain.JobScheduled
		taskOpts = append(taskOpts, asynq.ProcessAt(*fireAt))
	} else {
		job.Status = domain.JobQueued
	}

	if err := m.saveJob(ctx, job); err != nil {
		return nil, err
	}

	task := asynq.NewTask(taskType, payload)
	if _, err := m.client.EnqueueContext(ctx, task, taskOpts...); err != nil {
		return nil, fmt.Errorf("op=asynqjq.AddJob: %w", err)
	}

	if err := m.rdb.SAdd(ctx, m.queueIndexKey(queueName), id).Err(); err != nil {
		return nil, fmt.Errorf("op=asynqjq.AddJob: %w", err)
	}
	if opts.IdempotencyKey != "" {
		if err := m.rdb.Set(ctx, m.idemKey(opts.IdempotencyKey), id, 0).Err(); err != nil {
			return nil, fmt.Errorf("op=asynqjq.AddJob: %w", err)
		}
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

func (m *Manager) saveJob(ctx context.Context, job *domain.Job) error {
	rec := jobRecord{Version: jobSchemaVersion, Job: job}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("op=asynqjq.saveJob: %w", err)
	}
	var ttl time.Duration
	if job.Status.Terminal() && job.ResultTTL > 0 {
		ttl = job.ResultTTL
	}
	if err := m.rdb.Set(ctx, m.jobKey(job.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("op=asynqjq.saveJob: %w", err)
	}
	return nil
}

// GetJob returns the job or nil (spec §4.9.5).
func (m *Manager) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	raw, err := m.rdb.Get(ctx, m.jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=asynqjq.GetJob: %w", err)
	}
	var rec jobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("op=asynqjq.GetJob: %w", err)
	}
	return rec.Job, nil
}

// GetJobs returns every queue's current member job ids resolved to Job
// records (spec §4.9.5). Unlike memoryjq this is an unordered set, not a
// FIFO list — asynq's own queue ordering is authoritative for dispatch.
func (m *Manager) GetJobs(ctx context.Context, queueName string) (map[string][]*domain.Job, error) {
	queues := m.cfg.Queues
	if queueName != "" {
		queues = []string{queueName}
	}
	out := map[string][]*domain.Job{}
	for _, q := range queues {
		ids, err := m.rdb.SMembers(ctx, m.queueIndexKey(q)).Result()
		if err != nil {
			return nil, fmt.Errorf("op=asynqjq.GetJobs: %w", err)
		}
		for _, id := range ids {
			job, err := m.GetJob(ctx, id)
			if err != nil {
				return nil, err
			}
			if job == nil {
				m.rdb.SRem(ctx, m.queueIndexKey(q), id)
				continue
			}
			out[q] = append(out[q], job)
		}
	}
	return out, nil
}

// GetJobResult returns a job's stored result, re-raising a stored failure
// (spec §7), optionally deleting the job record afterward.
func (m *Manager) GetJobResult(ctx context.Context, jobID string, deleteResult bool) (any, error) {
	job, err := m.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("op=asynqjq.GetJobResult: %w", &domain.JobNotFoundError{JobID: jobID})
	}
	if deleteResult {
		defer func() { _, _ = m.DeleteJob(context.WithoutCancel(ctx), jobID, 0) }()
	}
	if job.Status == domain.JobFailed && job.Error != "" {
		return nil, fmt.Errorf("op=asynqjq.GetJobResult: %s", job.Error)
	}
	return job.Result, nil
}

// CancelJob cancels a not-yet-run task via asynq's Inspector, or signals a
// running one cooperatively (spec §5 "Cancellation").
func (m *Manager) CancelJob(ctx context.Context, jobID string) (bool, error) {
	job, err := m.GetJob(ctx, jobID)
	if err != nil || job == nil {
		return false, err
	}
	switch job.Status {
	case domain.JobQueued, domain.JobScheduled:
		if err := m.inspector.DeleteTask(job.QueueName, jobID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return false, fmt.Errorf("op=asynqjq.CancelJob: %w", err)
		}
		job.Status = domain.JobCancelled
		if err := m.saveJob(ctx, job); err != nil {
			return false, err
		}
		return true, nil
	case domain.JobRunning:
		if err := m.inspector.CancelProcessing(jobID); err != nil {
			return false, fmt.Errorf("op=asynqjq.CancelJob: %w", err)
		}
		return true, nil
	default:
		return false, nil
	}
}

// DeleteJob removes a job's record (and queue index entry) immediately, or
// after ttl elapses if ttl > 0.
func (m *Manager) DeleteJob(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	if ttl > 0 {
		time.AfterFunc(ttl, func() {
			bg := context.Background()
			m.rdb.Del(bg, m.jobKey(jobID))
			m.rdb.SRem(bg, m.dlqKey(), jobID)
		})
		return true, nil
	}
	job, _ := m.GetJob(ctx, jobID)
	n, err := m.rdb.Del(ctx, m.jobKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("op=asynqjq.DeleteJob: %w", err)
	}
	m.rdb.SRem(ctx, m.dlqKey(), jobID)
	if job != nil {
		m.rdb.SRem(ctx, m.queueIndexKey(job.QueueName), jobID)
	}
	return n > 0, nil
}

// CancelAllJobs cancels every job in queueName (or every queue when empty).
func (m *Manager) CancelAllJobs(ctx context.Context, queueName string) error {
	jobs, err := m.GetJobs(ctx, queueName)
	if err != nil {
		return err
	}
	for _, list := range jobs {
		for _, job := range list {
			if _, err := m.CancelJob(ctx, job.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteAllJobs removes every job record in queueName (or every queue).
func (m *Manager) DeleteAllJobs(ctx context.Context, queueName string) error {
	jobs, err := m.GetJobs(ctx, queueName)
	if err != nil {
		return err
	}
	for q, list := range jobs {
		for _, job := range list {
			if _, err := m.DeleteJob(ctx, job.ID, 0); err != nil {
				return err
			}
		}
		m.rdb.Del(ctx, m.queueIndexKey(q))
	}
	return nil
}

// GetDeadLetterJobs is the supplemented DLQ read-side index (spec §4.9.7's
// exhausted-retry jobs are archived by asynq and tracked here for our own
// introspection, since asynq's own archive API is a separate surface).
func (m *Manager) GetDeadLetterJobs(ctx context.Context) ([]*domain.Job, error) {
	ids, err := m.rdb.SMembers(ctx, m.dlqKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("op=asynqjq.GetDeadLetterJobs: %w", err)
	}
	out := make([]*domain.Job, 0, len(ids))
	for _, id := range ids {
		job, err := m.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job != nil {
			out = append(out, job)
		}
	}
	return out, nil
}

// WorkerStats aggregates the per-worker counters each running worker
// process writes to its own Redis hash (spec §4.9.4 introspection).
func (m *Manager) WorkerStats(ctx context.Context) ([]domain.WorkerStats, error) {
	var out []domain.WorkerStats
	iter := m.rdb.Scan(ctx, 0, m.key("worker", "*", "stats"), 100).Iterator()
	for iter.Next(ctx) {
		vals, err := m.rdb.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, fmt.Errorf("op=asynqjq.WorkerStats: %w", err)
		}
		if len(vals) == 0 {
			continue
		}
		var s domain.WorkerStats
		if err := mapToStruct(vals, &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("op=asynqjq.WorkerStats: %w", err)
	}
	return out, nil
}

func mapToStruct(vals map[string]string, s *domain.WorkerStats) error {
	s.WorkerID = vals["worker_id"]
	s.LastJobID = vals["last_job_id"]
	if v, ok := vals["jobs_processed"]; ok {
		fmt.Sscanf(v, "%d", &s.JobsProcessed)
	}
	if v, ok := vals["jobs_failed"]; ok {
		fmt.Sscanf(v, "%d", &s.JobsFailed)
	}
	if v, ok := vals["last_active"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			s.LastActive = t
		}
	}
	return nil
}
