package asynqjq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/legout/flowerpower/internal/domain"
)

// StartWorker starts a single worker process consuming queueNames (or every
// configured queue, if empty) (spec §4.9.4). background=false blocks the
// caller until ctx is cancelled or StopWorker is called; withScheduler also
// starts this process's scheduler loop.
func (m *Manager) StartWorker(ctx context.Context, background bool, queueNames []string, withScheduler bool) error {
	queues := queueNames
	if len(queues) == 0 {
		queues = m.cfg.Queues
	}
	if withScheduler {
		if err := m.StartScheduler(ctx, true, defaultSchedulerInterval); err != nil {
			return fmt.Errorf("op=asynqjq.StartWorker: %w", &domain.WorkerStartError{Cause: err})
		}
	}
	return m.startServer(ctx, 1, queues, background)
}

// StopWorker stops whatever server StartWorker/StartWorkerPool started.
func (m *Manager) StopWorker(context.Context) error {
	m.mu.Lock()
	server, cancel := m.server, m.serverCancel
	m.server, m.serverCancel = nil, nil
	m.mu.Unlock()
	if server == nil {
		return nil
	}
	server.Shutdown()
	if cancel != nil {
		cancel()
	}
	return nil
}

// StartWorkerPool starts numWorkers concurrent task handlers sharing one
// asynq.Server (asynq's own Concurrency option already multiplexes goroutines
// across one Redis connection pool, so a pool is one server, not N).
func (m *Manager) StartWorkerPool(ctx context.Context, numWorkers int, background bool) error {
	if numWorkers <= 0 {
		numWorkers = m.cfg.NumWorkers
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return m.startServer(ctx, numWorkers, m.cfg.Queues, background)
}

// StopWorkerPool is StopWorker's counterpart; asynq has no distinct pool
// handle, so stopping either stops the one running server.
func (m *Manager) StopWorkerPool(ctx context.Context) error {
	return m.StopWorker(ctx)
}

func (m *Manager) startServer(ctx context.Context, concurrency int, queues []string, background bool) error {
	m.mu.Lock()
	if m.server != nil {
		m.mu.Unlock()
		return nil
	}
	srvCtx, cancel := context.WithCancel(ctx)
	server := asynq.NewServer(m.redisOpt, asynq.Config{
		Concurrency:    concurrency,
		Queues:         queuePriorities(queues),
		RetryDelayFunc: m.retryDelay,
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(taskType, m.handle)
	m.server = server
	m.serverCancel = cancel
	m.mu.Unlock()

	run := func() error {
		if err := server.Start(mux); err != nil {
			return fmt.Errorf("op=asynqjq.startServer: %w", &domain.WorkerStartError{Cause: err})
		}
		return nil
	}
	if background {
		if err := run(); err != nil {
			return err
		}
		go func() { <-srvCtx.Done() }()
		return nil
	}
	if err := run(); err != nil {
		return err
	}
	<-srvCtx.Done()
	return nil
}

// retryDelay honors a job's own RetrySpec.Interval (spec §4.9.2's
// retry: {max, interval}) instead of falling back to asynq's default
// exponential-backoff curve, matching the fixed-interval retry memoryjq
// already applies (internal/jobqueue/memoryjq/worker.go). Jobs that set no
// interval keep asynq's own default curve.
func (m *Manager) retryDelay(n int, e error, t *asynq.Task) time.Duration {
	var p taskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return asynq.DefaultRetryDelayFunc(n, e, t)
	}
	job, err := m.GetJob(context.Background(), p.JobID)
	if err != nil || job == nil || job.RetrySpec.Interval <= 0 {
		return asynq.DefaultRetryDelayFunc(n, e, t)
	}
	return job.RetrySpec.Interval
}

// queuePriorities gives every configured queue equal weight; asynq requires
// at least weight 1 per queue to poll it at all.
func queuePriorities(queues []string) map[string]int {
	out := make(map[string]int, len(queues))
	for _, q := range queues {
		out[q] = 1
	}
	if len(out) == 0 {
		out["default"] = 1
	}
	return out
}

// handle is the single asynq handler registered for taskType; it loads the
// domain.Job the payload references, runs its Func through the hook
// registry, and persists the resulting status transition (spec §4.9.1,
// §4.9.7's worker-crash/timeout/retry handling).
func (m *Manager) handle(ctx context.Context, task *asynq.Task) error {
	var p taskPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("op=asynqjq.handle: %w", err)
	}
	job, err := m.GetJob(ctx, p.JobID)
	if err != nil {
		return fmt.Errorf("op=asynqjq.handle: %w", err)
	}
	if job == nil {
		return fmt.Errorf("op=asynqjq.handle: %w: job %s", domain.ErrNotFound, p.JobID)
	}
	if job.Status == domain.JobCancelled {
		return nil
	}

	retryCount, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	now := m.clock()
	job.Status = domain.JobRunning
	job.StartedAt = &now
	job.WorkerID = m.workerID
	job.RetriesUsed = retryCount
	if err := m.saveJob(ctx, job); err != nil {
		return err
	}
	m.bumpWorkerStat(ctx, job.ID, false)

	jobCtx := ctx
	var jobCancel context.CancelFunc
	if job.Timeout > 0 {
		jobCtx, jobCancel = context.WithTimeout(ctx, job.Timeout)
		defer jobCancel()
	}

	result, callErr := m.hooks.Call(jobCtx, job.Func)
	finishedAt := m.clock()

	switch {
	case callErr == nil:
		job.Status = domain.JobSucceeded
		job.Result = result
		job.FinishedAt = &finishedAt
		_ = m.saveJob(ctx, job)
		m.recordScheduleFire(ctx, job, result, nil)
		m.hooks.InvokeFunctionRef(ctx, job.OnSuccess, result, nil)
		return nil

	case errors.Is(jobCtx.Err(), context.Canceled):
		job.Status = domain.JobCancelled
		job.FinishedAt = &finishedAt
		_ = m.saveJob(ctx, job)
		m.hooks.InvokeFunctionRef(ctx, job.OnStopped, nil, callErr)
		return nil

	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		job.Status = domain.JobFailed
		job.Error = fmt.Sprintf("timeout after %s", job.Timeout)
		job.FinishedAt = &finishedAt
		_ = m.saveJob(ctx, job)
		m.markDeadLetter(ctx, job.ID)
		m.bumpWorkerStat(ctx, job.ID, true)
		m.recordScheduleFire(ctx, job, nil, errors.New(job.Error))
		m.hooks.InvokeFunctionRef(ctx, job.OnFailure, nil, callErr)
		return nil // asynq should not retry a timeout; we already resolved it

	case retryCount < maxRetry:
		job.Status = domain.JobRetrying
		job.Error = callErr.Error()
		_ = m.saveJob(ctx, job)
		return callErr // returning a non-nil error lets asynq requeue it after the delay m.retryDelay computes

	default:
		job.Status = domain.JobFailed
		job.Error = callErr.Error()
		job.FinishedAt = &finishedAt
		_ = m.saveJob(ctx, job)
		m.markDeadLetter(ctx, job.ID)
		m.bumpWorkerStat(ctx, job.ID, true)
		m.recordScheduleFire(ctx, job, nil, callErr)
		m.hooks.InvokeFunctionRef(ctx, job.OnFailure, nil, callErr)
		return callErr // asynq archives the task once retries are exhausted
	}
}

func (m *Manager) markDeadLetter(ctx context.Context, jobID string) {
	m.rdb.SAdd(ctx, m.dlqKey(), jobID)
}

func (m *Manager) bumpWorkerStat(ctx context.Context, jobID string, failed bool) {
	key := m.key("worker", m.workerID, "stats")
	pipe := m.rdb.Pipeline()
	pipe.HSet(ctx, key, "worker_id", m.workerID, "last_job_id", jobID, "last_active", m.clock().Format(time.RFC3339Nano))
	if failed {
		pipe.HIncrBy(ctx, key, "jobs_failed", 1)
	} else {
		pipe.HIncrBy(ctx, key, "jobs_processed", 1)
	}
	_, _ = pipe.Exec(ctx)
}
