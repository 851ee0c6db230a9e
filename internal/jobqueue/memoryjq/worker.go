package memoryjq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/legout/flowerpower/internal/domain"
)

// defaultSchedulerInterval is the scheduler's default poll period (spec
// §4.9.4 start_scheduler's interval_seconds default of 60).
const defaultSchedulerInterval = 60 * time.Second

// popInterval is how often an idle worker goroutine re-checks its queues.
// Deferred jobs are not checked here: the scheduler loop promotes them on
// its own interval (defaultSchedulerInterval unless StartScheduler is
// given another).
const popInterval = 20 * time.Millisecond

// StartWorker spawns one worker pulling from queueNames (spec §4.9.4). A
// background=false call runs in the calling goroutine and blocks until ctx
// is cancelled or StopWorker is called.
func (m *Manager) StartWorker(ctx context.Context, background bool, queueNames []string, withScheduler bool) error {
	if len(queueNames) == 0 {
		queueNames = m.cfg.Queues
	}
	wctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.workerCancel = cancel
	m.mu.Unlock()

	workerID := newUUID()
	m.workerWG.Add(1)
	runLoop := func() {
		defer m.workerWG.Done()
		m.workerLoop(wctx, workerID, queueNames)
	}

	if withScheduler {
		if err := m.StartScheduler(ctx, true, defaultSchedulerInterval); err != nil {
			cancel()
			return fmt.Errorf("op=memoryjq.StartWorker: %w", &domain.WorkerStartError{Cause: err})
		}
	}

	if background {
		go runLoop()
		return nil
	}
	runLoop()
	return nil
}

// StopWorker sends a graceful-shutdown signal and waits for the worker to
// drain its in-flight job (spec §4.9.4).
func (m *Manager) StopWorker(context.Context) error {
	m.mu.Lock()
	cancel := m.workerCancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.workerWG.Wait()
	return nil
}

// StartWorkerPool starts numWorkers workers sharing the default queue set.
func (m *Manager) StartWorkerPool(ctx context.Context, numWorkers int, background bool) error {
	if numWorkers <= 0 {
		numWorkers = m.cfg.NumWorkers
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	wctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.workerCancel = cancel
	m.mu.Unlock()

	run := func() {
		for i := 0; i < numWorkers; i++ {
			workerID := newUUID()
			m.workerWG.Add(1)
			go func() {
				defer m.workerWG.Done()
				m.workerLoop(wctx, workerID, m.cfg.Queues)
			}()
		}
	}
	if background {
		run()
		return nil
	}
	run()
	m.workerWG.Wait()
	return nil
}

// StopWorkerPool stops every worker started by StartWorkerPool.
func (m *Manager) StopWorkerPool(ctx context.Context) error {
	return m.StopWorker(ctx)
}

// StartScheduler runs the scheduler loop (spec §4.9.4): polls the deferred
// structure every interval (default 60s) and promotes due jobs/schedule
// fires into their target queues.
func (m *Manager) StartScheduler(ctx context.Context, background bool, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	sctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.schedulerCancel = cancel
	m.mu.Unlock()

	run := func() { m.schedulerLoop(sctx, interval) }
	if background {
		go run()
		return nil
	}
	run()
	return nil
}

// StopScheduler stops the scheduler loop started by StartScheduler.
func (m *Manager) StopScheduler(context.Context) error {
	m.mu.Lock()
	cancel := m.schedulerCancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (m *Manager) schedulerLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.promoteDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.promoteDue(ctx)
			m.sweepStuckWorkers(m.cfg.StuckJobMaxAge)
		}
	}
}

// promoteDue drains every deferred entry whose fire time has passed.
func (m *Manager) promoteDue(ctx context.Context) {
	now := m.clock()
	for {
		m.mu.Lock()
		d := m.deferred.peek()
		if d == nil || d.fireAt.After(now) {
			m.mu.Unlock()
			return
		}
		popDeferredEntry(&m.deferred)
		m.mu.Unlock()
		m.promoteOne(d, now)
	}
}

func (m *Manager) promoteOne(d *deferredJob, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.scheduleID == "" {
		// A plain AddJob(run_at/run_in) deferral.
		job, ok := m.jobs[d.jobID]
		if ok && job.Status == domain.JobScheduled {
			job.Status = domain.JobQueued
			m.queueFIFO[d.targetQueue] = append(m.queueFIFO[d.targetQueue], d.jobID)
		}
		return
	}

	sched, ok := m.schedules[d.scheduleID]
	if !ok {
		return
	}
	misfired := sched.MisfireGraceTime > 0 && now.Sub(d.fireAt) > sched.MisfireGraceTime
	queueName := sched.QueueName
	if queueName == "" {
		queueName = m.defaultQueue()
	}

	// spec §4.9.1: a paused schedule still advances its own fire-time
	// cursor below, but spawns no child job while paused.
	//
	// spec §4.9.7: drop skips a missed fire outright, latest (default)
	// coalesces by firing once for the most recent due time.
	if !sched.Paused && (!misfired || sched.MisfireGracePolicy == domain.MisfireLatest) {
		jobID := newSortableID()
		job := &domain.Job{
			ID:         jobID,
			Status:     domain.JobQueued,
			QueueName:  queueName,
			Func:       sched.Func,
			OnSuccess:  sched.OnSuccess,
			OnFailure:  sched.OnFailure,
			CreatedAt:  now,
			Meta:       map[string]any{},
			ResultTTL:  sched.ResultTTL,
			TTL:        sched.TTL,
			Timeout:    sched.Timeout,
			GroupID:    sched.ID,
		}
		m.jobs[jobID] = job
		m.queueFIFO[queueName] = append(m.queueFIFO[queueName], jobID)
		sched.FireCount++
	}

	next := m.nextFireTime(sched, now)
	if sched.Repeat.Max > 0 && sched.FireCount >= sched.Repeat.Max {
		next = nil
	}
	if next != nil {
		pushDeferredEntry(&m.deferred, &deferredJob{fireAt: *next, jobID: "schedule:" + sched.ID, targetQueue: queueName, scheduleID: sched.ID})
	}
}

// popNext pulls the next eligible job off queues, in priority order,
// dropping jobs whose ttl has already expired before they could run (spec
// §5 "the job may be removed before execution if it has sat ... longer than
// ttl").
func (m *Manager) popNext(queues []string) (*domain.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	for _, q := range queues {
		ids := m.queueFIFO[q]
		for len(ids) > 0 {
			id := ids[0]
			ids = ids[1:]
			m.queueFIFO[q] = ids
			job := m.jobs[id]
			if job == nil || job.Status == domain.JobCancelled {
				continue
			}
			if job.TTL > 0 && now.Sub(job.CreatedAt) > job.TTL {
				job.Status = domain.JobFailed
				job.Error = "ttl expired before execution"
				fin := now
				job.FinishedAt = &fin
				continue
			}
			return job, true
		}
	}
	return nil, false
}

func (m *Manager) workerLoop(ctx context.Context, workerID string, queues []string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		job, ok := m.popNext(queues)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(popInterval):
			}
			continue
		}
		m.executeJob(ctx, workerID, job)
	}
}

// executeJob runs one job's function, applies job-level retry/timeout
// semantics, and records the outcome (spec §4.9.1, §4.9.7, §5 timeouts).
func (m *Manager) executeJob(parent context.Context, workerID string, job *domain.Job) {
	m.mu.Lock()
	job.Status = domain.JobRunning
	now := m.clock()
	job.StartedAt = &now
	job.WorkerID = workerID

	jobCtx := parent
	var cancel context.CancelFunc
	if job.Timeout > 0 {
		jobCtx, cancel = context.WithTimeout(parent, job.Timeout)
	} else {
		jobCtx, cancel = context.WithCancel(parent)
	}
	m.jobCancel[job.ID] = cancel
	stats := m.workerStats[workerID]
	if stats == nil {
		stats = &domain.WorkerStats{WorkerID: workerID}
		m.workerStats[workerID] = stats
	}
	m.mu.Unlock()

	result, err := m.hooks.Call(jobCtx, job.Func)
	ctxErr := jobCtx.Err()
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobCancel, job.ID)
	stats.LastJobID = job.ID
	stats.LastActive = m.clock()

	finishedAt := m.clock()
	switch {
	case err == nil:
		job.Status = domain.JobSucceeded
		job.Result = result
		job.FinishedAt = &finishedAt
		stats.JobsProcessed++
		m.recordScheduleFire(job, result, nil)
		m.scheduleResultEviction(job)
		m.hooks.InvokeFunctionRef(parent, job.OnSuccess, result, nil)

	case errors.Is(ctxErr, context.Canceled):
		job.Status = domain.JobCancelled
		job.FinishedAt = &finishedAt
		m.hooks.InvokeFunctionRef(parent, job.OnStopped, nil, err)

	case errors.Is(ctxErr, context.DeadlineExceeded):
		job.Status = domain.JobFailed
		job.Error = fmt.Sprintf("timeout after %s", job.Timeout)
		job.FinishedAt = &finishedAt
		stats.JobsFailed++
		m.dlq[job.ID] = true
		m.recordScheduleFire(job, nil, errors.New(job.Error))
		m.hooks.InvokeFunctionRef(parent, job.OnFailure, nil, err)

	case job.RetriesUsed < job.RetrySpec.Max:
		job.RetriesUsed++
		job.Status = domain.JobRetrying
		job.Meta["retries_used"] = job.RetriesUsed
		delay := job.RetrySpec.Interval
		queueName := job.QueueName
		jobID := job.ID
		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			m.mu.Lock()
			if j, ok := m.jobs[jobID]; ok && j.Status == domain.JobRetrying {
				j.Status = domain.JobQueued
				m.queueFIFO[queueName] = append(m.queueFIFO[queueName], jobID)
			}
			m.mu.Unlock()
		}()

	default:
		job.Status = domain.JobFailed
		job.Error = err.Error()
		job.FinishedAt = &finishedAt
		stats.JobsFailed++
		m.dlq[job.ID] = true
		m.recordScheduleFire(job, nil, err)
		m.hooks.InvokeFunctionRef(parent, job.OnFailure, nil, err)
	}
}

// recordScheduleFire appends to a schedule's execution history, for
// get_schedule_result (spec §4.9.6). No-op for jobs not spawned by a
// Schedule (GroupID empty).
func (m *Manager) recordScheduleFire(job *domain.Job, result any, err error) {
	if job.GroupID == "" {
		return
	}
	fire := scheduleFire{firedAt: m.clock(), jobID: job.ID, result: result}
	if err != nil {
		fire.err = err.Error()
	}
	m.scheduleHistory[job.GroupID] = append(m.scheduleHistory[job.GroupID], fire)
}

// scheduleResultEviction removes the job's result (and the job entirely)
// after ResultTTL (spec §5 result_ttl).
func (m *Manager) scheduleResultEviction(job *domain.Job) {
	if job.ResultTTL <= 0 {
		return
	}
	jobID := job.ID
	time.AfterFunc(job.ResultTTL, func() {
		m.mu.Lock()
		delete(m.jobs, jobID)
		m.mu.Unlock()
	})
}

// sweepStuckWorkers requeues jobs left Running by a worker that hasn't been
// active within workerTTL (spec §4.9.7 "worker crash ... the scheduler
// requeues any jobs in the running state owned by the dead worker"). In a
// single-process deployment a goroutine crash takes the whole process down
// with it, so this mainly guards against a worker wedged on a non-context-
// aware call. schedulerLoop calls it on every tick with StuckJobMaxAge.
func (m *Manager) sweepStuckWorkers(workerTTL time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if workerTTL <= 0 {
		return 0
	}
	now := m.clock()
	requeued := 0
	for _, job := range m.jobs {
		if job.Status != domain.JobRunning || job.StartedAt == nil {
			continue
		}
		stats := m.workerStats[job.WorkerID]
		lastActive := *job.StartedAt
		if stats != nil && stats.LastActive.After(lastActive) {
			lastActive = stats.LastActive
		}
		if now.Sub(lastActive) <= workerTTL {
			continue
		}
		job.Status = domain.JobQueued
		job.StartedAt = nil
		job.WorkerID = ""
		m.queueFIFO[job.QueueName] = append(m.queueFIFO[job.QueueName], job.ID)
		requeued++
	}
	if requeued > 0 {
		slog.Warn("requeued jobs from presumed-dead workers", slog.Int("count", requeued))
	}
	return requeued
}
