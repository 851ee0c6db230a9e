package memoryjq

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/jobqueue"
)

// cronParser accepts both the 5-field (minute hour dom month dow) and
// 6-field (with leading seconds) crontab forms documented in spec §4.9.3.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// AddSchedule implements spec §4.9.3: exactly one of Cron, Interval, Date
// must be set; ScheduleID conflicts are resolved per opts.ConflictPolicy.
func (m *Manager) AddSchedule(_ context.Context, fn domain.FunctionRef, opts jobqueue.AddScheduleOptions) (*domain.Schedule, error) {
	if err := validateTrigger(opts); err != nil {
		return nil, fmt.Errorf("op=memoryjq.AddSchedule: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := opts.ScheduleID
	if id == "" {
		id = newUUID()
	}
	if existing, ok := m.schedules[id]; ok {
		switch opts.ConflictPolicy {
		case domain.ConflictReplace:
			// fall through and overwrite below
		case domain.ConflictDoNothing:
			return existing, nil
		default: // domain.ConflictReject and zero-value default
			return nil, fmt.Errorf("op=memoryjq.AddSchedule: %w", &domain.ScheduleConflictError{ScheduleID: id})
		}
	}

	var cronSched cron.Schedule
	if opts.Cron != "" {
		var err error
		cronSched, err = cronParser.Parse(opts.Cron)
		if err != nil {
			return nil, fmt.Errorf("op=memoryjq.AddSchedule: %w: %v", domain.ErrInvalidArgument, err)
		}
	}

	sched := &domain.Schedule{
		ID:                 id,
		Cron:               opts.Cron,
		Interval:           opts.Interval,
		Date:               opts.Date,
		QueueName:          opts.QueueName,
		Func:               fn,
		OnSuccess:          opts.OnSuccess,
		OnFailure:          opts.OnFailure,
		TTL:                opts.TTL,
		ResultTTL:          opts.ResultTTL,
		Timeout:            opts.Timeout,
		Repeat:             opts.Repeat,
		Meta:               opts.Meta,
		UseLocalTimeZone:   opts.UseLocalTimeZone,
		MisfireGraceTime:   opts.MisfireGraceTime,
		MisfireGracePolicy: opts.MisfireGracePolicy,
		CreatedAt:          m.clock(),
	}
	if sched.MisfireGracePolicy == "" {
		sched.MisfireGracePolicy = domain.MisfireLatest // spec §4.9.7 default policy
	}

	m.schedules[id] = sched
	m.scheduleHistory[id] = nil
	if cronSched != nil {
		m.cronSchedules[id] = cronSched
	} else {
		delete(m.cronSchedules, id)
	}

	first := m.nextFireTime(sched, m.clock())
	if first != nil {
		pushDeferredEntry(&m.deferred, &deferredJob{fireAt: *first, jobID: "schedule:" + id, targetQueue: sched.QueueName, scheduleID: id})
	}
	return sched, nil
}

// nextFireTime computes a schedule's next fire time after `after` (spec
// §4.9.3): cron per its expression, interval fires immediately then every
// Interval, date is one-shot.
func (m *Manager) nextFireTime(s *domain.Schedule, after time.Time) *time.Time {
	switch {
	case s.Cron != "":
		cronSched := m.cronSchedules[s.ID]
		if cronSched == nil {
			return nil
		}
		t := cronSched.Next(after)
		return &t
	case s.Interval > 0:
		if s.FireCount == 0 {
			t := after
			return &t
		}
		t := after.Add(s.Interval)
		return &t
	case s.Date != nil:
		if s.FireCount > 0 || s.Date.Before(after) {
			return nil
		}
		t := *s.Date
		return &t
	default:
		return nil
	}
}

func validateTrigger(opts jobqueue.AddScheduleOptions) error {
	n := 0
	if opts.Cron != "" {
		n++
	}
	if opts.Interval > 0 {
		n++
	}
	if opts.Date != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("%w: exactly one of cron, interval, date must be set", domain.ErrInvalidArgument)
	}
	return nil
}

// GetSchedules returns schedules due before `until` (or all, if nil),
// paginated by offset/length (spec §4.9.6). length<=0 means "no limit".
func (m *Manager) GetSchedules(_ context.Context, until *time.Time, offset, length int) ([]*domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		if until != nil {
			next := m.nextFireTime(s, m.clock())
			if next == nil || next.After(*until) {
				continue
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []*domain.Schedule{}, nil
	}
	out = out[offset:]
	if length > 0 && length < len(out) {
		out = out[:length]
	}
	return out, nil
}

// GetSchedule returns one schedule or nil.
func (m *Manager) GetSchedule(_ context.Context, scheduleID string) (*domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedules[scheduleID], nil
}

// GetScheduleResult reads from a schedule's execution-history list (spec
// §4.9.6): idx selects a single entry, a set of indices, "all", "latest", or
// "earliest".
func (m *Manager) GetScheduleResult(_ context.Context, scheduleID string, idx jobqueue.ScheduleResultIndex) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history, ok := m.scheduleHistory[scheduleID]
	if !ok {
		return nil, fmt.Errorf("op=memoryjq.GetScheduleResult: %w", &domain.JobNotFoundError{JobID: scheduleID})
	}
	if len(history) == 0 {
		return nil, nil
	}

	switch {
	case idx.Latest:
		return fireResult(history[len(history)-1]), nil
	case idx.Earliest:
		return fireResult(history[0]), nil
	case idx.All:
		out := make([]any, len(history))
		for i, f := range history {
			out[i] = fireResult(f)
		}
		return out, nil
	case len(idx.Indices) > 0:
		out := make([]any, 0, len(idx.Indices))
		for _, i := range idx.Indices {
			if i < 0 || i >= len(history) {
				continue
			}
			out = append(out, fireResult(history[i]))
		}
		return out, nil
	case idx.Single != nil:
		i := *idx.Single
		if i < 0 || i >= len(history) {
			return nil, fmt.Errorf("op=memoryjq.GetScheduleResult: %w: index %d out of range", domain.ErrInvalidArgument, i)
		}
		return fireResult(history[i]), nil
	default:
		return fireResult(history[len(history)-1]), nil
	}
}

func fireResult(f scheduleFire) map[string]any {
	out := map[string]any{"job_id": f.jobID, "fired_at": f.firedAt, "result": f.result}
	if f.err != "" {
		out["error"] = f.err
	}
	return out
}

// PauseSchedule marks a schedule paused (spec §4.9.1): its fire-time cursor
// keeps advancing but promoteOne spawns no child job while paused is set.
func (m *Manager) PauseSchedule(_ context.Context, scheduleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sched, ok := m.schedules[scheduleID]
	if !ok {
		return fmt.Errorf("op=memoryjq.PauseSchedule: %w", &domain.JobNotFoundError{JobID: scheduleID})
	}
	sched.Paused = true
	return nil
}

// ResumeSchedule clears paused, letting future fires spawn jobs again.
func (m *Manager) ResumeSchedule(_ context.Context, scheduleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sched, ok := m.schedules[scheduleID]
	if !ok {
		return fmt.Errorf("op=memoryjq.ResumeSchedule: %w", &domain.JobNotFoundError{JobID: scheduleID})
	}
	sched.Paused = false
	return nil
}

// CancelSchedule prevents future fires; in-flight jobs it already spawned
// are unaffected (spec §5 cancellation).
func (m *Manager) CancelSchedule(_ context.Context, scheduleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[scheduleID]; !ok {
		return fmt.Errorf("op=memoryjq.CancelSchedule: %w", &domain.JobNotFoundError{JobID: scheduleID})
	}
	m.deferred.removeScheduleEntries(scheduleID)
	initDeferredHeap(&m.deferred)
	delete(m.schedules, scheduleID)
	delete(m.cronSchedules, scheduleID)
	return nil
}

// CancelAllSchedules cancels every schedule.
func (m *Manager) CancelAllSchedules(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.schedules {
		m.deferred.removeScheduleEntries(id)
		delete(m.schedules, id)
		delete(m.cronSchedules, id)
	}
	initDeferredHeap(&m.deferred)
	return nil
}

// DeleteSchedule removes a schedule and its execution history entirely.
func (m *Manager) DeleteSchedule(ctx context.Context, scheduleID string) error {
	if err := m.CancelSchedule(ctx, scheduleID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scheduleHistory, scheduleID)
	return nil
}

// DeleteAllSchedules removes every schedule and its history.
func (m *Manager) DeleteAllSchedules(ctx context.Context) error {
	if err := m.CancelAllSchedules(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduleHistory = map[string][]scheduleFire{}
	return nil
}

func (h *deferredHeap) removeScheduleEntries(scheduleID string) {
	kept := (*h)[:0]
	for _, d := range *h {
		if d.scheduleID != scheduleID {
			kept = append(kept, d)
		}
	}
	*h = kept
}
