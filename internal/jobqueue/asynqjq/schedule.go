package asynqjq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/jobqueue"
)

// cronParser accepts both the 5-field and 6-field (leading seconds) forms,
// matching memoryjq's parser configuration (spec §4.9.3).
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (m *Manager) scheduleKey(id string) string    { return m.key("schedule", id) }
func (m *Manager) scheduleDueKey() string           { return m.key("schedules", "due") }
func (m *Manager) scheduleHistKey(id string) string { return m.key("schedule", id, "history") }

// scheduleFire is one entry in a schedule's execution-history list, the
// Redis-persisted analogue of memoryjq's in-memory scheduleFire.
type scheduleFire struct {
	FiredAt time.Time `json:"fired_at"`
	JobID   string    `json:"job_id"`
	Result  any       `json:"result,omitempty"`
	Err     string    `json:"error,omitempty"`
}

// scheduleRecord is the envelope persisted at <prefix>:schedule:<id>.
type scheduleRecord struct {
	Schedule *domain.Schedule `json:"schedule"`
	Func     domain.FunctionRef `json:"func"`
}

// AddSchedule implements spec §4.9.3: exactly one of Cron, Interval, Date;
// the schedule itself is Redis-persisted, but fires are driven by this
// process's own scheduler loop (StartScheduler), not by asynq.Scheduler —
// keeping misfire-grace and history semantics identical to memoryjq's.
func (m *Manager) AddSchedule(ctx context.Context, fn domain.FunctionRef, opts jobqueue.AddScheduleOptions) (*domain.Schedule, error) {
	if err := validateTrigger(opts); err != nil {
		return nil, fmt.Errorf("op=asynqjq.AddSchedule: %w", err)
	}

	id := opts.ScheduleID
	if id == "" {
		id = newScheduleID()
	}

	existing, err := m.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch opts.ConflictPolicy {
		case domain.ConflictReplace:
			// fall through and overwrite below
		case domain.ConflictDoNothing:
			return existing, nil
		default:
			return nil, fmt.Errorf("op=asynqjq.AddSchedule: %w", &domain.ScheduleConflictError{ScheduleID: id})
		}
	}

	if opts.Cron != "" {
		if _, err := cronParser.Parse(opts.Cron); err != nil {
			return nil, fmt.Errorf("op=asynqjq.AddSchedule: %w: %v", domain.ErrInvalidArgument, err)
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
		sched.MisfireGracePolicy = domain.MisfireLatest
	}

	if err := m.saveSchedule(ctx, sched, fn); err != nil {
		return nil, err
	}

	first := nextFireTime(sched, m.clock())
	if first != nil {
		if err := m.rdb.ZAdd(ctx, m.scheduleDueKey(), redis.Z{Score: float64(first.UnixNano()), Member: id}).Err(); err != nil {
			return nil, fmt.Errorf("op=asynqjq.AddSchedule: %w", err)
		}
	}
	return sched, nil
}

func newScheduleID() string {
	return uuid.NewString()
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

// nextFireTime mirrors memoryjq's trigger semantics: cron per its
// expression, interval fires immediately then every Interval, date is
// one-shot.
func nextFireTime(s *domain.Schedule, after time.Time) *time.Time {
	switch {
	case s.Cron != "":
		cronSched, err := cronParser.Parse(s.Cron)
		if err != nil {
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

func (m *Manager) saveSchedule(ctx context.Context, s *domain.Schedule, fn domain.FunctionRef) error {
	raw, err := json.Marshal(scheduleRecord{Schedule: s, Func: fn})
	if err != nil {
		return fmt.Errorf("op=asynqjq.saveSchedule: %w", err)
	}
	if err := m.rdb.Set(ctx, m.scheduleKey(s.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("op=asynqjq.saveSchedule: %w", err)
	}
	return nil
}

// GetSchedules returns schedules due before `until` (or all, if nil),
// paginated by offset/length (spec §4.9.6).
func (m *Manager) GetSchedules(ctx context.Context, until *time.Time, offset, length int) ([]*domain.Schedule, error) {
	ids, err := m.rdb.Keys(ctx, m.key("schedule", "*")).Result()
	if err != nil {
		return nil, fmt.Errorf("op=asynqjq.GetSchedules: %w", err)
	}
	out := make([]*domain.Schedule, 0, len(ids))
	for _, key := range ids {
		if len(key) > len(":history") && key[len(key)-len(":history"):] == ":history" {
			continue
		}
		rec, err := m.loadScheduleRecordByKey(ctx, key)
		if err != nil || rec == nil {
			continue
		}
		s := rec.Schedule
		if until != nil {
			next := nextFireTime(s, m.clock())
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

func (m *Manager) loadScheduleRecordByKey(ctx context.Context, key string) (*scheduleRecord, error) {
	raw, err := m.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec scheduleRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetSchedule returns one schedule or nil.
func (m *Manager) GetSchedule(ctx context.Context, scheduleID string) (*domain.Schedule, error) {
	rec, err := m.loadScheduleRecordByKey(ctx, m.scheduleKey(scheduleID))
	if err != nil {
		return nil, fmt.Errorf("op=asynqjq.GetSchedule: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	return rec.Schedule, nil
}

// GetScheduleResult reads a schedule's execution-history list (spec
// §4.9.6): idx selects a single entry, a set of indices, "all", "latest",
// or "earliest".
func (m *Manager) GetScheduleResult(ctx context.Context, scheduleID string, idx jobqueue.ScheduleResultIndex) (any, error) {
	raw, err := m.rdb.LRange(ctx, m.scheduleHistKey(scheduleID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("op=asynqjq.GetScheduleResult: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	history := make([]scheduleFire, 0, len(raw))
	for _, r := range raw {
		var f scheduleFire
		if err := json.Unmarshal([]byte(r), &f); err == nil {
			history = append(history, f)
		}
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
			return nil, fmt.Errorf("op=asynqjq.GetScheduleResult: %w: index %d out of range", domain.ErrInvalidArgument, i)
		}
		return fireResult(history[i]), nil
	default:
		return fireResult(history[len(history)-1]), nil
	}
}

func fireResult(f scheduleFire) map[string]any {
	out := map[string]any{"job_id": f.JobID, "fired_at": f.FiredAt, "result": f.Result}
	if f.Err != "" {
		out["error"] = f.Err
	}
	return out
}

// recordScheduleFire appends a fire outcome to the owning schedule's history
// list, if the job that just finished was spawned from one (GroupID set).
func (m *Manager) recordScheduleFire(ctx context.Context, job *domain.Job, result any, err error) {
	if job.GroupID == "" {
		return
	}
	entry := scheduleFire{FiredAt: m.clock(), JobID: job.ID, Result: result}
	if err != nil {
		entry.Err = err.Error()
	}
	raw, merr := json.Marshal(entry)
	if merr != nil {
		return
	}
	m.rdb.RPush(ctx, m.scheduleHistKey(job.GroupID), raw)
}

// PauseSchedule marks a schedule paused (spec §4.9.1): its fire-time cursor
// keeps advancing but fireSchedule spawns no child job while paused is set.
func (m *Manager) PauseSchedule(ctx context.Context, scheduleID string) error {
	rec, err := m.loadScheduleRecordByKey(ctx, m.scheduleKey(scheduleID))
	if err != nil {
		return fmt.Errorf("op=asynqjq.PauseSchedule: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("op=asynqjq.PauseSchedule: %w", &domain.JobNotFoundError{JobID: scheduleID})
	}
	rec.Schedule.Paused = true
	return m.saveSchedule(ctx, rec.Schedule, rec.Func)
}

// ResumeSchedule clears paused, letting future fires spawn jobs again.
func (m *Manager) ResumeSchedule(ctx context.Context, scheduleID string) error {
	rec, err := m.loadScheduleRecordByKey(ctx, m.scheduleKey(scheduleID))
	if err != nil {
		return fmt.Errorf("op=asynqjq.ResumeSchedule: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("op=asynqjq.ResumeSchedule: %w", &domain.JobNotFoundError{JobID: scheduleID})
	}
	rec.Schedule.Paused = false
	return m.saveSchedule(ctx, rec.Schedule, rec.Func)
}

// CancelSchedule prevents future fires; jobs it already spawned are
// unaffected (spec §5 cancellation).
func (m *Manager) CancelSchedule(ctx context.Context, scheduleID string) error {
	existing, err := m.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("op=asynqjq.CancelSchedule: %w", &domain.JobNotFoundError{JobID: scheduleID})
	}
	m.rdb.ZRem(ctx, m.scheduleDueKey(), scheduleID)
	m.rdb.Del(ctx, m.scheduleKey(scheduleID))
	return nil
}

// CancelAllSchedules cancels every schedule.
func (m *Manager) CancelAllSchedules(ctx context.Context) error {
	scheds, err := m.GetSchedules(ctx, nil, 0, 0)
	if err != nil {
		return err
	}
	for _, s := range scheds {
		if err := m.CancelSchedule(ctx, s.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteSchedule removes a schedule and its execution history entirely.
func (m *Manager) DeleteSchedule(ctx context.Context, scheduleID string) error {
	if err := m.CancelSchedule(ctx, scheduleID); err != nil {
		return err
	}
	m.rdb.Del(ctx, m.scheduleHistKey(scheduleID))
	return nil
}

// DeleteAllSchedules removes every schedule and its history.
func (m *Manager) DeleteAllSchedules(ctx context.Context) error {
	scheds, err := m.GetSchedules(ctx, nil, 0, 0)
	if err != nil {
		return err
	}
	for _, s := range scheds {
		if err := m.DeleteSchedule(ctx, s.ID); err != nil {
			return err
		}
	}
	return nil
}
