package asynqjq

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/jobqueue"
)

// defaultSchedulerInterval is how often StartScheduler polls the due-set;
// matches memoryjq's documented poll cadence (spec §9, implementer choice).
const defaultSchedulerInterval = 60 * time.Second

// StartScheduler begins polling the Redis due-set for schedules whose next
// fire time has arrived, enqueuing a job for each via AddJob (spec §4.9.4).
// Running this in more than one process double-fires schedules; operators
// are expected to run exactly one scheduler per project, same as they would
// run one instance of an APScheduler-style scheduler process.
func (m *Manager) StartScheduler(ctx context.Context, background bool, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	m.mu.Lock()
	if m.schedulerCancel != nil {
		m.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.schedulerCancel = cancel
	m.mu.Unlock()

	m.schedulerWG.Add(1)
	if background {
		go m.schedulerLoop(loopCtx, interval)
		return nil
	}
	m.schedulerLoop(loopCtx, interval)
	return nil
}

// StopScheduler stops the scheduler loop started by StartScheduler.
func (m *Manager) StopScheduler(context.Context) error {
	m.mu.Lock()
	cancel := m.schedulerCancel
	m.schedulerCancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	m.schedulerWG.Wait()
	return nil
}

func (m *Manager) schedulerLoop(ctx context.Context, interval time.Duration) {
	defer m.schedulerWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.promoteDueSchedules(ctx)
		}
	}
}

// promoteDueSchedules pops every schedule due at or before now, applies its
// misfire-grace policy, fires it (unless dropped), and reschedules its next
// fire time (spec §4.9.3, §4.9.7).
func (m *Manager) promoteDueSchedules(ctx context.Context) {
	now := m.clock()
	zs, err := m.rdb.ZRangeByScoreWithScores(ctx, m.scheduleDueKey(), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now.UnixNano())}).Result()
	if err != nil || len(zs) == 0 {
		return
	}
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		m.rdb.ZRem(ctx, m.scheduleDueKey(), id)
		m.fireSchedule(ctx, id, time.Unix(0, int64(z.Score)), now)
	}
}

func (m *Manager) fireSchedule(ctx context.Context, scheduleID string, due, now time.Time) {
	rec, err := m.loadScheduleRecordByKey(ctx, m.scheduleKey(scheduleID))
	if err != nil || rec == nil {
		return
	}
	sched := rec.Schedule

	misfire := sched.MisfireGraceTime > 0 && now.Sub(due) > sched.MisfireGraceTime
	dropped := misfire && sched.MisfireGracePolicy == domain.MisfireDrop

	// spec §4.9.1: a paused schedule still advances its fire-time cursor
	// below, but spawns no child job while paused.
	if !sched.Paused && !dropped && (sched.Repeat.Max == 0 || sched.FireCount < sched.Repeat.Max) {
		_, err := m.AddJob(ctx, rec.Func, jobqueue.AddJobOptions{
			QueueName: sched.QueueName,
			Retry:     domain.JobRetrySpec{},
			TTL:       sched.TTL,
			ResultTTL: sched.ResultTTL,
			Timeout:   sched.Timeout,
			Meta:      sched.Meta,
			GroupID:   sched.ID,
			OnSuccess: sched.OnSuccess,
			OnFailure: sched.OnFailure,
		})
		if err == nil {
			sched.FireCount++
		}
	}

	next := nextFireTime(sched, now)
	if next != nil && (sched.Repeat.Max == 0 || sched.FireCount < sched.Repeat.Max) {
		m.rdb.ZAdd(ctx, m.scheduleDueKey(), redis.Z{Score: float64(next.UnixNano()), Member: scheduleID})
	}
	_ = m.saveSchedule(ctx, sched, rec.Func)
}
