package app

import (
	"context"
	"testing"
	"time"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/jobqueue"
	"github.com/legout/flowerpower/internal/jobqueue/memoryjq"
)

func memoryjqTestConfig() config.JobQueueConfig {
	return config.DefaultJobQueueConfig()
}

func TestNewStuckJobSweeperDefaults(t *testing.T) {
	mgr := memoryjq.New(memoryjqTestConfig(), nil)
	s := NewStuckJobSweeper(mgr, 0, 0)
	if s == nil {
		t.Fatalf("expected non-nil sweeper")
	}
	if s.maxProcessingAge <= 0 {
		t.Fatalf("maxProcessingAge should be set to default, got %v", s.maxProcessingAge)
	}
	if s.interval <= 0 {
		t.Fatalf("interval should be set to default, got %v", s.interval)
	}
}

func TestNewStuckJobSweeperNilRepo(t *testing.T) {
	if sweeper := NewStuckJobSweeper(nil, time.Minute, time.Minute); sweeper != nil {
		t.Fatalf("expected nil sweeper when jobs is nil")
	}
}

// fakeJobQueue implements only as much of jobqueue.Manager as the sweeper
// touches (GetJobs, CancelJob); every other method panics if called.
type fakeJobQueue struct {
	jobqueue.Manager
	jobs        map[string][]*domain.Job
	listErr     error
	cancelCalls []string
}

func (f *fakeJobQueue) GetJobs(context.Context, string) (map[string][]*domain.Job, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.jobs, nil
}

func (f *fakeJobQueue) CancelJob(_ context.Context, jobID string) (bool, error) {
	f.cancelCalls = append(f.cancelCalls, jobID)
	return true, nil
}

func TestStuckJobSweeperSweepOnceCancelsOldJobs(t *testing.T) {
	now := time.Now()
	old := now.Add(-10 * time.Minute)
	recent := now.Add(-1 * time.Minute)
	fq := &fakeJobQueue{jobs: map[string][]*domain.Job{
		"default": {
			{ID: "old", Status: domain.JobRunning, StartedAt: &old, Func: domain.FunctionRef{Name: "run_pipeline"}},
			{ID: "recent", Status: domain.JobRunning, StartedAt: &recent, Func: domain.FunctionRef{Name: "run_pipeline"}},
		},
	}}
	s := &StuckJobSweeper{jobs: fq, maxProcessingAge: 5 * time.Minute, interval: time.Minute}

	s.sweepOnce(context.Background())

	if len(fq.cancelCalls) != 1 || fq.cancelCalls[0] != "old" {
		t.Fatalf("expected only 'old' to be cancelled, got %v", fq.cancelCalls)
	}
}

func TestStuckJobSweeperRunStopsOnContextDone(t *testing.T) {
	mgr := memoryjq.New(memoryjqTestConfig(), nil)
	s := NewStuckJobSweeper(mgr, time.Minute, 10*time.Millisecond)
	if s == nil {
		t.Fatalf("expected non-nil sweeper")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(ch)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-ch:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("Run did not exit after context cancellation")
	}
}
