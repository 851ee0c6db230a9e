package adapter

import (
	"context"
	"sync"
	"time"
)

// TrackerAdapter records per-node start times and durations, the Go
// analogue of a run-tracking adapter (e.g. Hamilton's tracker). Settings
// are accepted but unused beyond presence, since the external tracking
// service integration itself is out of scope (spec §1 Non-goals).
type TrackerAdapter struct {
	settings map[string]any

	mu      sync.Mutex
	started map[string]time.Time
	Events  []TrackerEvent
}

// TrackerEvent is one recorded node execution.
type TrackerEvent struct {
	Node     string
	Started  time.Time
	Duration time.Duration
	Err      error
}

func NewTrackerAdapter(settings map[string]any) *TrackerAdapter {
	return &TrackerAdapter{settings: settings, started: map[string]time.Time{}}
}

func (t *TrackerAdapter) PreNodeExecute(_ context.Context, node string, _ map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started[node] = time.Now()
}

func (t *TrackerAdapter) PostNodeExecute(_ context.Context, node string, _ any, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := t.started[node]
	t.Events = append(t.Events, TrackerEvent{Node: node, Started: start, Duration: time.Since(start), Err: err})
}

func (t *TrackerAdapter) PostGraphExecute(context.Context, map[string]any, error) {}
