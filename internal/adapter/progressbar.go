package adapter

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// ProgressBarAdapter logs node completion counts, standing in for an
// interactive progress bar (which has no meaningful terminal-UI rendering
// in a library context) — it reports the same lifecycle events a real
// progress bar adapter would consume.
type ProgressBarAdapter struct {
	done atomic.Int64
}

func NewProgressBarAdapter() *ProgressBarAdapter { return &ProgressBarAdapter{} }

func (p *ProgressBarAdapter) PreNodeExecute(context.Context, string, map[string]any) {}

func (p *ProgressBarAdapter) PostNodeExecute(_ context.Context, node string, _ any, err error) {
	n := p.done.Add(1)
	if err != nil {
		slog.Warn("node failed", slog.String("node", node), slog.Int64("completed", n), slog.Any("error", err))
		return
	}
	slog.Debug("node completed", slog.String("node", node), slog.Int64("completed", n))
}

func (p *ProgressBarAdapter) PostGraphExecute(_ context.Context, _ map[string]any, err error) {
	if err != nil {
		slog.Warn("graph execution finished with error", slog.Any("error", err))
		return
	}
	slog.Info("graph execution finished", slog.Int64("nodes_completed", p.done.Load()))
}
