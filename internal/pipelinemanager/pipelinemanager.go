// Package pipelinemanager implements PipelineManager (C7): the single
// façade FlowerPowerProject exposes for running, enqueuing, and scheduling
// pipelines, backed by PipelineRegistry (lookup/scaffolding) and
// JobQueueManager (deferred/recurring execution) (spec §4.7).
package pipelinemanager

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/hooks"
	"github.com/legout/flowerpower/internal/jobqueue"
	"github.com/legout/flowerpower/internal/pipeline"
	"github.com/legout/flowerpower/internal/registry"
)

// runPipelineFunc is the hooks.JobFunc name every enqueued/scheduled
// pipeline run is registered and invoked under (spec §4.7).
const runPipelineFunc = "run_pipeline"

// Manager is PipelineManager.
type Manager struct {
	Registry *registry.Registry
	JobQueue jobqueue.Manager
	Hooks    *hooks.Registry
}

// New wires a Manager and registers the run_pipeline job function every
// enqueued/scheduled run dispatches through.
func New(reg *registry.Registry, jq jobqueue.Manager, hookReg *hooks.Registry) *Manager {
	m := &Manager{Registry: reg, JobQueue: jq, Hooks: hookReg}
	hookReg.RegisterJobFunc(runPipelineFunc, m.runPipelineJobFunc)
	return m
}

func (m *Manager) runPipelineJobFunc(ctx context.Context, _ []any, kwargs map[string]any) (any, error) {
	name, _ := kwargs["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("op=pipelinemanager.runPipelineJobFunc: %w: missing pipeline name", domain.ErrInvalidArgument)
	}
	rc, err := coerceRunConfig(kwargs["run_config"])
	if err != nil {
		return nil, fmt.Errorf("op=pipelinemanager.runPipelineJobFunc: %w", err)
	}
	projectContext, _ := kwargs["project_context"].(string)
	reload, _ := kwargs["reload"].(bool)

	p, err := m.Registry.GetPipeline(name, projectContext, reload)
	if err != nil {
		return nil, fmt.Errorf("op=pipelinemanager.runPipelineJobFunc: %w", err)
	}
	return p.Run(ctx, rc)
}

// coerceRunConfig accepts either a config.RunConfig (same-process call, e.g.
// memoryjq) or the map[string]any a JSON round-trip through Redis leaves it
// as (asynqjq): the kwargs value is re-marshaled/unmarshaled into the
// concrete type either way, which is a no-op for an already-typed value and
// the required decode step for the map case.
func coerceRunConfig(raw any) (config.RunConfig, error) {
	var rc config.RunConfig
	if raw == nil {
		return rc, nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return rc, fmt.Errorf("%w: run_config kwarg is not serializable: %v", domain.ErrInvalidArgument, err)
	}
	if err := json.Unmarshal(buf, &rc); err != nil {
		return rc, fmt.Errorf("%w: run_config kwarg does not decode as a RunConfig: %v", domain.ErrInvalidArgument, err)
	}
	return rc, nil
}

func (m *Manager) getPipeline(name, projectContext string, reload bool) (*pipeline.Pipeline, error) {
	p, err := m.Registry.GetPipeline(name, projectContext, reload)
	if err != nil {
		return nil, fmt.Errorf("op=pipelinemanager.getPipeline: %w", err)
	}
	return p, nil
}

// Run executes name synchronously (spec §4.7).
func (m *Manager) Run(ctx context.Context, name, projectContext string, rc config.RunConfig) (map[string]any, error) {
	p, err := m.getPipeline(name, projectContext, rc.Reload)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, rc)
}

// RunAsync executes name with non-blocking retry sleeps (spec §4.7).
func (m *Manager) RunAsync(ctx context.Context, name, projectContext string, rc config.RunConfig) (map[string]any, error) {
	p, err := m.getPipeline(name, projectContext, rc.Reload)
	if err != nil {
		return nil, err
	}
	return p.RunAsync(ctx, rc)
}

// Enqueue hands name off to the JobQueueManager for deferred or
// worker-pool-driven execution (spec §4.7): the pipeline is resolved lazily
// by the worker that eventually runs the job, not eagerly here, so Enqueue
// only validates that it COULD resolve (catching a typo'd name early).
func (m *Manager) Enqueue(ctx context.Context, name, projectContext string, rc config.RunConfig, opts jobqueue.AddJobOptions) (*domain.Job, error) {
	if _, err := m.getPipeline(name, projectContext, false); err != nil {
		return nil, err
	}
	fn := domain.FunctionRef{Name: runPipelineFunc, Kwargs: map[string]any{
		"name":            name,
		"project_context": projectContext,
		"run_config":      rc,
	}}
	job, err := m.JobQueue.AddJob(ctx, fn, opts)
	if err != nil {
		return nil, fmt.Errorf("op=pipelinemanager.Enqueue: %w", err)
	}
	return job, nil
}

// Schedule hands name off to the JobQueueManager for cron/interval/date-
// driven recurring execution (spec §4.7).
func (m *Manager) Schedule(ctx context.Context, name, projectContext string, rc config.RunConfig, opts jobqueue.AddScheduleOptions) (*domain.Schedule, error) {
	if _, err := m.getPipeline(name, projectContext, false); err != nil {
		return nil, err
	}
	fn := domain.FunctionRef{Name: runPipelineFunc, Kwargs: map[string]any{
		"name":            name,
		"project_context": projectContext,
		"run_config":      rc,
	}}
	sched, err := m.JobQueue.AddSchedule(ctx, fn, opts)
	if err != nil {
		return nil, fmt.Errorf("op=pipelinemanager.Schedule: %w", err)
	}
	return sched, nil
}

// NewPipeline creates a pipeline's module/config pair, passthrough to the registry
// (spec §4.6/§4.7).
func (m *Manager) NewPipeline(name string, overwrite bool) error {
	return m.Registry.NewPipeline(name, overwrite)
}

// Delete removes a pipeline's config and/or module files.
func (m *Manager) Delete(name string, cfg, module bool) {
	m.Registry.Delete(name, cfg, module)
}

// ListPipelines passthrough.
func (m *Manager) ListPipelines() ([]registry.PipelineListing, error) {
	return m.Registry.ListPipelines()
}

// GetSummary passthrough.
func (m *Manager) GetSummary(name string, includeCfg, includeCode bool) (map[string]registry.PipelineSummary, error) {
	return m.Registry.GetSummary(name, includeCfg, includeCode)
}
