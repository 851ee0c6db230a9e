// Package runner implements PipelineRunner (C5): builds the DAG driver,
// invokes it under a RetryManager, and returns final variables (spec §4.5).
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/legout/flowerpower/internal/adapter"
	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/dag"
	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/executor"
	"github.com/legout/flowerpower/internal/hooks"
	"github.com/legout/flowerpower/internal/observability"
	"github.com/legout/flowerpower/internal/retrymanager"
)

// Runner is PipelineRunner. It is stateless beyond its collaborators and
// safe for concurrent use across different pipelines.
type Runner struct {
	Modules  *ModuleRegistry
	Adapters *adapter.Manager
	Hooks    *hooks.Registry
}

// New wires a Runner from its three collaborators.
func New(modules *ModuleRegistry, adapters *adapter.Manager, hookReg *hooks.Registry) *Runner {
	return &Runner{Modules: modules, Adapters: adapters, Hooks: hookReg}
}

// Run executes pipelineName synchronously (spec §4.5's eight-step
// algorithm) and returns the requested final variables.
func (r *Runner) Run(ctx context.Context, pipelineName string, rc config.RunConfig) (map[string]any, error) {
	return r.run(ctx, pipelineName, rc, false)
}

// RunAsync executes pipelineName with non-blocking retry sleeps. Fails with
// ConfigValidationError if rc.AsyncDriver is explicitly false (spec §4.5's
// async path).
func (r *Runner) RunAsync(ctx context.Context, pipelineName string, rc config.RunConfig) (map[string]any, error) {
	if !rc.WantsAsyncDriver() {
		return nil, domain.NewConfigValidationError("async_driver", "is false but RunAsync was invoked")
	}
	return r.run(ctx, pipelineName, rc, true)
}

func (r *Runner) run(ctx context.Context, pipelineName string, rc config.RunConfig, async bool) (map[string]any, error) {
	logger := slog.Default().With(slog.String("pipeline", pipelineName)).With(slog.String("log_level", string(rc.LogLevel)))
	ctx = observability.ContextWithLogger(ctx, logger)

	graph, err := r.resolveGraph(pipelineName, rc.AdditionalModules)
	if err != nil {
		return nil, fmt.Errorf("op=runner.Run: %w", err)
	}

	driver, err := dag.NewDriver(graph)
	if err != nil {
		return nil, fmt.Errorf("op=runner.Run: %w", err)
	}

	execHandle, err := executor.Build(ctx, rc.Executor)
	if err != nil {
		return nil, fmt.Errorf("op=runner.Run: %w", err)
	}
	adapters := r.Adapters.Build(rc.WithAdapter, rc.PipelineAdapterCfg, rc.ProjectAdapterCfg)

	// The retry sleep (internal/retrymanager) is always a non-blocking,
	// context-aware timer wait; async vs sync here only changes whether the
	// caller itself is on a blocking or cooperative call path, which is the
	// caller's concern (Run vs RunAsync), not the retry loop's.
	rm := retrymanager.New(rc.Retry, pipelineName)

	result, runErr := rm.Execute(ctx,
		func(ctx context.Context) (any, error) {
			return driver.Execute(ctx, execHandle, adapters, rc.Inputs, rc.FinalVars)
		},
		func(res any) {
			r.Hooks.InvokeSpec(ctx, rc.OnSuccess, res, nil)
		},
		func(err error) {
			r.Hooks.InvokeSpec(ctx, rc.OnFailure, nil, err)
		},
	)

	if shutdownErr := execHandle.Shutdown(ctx); shutdownErr != nil {
		logger.Warn("executor shutdown failed", slog.Any("error", shutdownErr))
	}

	if runErr != nil {
		return nil, fmt.Errorf("op=runner.Run: %w", runErr)
	}
	return result.(map[string]any), nil
}

func (r *Runner) resolveGraph(primary string, additional []string) (dag.Graph, error) {
	var g dag.Graph
	for _, name := range additional {
		extra, err := r.Modules.Resolve(name)
		if err != nil {
			return dag.Graph{}, err
		}
		g = g.Merge(extra)
	}
	primaryGraph, err := r.Modules.Resolve(primary)
	if err != nil {
		return dag.Graph{}, err
	}
	return g.Merge(primaryGraph), nil
}
