// Package pipeline implements the runtime Pipeline object (spec §3.1): the
// bound combination of a pipeline's persisted PipelineConfig, its loaded DAG
// module, and the collaborators (runner, project name) it needs to actually
// execute. PipelineRegistry.GetPipeline constructs and caches one per
// (project, name) pair (invariant 3.3.1).
package pipeline

import (
	"context"
	"fmt"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/runner"
)

// Pipeline is one resolved, runnable pipeline bound to a project.
type Pipeline struct {
	Name           string
	ProjectContext string
	Config         config.PipelineConfig
	runner         *runner.Runner
}

// New binds name's persisted config to the runner that knows how to execute
// its module graph, scoped to projectContext (spec §3.1's project_context,
// used to namespace log lines and as the callback/job-func lookup scope).
func New(name, projectContext string, cfg config.PipelineConfig, r *runner.Runner) *Pipeline {
	return &Pipeline{Name: name, ProjectContext: projectContext, Config: cfg, runner: r}
}

// resolvedRunConfig merges the pipeline's own defaults (c.Config.Run) with a
// caller-supplied override: replacement semantics for every field except
// Inputs, which shallow-merges the caller's inputs over the pipeline's
// preset params (spec §4.1).
func (p *Pipeline) resolvedRunConfig(override config.RunConfig) config.RunConfig {
	merged := p.Config.Run.Merge(override)
	merged.Inputs = config.MergeInputsShallow(p.Config.Params, override.Inputs)
	return merged
}

// Run executes the pipeline synchronously with override applied over the
// pipeline's own RunConfig defaults (spec §4.5).
func (p *Pipeline) Run(ctx context.Context, override config.RunConfig) (map[string]any, error) {
	rc := p.resolvedRunConfig(override)
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("op=pipeline.Run: %w", err)
	}
	result, err := p.runner.Run(ctx, p.Name, rc)
	if err != nil {
		return nil, fmt.Errorf("op=pipeline.Run: %w", err)
	}
	return result, nil
}

// RunAsync executes with non-blocking retry sleeps (spec §4.5's async path);
// fails if override (or the pipeline's own default) explicitly disables it.
func (p *Pipeline) RunAsync(ctx context.Context, override config.RunConfig) (map[string]any, error) {
	rc := p.resolvedRunConfig(override)
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("op=pipeline.RunAsync: %w", err)
	}
	if !rc.WantsAsyncDriver() {
		return nil, fmt.Errorf("op=pipeline.RunAsync: %w", domain.NewConfigValidationError("async_driver", "is false but RunAsync was invoked"))
	}
	result, err := p.runner.RunAsync(ctx, p.Name, rc)
	if err != nil {
		return nil, fmt.Errorf("op=pipeline.RunAsync: %w", err)
	}
	return result, nil
}
