// Package project implements FlowerPowerProject (C10): the top-level handle
// a CLI or HTTP server opens once per working directory, wiring together
// PipelineRegistry, PipelineRunner, the selected JobQueueManager backend,
// and PipelineManager, and injecting itself as every pipeline's
// project_context (spec §3.1, §4.10, §6.1's directory layout).
package project

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/legout/flowerpower/internal/adapter"
	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/fs"
	"github.com/legout/flowerpower/internal/hooks"
	"github.com/legout/flowerpower/internal/jobqueue"
	_ "github.com/legout/flowerpower/internal/jobqueue/backends"
	"github.com/legout/flowerpower/internal/jobqueue/backendregistry"
	"github.com/legout/flowerpower/internal/pipelinemanager"
	"github.com/legout/flowerpower/internal/registry"
	"github.com/legout/flowerpower/internal/runner"
)

// Layout is the conventional directory structure (spec §6.1): pipelines/
// holds pipeline modules, conf/ holds project.yml and conf/pipelines/*.yml,
// hooks/ holds callback modules.
type Layout struct {
	BaseDir      string
	PipelinesDir string
	CfgDir       string
	HooksDir     string
}

// NewLayout returns the conventional layout rooted at baseDir.
func NewLayout(baseDir string) Layout {
	return Layout{
		BaseDir:      baseDir,
		PipelinesDir: filepath.Join(baseDir, "pipelines"),
		CfgDir:       filepath.Join(baseDir, "conf"),
		HooksDir:     filepath.Join(baseDir, "hooks"),
	}
}

func (l Layout) projectConfigPath() string { return filepath.Join(l.CfgDir, "project.yml") }

// Project is FlowerPowerProject.
type Project struct {
	Layout   Layout
	Config   config.ProjectConfig
	Registry *registry.Registry
	Manager  *pipelinemanager.Manager
	JobQueue jobqueue.Manager
	Hooks    *hooks.Registry
}

// Name returns the project's configured name.
func (p *Project) Name() string { return p.Config.Name }

// PipelineManager returns the project's PipelineManager façade.
func (p *Project) PipelineManager() *pipelinemanager.Manager { return p.Manager }

// New scaffolds a fresh project at baseDir: writes conf/project.yml and
// creates the pipelines/, conf/pipelines/, hooks/ directories (spec §4.10).
// Fails if conf/project.yml already exists unless overwrite is set.
func New(filesystem fs.FileSystem, name, baseDir string, overwrite bool) (*Project, error) {
	if !config.ValidIdentifier(name) {
		return nil, domain.NewConfigValidationError("name", "must match ^[a-zA-Z_][a-zA-Z0-9_]*$")
	}
	layout := NewLayout(baseDir)
	if !overwrite && filesystem.Exists(layout.projectConfigPath()) {
		return nil, fmt.Errorf("op=project.New: %w: %s", domain.ErrAlreadyExists, layout.projectConfigPath())
	}

	for _, dir := range []string{layout.PipelinesDir, filepath.Join(layout.CfgDir, "pipelines"), layout.HooksDir} {
		if err := filesystem.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("op=project.New: %w", err)
		}
	}

	cfg := config.NewProjectConfig(name)
	if err := config.SaveProjectConfigFile(filesystem, layout.projectConfigPath(), cfg); err != nil {
		return nil, fmt.Errorf("op=project.New: %w", err)
	}
	return build(filesystem, layout, cfg)
}

// Load opens an existing project rooted at baseDir, returning (nil, nil) if
// conf/project.yml does not exist — the caller decides whether a missing
// project is an error or a cue to call New (spec §4.10).
func Load(filesystem fs.FileSystem, baseDir string) (*Project, error) {
	layout := NewLayout(baseDir)
	if !filesystem.Exists(layout.projectConfigPath()) {
		return nil, nil
	}
	cfg, err := config.LoadProjectConfigFile(filesystem, layout.projectConfigPath())
	if err != nil {
		return nil, fmt.Errorf("op=project.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("op=project.Load: %w", err)
	}
	return build(filesystem, layout, cfg)
}

func build(filesystem fs.FileSystem, layout Layout, cfg config.ProjectConfig) (*Project, error) {
	hookReg := hooks.NewRegistry()

	jq, err := backendregistry.Create(cfg.JobQueue, hookReg)
	if err != nil {
		return nil, fmt.Errorf("op=project.build: %w", err)
	}

	reg := registry.New(filesystem, layout.PipelinesDir, layout.CfgDir, layout.HooksDir)
	rn := runner.New(runner.NewModuleRegistry(), adapter.NewManager(), hookReg)
	reg.WithRunner(rn)

	mgr := pipelinemanager.New(reg, jq, hookReg)

	return &Project{
		Layout:   layout,
		Config:   cfg,
		Registry: reg,
		Manager:  mgr,
		JobQueue: jq,
		Hooks:    hookReg,
	}, nil
}

// Run executes name through the project's PipelineManager, injecting this
// project's name as project_context (spec §4.10).
func (p *Project) Run(ctx context.Context, name string, rc config.RunConfig) (map[string]any, error) {
	return p.Manager.Run(ctx, name, p.Name(), rc)
}
