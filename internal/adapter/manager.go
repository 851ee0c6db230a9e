// Package adapter implements AdapterManager (spec §4.4): it turns a run's
// adapter toggles and per-adapter settings into the ordered sequence of
// dag.Adapter instances the driver attaches.
package adapter

import (
	"sort"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/dag"
)

// Manager builds dag.Adapter instances from configuration, plus any
// process-wide custom adapters registered under a name (spec §4.4's
// "custom adapter mapping").
type Manager struct {
	custom map[string]dag.Adapter
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{custom: map[string]dag.Adapter{}}
}

// RegisterCustom adds a named adapter that Build can attach when it appears
// as a key in either adapter-cfg mapping.
func (m *Manager) RegisterCustom(name string, a dag.Adapter) {
	m.custom[name] = a
}

// Build returns the ordered adapter sequence for a run. Order: built-in
// toggle-driven adapters first (tracker, progress bar, opentelemetry), then
// custom adapters in sorted-name order for determinism. Returns an empty,
// non-nil sequence when nothing is enabled (spec §4.4).
func (m *Manager) Build(with config.WithAdapterConfig, pipelineCfg, projectCfg config.AdapterConfig) []dag.Adapter {
	merged := projectCfg.Merge(pipelineCfg)
	adapters := make([]dag.Adapter, 0, 4)

	if with.Tracker {
		adapters = append(adapters, NewTrackerAdapter(merged["tracker"]))
	}
	if with.ProgressBar {
		adapters = append(adapters, NewProgressBarAdapter())
	}
	if with.OpenTelemetry {
		adapters = append(adapters, NewOTelAdapter())
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		if name == "tracker" || name == "progress_bar" || name == "opentelemetry" {
			continue
		}
		if _, ok := m.custom[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		adapters = append(adapters, m.custom[name])
	}

	return adapters
}
