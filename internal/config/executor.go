package config

import (
	"runtime"

	"github.com/legout/flowerpower/internal/domain"
)

// ExecutorType selects how a PipelineRunner dispatches DAG nodes (spec §4.3).
type ExecutorType string

const (
	ExecutorSynchronous ExecutorType = "synchronous"
	ExecutorThreadpool  ExecutorType = "threadpool"
	ExecutorProcesspool ExecutorType = "processpool"
	ExecutorDistributed ExecutorType = "distributed"
)

func (t ExecutorType) valid() bool {
	switch t {
	case ExecutorSynchronous, ExecutorThreadpool, ExecutorProcesspool, ExecutorDistributed:
		return true
	}
	return false
}

// Local reports whether this executor type is attached to the DAG driver via
// its local-executor path (spec §4.3's "hard contract": synchronous is the
// only local path, everything else is remote).
func (t ExecutorType) Local() bool { return t == ExecutorSynchronous }

// ExecutorConfig configures the executor ExecutorFactory builds (spec §4.3).
type ExecutorConfig struct {
	Type       ExecutorType `yaml:"type" json:"type"`
	MaxWorkers int          `yaml:"max_workers,omitempty" json:"max_workers,omitempty"`
	NumCPUs    int          `yaml:"num_cpus,omitempty" json:"num_cpus,omitempty"`
}

// DefaultExecutorConfig returns the synchronous default.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{Type: ExecutorSynchronous}
}

// ResolvedMaxWorkers returns MaxWorkers, defaulting to cpu_count*5 for the
// threadpool executor per spec §4.3.
func (c ExecutorConfig) ResolvedMaxWorkers() int {
	if c.MaxWorkers > 0 {
		return c.MaxWorkers
	}
	return runtime.NumCPU() * 5
}

// ResolvedNumCPUs returns NumCPUs, defaulting to cpu_count for the
// processpool executor per spec §4.3.
func (c ExecutorConfig) ResolvedNumCPUs() int {
	if c.NumCPUs > 0 {
		return c.NumCPUs
	}
	return runtime.NumCPU()
}

// Validate enforces type membership and non-negative worker counts.
func (c ExecutorConfig) Validate() error {
	if c.Type != "" && !c.Type.valid() {
		return domain.NewConfigValidationError("executor.type", "must be one of synchronous, threadpool, processpool, distributed")
	}
	if c.MaxWorkers < 0 {
		return domain.NewConfigValidationError("executor.max_workers", "must be >= 0")
	}
	if c.NumCPUs < 0 {
		return domain.NewConfigValidationError("executor.num_cpus", "must be >= 0")
	}
	return nil
}
