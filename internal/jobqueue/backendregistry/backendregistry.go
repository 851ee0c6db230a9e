// Package backendregistry implements the Backend Registry (C12): a
// process-wide mapping from a job-queue backend type name to the factory
// that constructs its JobQueueManager, so a project's conf/project.yml can
// select "memory" or "rq" by name without the rest of the codebase
// importing every backend package directly (spec §4.12).
package backendregistry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/hooks"
	"github.com/legout/flowerpower/internal/jobqueue"
)

// Factory constructs a jobqueue.Manager from job-queue settings and the hook
// registry it should invoke job functions through.
type Factory func(cfg config.JobQueueConfig, hookReg *hooks.Registry) (jobqueue.Manager, error)

var (
	mu        sync.RWMutex
	factories = map[config.JobQueueBackendType]Factory{}
)

// Register associates name with factory. Re-registering an already-
// registered name is a programmer error and fails loudly, unlike the
// module/hook registries' permissive overwrite-on-reimport behavior, since
// backend factories are wired once at process startup, not per pipeline run.
func Register(name config.JobQueueBackendType, factory Factory) error {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("op=backendregistry.Register: %w: backend %q already registered", domain.ErrAlreadyExists, name)
	}
	factories[name] = factory
	return nil
}

// MustRegister panics on a duplicate registration; used from init() funcs in
// the backend packages' own wiring, where a duplicate indicates a build-time
// mistake rather than a runtime condition to recover from.
func MustRegister(name config.JobQueueBackendType, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// Create looks up cfg.Type's factory and invokes it.
func Create(cfg config.JobQueueConfig, hookReg *hooks.Registry) (jobqueue.Manager, error) {
	mu.RLock()
	factory, ok := factories[cfg.Type]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("op=backendregistry.Create: %w: backend %q not registered", domain.ErrNotFound, cfg.Type)
	}
	return factory(cfg, hookReg)
}

// ListAvailable returns every registered backend name, sorted.
func ListAvailable() []config.JobQueueBackendType {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]config.JobQueueBackendType, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
