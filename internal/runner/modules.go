package runner

import (
	"fmt"
	"sync"

	"github.com/legout/flowerpower/internal/dag"
	"github.com/legout/flowerpower/internal/domain"
)

// ModuleRegistry stands in for the source framework's importlib-based module
// loader: pipeline modules register their Graph under a name once, and
// additional_modules entries are resolved against it the same way the
// original tries a bare name then a "pipelines.<name>" qualified name
// (spec §4.5 step 2).
type ModuleRegistry struct {
	mu      sync.RWMutex
	modules map[string]dag.Graph
}

// NewModuleRegistry returns an empty registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{modules: map[string]dag.Graph{}}
}

// Register associates name with g, overwriting any prior registration —
// this is what Reload uses to simulate re-importing a module.
func (r *ModuleRegistry) Register(name string, g dag.Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = g
}

// Resolve tries name, then "pipelines.<name>", returning a ModuleImportError
// listing both attempts if neither is registered.
func (r *ModuleRegistry) Resolve(name string) (dag.Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tried := []string{name, "pipelines." + name}
	for _, candidate := range tried {
		if g, ok := r.modules[candidate]; ok {
			return g, nil
		}
	}
	return dag.Graph{}, &domain.ModuleImportError{Tried: tried, Cause: fmt.Errorf("%w", domain.ErrNotFound)}
}
