// Package hooks implements the callback subsystem (C11): user-defined
// on_success/on_failure/on_stopped callables are registered once by name
// and invoked by name thereafter, since config and persisted Job/Schedule
// records store only a name plus args/kwargs (spec §4.11) — never a live
// function reference, which cannot survive a YAML or Redis round trip.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/domain"
)

// Func is a registered callback. result/err are the outcome of the
// operation the callback fires for; args/kwargs come from the CallbackSpec
// or FunctionRef that triggered it.
type Func func(ctx context.Context, result any, err error, args []any, kwargs map[string]any)

// Registry maps callback names to registered Funcs.
type Registry struct {
	mu       sync.RWMutex
	funcs    map[string]Func
	jobFuncs map[string]JobFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: map[string]Func{}}
}

// Register associates name with fn. Re-registering the same name overwrites
// the previous entry, mirroring a module reimport.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *Registry) lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// InvokeSpec resolves spec by name and calls it with result/err. A nil spec
// is a no-op. Callback failures (including an unregistered name) are logged
// and swallowed — per spec §4.2, a callback must never mask or replace the
// primary outcome it was invoked for.
func (r *Registry) InvokeSpec(ctx context.Context, spec *config.CallbackSpec, result any, err error) {
	if spec == nil {
		return
	}
	r.invokeNamed(ctx, spec.Name, result, err, spec.Args, spec.Kwargs)
}

// InvokeFunctionRef is InvokeSpec's counterpart for the job queue's
// FunctionRef-shaped callbacks (Job.OnSuccess/OnFailure/OnStopped).
func (r *Registry) InvokeFunctionRef(ctx context.Context, ref *domain.FunctionRef, result any, err error) {
	if ref == nil {
		return
	}
	r.invokeNamed(ctx, ref.Name, result, err, ref.Args, ref.Kwargs)
}

func (r *Registry) invokeNamed(ctx context.Context, name string, result any, err error, args []any, kwargs map[string]any) {
	fn, ok := r.lookup(name)
	if !ok {
		slog.Warn("callback not registered", slog.String("name", name))
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("callback panicked", slog.String("name", name), slog.Any("panic", rec))
		}
	}()
	fn(ctx, result, err, args, kwargs)
}

// JobFunc is a registered callable invoked for its result, not as a
// lifecycle hook — this is what JobQueueManager runs for a Job's Func.
type JobFunc func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// RegisterJobFunc associates name with a job function, distinct from the
// lifecycle Funcs registered via Register.
func (r *Registry) RegisterJobFunc(name string, fn JobFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobFuncs == nil {
		r.jobFuncs = map[string]JobFunc{}
	}
	r.jobFuncs[name] = fn
}

// Call invokes a registered JobFunc by name, returning its result. Unlike
// InvokeSpec/InvokeFunctionRef, errors propagate to the caller since this is
// the job's actual work, not a side-effect hook.
func (r *Registry) Call(ctx context.Context, ref domain.FunctionRef) (any, error) {
	r.mu.RLock()
	fn, ok := r.jobFuncs[ref.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("op=hooks.Call: %w: %q has no job function registered", domain.ErrNotFound, ref.Name)
	}
	return fn(ctx, ref.Args, ref.Kwargs)
}
