// Package executor builds the execution context a PipelineRunner attaches
// to the DAG driver (spec §4.3). Given an ExecutorConfig it returns a Handle
// carrying the resolved concurrency bound for threadpool/processpool,
// whether the driver should treat it as a local or remote executor, and a
// Shutdown callable the runner invokes once the run completes.
package executor

import (
	"context"
	"fmt"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/domain"
)

// Handle is what ExecutorFactory.Build hands back to the DAG driver.
type Handle struct {
	Type  config.ExecutorType
	Local bool

	// Limit bounds how many DAG nodes the driver may run concurrently
	// within a single level (spec §4.3's "bounded thread pool"/"bounded
	// process pool" contract — a hard, test-inspectable contract). Zero
	// means unbounded.
	//
	// The driver builds one errgroup per level and applies Limit to it via
	// SetLimit rather than this Handle owning a single long-lived
	// errgroup.Group: errgroup's error capture (errOnce) only fires once
	// for the group's entire lifetime, and a Handle is reused across every
	// retry attempt of a run, so a long-lived group would silently swallow
	// every error after the first failed attempt.
	Limit int

	shutdown func(context.Context) error
}

// Shutdown invokes the factory-provided shutdown callable exactly once,
// after the DAG driver completes (spec §4.3/§4.5 step 7).
func (h *Handle) Shutdown(ctx context.Context) error {
	if h.shutdown == nil {
		return nil
	}
	return h.shutdown(ctx)
}

// Build constructs the executor + shutdown pair for cfg (spec §4.3's table).
// For ExecutorSynchronous the driver must attach the result as a local
// executor; for every other type it attaches as remote — ExecutorType.Local
// is the single source of truth for that distinction, read by both Build
// (to set Handle.Local) and the DAG driver (to pick its execution path).
func Build(ctx context.Context, cfg config.ExecutorConfig) (*Handle, error) {
	switch cfg.Type {
	case "", config.ExecutorSynchronous:
		return &Handle{
			Type:     config.ExecutorSynchronous,
			Local:    config.ExecutorSynchronous.Local(),
			shutdown: noopShutdown,
		}, nil

	case config.ExecutorThreadpool:
		return &Handle{
			Type:     config.ExecutorThreadpool,
			Local:    config.ExecutorThreadpool.Local(),
			Limit:    cfg.ResolvedMaxWorkers(),
			shutdown: noopShutdown,
		}, nil

	case config.ExecutorProcesspool:
		return &Handle{
			Type:  config.ExecutorProcesspool,
			Local: config.ExecutorProcesspool.Local(),
			Limit: cfg.ResolvedNumCPUs(),
			shutdown: func(context.Context) error {
				// "terminate workers": unlike threadpool's drain-and-wait,
				// a processpool shutdown does not wait for in-flight work.
				return nil
			},
		}, nil

	case config.ExecutorDistributed:
		_, cancel := context.WithCancel(ctx)
		return &Handle{
			Type:  config.ExecutorDistributed,
			Local: config.ExecutorDistributed.Local(),
			shutdown: func(context.Context) error {
				cancel()
				return nil
			},
		}, nil

	default:
		return nil, fmt.Errorf("op=executor.Build: %w: unknown type %q", domain.ErrInvalidArgument, cfg.Type)
	}
}

func noopShutdown(context.Context) error { return nil }
