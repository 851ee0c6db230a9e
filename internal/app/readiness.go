// Package app wires application components and startup helpers.
//
// It provides dependency injection and application initialization.
// The package coordinates between different layers and provides
// a clean application bootstrap process.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/registry"
)

// Pinger is the minimal interface for a broker connection capable of Ping,
// satisfied by a small wrapper around *redis.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns two readiness checks: the job queue broker
// (only meaningful for the "rq" backend; a nil Pinger means the in-memory
// backend is in use and the check trivially passes) and the pipeline
// registry (the pipelines/ directory is listable).
func BuildReadinessChecks(cfg config.JobQueueConfig, broker Pinger, reg *registry.Registry) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	brokerCheck := func(ctx context.Context) error {
		if cfg.Type != config.BackendRedis {
			return nil
		}
		if broker == nil {
			return fmt.Errorf("job queue broker not configured")
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return broker.Ping(pingCtx)
	}
	registryCheck := func(ctx context.Context) error {
		if reg == nil {
			return fmt.Errorf("pipeline registry not configured")
		}
		if _, err := reg.ListPipelines(); err != nil {
			return fmt.Errorf("pipeline registry unreadable: %w", err)
		}
		return nil
	}
	return brokerCheck, registryCheck
}
