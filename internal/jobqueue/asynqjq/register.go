package asynqjq

import (
	"fmt"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/hooks"
	"github.com/legout/flowerpower/internal/jobqueue"
	"github.com/legout/flowerpower/internal/jobqueue/backend"
	"github.com/legout/flowerpower/internal/jobqueue/backendregistry"
)

func init() {
	backendregistry.MustRegister(config.BackendRedis, func(cfg config.JobQueueConfig, hookReg *hooks.Registry) (jobqueue.Manager, error) {
		be, err := backend.NewRedis(cfg)
		if err != nil {
			return nil, fmt.Errorf("op=asynqjq.factory: %w", err)
		}
		return New(be, cfg, hookReg)
	})
}
