package memoryjq

import (
	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/hooks"
	"github.com/legout/flowerpower/internal/jobqueue"
	"github.com/legout/flowerpower/internal/jobqueue/backendregistry"
)

func init() {
	backendregistry.MustRegister(config.BackendMemory, func(cfg config.JobQueueConfig, hookReg *hooks.Registry) (jobqueue.Manager, error) {
		return New(cfg, hookReg), nil
	})
}
