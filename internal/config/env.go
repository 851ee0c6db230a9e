package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// EnvOverrides mirrors the teacher's config.go pattern: one struct with
// env/envDefault tags, parsed once via env.Parse, then applied over backend
// and executor connection fields per spec §6.4 — env vars take the highest
// precedence over any value loaded from a file.
type EnvOverrides struct {
	JobQueueType  string `env:"FP_JOB_QUEUE_TYPE"`
	RQBackendHost string `env:"FP_RQ_BACKEND_HOST"`
	RQBackendPort int    `env:"FP_RQ_BACKEND_PORT"`
	RQBackendDB   int    `env:"FP_RQ_BACKEND_DB"`
	RQBackendUser string `env:"FP_RQ_BACKEND_USERNAME"`
	RQBackendPass string `env:"FP_RQ_BACKEND_PASSWORD"`
	RQQueues      string `env:"FP_RQ_QUEUES"`
	RQNumWorkers  int    `env:"FP_RQ_NUM_WORKERS"`

	Executor           string `env:"FP_EXECUTOR"`
	ExecutorMaxWorkers int    `env:"FP_EXECUTOR_MAX_WORKERS"`
	ExecutorNumCPUs    int    `env:"FP_EXECUTOR_NUM_CPUS"`

	// Supplemented worker scaling knobs (SPEC_FULL §4), alongside the
	// documented table.
	WorkerMin             int           `env:"FP_WORKER_MIN"`
	WorkerScalingInterval time.Duration `env:"FP_WORKER_SCALING_INTERVAL"`
}

// LoadEnvOverrides parses FP_-prefixed env vars into an EnvOverrides value.
func LoadEnvOverrides() (EnvOverrides, error) {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return EnvOverrides{}, fmt.Errorf("op=config.LoadEnvOverrides: %w", err)
	}
	return o, nil
}

// ApplyTo overlays non-zero fields of o onto jq and ex, returning new values.
// Any field left at its Go zero value is considered "unset" and does not
// override the file-loaded config, matching spec §6.4's per-field override
// semantics.
func (o EnvOverrides) ApplyTo(jq JobQueueConfig, ex ExecutorConfig) (JobQueueConfig, ExecutorConfig) {
	if o.JobQueueType != "" {
		jq.Type = JobQueueBackendType(o.JobQueueType)
	}
	if o.RQBackendHost != "" {
		jq.BackendHost = o.RQBackendHost
	}
	if o.RQBackendPort != 0 {
		jq.BackendPort = o.RQBackendPort
	}
	if o.RQBackendDB != 0 {
		jq.BackendDB = o.RQBackendDB
	}
	if o.RQBackendUser != "" {
		jq.BackendUsername = o.RQBackendUser
	}
	if o.RQBackendPass != "" {
		jq.BackendPassword = o.RQBackendPass
	}
	if o.RQQueues != "" {
		jq.Queues = strings.Split(o.RQQueues, ",")
	}
	if o.RQNumWorkers != 0 {
		jq.NumWorkers = o.RQNumWorkers
	}
	if o.WorkerMin != 0 {
		jq.WorkerMin = o.WorkerMin
	}
	if o.WorkerScalingInterval != 0 {
		jq.WorkerScalingInterval = o.WorkerScalingInterval
	}

	if o.Executor != "" {
		ex.Type = ExecutorType(o.Executor)
	}
	if o.ExecutorMaxWorkers != 0 {
		ex.MaxWorkers = o.ExecutorMaxWorkers
	}
	if o.ExecutorNumCPUs != 0 {
		ex.NumCPUs = o.ExecutorNumCPUs
	}
	return jq, ex
}
