package config

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/fs"
)

// JobQueueBackendType selects the JobQueueManager backend (spec §6.4
// FP_JOB_QUEUE_TYPE).
type JobQueueBackendType string

const (
	BackendRedis  JobQueueBackendType = "rq"
	BackendMemory JobQueueBackendType = "memory"
)

// JobQueueConfig is ProjectConfig's job_queue section: backend type,
// connection settings, worker counts, queue names (spec §3.1, §4.8, §6.4).
type JobQueueConfig struct {
	Type JobQueueBackendType `yaml:"type" json:"type"`

	BackendHost     string `yaml:"backend_host,omitempty" json:"backend_host,omitempty"`
	BackendPort     int    `yaml:"backend_port,omitempty" json:"backend_port,omitempty"`
	BackendDB       int    `yaml:"backend_db,omitempty" json:"backend_db,omitempty"`
	BackendUsername string `yaml:"backend_username,omitempty" json:"backend_username,omitempty"`
	BackendPassword string `yaml:"backend_password,omitempty" json:"backend_password,omitempty"`
	BackendTLS      bool   `yaml:"backend_tls,omitempty" json:"backend_tls,omitempty"`
	BackendCertFile string `yaml:"backend_cert_file,omitempty" json:"backend_cert_file,omitempty"`

	Queues     []string `yaml:"queues,omitempty" json:"queues,omitempty"`
	NumWorkers int      `yaml:"num_workers,omitempty" json:"num_workers,omitempty"`

	// Prefix namespaces every Redis key the "rq" backend writes (job
	// records, queue indexes, schedule state), so multiple projects can
	// share one Redis database without colliding.
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`

	// WorkerMin and WorkerScalingInterval are the supplemented worker
	// knobs (SPEC_FULL §4): cmd/worker starts a fixed pool of WorkerMin
	// workers (one if unset). WorkerScalingInterval is carried through
	// config and env only; no component reads it, and the pool does not
	// scale between WorkerMin and NumWorkers.
	WorkerMin             int           `yaml:"worker_min,omitempty" json:"worker_min,omitempty"`
	WorkerScalingInterval time.Duration `yaml:"worker_scaling_interval,omitempty" json:"worker_scaling_interval,omitempty"`

	DLQMaxAge           time.Duration `yaml:"dlq_max_age,omitempty" json:"dlq_max_age,omitempty"`
	DLQCleanupInterval  time.Duration `yaml:"dlq_cleanup_interval,omitempty" json:"dlq_cleanup_interval,omitempty"`
	StuckJobMaxAge      time.Duration `yaml:"stuck_job_max_age,omitempty" json:"stuck_job_max_age,omitempty"`
	StuckJobSweepPeriod time.Duration `yaml:"stuck_job_sweep_period,omitempty" json:"stuck_job_sweep_period,omitempty"`
}

// DefaultJobQueueConfig returns the in-memory backend with a "default" queue
// plus the trailing "scheduled" deferral queue, suitable for tests and
// single-process use.
func DefaultJobQueueConfig() JobQueueConfig {
	return JobQueueConfig{
		Type:                BackendMemory,
		Prefix:              "flowerpower",
		Queues:              []string{"default", "scheduled"},
		NumWorkers:          1,
		WorkerMin:           1,
		WorkerScalingInterval: 30 * time.Second,
		DLQMaxAge:           7 * 24 * time.Hour,
		DLQCleanupInterval:  time.Hour,
		StuckJobMaxAge:      10 * time.Minute,
		StuckJobSweepPeriod: time.Minute,
	}
}

// DeferralQueue returns the last queue name, reserved for scheduled-job
// deferral (spec §4.8 "the last queue is reserved for scheduled-job
// deferral").
func (c JobQueueConfig) DeferralQueue() string {
	if len(c.Queues) == 0 {
		return "scheduled"
	}
	return c.Queues[len(c.Queues)-1]
}

// ProjectConfig is the persisted project-level settings document (spec
// §3.1): name, global adapter defaults, job_queue settings.
type ProjectConfig struct {
	Name      string        `yaml:"name" json:"name"`
	Adapter   AdapterConfig `yaml:"adapter,omitempty" json:"adapter,omitempty"`
	JobQueue  JobQueueConfig `yaml:"job_queue,omitempty" json:"job_queue,omitempty"`
}

// NewProjectConfig returns the default document written when a
// FlowerPowerProject is scaffolded.
func NewProjectConfig(name string) ProjectConfig {
	return ProjectConfig{Name: name, JobQueue: DefaultJobQueueConfig()}
}

func (c ProjectConfig) Validate() error {
	if !ValidIdentifier(c.Name) {
		return domain.NewConfigValidationError("name", "must match ^[a-zA-Z_][a-zA-Z0-9_]*$")
	}
	return c.JobQueue.Validate()
}

// ToYAML serializes with deterministic key order.
func (c ProjectConfig) ToYAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("op=config.ProjectConfig.ToYAML: %w", err)
	}
	return out, nil
}

// ProjectConfigFromYAML strict-decodes raw bytes into a ProjectConfig.
func ProjectConfigFromYAML(raw []byte) (ProjectConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var c ProjectConfig
	if err := dec.Decode(&c); err != nil {
		return ProjectConfig{}, fmt.Errorf("op=config.ProjectConfigFromYAML: %w", err)
	}
	return c, nil
}

// LoadProjectConfigFile reads and parses <cfgDir>/project.yml.
func LoadProjectConfigFile(filesystem fs.FileSystem, path string) (ProjectConfig, error) {
	raw, err := filesystem.ReadFile(path)
	if err != nil {
		return ProjectConfig{}, fmt.Errorf("op=config.LoadProjectConfigFile: %w", err)
	}
	return ProjectConfigFromYAML(raw)
}

// SaveProjectConfigFile writes c to path.
func SaveProjectConfigFile(filesystem fs.FileSystem, path string, c ProjectConfig) error {
	raw, err := c.ToYAML()
	if err != nil {
		return fmt.Errorf("op=config.SaveProjectConfigFile: %w", err)
	}
	if err := filesystem.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("op=config.SaveProjectConfigFile: %w", err)
	}
	return nil
}
