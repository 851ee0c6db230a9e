package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legout/flowerpower/internal/fs"
)

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("hello"))
	assert.True(t, ValidIdentifier("_hello2"))
	assert.False(t, ValidIdentifier("2hello"))
	assert.False(t, ValidIdentifier("hello-world"))
}

func TestPipelineConfigFileRoundTrip(t *testing.T) {
	memfs := fs.NewMemory()
	cfg := NewPipelineConfig("hello")
	cfg.Params = map[string]any{"spend_mean": map[string]any{"window": 3}}

	require.NoError(t, SavePipelineConfigFile(memfs, "cfg/pipelines/hello.yml", cfg))

	got, err := LoadPipelineConfigFile(memfs, "cfg/pipelines/hello.yml")
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, got.Name)
	assert.Equal(t, cfg.Version, got.Version)
}

func TestPipelineConfigRejectsBadName(t *testing.T) {
	cfg := PipelineConfig{Name: "99-bad"}
	require.Error(t, cfg.Validate())
}

func TestProjectConfigDefaultsToMemoryBackend(t *testing.T) {
	cfg := NewProjectConfig("proj")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.JobQueue.Type)
	assert.Equal(t, "scheduled", cfg.JobQueue.DeferralQueue())
}

func TestProjectConfigRejectsRedisWithoutHost(t *testing.T) {
	cfg := NewProjectConfig("proj")
	cfg.JobQueue.Type = BackendRedis
	require.Error(t, cfg.Validate())
}

func TestEnvOverridesApplyOnlyNonZero(t *testing.T) {
	jq := DefaultJobQueueConfig()
	ex := DefaultExecutorConfig()

	o := EnvOverrides{RQBackendHost: "redis.internal", ExecutorMaxWorkers: 8}
	jq2, ex2 := o.ApplyTo(jq, ex)

	assert.Equal(t, "redis.internal", jq2.BackendHost)
	assert.Equal(t, jq.NumWorkers, jq2.NumWorkers)
	assert.Equal(t, 8, ex2.MaxWorkers)
	assert.Equal(t, ex.Type, ex2.Type)
}
