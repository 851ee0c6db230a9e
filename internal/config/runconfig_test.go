package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunConfigYAMLRoundTrip(t *testing.T) {
	onSuccess := CallbackSpec{Name: "notify_ok", Args: []any{"a"}}
	rc := RunConfig{
		Inputs:    map[string]any{"spend": []any{10, 20, 30}},
		FinalVars: []string{"spend_mean"},
		Executor:  ExecutorConfig{Type: ExecutorThreadpool, MaxWorkers: 4},
		Retry:     RetryPolicy{MaxRetries: 2, RetryDelay: 1.5, JitterFactor: 0.1, RetryExceptions: []string{"TimeoutError"}},
		LogLevel:  LogDebug,
		OnSuccess: &onSuccess,
	}

	raw, err := rc.ToYAML()
	require.NoError(t, err)

	got, warnings, err := FromYAML(raw)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, rc.FinalVars, got.FinalVars)
	assert.Equal(t, rc.Executor, got.Executor)
	assert.Equal(t, rc.Retry, got.Retry)
	assert.Equal(t, rc.LogLevel, got.LogLevel)
	assert.Equal(t, rc.OnSuccess.Name, got.OnSuccess.Name)
}

func TestRunConfigDictRoundTrip(t *testing.T) {
	rc := NewRunConfig()
	rc.FinalVars = []string{"a", "b"}
	rc.Retry.MaxRetries = 3

	d, err := rc.ToDict()
	require.NoError(t, err)

	back, _, err := FromDict(d)
	require.NoError(t, err)
	assert.Equal(t, rc.FinalVars, back.FinalVars)
	assert.Equal(t, rc.Retry.MaxRetries, back.Retry.MaxRetries)
}

func TestRunConfigRejectsUnknownKeys(t *testing.T) {
	_, _, err := FromYAML([]byte("bogus_field: 1\n"))
	require.Error(t, err)
}

func TestLegacyRetryFieldMigration(t *testing.T) {
	raw := []byte("max_retries: 5\nretry_delay: 2.0\njitter_factor: 0.2\nlog_level: INFO\n")

	rc, warnings, err := FromYAML(raw)
	require.NoError(t, err)
	require.Len(t, warnings, 3)
	assert.Equal(t, 5, rc.Retry.MaxRetries)
	assert.Equal(t, 2.0, rc.Retry.RetryDelay)
	assert.Equal(t, 0.2, rc.Retry.JitterFactor)
}

func TestLegacyRetryFieldMigrationMergesIntoExistingRetrySection(t *testing.T) {
	raw := []byte("retry:\n  max_retries: 1\nretry_delay: 9.0\n")

	rc, warnings, err := FromYAML(raw)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, 9.0, rc.Retry.RetryDelay)
}

func TestRunConfigBuilder(t *testing.T) {
	rc, err := NewRunConfigBuilder().
		WithRetries(3, 1.0, 0.5).
		WithLogLevel(LogWarning).
		WithFinalVars([]string{"out"}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, 3, rc.Retry.MaxRetries)
	assert.Equal(t, LogWarning, rc.LogLevel)
	assert.Equal(t, []string{"out"}, rc.FinalVars)
}

func TestRunConfigBuilderRejectsInvalidExecutor(t *testing.T) {
	_, err := NewRunConfigBuilder().WithExecutor(ExecutorConfig{Type: "bogus"}).Build()
	require.Error(t, err)
}

func TestRunConfigMergeReplacesSetFields(t *testing.T) {
	base := NewRunConfig()
	base.FinalVars = []string{"x"}
	base.LogLevel = LogInfo

	override := RunConfig{LogLevel: LogError}
	merged := base.Merge(override)

	assert.Equal(t, []string{"x"}, merged.FinalVars, "unset override fields must not clobber base")
	assert.Equal(t, LogError, merged.LogLevel)
}

func TestMergeInputsShallow(t *testing.T) {
	base := map[string]any{"a": 1, "b": 2}
	override := map[string]any{"b": 3, "c": 4}
	merged := MergeInputsShallow(base, override)
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, merged)
}

func TestWantsAsyncDriver(t *testing.T) {
	rc := NewRunConfig()
	assert.True(t, rc.WantsAsyncDriver())

	rc2 := NewRunConfigBuilder().WithAsyncDriver(false)
	built, err := rc2.Build()
	require.NoError(t, err)
	assert.False(t, built.WantsAsyncDriver())
}
