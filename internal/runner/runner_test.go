package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legout/flowerpower/internal/adapter"
	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/dag"
	"github.com/legout/flowerpower/internal/hooks"
)

func newTestRunner(t *testing.T) (*Runner, *ModuleRegistry, *hooks.Registry) {
	t.Helper()
	modules := NewModuleRegistry()
	hookReg := hooks.NewRegistry()
	return New(modules, adapter.NewManager(), hookReg), modules, hookReg
}

// TestRunSucceedsScenarioS1 mirrors scenario S1: a pipeline computing
// spend_mean succeeds, on_success fires exactly once, on_failure never
// fires.
func TestRunSucceedsScenarioS1(t *testing.T) {
	r, modules, hookReg := newTestRunner(t)
	modules.Register("hello", dag.Graph{Nodes: []dag.Node{
		{Name: "spend_mean", Inputs: []string{"spend"}, Func: func(args []any) (any, error) {
			nums := args[0].([]any)
			sum := 0.0
			for _, n := range nums {
				sum += n.(float64)
			}
			return sum / float64(len(nums)), nil
		}},
	}})

	successCount := 0
	hookReg.Register("on_ok", func(context.Context, any, error, []any, map[string]any) { successCount++ })

	rc := config.NewRunConfig()
	rc.Inputs = map[string]any{"spend": []any{10.0, 20.0, 30.0}}
	rc.FinalVars = []string{"spend_mean"}
	rc.OnSuccess = &config.CallbackSpec{Name: "on_ok"}

	out, err := r.Run(context.Background(), "hello", rc)
	require.NoError(t, err)
	assert.Equal(t, 20.0, out["spend_mean"])
	assert.Equal(t, 1, successCount)
}

func TestRunReportsMissingModule(t *testing.T) {
	r, _, _ := newTestRunner(t)
	_, err := r.Run(context.Background(), "missing", config.NewRunConfig())
	require.Error(t, err)
}

func TestRunAsyncRejectsExplicitAsyncDriverFalse(t *testing.T) {
	r, modules, _ := newTestRunner(t)
	modules.Register("noop", dag.Graph{})

	rc, err := config.NewRunConfigBuilder().WithAsyncDriver(false).Build()
	require.NoError(t, err)

	_, runErr := r.RunAsync(context.Background(), "noop", rc)
	require.Error(t, runErr)
}

// TestRunRetriesThenFailsScenarioS2 mirrors scenario S2/S3: a transient
// failure is retried up to max_retries, then surfaces with on_failure
// invoked exactly once.
func TestRunRetriesThenFailsScenarioS2(t *testing.T) {
	r, modules, hookReg := newTestRunner(t)
	attempts := 0
	boom := errors.New("transient")
	modules.Register("flaky", dag.Graph{Nodes: []dag.Node{
		{Name: "out", Inputs: nil, Func: func([]any) (any, error) {
			attempts++
			return nil, boom
		}},
	}})

	failureCount := 0
	hookReg.Register("on_fail", func(context.Context, any, error, []any, map[string]any) { failureCount++ })

	rc := config.NewRunConfig()
	rc.FinalVars = []string{"out"}
	rc.Retry = config.RetryPolicy{MaxRetries: 2, RetryDelay: 0.001, JitterFactor: 0, RetryExceptions: []string{"any"}}
	rc.OnFailure = &config.CallbackSpec{Name: "on_fail"}

	_, err := r.Run(context.Background(), "flaky", rc)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 1, failureCount)
}
