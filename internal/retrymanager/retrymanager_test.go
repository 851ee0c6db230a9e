package retrymanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legout/flowerpower/internal/config"
)

func noSleep(context.Context, time.Duration) error { return nil }
func zeroRNG() float64                             { return 0 }

// TestExecuteSucceedsWithoutRetry exercises scenario S2: operation succeeds
// on the first call, on_success fires exactly once, on_failure never fires.
func TestExecuteSucceedsWithoutRetry(t *testing.T) {
	policy := config.RetryPolicy{MaxRetries: 2, RetryDelay: 1, RetryExceptions: []string{"any"}}
	m := New(policy, "hello", WithSleep(noSleep), WithRNG(zeroRNG))

	calls := 0
	successCalls, failureCalls := 0, 0
	result, err := m.Execute(context.Background(),
		func(context.Context) (any, error) { calls++; return "ok", nil },
		func(any) { successCalls++ },
		func(error) { failureCalls++ },
	)

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, successCalls)
	assert.Equal(t, 0, failureCalls)
}

// TestExecuteRetriesThenFails exercises scenario S3: operation fails every
// time with a transient error; it is invoked 1+max_retries times and
// on_failure fires exactly once with the final error.
func TestExecuteRetriesThenFails(t *testing.T) {
	policy := config.RetryPolicy{MaxRetries: 2, RetryDelay: 0.001, RetryExceptions: []string{"any"}}
	m := New(policy, "hello", WithSleep(noSleep), WithRNG(zeroRNG))

	transient := errors.New("transient")
	calls := 0
	successCalls, failureCalls := 0, 0
	_, err := m.Execute(context.Background(),
		func(context.Context) (any, error) { calls++; return nil, transient },
		func(any) { successCalls++ },
		func(error) { failureCalls++ },
	)

	require.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, successCalls)
	assert.Equal(t, 1, failureCalls)
}

func TestExecuteDoesNotRetryUnmatchedExceptionKind(t *testing.T) {
	policy := config.RetryPolicy{MaxRetries: 5, RetryDelay: 1, RetryExceptions: []string{"TimeoutError"}}
	m := New(policy, "hello",
		WithSleep(noSleep),
		WithRNG(zeroRNG),
		WithClassifier(func(error) string { return "ValueError" }),
	)

	calls := 0
	_, err := m.Execute(context.Background(),
		func(context.Context) (any, error) { calls++; return nil, errors.New("boom") },
		func(any) {},
		func(error) {},
	)

	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-matching error kinds must not be retried")
}

func TestExecuteHonorsContextCancellationDuringSleep(t *testing.T) {
	policy := config.RetryPolicy{MaxRetries: 3, RetryDelay: 10, RetryExceptions: []string{"any"}}
	ctx, cancel := context.WithCancel(context.Background())
	m := New(policy, "hello", WithRNG(zeroRNG), WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	calls := 0
	_, err := m.Execute(ctx,
		func(context.Context) (any, error) { calls++; return nil, errors.New("boom") },
		func(any) {},
		func(error) {},
	)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCallbackPanicDoesNotMaskPrimaryResult(t *testing.T) {
	policy := config.RetryPolicy{MaxRetries: 0, RetryDelay: 1, RetryExceptions: []string{"any"}}
	m := New(policy, "hello", WithSleep(noSleep), WithRNG(zeroRNG))

	result, err := m.Execute(context.Background(),
		func(context.Context) (any, error) { return 42, nil },
		func(any) { panic("boom") },
		func(error) {},
	)

	require.NoError(t, err)
	assert.Equal(t, 42, result)
}
