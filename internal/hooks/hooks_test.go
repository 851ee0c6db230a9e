package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legout/flowerpower/internal/config"
	"github.com/legout/flowerpower/internal/domain"
)

func TestInvokeSpecCallsRegisteredFunc(t *testing.T) {
	r := NewRegistry()
	var gotResult any
	var gotErr error
	r.Register("notify", func(_ context.Context, result any, err error, _ []any, _ map[string]any) {
		gotResult, gotErr = result, err
	})

	r.InvokeSpec(context.Background(), &config.CallbackSpec{Name: "notify"}, "ok", nil)
	assert.Equal(t, "ok", gotResult)
	assert.NoError(t, gotErr)
}

func TestInvokeSpecNilIsNoop(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() { r.InvokeSpec(context.Background(), nil, "x", nil) })
}

func TestInvokeSpecSwallowsUnregistered(t *testing.T) {
	r := NewRegistry()
	assert.NotPanics(t, func() {
		r.InvokeSpec(context.Background(), &config.CallbackSpec{Name: "missing"}, nil, errors.New("boom"))
	})
}

func TestInvokeSpecSwallowsPanic(t *testing.T) {
	r := NewRegistry()
	r.Register("panics", func(context.Context, any, error, []any, map[string]any) { panic("boom") })
	assert.NotPanics(t, func() {
		r.InvokeSpec(context.Background(), &config.CallbackSpec{Name: "panics"}, nil, nil)
	})
}

func TestCallInvokesJobFunc(t *testing.T) {
	r := NewRegistry()
	r.RegisterJobFunc("run_pipeline", func(_ context.Context, args []any, kwargs map[string]any) (any, error) {
		return map[string]any{"name": args[0]}, nil
	})

	result, err := r.Call(context.Background(), domain.FunctionRef{Name: "run_pipeline", Args: []any{"hello"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "hello"}, result)
}

func TestCallUnregisteredReturnsNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call(context.Background(), domain.FunctionRef{Name: "missing"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
