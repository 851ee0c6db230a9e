package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mean(args []any) (any, error) {
	nums := args[0].([]any)
	sum := 0.0
	for _, n := range nums {
		sum += n.(float64)
	}
	return sum / float64(len(nums)), nil
}

func TestDriverExecutesSimpleGraph(t *testing.T) {
	g := Graph{Nodes: []Node{
		{Name: "spend_mean", Inputs: []string{"spend"}, Func: mean},
	}}
	d, err := NewDriver(g)
	require.NoError(t, err)

	out, err := d.Execute(context.Background(), nil, nil,
		map[string]any{"spend": []any{10.0, 20.0, 30.0}},
		[]string{"spend_mean"})
	require.NoError(t, err)
	assert.Equal(t, 20.0, out["spend_mean"])
}

func TestDriverEmptyFinalVarsReturnsTerminalNodes(t *testing.T) {
	g := Graph{Nodes: []Node{
		{Name: "doubled", Inputs: []string{"x"}, Func: func(a []any) (any, error) { return a[0].(float64) * 2, nil }},
		{Name: "tripled", Inputs: []string{"doubled"}, Func: func(a []any) (any, error) { return a[0].(float64) * 3, nil }},
	}}
	d, err := NewDriver(g)
	require.NoError(t, err)

	out, err := d.Execute(context.Background(), nil, nil, map[string]any{"x": 1.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tripled": 6.0}, out, "only the non-input (terminal) node should be returned")
}

func TestDriverDetectsCycle(t *testing.T) {
	g := Graph{Nodes: []Node{
		{Name: "a", Inputs: []string{"b"}, Func: func(a []any) (any, error) { return nil, nil }},
		{Name: "b", Inputs: []string{"a"}, Func: func(a []any) (any, error) { return nil, nil }},
	}}
	_, err := NewDriver(g)
	require.Error(t, err)
}

func TestDriverPropagatesNodeError(t *testing.T) {
	boom := assert.AnError
	g := Graph{Nodes: []Node{
		{Name: "fails", Inputs: nil, Func: func(a []any) (any, error) { return nil, boom }},
	}}
	d, err := NewDriver(g)
	require.NoError(t, err)

	_, err = d.Execute(context.Background(), nil, nil, nil, []string{"fails"})
	require.ErrorIs(t, err, boom)
}
