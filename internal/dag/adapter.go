package dag

import "context"

// Adapter provides life-cycle hooks around node execution (spec §4.4). The
// exact shape mirrors what an external DAG library would dictate; here it
// is the minimal surface internal/adapter's AdapterManager configures.
type Adapter interface {
	PreNodeExecute(ctx context.Context, node string, inputs map[string]any)
	PostNodeExecute(ctx context.Context, node string, result any, err error)
	PostGraphExecute(ctx context.Context, results map[string]any, err error)
}
