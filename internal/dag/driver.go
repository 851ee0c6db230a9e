package dag

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/executor"
)

// Driver executes a Graph: dynamic execution mode is implicit since inputs
// and final_vars are supplied per Execute call rather than fixed at
// construction time (spec §4.5 step 4 "dynamic execution mode enabled").
type Driver struct {
	nodes  map[string]Node
	levels [][]string // topologically sorted, grouped so each level's nodes are mutually independent
}

// NewDriver validates g (no missing inputs, no cycles) and precomputes the
// level-by-level execution order.
func NewDriver(g Graph) (*Driver, error) {
	nodes := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes[n.Name] = n
	}

	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indegree[n.Name] = 0
	}
	for _, n := range nodes {
		for _, in := range n.Inputs {
			if _, ok := nodes[in]; !ok {
				// in is a run input or external value, not a node; ignore.
				continue
			}
			indegree[n.Name]++
			dependents[in] = append(dependents[in], n.Name)
		}
	}

	var levels [][]string
	remaining := len(nodes)
	frontier := make([]string, 0)
	for name, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, name)
		}
	}
	for len(frontier) > 0 {
		levels = append(levels, frontier)
		remaining -= len(frontier)
		var next []string
		for _, name := range frontier {
			for _, dep := range dependents[name] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}
	if remaining != 0 {
		return nil, fmt.Errorf("op=dag.NewDriver: %w: cycle detected among DAG nodes", domain.ErrInvalidArgument)
	}

	return &Driver{nodes: nodes, levels: levels}, nil
}

// Execute runs every node of the graph, in dependency order, returning a
// map restricted to finalVars (or the results of the terminal nodes, those
// no other node depends on, if finalVars is empty — spec §4.1/§8.3 "empty
// final_vars returns all terminal DAG nodes").
func (d *Driver) Execute(ctx context.Context, exec *executor.Handle, adapters []Adapter, inputs map[string]any, finalVars []string) (map[string]any, error) {
	results := make(map[string]any, len(d.nodes)+len(inputs))
	for k, v := range inputs {
		results[k] = v
	}

	var mu sync.Mutex
	var firstErr error

	local := exec == nil || exec.Local
	limit := 0
	if exec != nil {
		limit = exec.Limit
	}

	for _, level := range d.levels {
		if firstErr != nil {
			break
		}
		if local {
			for _, name := range level {
				if err := d.runNode(ctx, adapters, name, &mu, results); err != nil {
					firstErr = err
					break
				}
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		if limit > 0 {
			g.SetLimit(limit)
		}
		for _, name := range level {
			name := name
			g.Go(func() error { return d.runNode(gctx, adapters, name, &mu, results) })
		}
		if err := g.Wait(); err != nil {
			firstErr = err
		}
	}

	for _, a := range adapters {
		a.PostGraphExecute(ctx, results, firstErr)
	}
	if firstErr != nil {
		return nil, firstErr
	}

	if len(finalVars) == 0 {
		return terminalResults(d.nodes, results), nil
	}
	out := make(map[string]any, len(finalVars))
	for _, v := range finalVars {
		val, ok := results[v]
		if !ok {
			return nil, fmt.Errorf("op=dag.Execute: %w: final_vars entry %q was never produced", domain.ErrInvalidArgument, v)
		}
		out[v] = val
	}
	return out, nil
}

func (d *Driver) runNode(ctx context.Context, adapters []Adapter, name string, mu *sync.Mutex, results map[string]any) error {
	node := d.nodes[name]

	mu.Lock()
	args := make([]any, len(node.Inputs))
	inputSnapshot := make(map[string]any, len(node.Inputs))
	for i, in := range node.Inputs {
		args[i] = results[in]
		inputSnapshot[in] = results[in]
	}
	mu.Unlock()

	for _, a := range adapters {
		a.PreNodeExecute(ctx, name, inputSnapshot)
	}

	result, err := node.Func(args)

	for _, a := range adapters {
		a.PostNodeExecute(ctx, name, result, err)
	}
	if err != nil {
		return fmt.Errorf("node %q: %w", name, err)
	}

	mu.Lock()
	results[name] = result
	mu.Unlock()
	return nil
}

// terminalResults returns every node that is not itself an input to another
// node (spec §4.1/§8.3 "empty final_vars => all terminal DAG nodes").
func terminalResults(nodes map[string]Node, results map[string]any) map[string]any {
	isInput := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		for _, in := range n.Inputs {
			isInput[in] = true
		}
	}
	out := make(map[string]any)
	for name := range nodes {
		if !isInput[name] {
			out[name] = results[name]
		}
	}
	return out
}
