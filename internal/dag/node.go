// Package dag is the explicit DAG declaration and driver chosen in place of
// a reflection-based auto-wiring framework (spec §9, option (a)): Go erases
// parameter names for arbitrary funcs at compile time, so a pipeline module
// declares each node's name, its declared input names, and the function to
// invoke, and the driver resolves arguments by name rather than by
// inspecting a function signature.
package dag

import "fmt"

// Func is a node's computation: args are resolved, in declared Inputs
// order, from prior node results or run inputs.
type Func func(args []any) (any, error)

// Node is one DAG vertex (spec §9's {name, inputs, function} record).
type Node struct {
	Name   string
	Inputs []string
	Func   Func
}

// Graph is an unordered collection of Node declarations, as a pipeline
// module exposes them (analogous to the source framework's module-level
// function definitions).
type Graph struct {
	Nodes []Node
}

// Merge returns a new Graph with extra's nodes appended after g's — used by
// PipelineRunner to attach additional_modules before the primary module
// (spec §4.5 step 4: "modules attached in order, additional_modules first,
// primary module last").
func (g Graph) Merge(extra Graph) Graph {
	out := Graph{Nodes: make([]Node, 0, len(g.Nodes)+len(extra.Nodes))}
	out.Nodes = append(out.Nodes, g.Nodes...)
	out.Nodes = append(out.Nodes, extra.Nodes...)
	return out
}

func (g Graph) String() string {
	return fmt.Sprintf("dag.Graph{%d nodes}", len(g.Nodes))
}
