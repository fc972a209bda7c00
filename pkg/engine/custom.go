package engine

import (
	"strings"

	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/tsl"
)

// CustomNodeType is the registry name recorded for compiled nodes.
const CustomNodeType = "CustomNode"

// Definition is a compiled Fn( ... ) expression. It can stamp out any
// number of nodes.
type Definition struct {
	// Source is the extracted Fn( ... ) literal, verbatim.
	Source string
	prog   *program
}

// Inputs returns the parameter names in declaration order.
func (d *Definition) Inputs() []string {
	out := make([]string, len(d.prog.params))
	for i, p := range d.prog.params {
		out[i] = p.name
	}
	return out
}

// Symbols returns the builtins and constants the source references by name.
func (d *Definition) Symbols() []string {
	return append([]string(nil), d.prog.symbols...)
}

// Apply interprets the body with args bound to the parameters.
func (d *Definition) Apply(args ...tsl.Expr) (tsl.Expr, error) {
	return d.prog.run(args)
}

// NewNode builds a node with one input per parameter and a single value
// output that re-interprets the body whenever an input changes.
func (d *Definition) NewNode() *CustomNode {
	n := &CustomNode{NodeBase: graph.NewNodeBase(CustomNodeType, "Custom Node"), def: d}
	ins := make([]*graph.Input, len(d.prog.params))
	for i, p := range d.prog.params {
		ins[i] = n.AddInput(p.name, p.name, graph.SchemaAny, tsl.Num(p.def))
	}
	n.AddOutput("value", "Value", graph.SchemaAny, ins, n.compute)
	return n
}

// CustomNode is a node compiled from user-authored source.
type CustomNode struct {
	graph.NodeBase
	def *Definition
	err error
}

func (n *CustomNode) compute(in []tsl.Thunk) tsl.Thunk {
	args := make([]tsl.Expr, len(in))
	for i, th := range in {
		args[i] = th()
	}
	e, err := n.def.Apply(args...)
	n.err = err
	if err != nil {
		return tsl.Num(0)
	}
	return tsl.Const(e)
}

// Definition returns the compiled expression behind the node.
func (n *CustomNode) Definition() *Definition { return n.def }

// Err returns the error from the latest recompute, if any. The output
// holds 0 while it is set.
func (n *CustomNode) Err() error { return n.err }

// Source implements graph.SourceProvider.
func (n *CustomNode) Source() string { return n.def.Source }

// Code calls the user's Fn with the node's arguments.
func (n *CustomNode) Code(args []string) (graph.Code, error) {
	call := n.def.Source + "(" + strings.Join(graph.ResolveArgs(n, args), ", ") + ")"
	return graph.Code{
		Code:         "const " + graph.VarName(n) + " = " + call,
		Dependencies: n.def.Symbols(),
	}, nil
}
