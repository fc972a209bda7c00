// Package nodes is the library of concrete node kinds: constants, vector
// splitters, math operators, logic, utilities, uniforms, geometry
// attributes and the material sink.
package nodes

import (
	"strings"

	"github.com/samber/lo"

	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/tsl"
)

// port declares one input of a Func node.
type port struct {
	key  string
	name string
	def  tsl.Expr
}

// funcSpec describes a node that applies one builtin to its inputs.
type funcSpec struct {
	typ    string
	name   string
	fn     string
	output string
	inputs []port
	deps   []string
	negate bool // wrap the call in not(...)
}

// Func is a node whose single output applies a builtin to every input in
// declaration order, e.g. vec3(a, b, c) or remap(x, lo, hi, a, b).
type Func struct {
	graph.NodeBase
	def *funcSpec
}

func newFunc(s *funcSpec) *Func {
	n := &Func{NodeBase: graph.NewNodeBase(s.typ, s.name), def: s}
	ins := make([]*graph.Input, len(s.inputs))
	for i, p := range s.inputs {
		ins[i] = n.AddInput(p.key, p.name, graph.SchemaAny, tsl.Const(p.def))
	}
	out := s.output
	if out == "" {
		out = "output"
	}
	n.AddOutput(out, displayName(out), graph.SchemaAny, ins, n.compute)
	return n
}

func (n *Func) compute(in []tsl.Thunk) tsl.Thunk {
	args := make([]tsl.Expr, len(in))
	for i, th := range in {
		args[i] = th()
	}
	var e tsl.Expr = tsl.Fn(n.def.fn, args...)
	if n.def.negate {
		e = tsl.Fn("not", e)
	}
	return tsl.Const(e)
}

// Code implements graph.Node.
func (n *Func) Code(args []string) (graph.Code, error) {
	call := n.def.fn + "(" + strings.Join(graph.ResolveArgs(n, args), ", ") + ")"
	deps := []string{n.def.fn}
	if n.def.negate {
		call = "not(" + call + ")"
		deps = []string{"not", n.def.fn}
	}
	deps = append(deps, n.def.deps...)
	return graph.Code{
		Code:         declare(n, call),
		Dependencies: withLiteralDeps(n, deps),
	}, nil
}

// ----------------------------------------------------------------------------
// Shared helpers
// ----------------------------------------------------------------------------

func declare(n graph.Node, expr string) string {
	return "const " + graph.VarName(n) + " = " + expr
}

// withLiteralDeps adds the symbols referenced by unconnected inputs'
// literals, so a default such as vec2(0.5) imports vec2.
func withLiteralDeps(n graph.Node, deps []string) []string {
	for _, in := range n.Base().Inputs() {
		if in.Connected() {
			continue
		}
		if v := in.Value(); v != nil {
			deps = append(deps, tsl.Symbols(v())...)
		}
	}
	return lo.Uniq(deps)
}

func displayName(key string) string {
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + key[1:]
}

func num(v float64) tsl.Expr { return tsl.Float(v) }

func vec(fn string, vs ...float64) tsl.Expr { return tsl.Fn(fn, tsl.Floats(vs...)...) }

// ab returns the common two-operand input list.
func ab(a, b float64) []port {
	return []port{{"a", "A", num(a)}, {"b", "B", num(b)}}
}
