// Package codegen compiles the part of a graph that feeds a sink node into
// a single shading-language function: an import line followed by the
// statements of every upstream node in dependency order.
package codegen

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/samber/lo"

	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/tsl"
)

// DefaultImportSource is the module the import line names.
const DefaultImportSource = "three/tsl"

// ErrSplitIndex is returned when a component splitter feeds an input slot
// it has no component for: slot 4 and above, and also any slot at or past
// the splitter's Components(), so a vec2 split never yields a _Z reference.
var ErrSplitIndex = errors.New("split component index out of range")

// suffixes name the components a splitter declares, by slot.
var suffixes = []string{"_X", "_Y", "_Z", "_W"}

// Result is the output of Compile.
type Result struct {
	// Source is the complete generated text.
	Source string
	// Statements are the deduplicated statements in dependency order.
	Statements []string
	// Imports are the deduplicated symbols the statements reference, with
	// Fn last.
	Imports []string
	// Tree is the dependency tree the statements were generated from.
	Tree *Tree
}

type options struct {
	trace        string
	importSource string
	logger       hclog.Logger
}

// Option configures Compile.
type Option func(*options)

// WithTraceInput restricts the walk at the sink to one named input.
func WithTraceInput(name string) Option {
	return func(o *options) { o.trace = name }
}

// WithImportSource overrides DefaultImportSource.
func WithImportSource(path string) Option {
	return func(o *options) { o.importSource = path }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Compile generates source for sink.
//
// The tree is walked pre-order, each node before its upstream nodes, and
// every statement is prepended, so the final list runs upstream first.
// A node reached along several paths yields identical text each time and
// is kept once, at its first position.
func Compile(g *graph.Graph, sink graph.Node, opts ...Option) (*Result, error) {
	o := options{importSource: DefaultImportSource, logger: hclog.NewNullLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	tree, err := BuildTree(g, sink, o.trace)
	if err != nil {
		return nil, err
	}
	idx := newIndex(g)

	var stmts, deps []string
	var visit func(t *Tree, root bool) error
	visit = func(t *Tree, root bool) error {
		trace := ""
		if root {
			trace = o.trace
		}
		args, inlined, err := idx.args(t.Node, trace)
		if err != nil {
			return err
		}
		code, err := t.Node.Code(args)
		if err != nil {
			return fmt.Errorf("%s: %w", graph.VarName(t.Node), err)
		}
		stmts = slices.Insert(stmts, 0, code.Code)
		deps = append(deps, code.Dependencies...)
		for _, l := range inlined {
			if strings.Contains(code.Code, l.text) {
				deps = append(deps, l.symbols...)
			}
		}
		for _, p := range t.Parents {
			if err := visit(p, false); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(tree, true); err != nil {
		return nil, err
	}

	res := &Result{
		Statements: lo.Uniq(stmts),
		Imports:    append(lo.Without(lo.Uniq(deps), "Fn"), "Fn"),
		Tree:       tree,
	}
	res.Source = emit(res.Imports, res.Statements, o.importSource)
	o.logger.Debug("compiled graph",
		"sink", graph.VarName(sink),
		"tree", tree.Len(),
		"statements", len(res.Statements),
		"duplicates", len(stmts)-len(res.Statements))
	return res, nil
}

// inlinedLiteral is the literal written in place of a connected input's
// upstream variable, with the symbols it references.
type inlinedLiteral struct {
	text    string
	symbols []string
}

// args returns one reference per input of n: the upstream variable when
// connected, the literal otherwise. At the sink, inputs outside the trace
// are always written as literals since their upstream is not declared, as
// are inputs wired to a node outside the graph. Those connected inputs
// are also returned as inlined literals; node Code only reports the
// symbols of its unconnected inputs.
func (idx index) args(n graph.Node, trace string) ([]string, []inlinedLiteral, error) {
	ins := n.Base().Inputs()
	args := make([]string, len(ins))
	var inlined []inlinedLiteral
	for i, in := range ins {
		up, ok := idx.upstream(in)
		if !ok || (trace != "" && in.Key != trace) {
			args[i] = graph.Literal(n, in)
			if v := in.Value(); in.Connected() && v != nil {
				inlined = append(inlined, inlinedLiteral{text: args[i], symbols: tsl.Symbols(v())})
			}
			continue
		}
		name := graph.VarName(up)
		if s, ok := up.(graph.ComponentSplitter); ok {
			if i >= len(suffixes) || i >= s.Components() {
				return nil, nil, fmt.Errorf("%s input %q (slot %d) from %s: %w",
					graph.VarName(n), in.Key, i, name, ErrSplitIndex)
			}
			name += suffixes[i]
		}
		args[i] = name
	}
	return args, inlined, nil
}

func emit(imports, stmts []string, source string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "import { %s } from %q;\n", strings.Join(imports, ", "), source)
	sb.WriteString("Fn(() => {\n")
	for _, s := range stmts {
		for _, line := range strings.Split(s, "\n") {
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("})()")
	return sb.String()
}
