package graph

import (
	"strings"

	"github.com/google/uuid"

	"github.com/chazu/tslgraph/pkg/tsl"
)

// Node is the unit of computation in a graph. Concrete node kinds embed
// NodeBase, which supplies identity and ports, and implement Code.
type Node interface {
	Base() *NodeBase

	// Code returns the statement that declares this node's variable.
	// args holds one reference per input in declaration order; see
	// ResolveArgs for the accepted shapes.
	Code(args []string) (Code, error)
}

// Code is a generated statement plus the external symbols it references.
type Code struct {
	Code         string
	Dependencies []string
}

// Stateful nodes carry private state that is not expressed through ports.
type Stateful interface {
	SerializeState() (string, error)
	DeserializeState(data string) error
}

// ComponentSplitter marks nodes whose outputs each extract one component of
// a single aggregate input. Downstream references get an _X/_Y/_Z/_W suffix.
type ComponentSplitter interface {
	Components() int
}

// LiteralRenderer lets a node control how an unconnected input is written
// into generated source. An empty result falls back to the input's value.
type LiteralRenderer interface {
	RenderLiteral(in *Input) string
}

// SourceProvider is implemented by nodes compiled from user-authored text.
type SourceProvider interface {
	Source() string
}

// NodeBase holds the identity and ports shared by every node kind.
type NodeBase struct {
	ID        string
	Type      string // registry name
	Name      string // display name
	LocalName string // user-assigned variable name, optional
	Visible   bool

	inputs   []*Input
	outputs  []*Output
	graph    *Graph
	disposed bool
}

// NewNodeBase returns a visible base with a fresh id.
func NewNodeBase(typ, name string) NodeBase {
	return NodeBase{
		ID:      uuid.NewString(),
		Type:    typ,
		Name:    name,
		Visible: true,
	}
}

// Base implements Node.
func (b *NodeBase) Base() *NodeBase { return b }

// AddInput declares a new input. Declaration order is argument order.
func (b *NodeBase) AddInput(key, name string, typ Schema, def tsl.Thunk) *Input {
	in := NewInput(key, name, typ, def)
	in.owner = b
	b.inputs = append(b.inputs, in)
	return in
}

// AddOutput declares a new output computed from sources.
func (b *NodeBase) AddOutput(key, name string, typ Schema, sources []*Input, fn ComputeFunc) *Output {
	out := NewOutput(key, name, typ, sources, fn)
	out.owner = b
	b.outputs = append(b.outputs, out)
	return out
}

// Inputs returns the inputs in declaration order.
func (b *NodeBase) Inputs() []*Input {
	out := make([]*Input, len(b.inputs))
	copy(out, b.inputs)
	return out
}

// Outputs returns the outputs in declaration order.
func (b *NodeBase) Outputs() []*Output {
	out := make([]*Output, len(b.outputs))
	copy(out, b.outputs)
	return out
}

// Input returns the input with the given key, or nil.
func (b *NodeBase) Input(key string) *Input {
	for _, in := range b.inputs {
		if in.Key == key {
			return in
		}
	}
	return nil
}

// Output returns the output with the given key, or nil.
func (b *NodeBase) Output(key string) *Output {
	for _, out := range b.outputs {
		if out.Key == key {
			return out
		}
	}
	return nil
}

// Graph returns the owning graph, or nil.
func (b *NodeBase) Graph() *Graph { return b.graph }

// Disposed reports whether Dispose has run.
func (b *NodeBase) Disposed() bool { return b.disposed }

// Connections returns every live connection touching this node.
func (b *NodeBase) Connections() []*Connection {
	var cs []*Connection
	for _, in := range b.inputs {
		if in.connection != nil {
			cs = append(cs, in.connection)
		}
	}
	for _, out := range b.outputs {
		cs = append(cs, out.connections...)
	}
	return cs
}

// Dispose severs every connection and removes the node from its graph.
// Outputs go first so downstream nodes revert to their defaults while this
// node is still intact. Calling Dispose twice is a no-op.
func (b *NodeBase) Dispose() {
	if b.disposed {
		return
	}
	for _, out := range b.outputs {
		out.Dispose()
	}
	for _, in := range b.inputs {
		in.Dispose()
	}
	b.disposed = true
	if b.graph != nil {
		b.graph.detach(b.ID)
		b.graph = nil
	}
}

// ----------------------------------------------------------------------------
// Code generation helpers
// ----------------------------------------------------------------------------

// VarName returns the variable a node's statement declares: the LocalName
// when set, otherwise node_ plus the last four characters of the id.
func VarName(n Node) string {
	b := n.Base()
	if b.LocalName != "" {
		return b.LocalName
	}
	id := b.ID
	if len(id) > 4 {
		id = id[len(id)-4:]
	}
	return "node_" + strings.ReplaceAll(id, "-", "")
}

// Literal renders an unconnected input as source text.
func Literal(n Node, in *Input) string {
	if lr, ok := n.(LiteralRenderer); ok {
		if s := lr.RenderLiteral(in); s != "" {
			return s
		}
	}
	v := in.Value()
	if v == nil {
		return "0"
	}
	return tsl.Format(v())
}

// ResolveArgs expands args to exactly one entry per input. It accepts a full
// positional list (one entry per input) or a list holding only the
// references for connected inputs, in order; missing slots are filled with
// each input's literal.
func ResolveArgs(n Node, args []string) []string {
	inputs := n.Base().inputs
	if len(args) >= len(inputs) {
		return args[:len(inputs)]
	}
	out := make([]string, len(inputs))
	j := 0
	for i, in := range inputs {
		if in.Connected() && j < len(args) {
			out[i] = args[j]
			j++
			continue
		}
		out[i] = Literal(n, in)
	}
	return out
}
