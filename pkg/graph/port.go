package graph

import (
	"slices"

	"github.com/google/uuid"

	"github.com/chazu/tslgraph/pkg/tsl"
)

// Schema documents the kind of value a port carries. It is informational
// only; any output may be wired to any input.
type Schema string

const (
	SchemaAny   Schema = "any"
	SchemaFloat Schema = "float"
	SchemaVec2  Schema = "vec2"
	SchemaVec3  Schema = "vec3"
	SchemaVec4  Schema = "vec4"
	SchemaColor Schema = "color"
)

// ComputeFunc combines the current values of an output's source inputs into
// the output's value.
type ComputeFunc func(in []tsl.Thunk) tsl.Thunk

// Observer receives port values.
type Observer func(tsl.Thunk)

type subscribers struct {
	next int
	fns  map[int]Observer
	keys []int
}

func (s *subscribers) add(fn Observer) func() {
	if s.fns == nil {
		s.fns = make(map[int]Observer)
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	s.keys = append(s.keys, id)
	return func() {
		delete(s.fns, id)
		s.keys = slices.DeleteFunc(s.keys, func(k int) bool { return k == id })
	}
}

func (s *subscribers) emit(v tsl.Thunk) {
	for _, k := range slices.Clone(s.keys) {
		if fn, ok := s.fns[k]; ok {
			fn(v)
		}
	}
}

func (s *subscribers) clear() {
	s.fns = nil
	s.keys = nil
}

// ----------------------------------------------------------------------------
// Input
// ----------------------------------------------------------------------------

// Input is a named value slot on a node. Its active value is the upstream
// output's value while connected, and its local value otherwise.
type Input struct {
	ID   string
	Key  string
	Name string
	Type Schema

	owner      *NodeBase
	def        tsl.Thunk
	local      tsl.Thunk
	connection *Connection
	watchers   []*Output
	subs       subscribers
	disposed   bool
}

// NewInput creates a detached input whose value starts at def.
func NewInput(key, name string, typ Schema, def tsl.Thunk) *Input {
	if def == nil {
		def = tsl.Num(0)
	}
	return &Input{
		ID:    uuid.NewString(),
		Key:   key,
		Name:  name,
		Type:  typ,
		def:   def,
		local: def,
	}
}

// Node returns the owning node, or nil for a detached input.
func (in *Input) Node() *NodeBase { return in.owner }

// Default returns the default value thunk.
func (in *Input) Default() tsl.Thunk { return in.def }

// Value returns the currently active value.
func (in *Input) Value() tsl.Thunk {
	if in.connection != nil {
		return in.connection.From.Value()
	}
	return in.local
}

// Connected reports whether the input has a live incoming connection.
func (in *Input) Connected() bool { return in.connection != nil }

// Connection returns the incoming connection, or nil.
func (in *Input) Connection() *Connection { return in.connection }

// Set writes a local value and pushes it downstream. Writing to a connected
// input fails with ErrInputConnected.
func (in *Input) Set(v tsl.Thunk) error {
	if in.disposed {
		return ErrDisposed
	}
	if in.connection != nil {
		return ErrInputConnected
	}
	if v == nil {
		v = in.def
	}
	in.local = v
	in.propagate()
	return nil
}

// Reset restores the default value on an unconnected input.
func (in *Input) Reset() error {
	return in.Set(in.def)
}

// Subscribe registers fn and immediately delivers the active value.
// The returned function cancels the subscription.
func (in *Input) Subscribe(fn Observer) func() {
	cancel := in.subs.add(fn)
	fn(in.Value())
	return cancel
}

// propagate pushes the active value to subscribers and recomputes every
// output that reads this input.
func (in *Input) propagate() {
	v := in.Value()
	in.subs.emit(v)
	for _, out := range slices.Clone(in.watchers) {
		out.recompute()
	}
}

// Dispose severs the incoming connection and drops subscribers.
func (in *Input) Dispose() {
	if in.disposed {
		return
	}
	if in.connection != nil {
		in.connection.Dispose()
	}
	in.subs.clear()
	in.disposed = true
}

// ----------------------------------------------------------------------------
// Output
// ----------------------------------------------------------------------------

// Output is a computed value on a node. It caches its latest value and
// replays it to new subscribers.
type Output struct {
	ID   string
	Key  string
	Name string
	Type Schema

	owner       *NodeBase
	sources     []*Input
	compute     ComputeFunc
	value       tsl.Thunk
	connections []*Connection
	subs        subscribers
	disposed    bool
}

// NewOutput creates a detached output over sources and computes its first
// value immediately.
func NewOutput(key, name string, typ Schema, sources []*Input, fn ComputeFunc) *Output {
	out := &Output{
		ID:   uuid.NewString(),
		Key:  key,
		Name: name,
		Type: typ,
	}
	out.UpdateCompute(sources, fn)
	return out
}

// Node returns the owning node, or nil for a detached output.
func (out *Output) Node() *NodeBase { return out.owner }

// Value returns the latest computed value.
func (out *Output) Value() tsl.Thunk { return out.value }

// Sources returns the inputs this output reads.
func (out *Output) Sources() []*Input { return slices.Clone(out.sources) }

// Connections returns the outgoing connections.
func (out *Output) Connections() []*Connection { return slices.Clone(out.connections) }

// Connected reports whether the output feeds at least one input.
func (out *Output) Connected() bool { return len(out.connections) > 0 }

// Subscribe registers fn and immediately delivers the cached value.
func (out *Output) Subscribe(fn Observer) func() {
	cancel := out.subs.add(fn)
	fn(out.value)
	return cancel
}

// UpdateCompute detaches from the current sources, attaches to the new ones
// and recomputes. Used when a node's arity changes at runtime.
func (out *Output) UpdateCompute(sources []*Input, fn ComputeFunc) {
	for _, in := range out.sources {
		in.watchers = slices.DeleteFunc(in.watchers, func(o *Output) bool { return o == out })
	}
	out.sources = slices.Clone(sources)
	out.compute = fn
	for _, in := range out.sources {
		in.watchers = append(in.watchers, out)
	}
	out.recompute()
}

// recompute evaluates the compute function over all sources and pushes the
// result to subscribers and connected inputs.
func (out *Output) recompute() {
	if out.disposed || out.compute == nil {
		return
	}
	vals := make([]tsl.Thunk, len(out.sources))
	for i, in := range out.sources {
		vals[i] = in.Value()
	}
	out.value = out.compute(vals)
	out.subs.emit(out.value)
	for _, c := range slices.Clone(out.connections) {
		c.To.propagate()
	}
}

// Connect wires out into in. The input must not already be connected and
// the new edge must not close a cycle.
func (out *Output) Connect(in *Input) (*Connection, error) {
	if out.disposed || in.disposed {
		return nil, ErrDisposed
	}
	if in.connection != nil {
		return nil, ErrInputConnected
	}
	if reaches(in, out) {
		return nil, ErrCycle
	}
	c := newConnection(out, in)
	out.connections = append(out.connections, c)
	in.connection = c
	in.propagate()
	return c, nil
}

// reaches reports whether a value written to in can flow back into target.
func reaches(in *Input, target *Output) bool {
	seen := map[*Output]bool{}
	stack := slices.Clone(in.watchers)
	for len(stack) > 0 {
		o := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if o == target {
			return true
		}
		if seen[o] {
			continue
		}
		seen[o] = true
		for _, c := range o.connections {
			stack = append(stack, c.To.watchers...)
		}
	}
	return false
}

// Dispose severs every outgoing connection, detaches from the sources and
// drops subscribers.
func (out *Output) Dispose() {
	if out.disposed {
		return
	}
	for _, c := range slices.Clone(out.connections) {
		c.Dispose()
	}
	out.connections = nil
	for _, in := range out.sources {
		in.watchers = slices.DeleteFunc(in.watchers, func(o *Output) bool { return o == out })
	}
	out.subs.clear()
	out.disposed = true
}
