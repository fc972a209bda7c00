// Package codec converts graphs to and from their persisted form: a flat
// JSON array with one record per node. Loading is two-phase because a
// connected input only names the id of its upstream output, which may
// belong to a node that has not been built yet.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	"github.com/chazu/tslgraph/pkg/engine"
	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/tsl"
)

// CustomCompiler rebuilds nodes that were compiled from user source.
type CustomCompiler interface {
	NewCustomNode(source string) (graph.Node, error)
}

// Codec serializes and reconstructs graphs. Node kinds are resolved
// through a registry; CustomNode records are recompiled from their saved
// source.
type Codec struct {
	registry *graph.Registry
	compiler CustomCompiler
	logger   hclog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger used for soft failures.
func WithLogger(l hclog.Logger) Option {
	return func(c *Codec) { c.logger = l }
}

// WithCompiler overrides the compiler used for CustomNode records.
func WithCompiler(cc CustomCompiler) Option {
	return func(c *Codec) { c.compiler = cc }
}

// New returns a codec resolving node types through reg.
func New(reg *graph.Registry, opts ...Option) *Codec {
	c := &Codec{registry: reg, logger: hclog.NewNullLogger()}
	for _, o := range opts {
		o(c)
	}
	if c.compiler == nil {
		c.compiler = engine.NewEngine(engine.WithLogger(c.logger.Named("engine")))
	}
	return c
}

// ----------------------------------------------------------------------------
// Encoding
// ----------------------------------------------------------------------------

// Encode serializes every visible and hidden node of g with its position.
func (c *Codec) Encode(g *graph.Graph) ([]byte, error) {
	return json.MarshalIndent(c.Records(g), "", "  ")
}

// Records returns one record per node, visible nodes first.
func (c *Codec) Records(g *graph.Graph) []Record {
	nodes := g.AllNodes()
	recs := make([]Record, 0, len(nodes))
	for _, n := range nodes {
		pos, _ := g.Position(n.Base().ID)
		recs = append(recs, c.SerializeNode(n, pos))
	}
	return recs
}

// SerializeNode captures n. Values that cannot be captured are logged and
// left out of the record.
func (c *Codec) SerializeNode(n graph.Node, pos graph.Position) Record {
	b := n.Base()
	rec := Record{
		ID:        b.ID,
		Type:      b.Type,
		Inputs:    make(map[string]InputRecord, len(b.Inputs())),
		Outputs:   make(map[string]OutputRecord, len(b.Outputs())),
		Position:  pos,
		LocalName: b.LocalName,
		Hidden:    !b.Visible,
	}
	for _, in := range b.Inputs() {
		rec.Inputs[in.Key] = c.serializeInput(b, in)
	}

	src, isCustom := n.(graph.SourceProvider)
	for _, out := range b.Outputs() {
		or := OutputRecord{ID: out.ID}
		if isCustom {
			or.Value = src.Source()
		} else {
			name, _ := json.Marshal(out.Name)
			or.Value = string(name)
		}
		rec.Outputs[out.Key] = or
	}

	if st, ok := n.(graph.Stateful); ok {
		state, err := st.SerializeState()
		if err != nil {
			c.logger.Warn("node state not saved", "node", b.ID, "type", b.Type, "error", err)
		} else {
			rec.InternalValue = state
		}
	}
	return rec
}

func (c *Codec) serializeInput(b *graph.NodeBase, in *graph.Input) InputRecord {
	rec := InputRecord{ID: in.ID}
	if conn := in.Connection(); conn != nil {
		link, _ := json.Marshal(Link{FromID: conn.From.ID, FromName: conn.From.Name})
		text, _ := json.Marshal(string(link))
		rec.Value = Value{Type: Connected, Value: text}
		return rec
	}

	e, err := capture(in.Value())
	if err == nil {
		var raw []byte
		switch v := e.(type) {
		case tsl.Float:
			rec.Value.Type = Primitive
			raw, err = json.Marshal(float64(v))
		case tsl.Str:
			rec.Value.Type = Primitive
			raw, err = json.Marshal(string(v))
		default:
			rec.Value.Type = NodeValue
			raw, err = json.Marshal(tsl.Format(e))
		}
		if err == nil {
			rec.Value.Value = raw
			return rec
		}
	}
	c.logger.Warn("input value not saved", "node", b.ID, "input", in.Key, "error", err)
	if rec.Value.Type == "" {
		rec.Value.Type = NodeValue
	}
	return rec
}

// capture forces a thunk, turning a panic into an error.
func capture(th tsl.Thunk) (e tsl.Expr, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while reading value: %v", r)
		}
	}()
	if th == nil {
		return nil, errors.New("input has no value")
	}
	return th(), nil
}

// ----------------------------------------------------------------------------
// Decoding
// ----------------------------------------------------------------------------

type pendingLink struct {
	input  string
	output string
}

// Snapshot is the result of phase one: every node built, ports carrying
// their saved ids, and the connections still to be made.
type Snapshot struct {
	Placements []graph.Placement

	outputs  map[string]*graph.Output
	inputs   map[string]*graph.Input
	links    []pendingLink
	warnings *multierror.Error
	logger   hclog.Logger
}

// Nodes returns the reconstructed nodes in record order.
func (s *Snapshot) Nodes() []graph.Node {
	return lo.Map(s.Placements, func(p graph.Placement, _ int) graph.Node { return p.Node })
}

// Warnings returns every soft failure collected so far, or nil.
func (s *Snapshot) Warnings() error {
	return s.warnings.ErrorOrNil()
}

func (s *Snapshot) warn(msg string, args ...any) {
	s.logger.Warn(msg, args...)
	s.warnings = multierror.Append(s.warnings, fmt.Errorf("%s%s", msg, formatArgs(args)))
}

func formatArgs(args []any) string {
	var buf bytes.Buffer
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&buf, " %v=%v", args[i], args[i+1])
	}
	return buf.String()
}

// Decode runs phase one. Only malformed JSON is fatal; unknown types, bad
// values and bad state blobs are logged and collected as warnings.
func (c *Codec) Decode(data []byte) (*Snapshot, error) {
	s := &Snapshot{
		outputs: make(map[string]*graph.Output),
		inputs:  make(map[string]*graph.Input),
		logger:  c.logger,
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	for _, rec := range recs {
		n, err := c.instantiate(rec)
		if err != nil {
			s.warn("node skipped", "id", rec.ID, "type", rec.Type, "error", err)
			continue
		}
		s.restore(n, rec)
		s.Placements = append(s.Placements, graph.Placement{Node: n, Position: rec.Position})
	}
	c.logger.Debug("decoded graph", "nodes", len(s.Placements), "links", len(s.links))
	return s, nil
}

func (c *Codec) instantiate(rec Record) (graph.Node, error) {
	if rec.Type != engine.CustomNodeType {
		return c.registry.New(rec.Type)
	}
	for _, key := range sortedKeys(rec.Outputs) {
		if src := rec.Outputs[key].Value; src != "" {
			return c.compiler.NewCustomNode(src)
		}
	}
	return nil, errors.New("custom node record has no source")
}

// restore overwrites ids, applies primitive inputs and then private state,
// and indexes the ports for phase two.
func (s *Snapshot) restore(n graph.Node, rec Record) {
	b := n.Base()
	if rec.ID != "" {
		b.ID = rec.ID
	}
	b.LocalName = rec.LocalName
	b.Visible = !rec.Hidden

	for _, key := range sortedKeys(rec.Inputs) {
		ir := rec.Inputs[key]
		in := b.Input(key)
		if in == nil {
			s.warn("unknown input", "node", b.ID, "input", key)
			continue
		}
		if ir.ID != "" {
			in.ID = ir.ID
		}
		switch ir.Value.Type {
		case Connected:
			link, err := decodeLink(ir.Value.Value)
			if err != nil {
				s.warn("bad connection value", "node", b.ID, "input", key, "error", err)
				continue
			}
			s.inputs[in.ID] = in
			s.links = append(s.links, pendingLink{input: in.ID, output: link.FromID})
		case Primitive:
			e, err := decodePrimitive(ir.Value.Value)
			if err != nil {
				s.warn("bad primitive value", "node", b.ID, "input", key, "error", err)
				continue
			}
			if err := in.Set(tsl.Const(e)); err != nil {
				s.warn("primitive not applied", "node", b.ID, "input", key, "error", err)
			}
		}
	}

	for _, key := range sortedKeys(rec.Outputs) {
		out := b.Output(key)
		if out == nil {
			s.warn("unknown output", "node", b.ID, "output", key)
			continue
		}
		if id := rec.Outputs[key].ID; id != "" {
			out.ID = id
		}
		s.outputs[out.ID] = out
	}

	if rec.InternalValue == "" {
		return
	}
	st, ok := n.(graph.Stateful)
	if !ok {
		s.warn("state ignored on stateless node", "node", b.ID, "type", b.Type)
		return
	}
	if err := st.DeserializeState(rec.InternalValue); err != nil {
		s.warn("bad node state", "node", b.ID, "type", b.Type, "error", err)
	}
}

// Connect runs phase two, wiring every recorded connection whose endpoints
// both exist. It returns the accumulated warnings.
func (s *Snapshot) Connect() error {
	for _, l := range s.links {
		in, out := s.inputs[l.input], s.outputs[l.output]
		if in == nil || out == nil {
			s.warn("connection endpoint missing", "input", l.input, "output", l.output)
			continue
		}
		if _, err := out.Connect(in); err != nil {
			s.warn("connection not restored", "input", l.input, "output", l.output, "error", err)
		}
	}
	s.links = nil
	return s.Warnings()
}

// Load decodes data into g: phase one, insertion, then phase two. The
// graph is marked saved since it now matches data.
func (c *Codec) Load(g *graph.Graph, data []byte) (*Snapshot, error) {
	s, err := c.Decode(data)
	if err != nil {
		return nil, err
	}
	g.SetNodes(s.Placements...)
	if err := s.Connect(); err != nil {
		c.logger.Info("graph loaded with warnings", "count", len(s.warnings.Errors))
	}
	g.MarkSaved()
	return s, nil
}

func decodeLink(raw json.RawMessage) (Link, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		raw = json.RawMessage(text)
	}
	var l Link
	if err := json.Unmarshal(raw, &l); err != nil {
		return Link{}, err
	}
	if l.FromID == "" {
		return Link{}, errors.New("missing fromId")
	}
	return l, nil
}

func decodePrimitive(raw json.RawMessage) (tsl.Expr, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case float64:
		return tsl.Float(x), nil
	case string:
		return tsl.Str(x), nil
	}
	return nil, fmt.Errorf("unsupported primitive %s", raw)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
