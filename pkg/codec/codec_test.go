package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-multierror"

	"github.com/chazu/tslgraph/pkg/engine"
	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/nodes"
	"github.com/chazu/tslgraph/pkg/tsl"
)

type fixture struct {
	g      *graph.Graph
	f      graph.Node
	add    *nodes.Operator
	mul    *nodes.Operator
	color  *nodes.Color
	custom graph.Node
	sink   graph.Node
	hidden graph.Node
}

func named(n graph.Node, name string) graph.Node {
	n.Base().LocalName = name
	return n
}

func connect(t *testing.T, from graph.Node, out string, to graph.Node, in string) {
	t.Helper()
	if _, err := from.Base().Output(out).Connect(to.Base().Input(in)); err != nil {
		t.Fatalf("connect %s.%s -> %s.%s: %v", from.Base().LocalName, out, to.Base().LocalName, in, err)
	}
}

// newFixture builds a diamond: f feeds add and mul, add feeds mul, mul
// feeds the material. It also holds stateful, custom and hidden nodes.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{g: graph.New()}
	fx.f = named(nodes.MustNew("Float"), "f")
	fx.add = named(nodes.MustNew("Add"), "add").(*nodes.Operator)
	fx.mul = named(nodes.MustNew("Mul"), "mul").(*nodes.Operator)
	fx.color = named(nodes.MustNew("Color"), "tint").(*nodes.Color)
	fx.sink = named(nodes.MustNew("MeshStandardMaterial"), "material")
	fx.hidden = named(nodes.MustNew("Vec2"), "stash")

	custom, err := engine.NewEngine().NewCustomNode(`Fn(([a, b]) => a.add(b))`)
	if err != nil {
		t.Fatal(err)
	}
	fx.custom = named(custom, "custom")

	if err := fx.f.Base().Input("a").Set(tsl.Num(2)); err != nil {
		t.Fatal(err)
	}
	if err := fx.add.SetValue("b", nodes.Vec2Value(3, 4)); err != nil {
		t.Fatal(err)
	}
	fx.color.SetHex(0x336699)
	if err := fx.hidden.Base().Input("b").Set(tsl.Num(7)); err != nil {
		t.Fatal(err)
	}
	fx.hidden.Base().Visible = false

	connect(t, fx.f, "value", fx.add, "a")
	connect(t, fx.f, "value", fx.mul, "a")
	connect(t, fx.add, "output", fx.mul, "b")
	connect(t, fx.mul, "output", fx.sink, "colorNode")
	connect(t, fx.f, "value", fx.custom, "b")

	fx.g.SetNodes(
		graph.Placement{Node: fx.f, Position: graph.Position{X: 10, Y: 20}},
		graph.Placement{Node: fx.add, Position: graph.Position{X: 200, Y: 20}},
		graph.Placement{Node: fx.mul, Position: graph.Position{X: 400, Y: 20}},
		graph.Placement{Node: fx.color, Position: graph.Position{X: 10, Y: 300}},
		graph.Placement{Node: fx.custom, Position: graph.Position{X: 200, Y: 300}},
		graph.Placement{Node: fx.sink, Position: graph.Position{X: 600, Y: 20}},
		graph.Placement{Node: fx.hidden, Position: graph.Position{X: -5, Y: -5}},
	)
	return fx
}

// topology lists connections by variable name and port key.
func topology(g *graph.Graph) []string {
	var out []string
	for _, c := range g.Connections() {
		out = append(out, fmt.Sprintf("%s.%s -> %s.%s",
			c.From.Node().LocalName, c.From.Key, c.To.Node().LocalName, c.To.Key))
	}
	sort.Strings(out)
	return out
}

func byName(t *testing.T, g *graph.Graph, name string) graph.Node {
	t.Helper()
	for _, n := range g.AllNodes() {
		if n.Base().LocalName == name {
			return n
		}
	}
	t.Fatalf("node %q not found", name)
	return nil
}

func TestRoundTrip(t *testing.T) {
	fx := newFixture(t)
	c := New(nodes.Registry())

	data, err := c.Encode(fx.g)
	if err != nil {
		t.Fatal(err)
	}

	g := graph.New()
	snap, err := c.Load(g, data)
	if err != nil {
		t.Fatal(err)
	}
	if w := snap.Warnings(); w != nil {
		t.Fatalf("unexpected warnings: %v", w)
	}

	if g.Len() != fx.g.Len() {
		t.Errorf("node count = %d, want %d", g.Len(), fx.g.Len())
	}
	if diff := cmp.Diff(topology(fx.g), topology(g)); diff != "" {
		t.Errorf("topology mismatch (-want +got):\n%s", diff)
	}
	if g.Dirty() {
		t.Error("freshly loaded graph should not be dirty")
	}

	// Primitive and private values.
	f := byName(t, g, "f")
	if got := tsl.Format(f.Base().Input("a").Value()()); got != "2" {
		t.Errorf("f.a = %s, want 2", got)
	}
	add := byName(t, g, "add").(*nodes.Operator)
	v, ok := add.Value("b")
	if !ok {
		t.Fatal("add.b should be unconnected")
	}
	if diff := cmp.Diff(nodes.Vec2Value(3, 4), v); diff != "" {
		t.Errorf("add.b mismatch (-want +got):\n%s", diff)
	}
	if got := byName(t, g, "tint").(*nodes.Color).Hex(); got != 0x336699 {
		t.Errorf("color = %06x", got)
	}

	// Dataflow is live again after phase two.
	sink := byName(t, g, "material")
	want := tsl.Format(fx.sink.Base().Output("value").Value()())
	if got := tsl.Format(sink.Base().Output("value").Value()()); got != want {
		t.Errorf("sink = %s, want %s", got, want)
	}

	// Custom node recompiled from its saved source.
	custom := byName(t, g, "custom")
	if custom.Base().Type != engine.CustomNodeType {
		t.Errorf("custom type = %s", custom.Base().Type)
	}
	if got := tsl.Format(custom.Base().Output("value").Value()()); got != "add(0, float(2))" {
		t.Errorf("custom output = %s", got)
	}

	// Hidden node stays hidden, with its position.
	hidden := g.HiddenNodes()
	if len(hidden) != 1 || hidden[0].Base().LocalName != "stash" {
		t.Fatalf("hidden = %v", hidden)
	}
	if pos, _ := g.Position(hidden[0].Base().ID); pos != (graph.Position{X: -5, Y: -5}) {
		t.Errorf("hidden position = %+v", pos)
	}
	if pos, _ := g.Position(f.Base().ID); pos != (graph.Position{X: 10, Y: 20}) {
		t.Errorf("f position = %+v", pos)
	}

	// Saving again reproduces the same document.
	again, err := c.Encode(g)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Errorf("second encode differs:\n%s\n---\n%s", data, again)
	}
}

func TestSerializeNodeRecord(t *testing.T) {
	fx := newFixture(t)
	c := New(nodes.Registry())

	rec := c.SerializeNode(fx.add, graph.Position{X: 1, Y: 2})
	if rec.Type != "Add" || rec.ID != fx.add.ID || rec.LocalName != "add" || rec.Hidden {
		t.Errorf("header = %+v", rec)
	}

	a := rec.Inputs["a"]
	if a.ID != fx.add.Input("a").ID || a.Value.Type != Connected {
		t.Fatalf("input a = %+v", a)
	}
	var text string
	if err := json.Unmarshal(a.Value.Value, &text); err != nil {
		t.Fatalf("connected value should be JSON text: %v", err)
	}
	var link Link
	if err := json.Unmarshal([]byte(text), &link); err != nil {
		t.Fatal(err)
	}
	if link.FromID != fx.f.Base().Output("value").ID || link.FromName != "Value" {
		t.Errorf("link = %+v", link)
	}

	if b := rec.Inputs["b"]; b.Value.Type != NodeValue || string(b.Value.Value) != `"vec2(3, 4)"` {
		t.Errorf("input b = %s %s", b.Value.Type, b.Value.Value)
	}
	if rec.InternalValue != `{"b":{"type":"VEC2","value":{"x":3,"y":4}}}` {
		t.Errorf("internal value = %s", rec.InternalValue)
	}
	if out := rec.Outputs["output"]; out.ID != fx.add.Output("output").ID || out.Value != `"Output"` {
		t.Errorf("output = %+v", out)
	}

	frec := c.SerializeNode(fx.f, graph.Position{})
	if a := frec.Inputs["a"]; a.Value.Type != Primitive || string(a.Value.Value) != "2" {
		t.Errorf("primitive = %s %s", a.Value.Type, a.Value.Value)
	}

	crec := c.SerializeNode(fx.custom, graph.Position{})
	if got := crec.Outputs["value"].Value; got != `Fn(([a, b]) => a.add(b))` {
		t.Errorf("custom output value = %q", got)
	}

	hrec := c.SerializeNode(fx.hidden, graph.Position{})
	if !hrec.Hidden {
		t.Error("hidden flag not recorded")
	}
}

func TestDecodeSoftFailures(t *testing.T) {
	data := `[
	  {"id": "n1", "type": "Float", "localName": "ok",
	   "inputs": {"a": {"id": "i1", "value": {"type": "PRIMITIVE", "value": 5}}},
	   "outputs": {"value": {"id": "o1", "value": "\"Value\""}},
	   "position": {"x": 0, "y": 0}},
	  {"id": "n2", "type": "NoSuchNode", "inputs": {}, "outputs": {}, "position": {"x": 0, "y": 0}},
	  {"id": "n3", "type": "Add", "localName": "sum",
	   "inputs": {
	     "a": {"id": "i3", "value": {"type": "CONNECTED", "value": "{\"fromId\":\"o1\",\"fromName\":\"Value\"}"}},
	     "b": {"id": "i4", "value": {"type": "CONNECTED", "value": "{\"fromId\":\"missing\",\"fromName\":\"Value\"}"}}
	   },
	   "outputs": {"output": {"id": "o3", "value": "\"Output\""}},
	   "internalValue": "not json",
	   "position": {"x": 0, "y": 0}}
	]`

	c := New(nodes.Registry())
	g := graph.New()
	snap, err := c.Load(g, []byte(data))
	if err != nil {
		t.Fatalf("soft failures must not be fatal: %v", err)
	}
	if g.Len() != 2 {
		t.Errorf("nodes = %d, want 2", g.Len())
	}

	var merr *multierror.Error
	if !errors.As(snap.Warnings(), &merr) || len(merr.Errors) != 3 {
		t.Fatalf("warnings = %v, want unknown type, bad state and missing endpoint", snap.Warnings())
	}
	for _, want := range []string{"NoSuchNode", "bad node state", "endpoint missing"} {
		if !strings.Contains(snap.Warnings().Error(), want) {
			t.Errorf("warnings do not mention %q", want)
		}
	}

	sum := byName(t, g, "sum")
	if got := tsl.Format(sum.Base().Output("output").Value()()); got != "add(float(5), 0)" {
		t.Errorf("sum = %s", got)
	}
	if sum.Base().Input("a").ID != "i3" {
		t.Error("input id not restored")
	}
}

func TestDecodeFatal(t *testing.T) {
	c := New(nodes.Registry())
	if _, err := c.Decode([]byte(`{"not": "an array"`)); err == nil {
		t.Error("expected malformed JSON to be fatal")
	}

	snap, err := c.Decode([]byte("  \n"))
	if err != nil {
		t.Fatalf("empty input: %v", err)
	}
	if len(snap.Nodes()) != 0 {
		t.Error("empty input should decode to no nodes")
	}
}

type failingCompiler struct{}

func (failingCompiler) NewCustomNode(string) (graph.Node, error) {
	return nil, errors.New("compiler offline")
}

func TestDecodeCustomNodeCompileFailure(t *testing.T) {
	fx := newFixture(t)
	data, err := New(nodes.Registry()).Encode(fx.g)
	if err != nil {
		t.Fatal(err)
	}

	snap, err := New(nodes.Registry(), WithCompiler(failingCompiler{})).Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(snap.Nodes()); got != fx.g.Len()-1 {
		t.Errorf("nodes = %d, want %d", got, fx.g.Len()-1)
	}
	if err := snap.Connect(); err == nil || !strings.Contains(err.Error(), "compiler offline") {
		t.Errorf("warnings = %v", err)
	}
}
