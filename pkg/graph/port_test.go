package graph

import (
	"errors"
	"testing"

	"github.com/chazu/tslgraph/pkg/tsl"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// testNode passes a single input straight through, or adds several.
type testNode struct {
	NodeBase
}

func (n *testNode) Code(args []string) (Code, error) {
	return Code{Code: "const " + VarName(n) + " = add(" + join(ResolveArgs(n, args)) + ")", Dependencies: []string{"add"}}, nil
}

func join(args []string) string {
	s := ""
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += a
	}
	return s
}

func newTestNode(name string, keys ...string) *testNode {
	n := &testNode{NodeBase: NewNodeBase("Test", name)}
	var ins []*Input
	for _, k := range keys {
		ins = append(ins, n.AddInput(k, k, SchemaAny, tsl.Num(0)))
	}
	n.AddOutput("value", "Value", SchemaAny, ins, combine)
	return n
}

func combine(vals []tsl.Thunk) tsl.Thunk {
	if len(vals) == 1 {
		return vals[0]
	}
	args := make([]tsl.Expr, len(vals))
	for i, v := range vals {
		args[i] = v()
	}
	return tsl.Const(tsl.Fn("add", args...))
}

func valueOf(th tsl.Thunk) string {
	if th == nil {
		return "<nil>"
	}
	return tsl.Format(th())
}

// ---------------------------------------------------------------------------
// Propagation
// ---------------------------------------------------------------------------

func TestConnectPropagatesImmediately(t *testing.T) {
	src := newTestNode("src", "a")
	dst := newTestNode("dst", "a")

	if err := src.Input("a").Set(tsl.Num(3)); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Output("value").Connect(dst.Input("a")); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if got := valueOf(dst.Input("a").Value()); got != "3" {
		t.Errorf("dst input = %s, want 3", got)
	}
	if got := valueOf(dst.Output("value").Value()); got != "3" {
		t.Errorf("dst output = %s, want 3", got)
	}

	// Upstream changes keep flowing.
	if err := src.Input("a").Set(tsl.Num(5)); err != nil {
		t.Fatal(err)
	}
	if got := valueOf(dst.Output("value").Value()); got != "5" {
		t.Errorf("dst output after update = %s, want 5", got)
	}
}

func TestRecomputeUsesAllInputs(t *testing.T) {
	n := newTestNode("n", "a", "b")
	_ = n.Input("a").Set(tsl.Num(1))
	_ = n.Input("b").Set(tsl.Num(2))
	if got := valueOf(n.Output("value").Value()); got != "add(1, 2)" {
		t.Errorf("output = %s, want add(1, 2)", got)
	}
}

func TestSubscribeReplaysLatest(t *testing.T) {
	n := newTestNode("n", "a")
	_ = n.Input("a").Set(tsl.Num(7))

	var seen []string
	cancel := n.Output("value").Subscribe(func(v tsl.Thunk) { seen = append(seen, valueOf(v)) })
	if len(seen) != 1 || seen[0] != "7" {
		t.Fatalf("subscribe should replay the cached value, got %v", seen)
	}

	_ = n.Input("a").Set(tsl.Num(8))
	cancel()
	_ = n.Input("a").Set(tsl.Num(9))

	if len(seen) != 2 || seen[1] != "8" {
		t.Errorf("seen = %v, want [7 8]", seen)
	}
}

func TestDisposeConnectionRevertsDefault(t *testing.T) {
	src := newTestNode("src", "a")
	dst := newTestNode("dst", "a")
	_ = src.Input("a").Set(tsl.Num(4))

	c, err := src.Output("value").Connect(dst.Input("a"))
	if err != nil {
		t.Fatal(err)
	}

	var last string
	dst.Input("a").Subscribe(func(v tsl.Thunk) { last = valueOf(v) })

	c.Dispose()
	if last != "0" {
		t.Errorf("subscriber saw %s after dispose, want default 0", last)
	}
	if got := valueOf(dst.Input("a").Value()); got != "0" {
		t.Errorf("input value = %s, want 0", got)
	}
	if dst.Input("a").Connected() || src.Output("value").Connected() {
		t.Error("connection should be removed from both endpoints")
	}

	// Idempotent.
	c.Dispose()
}

// ---------------------------------------------------------------------------
// Arity and cycles
// ---------------------------------------------------------------------------

func TestConnectRejectsSecondConnection(t *testing.T) {
	a := newTestNode("a", "in")
	b := newTestNode("b", "in")
	dst := newTestNode("dst", "in")

	if _, err := a.Output("value").Connect(dst.Input("in")); err != nil {
		t.Fatal(err)
	}
	_, err := b.Output("value").Connect(dst.Input("in"))
	if !errors.Is(err, ErrInputConnected) {
		t.Fatalf("second connect error = %v, want ErrInputConnected", err)
	}
	if err := dst.Input("in").Set(tsl.Num(1)); !errors.Is(err, ErrInputConnected) {
		t.Errorf("Set on connected input error = %v, want ErrInputConnected", err)
	}

	c, err := Relink(b.Output("value"), dst.Input("in"))
	if err != nil {
		t.Fatalf("Relink: %v", err)
	}
	if c.From != b.Output("value") {
		t.Error("Relink should replace the upstream")
	}
	if a.Output("value").Connected() {
		t.Error("old connection should be disposed")
	}
}

func TestConnectRejectsCycle(t *testing.T) {
	a := newTestNode("a", "in")
	b := newTestNode("b", "in")
	c := newTestNode("c", "in")

	if _, err := a.Output("value").Connect(b.Input("in")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Output("value").Connect(c.Input("in")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		from *Output
		to   *Input
	}{
		{"back edge", c.Output("value"), a.Input("in")},
		{"self loop", a.Output("value"), a.Input("in")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.from.Connect(tt.to); !errors.Is(err, ErrCycle) {
				t.Errorf("error = %v, want ErrCycle", err)
			}
		})
	}
}

func TestUpdateComputeChangesArity(t *testing.T) {
	n := newTestNode("n", "a")
	b := n.AddInput("b", "B", SchemaAny, tsl.Num(2))
	out := n.Output("value")

	out.UpdateCompute([]*Input{n.Input("a"), b}, combine)
	if got := valueOf(out.Value()); got != "add(0, 2)" {
		t.Fatalf("after UpdateCompute = %s", got)
	}

	_ = b.Set(tsl.Num(3))
	if got := valueOf(out.Value()); got != "add(0, 3)" {
		t.Errorf("new source should drive the output, got %s", got)
	}
}

// ---------------------------------------------------------------------------
// Node disposal
// ---------------------------------------------------------------------------

func TestNodeDispose(t *testing.T) {
	g := New()
	up := newTestNode("up", "a")
	mid := newTestNode("mid", "a")
	down := newTestNode("down", "a")
	g.SetNodes(Placement{Node: up}, Placement{Node: mid}, Placement{Node: down})

	_ = up.Input("a").Set(tsl.Num(6))
	if _, err := up.Output("value").Connect(mid.Input("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := mid.Output("value").Connect(down.Input("a")); err != nil {
		t.Fatal(err)
	}

	mid.Dispose()

	if got := valueOf(down.Input("a").Value()); got != "0" {
		t.Errorf("downstream input = %s, want default 0", got)
	}
	if up.Output("value").Connected() {
		t.Error("upstream output should have no connections left")
	}
	if _, ok := g.Node(mid.ID); ok {
		t.Error("disposed node should be removed from the graph")
	}
	if len(g.Connections()) != 0 {
		t.Errorf("graph connections = %d, want 0", len(g.Connections()))
	}

	mid.Dispose() // idempotent
	if _, err := mid.Output("value").Connect(down.Input("a")); !errors.Is(err, ErrDisposed) {
		t.Errorf("connect from disposed node error = %v, want ErrDisposed", err)
	}
}

func TestVarName(t *testing.T) {
	n := newTestNode("n")
	n.ID = "0c9d1d2e-8a51-4c4e-9d0b-3f2a1b7cd3e9"
	if got := VarName(n); got != "node_d3e9" {
		t.Errorf("VarName = %q, want node_d3e9", got)
	}
	n.LocalName = "radial"
	if got := VarName(n); got != "radial" {
		t.Errorf("VarName with local name = %q", got)
	}
}

func TestResolveArgs(t *testing.T) {
	src := newTestNode("src", "a")
	n := newTestNode("n", "a", "b", "c")
	_ = n.Input("a").Set(tsl.Num(1))
	_ = n.Input("c").Set(tsl.Num(3))
	if _, err := src.Output("value").Connect(n.Input("b")); err != nil {
		t.Fatal(err)
	}

	connectedOnly := ResolveArgs(n, []string{"up"})
	full := ResolveArgs(n, []string{"1", "up", "3"})
	want := []string{"1", "up", "3"}
	for i := range want {
		if connectedOnly[i] != want[i] || full[i] != want[i] {
			t.Fatalf("ResolveArgs: connected-only %v, full %v, want %v", connectedOnly, full, want)
		}
	}
}
