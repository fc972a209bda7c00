package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/tslgraph/pkg/engine"
	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/nodes"
	"github.com/chazu/tslgraph/pkg/tsl"
)

func node(t *testing.T, typ, name string) graph.Node {
	t.Helper()
	n, err := nodes.New(typ)
	if err != nil {
		t.Fatal(err)
	}
	n.Base().LocalName = name
	return n
}

func wire(t *testing.T, from graph.Node, out string, to graph.Node, in string) {
	t.Helper()
	if _, err := from.Base().Output(out).Connect(to.Base().Input(in)); err != nil {
		t.Fatalf("connect %s -> %s.%s: %v", graph.VarName(from), graph.VarName(to), in, err)
	}
}

func add(g *graph.Graph, ns ...graph.Node) {
	for _, n := range ns {
		g.SetNodes(graph.Placement{Node: n})
	}
}

func float(t *testing.T, name string, v float64) graph.Node {
	t.Helper()
	f := node(t, "Float", name)
	if err := f.Base().Input("a").Set(tsl.Num(v)); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestCompileChainOrder(t *testing.T) {
	g := graph.New()
	f := float(t, "f", 2)
	s := node(t, "Sin", "s")
	m := node(t, "MeshStandardMaterial", "material")
	// Inserted sink first so container order cannot explain the result.
	add(g, m, s, f)
	wire(t, f, "value", s, "a")
	wire(t, s, "output", m, "colorNode")

	res, err := Compile(g, m)
	if err != nil {
		t.Fatal(err)
	}
	want := `import { vec4, sin, vec2, vec3, float, Fn } from "three/tsl";
Fn(() => {
  const f = float(2)
  const s = sin(f)
  return s
})()`
	if res.Source != want {
		t.Errorf("source mismatch:\n%s\nwant:\n%s", res.Source, want)
	}
	if diff := cmp.Diff([]string{"const f = float(2)", "const s = sin(f)", "return s"}, res.Statements); diff != "" {
		t.Errorf("statements mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileDiamondDeclaresSharedNodeOnce(t *testing.T) {
	g := graph.New()
	f := float(t, "f", 2)
	sum := node(t, "Add", "sum")
	prod := node(t, "Mul", "prod")
	m := node(t, "MeshStandardMaterial", "material")
	add(g, f, sum, prod, m)
	wire(t, f, "value", sum, "a")
	wire(t, f, "value", prod, "a")
	wire(t, sum, "output", prod, "b")
	wire(t, prod, "output", m, "colorNode")

	res, err := Compile(g, m)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"const f = float(2)",
		"const sum = add(f, 0)",
		"const prod = mul(f, sum)",
		"return prod",
	}
	if diff := cmp.Diff(want, res.Statements); diff != "" {
		t.Errorf("statements mismatch (-want +got):\n%s", diff)
	}
	if got := strings.Count(res.Source, "const f ="); got != 1 {
		t.Errorf("shared node declared %d times", got)
	}
	if res.Tree.Len() != 5 {
		t.Errorf("tree has %d entries, want 5 (f reached twice)", res.Tree.Len())
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	g := graph.New()
	f := node(t, "Float", "")
	s := node(t, "Cos", "")
	m := node(t, "MeshStandardMaterial", "")
	add(g, f, s, m)
	wire(t, f, "value", s, "a")
	wire(t, s, "output", m, "colorNode")

	first, err := Compile(g, m)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Compile(g, m)
		if err != nil {
			t.Fatal(err)
		}
		if again.Source != first.Source {
			t.Fatalf("compile %d differs:\n%s\n---\n%s", i, first.Source, again.Source)
		}
	}
	if !strings.Contains(first.Source, "const "+graph.VarName(f)+" = float(0)") {
		t.Errorf("id-suffixed name missing:\n%s", first.Source)
	}
}

func TestCompileSplitSuffix(t *testing.T) {
	g := graph.New()
	sp := node(t, "SplitVec3", "sp")
	v := node(t, "Vec2", "v")
	m := node(t, "MeshStandardMaterial", "material")
	add(g, sp, v, m)
	wire(t, sp, "y", v, "b")
	wire(t, v, "value", m, "colorNode")

	res, err := Compile(g, m)
	if err != nil {
		t.Fatal(err)
	}
	if !slicesContain(res.Statements, "const v = vec2(0, sp_Y)") {
		t.Errorf("statements = %q", res.Statements)
	}
	if !strings.Contains(res.Source, "  const sp_X = vec3(1, 0, 1).x\n  const sp_Y = vec3(1, 0, 1).y\n") {
		t.Errorf("multi-line statement not indented:\n%s", res.Source)
	}
}

func TestCompileSplitIndexOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		split string
		out   string
		sink  string
		input string
	}{
		{"fifth slot", "SplitVec4", "x", "Remap", "e"},
		{"beyond components", "SplitVec2", "x", "Vec3", "c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph.New()
			sp := node(t, tt.split, "sp")
			dst := node(t, tt.sink, "dst")
			add(g, sp, dst)
			wire(t, sp, tt.out, dst, tt.input)

			_, err := Compile(g, dst)
			if !errors.Is(err, ErrSplitIndex) {
				t.Errorf("err = %v, want ErrSplitIndex", err)
			}
		})
	}
}

func TestCompileTraceInput(t *testing.T) {
	g := graph.New()
	f := float(t, "f", 1)
	p := node(t, "positionWorld", "p")
	m := node(t, "MeshStandardMaterial", "material")
	add(g, f, p, m)
	wire(t, f, "value", m, "colorNode")
	wire(t, p, "value", m, "positionNode")

	all, err := Compile(g, m)
	if err != nil {
		t.Fatal(err)
	}
	if !slicesContain(all.Statements, "const p = positionWorld") {
		t.Errorf("untraced compile should include every input: %q", all.Statements)
	}

	traced, err := Compile(g, m, WithTraceInput("colorNode"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"const f = float(1)", "return f"}, traced.Statements); diff != "" {
		t.Errorf("traced statements mismatch (-want +got):\n%s", diff)
	}
	if slicesContain(traced.Imports, "positionWorld") {
		t.Errorf("imports = %q", traced.Imports)
	}

	if _, err := Compile(g, m, WithTraceInput("emissiveNode")); err == nil {
		t.Error("expected error for unknown trace input")
	}
}

func TestCompileSkipsDanglingConnection(t *testing.T) {
	g := graph.New()
	f := float(t, "f", 3) // connected but never added to g
	s := node(t, "Sin", "s")
	add(g, s)
	wire(t, f, "value", s, "a")

	res, err := Compile(g, s)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"const s = sin(float(3))"}, res.Statements); diff != "" {
		t.Errorf("statements mismatch (-want +got):\n%s", diff)
	}
	if !slicesContain(res.Imports, "float") {
		t.Errorf("inlined literal should be imported: %q", res.Imports)
	}
}

func TestCompileImportsInlinedLiterals(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) (*graph.Graph, graph.Node)
		opts  []Option
		stmt  string
	}{
		{
			name: "untraced input",
			build: func(t *testing.T) (*graph.Graph, graph.Node) {
				g := graph.New()
				s := node(t, "Sin", "s")
				c := node(t, "Cos", "c")
				v := node(t, "Vec2", "v")
				add(g, s, c, v)
				wire(t, s, "output", v, "a")
				wire(t, c, "output", v, "b")
				return g, v
			},
			opts: []Option{WithTraceInput("a")},
			stmt: "const v = vec2(s, cos(0))",
		},
		{
			name: "upstream outside graph",
			build: func(t *testing.T) (*graph.Graph, graph.Node) {
				g := graph.New()
				c := node(t, "Cos", "c")
				v := node(t, "Vec2", "v")
				add(g, v)
				wire(t, c, "output", v, "a")
				return g, v
			},
			stmt: "const v = vec2(cos(0), 0)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, sink := tt.build(t)
			res, err := Compile(g, sink, tt.opts...)
			if err != nil {
				t.Fatal(err)
			}
			if !slicesContain(res.Statements, tt.stmt) {
				t.Errorf("statements = %q, want %q", res.Statements, tt.stmt)
			}
			if !slicesContain(res.Imports, "cos") {
				t.Errorf("imports = %q, want cos", res.Imports)
			}
		})
	}
}

func TestCompileCustomNodeAndImportSource(t *testing.T) {
	g := graph.New()
	f := float(t, "f", 1)
	c, err := engine.NewEngine().NewCustomNode(`Fn(([a]) => vec3(a, a, 1).normalize())`)
	if err != nil {
		t.Fatal(err)
	}
	c.Base().LocalName = "c"
	m := node(t, "MeshStandardMaterial", "material")
	add(g, f, c, m)
	wire(t, f, "value", c, "a")
	wire(t, c, "value", m, "colorNode")

	res, err := Compile(g, m, WithImportSource("three/webgpu"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"vec4", "vec3", "float", "Fn"}, res.Imports); diff != "" {
		t.Errorf("imports mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(res.Source, `import { vec4, vec3, float, Fn } from "three/webgpu";`) {
		t.Errorf("source = %s", res.Source)
	}
	if !slicesContain(res.Statements, "const c = Fn(([a]) => vec3(a, a, 1).normalize())(f)") {
		t.Errorf("statements = %q", res.Statements)
	}
}

func TestBuildTree(t *testing.T) {
	g := graph.New()
	f := float(t, "f", 2)
	s := node(t, "Sin", "s")
	m := node(t, "MeshStandardMaterial", "material")
	add(g, f, s, m)
	wire(t, f, "value", s, "a")
	wire(t, s, "output", m, "colorNode")

	tree, err := BuildTree(g, m, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Parents) != 1 || tree.Parents[0].Node != s || tree.Parents[0].Parents[0].Node != f {
		t.Fatalf("unexpected tree:\n%s", tree)
	}
	out := tree.String()
	for _, want := range []string{"material (MeshStandardMaterial)", "s (Sin)", "f (Float)"} {
		if !strings.Contains(out, want) {
			t.Errorf("tree output missing %q:\n%s", want, out)
		}
	}

	if _, err := BuildTree(g, nil, ""); err == nil {
		t.Error("expected error for nil sink")
	}
}

func slicesContain(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
