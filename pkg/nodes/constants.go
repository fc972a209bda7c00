package nodes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/tsl"
)

var constantSpecs = []*funcSpec{
	{typ: "Float", name: "Float", fn: "float", output: "value", inputs: []port{{"a", "A", num(0)}}},
	{typ: "Int", name: "Int", fn: "int", output: "value", inputs: []port{{"a", "A", num(0)}}},
	{typ: "Uint", name: "Uint", fn: "uint", output: "value", inputs: []port{{"a", "A", num(0)}}},
	{typ: "Vec2", name: "Vec2", fn: "vec2", output: "value", inputs: ab(0, 0)},
	{typ: "Vec3", name: "Vec3", fn: "vec3", output: "value", inputs: []port{
		{"a", "A", num(0)}, {"b", "B", num(0)}, {"c", "C", num(0)},
	}},
	{typ: "Vec4", name: "Vec4", fn: "vec4", output: "value", inputs: []port{
		{"a", "A", num(0)}, {"b", "B", num(0)}, {"c", "C", num(0)}, {"d", "D", num(0)},
	}},
}

// ----------------------------------------------------------------------------
// Split
// ----------------------------------------------------------------------------

var components = []string{"x", "y", "z", "w"}

// Split exposes each component of a vector input as its own output.
type Split struct {
	graph.NodeBase
	n int
}

// NewSplit returns a SplitVec2, SplitVec3 or SplitVec4 node.
func NewSplit(n int) *Split {
	if n < 2 || n > 4 {
		panic(fmt.Sprintf("split of %d components", n))
	}
	s := &Split{
		NodeBase: graph.NewNodeBase(fmt.Sprintf("SplitVec%d", n), fmt.Sprintf("Split Vec%d", n)),
		n:        n,
	}
	def := []float64{1, 0, 1, 1}[:n]
	a := s.AddInput("a", "A", graph.SchemaAny, tsl.Const(vec(fmt.Sprintf("vec%d", n), def...)))
	for _, c := range components[:n] {
		field := c
		s.AddOutput(c, strings.ToUpper(c), graph.SchemaFloat, []*graph.Input{a}, func(in []tsl.Thunk) tsl.Thunk {
			return tsl.Const(tsl.Member{X: in[0](), Field: field})
		})
	}
	return s
}

// Components implements graph.ComponentSplitter.
func (s *Split) Components() int { return s.n }

// Code declares one suffixed variable per component.
func (s *Split) Code(args []string) (graph.Code, error) {
	src := graph.ResolveArgs(s, args)[0]
	name := graph.VarName(s)
	lines := make([]string, s.n)
	for i, c := range components[:s.n] {
		lines[i] = fmt.Sprintf("const %s_%s = %s.%s", name, strings.ToUpper(c), src, c)
	}
	return graph.Code{
		Code:         strings.Join(lines, "\n"),
		Dependencies: withLiteralDeps(s, nil),
	}, nil
}

// ----------------------------------------------------------------------------
// Color
// ----------------------------------------------------------------------------

// Color is a constant colour stored as private state.
type Color struct {
	graph.NodeBase
	hex int
	out *graph.Output
}

// NewColor returns a white Color node.
func NewColor() *Color {
	c := &Color{NodeBase: graph.NewNodeBase("Color", "Color"), hex: 0xffffff}
	c.out = c.AddOutput("value", "Value", graph.SchemaColor, nil, c.compute)
	return c
}

func (c *Color) compute([]tsl.Thunk) tsl.Thunk {
	return tsl.Const(tsl.Fn("color", tsl.Float(c.hex)))
}

// Hex returns the stored colour as 0xRRGGBB.
func (c *Color) Hex() int { return c.hex }

// SetHex stores a colour and recomputes the output.
func (c *Color) SetHex(hex int) {
	c.hex = hex & 0xffffff
	c.out.UpdateCompute(nil, c.compute)
}

// Code implements graph.Node.
func (c *Color) Code([]string) (graph.Code, error) {
	return graph.Code{
		Code:         declare(c, fmt.Sprintf("color(0x%06x)", c.hex)),
		Dependencies: []string{"color"},
	}, nil
}

// SerializeState implements graph.Stateful.
func (c *Color) SerializeState() (string, error) {
	return fmt.Sprintf("#%06x", c.hex), nil
}

// DeserializeState implements graph.Stateful.
func (c *Color) DeserializeState(data string) error {
	v, err := strconv.ParseInt(strings.TrimPrefix(data, "#"), 16, 32)
	if err != nil {
		return fmt.Errorf("color state %q: %w", data, err)
	}
	c.SetHex(int(v))
	return nil
}
