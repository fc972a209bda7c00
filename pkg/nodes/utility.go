package nodes

import (
	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/tsl"
)

var uvDefault = tsl.Fn("uv")

func remapSpec(typ, fn string) *funcSpec {
	return &funcSpec{typ: typ, name: typ, fn: fn, inputs: []port{
		{"a", "Node", num(0)},
		{"b", "inLow", num(0)},
		{"c", "inHigh", num(1)},
		{"d", "outLow", num(0)},
		{"e", "outHigh", num(1)},
	}}
}

func oscSpec(typ, fn string) *funcSpec {
	return &funcSpec{
		typ: typ, name: typ, fn: fn,
		inputs: []port{{"a", "Timer", tsl.Ident("time")}},
		deps:   []string{"time"},
	}
}

var utilitySpecs = []*funcSpec{
	remapSpec("Remap", "remap"),
	remapSpec("RemapClamp", "remapClamp"),
	{typ: "Hash", name: "Hash", fn: "hash", inputs: []port{{"a", "Node", num(0)}}},
	{typ: "Range", name: "Range", fn: "range", inputs: []port{{"b", "min", num(0)}, {"c", "max", num(1)}}},
	oscSpec("OscSine", "oscSine"),
	oscSpec("OscSquare", "oscSquare"),
	oscSpec("OscTriangle", "oscTriangle"),
	oscSpec("OscSawtooth", "oscSawtooth"),
	{typ: "RotateUV", name: "RotateUV", fn: "rotateUV", deps: []string{"uv"}, inputs: []port{
		{"uv", "UV", uvDefault},
		{"rotation", "Rotation", num(0)},
		{"center", "Center", vec("vec2", 0.5)},
	}},
	{typ: "SpherizeUV", name: "SpherizeUV", fn: "spherizeUV", deps: []string{"uv"}, inputs: []port{
		{"uv", "UV", uvDefault},
		{"strength", "Strength", num(1)},
		{"center", "Center", vec("vec2", 0.5)},
	}},
	{typ: "SpritesheetUV", name: "SpritesheetUV", fn: "spritesheetUV", deps: []string{"uv"}, inputs: []port{
		{"count", "Count", num(1)},
		{"uv", "UV", uvDefault},
		{"frame", "Frame", num(0)},
	}},
	{typ: "Varying", name: "Varying", fn: "varying", output: "varying", inputs: []port{{"a", "Node", num(0)}}},
}

// ----------------------------------------------------------------------------
// Symbol
// ----------------------------------------------------------------------------

// Symbol is an input-less node that exposes one named shading-language
// value, such as positionLocal or matcapUV.
type Symbol struct {
	graph.NodeBase
	symbol string
}

func newSymbol(typ, symbol, output string) *Symbol {
	s := &Symbol{NodeBase: graph.NewNodeBase(typ, typ), symbol: symbol}
	s.AddOutput(output, displayName(output), graph.SchemaAny, nil, func([]tsl.Thunk) tsl.Thunk {
		return tsl.Const(tsl.Ident(symbol))
	})
	return s
}

// Symbol returns the referenced name.
func (s *Symbol) Symbol() string { return s.symbol }

// Code implements graph.Node.
func (s *Symbol) Code([]string) (graph.Code, error) {
	return graph.Code{
		Code:         declare(s, s.symbol),
		Dependencies: []string{s.symbol},
	}, nil
}
