package nodes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/tsl"
)

// ValueType tags an operator's literal operand.
type ValueType string

const (
	TypeFloat ValueType = "FLOAT"
	TypeVec2  ValueType = "VEC2"
	TypeVec3  ValueType = "VEC3"
)

// Components holds up to three literal components.
type Components struct {
	X float64  `json:"x"`
	Y *float64 `json:"y,omitempty"`
	Z *float64 `json:"z,omitempty"`
}

// InternalValue is the literal an operator uses for an unconnected input.
type InternalValue struct {
	Type  ValueType  `json:"type"`
	Value Components `json:"value"`
}

// FloatValue returns a FLOAT internal value.
func FloatValue(x float64) InternalValue {
	return InternalValue{Type: TypeFloat, Value: Components{X: x}}
}

// Vec2Value returns a VEC2 internal value.
func Vec2Value(x, y float64) InternalValue {
	return InternalValue{Type: TypeVec2, Value: Components{X: x, Y: &y}}
}

// Vec3Value returns a VEC3 internal value.
func Vec3Value(x, y, z float64) InternalValue {
	return InternalValue{Type: TypeVec3, Value: Components{X: x, Y: &y, Z: &z}}
}

// Expr converts the value to an expression literal.
func (v InternalValue) Expr() (tsl.Expr, error) {
	get := func(p *float64, c string) (float64, error) {
		if p == nil {
			return 0, fmt.Errorf("%s value missing component %s", v.Type, c)
		}
		return *p, nil
	}
	switch v.Type {
	case TypeFloat:
		return tsl.Float(v.Value.X), nil
	case TypeVec2:
		y, err := get(v.Value.Y, "y")
		if err != nil {
			return nil, err
		}
		return vec("vec2", v.Value.X, y), nil
	case TypeVec3:
		y, err := get(v.Value.Y, "y")
		if err != nil {
			return nil, err
		}
		z, err := get(v.Value.Z, "z")
		if err != nil {
			return nil, err
		}
		return vec("vec3", v.Value.X, y, z), nil
	}
	return nil, fmt.Errorf("unknown value type %q", v.Type)
}

// internalFromExpr classifies a literal expression, reporting false for
// anything that is not a plain float, vec2 or vec3 of numbers.
func internalFromExpr(e tsl.Expr) (InternalValue, bool) {
	switch v := e.(type) {
	case tsl.Float:
		return FloatValue(float64(v)), true
	case tsl.Call:
		xs := make([]float64, len(v.Args))
		for i, a := range v.Args {
			f, ok := a.(tsl.Float)
			if !ok {
				return InternalValue{}, false
			}
			xs[i] = float64(f)
		}
		switch {
		case v.Fn == "vec2" && len(xs) == 2:
			return Vec2Value(xs[0], xs[1]), true
		case v.Fn == "vec3" && len(xs) == 3:
			return Vec3Value(xs[0], xs[1], xs[2]), true
		}
	}
	return InternalValue{}, false
}

// ----------------------------------------------------------------------------
// Operator
// ----------------------------------------------------------------------------

type operatorSpec struct {
	typ    string
	fn     string
	inputs []port
}

// Operator applies a math builtin. Unconnected operands are literal floats
// or vectors that persist as private state.
type Operator struct {
	graph.NodeBase
	def *operatorSpec
}

func newOperator(s *operatorSpec) *Operator {
	o := &Operator{NodeBase: graph.NewNodeBase(s.typ, s.typ), def: s}
	ins := make([]*graph.Input, len(s.inputs))
	for i, p := range s.inputs {
		ins[i] = o.AddInput(p.key, p.name, graph.SchemaAny, tsl.Const(p.def))
	}
	o.AddOutput("output", "Output", graph.SchemaAny, ins, func(in []tsl.Thunk) tsl.Thunk {
		args := make([]tsl.Expr, len(in))
		for i, th := range in {
			args[i] = th()
		}
		return tsl.Const(tsl.Fn(s.fn, args...))
	})
	return o
}

// Operation returns the builtin the operator applies.
func (o *Operator) Operation() string { return o.def.fn }

// SetValue writes a literal operand. The input must be unconnected.
func (o *Operator) SetValue(key string, v InternalValue) error {
	in := o.Input(key)
	if in == nil {
		return fmt.Errorf("%s has no input %q", o.Type, key)
	}
	e, err := v.Expr()
	if err != nil {
		return fmt.Errorf("%s.%s: %w", o.Type, key, err)
	}
	return in.Set(tsl.Const(e))
}

// Value returns the literal operand of an unconnected input.
func (o *Operator) Value(key string) (InternalValue, bool) {
	in := o.Input(key)
	if in == nil || in.Connected() {
		return InternalValue{}, false
	}
	return internalFromExpr(in.Value()())
}

// Code implements graph.Node.
func (o *Operator) Code(args []string) (graph.Code, error) {
	call := o.def.fn + "(" + strings.Join(graph.ResolveArgs(o, args), ", ") + ")"
	return graph.Code{
		Code:         declare(o, call),
		Dependencies: []string{o.def.fn, "vec2", "vec3"},
	}, nil
}

// SerializeState records the literal operand of every unconnected input.
func (o *Operator) SerializeState() (string, error) {
	state := map[string]InternalValue{}
	for _, in := range o.Inputs() {
		if v, ok := o.Value(in.Key); ok {
			state[in.Key] = v
		}
	}
	b, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DeserializeState restores literal operands. Connected or unknown inputs
// in the blob are reported as errors after the valid entries are applied.
func (o *Operator) DeserializeState(data string) error {
	var state map[string]InternalValue
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return fmt.Errorf("%s state: %w", o.Type, err)
	}
	var firstErr error
	for _, in := range o.Inputs() {
		v, ok := state[in.Key]
		if !ok {
			continue
		}
		delete(state, in.Key)
		if err := o.SetValue(in.Key, v); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for key := range state {
		if firstErr == nil {
			firstErr = fmt.Errorf("%s has no input %q", o.Type, key)
		}
	}
	return firstErr
}

func unaryOp(typ, fn, name string, def float64) *operatorSpec {
	return &operatorSpec{typ: typ, fn: fn, inputs: []port{{"a", name, num(def)}}}
}

var operatorSpecs = []*operatorSpec{
	{typ: "Add", fn: "add", inputs: []port{{"a", "Value", num(0)}, {"b", "Value2", num(0)}}},
	{typ: "Sub", fn: "sub", inputs: []port{{"a", "Value", num(0)}, {"b", "Value2", num(0)}}},
	{typ: "Mul", fn: "mul", inputs: []port{{"a", "Value", num(0)}, {"b", "Value2", num(0)}}},
	{typ: "Div", fn: "div", inputs: []port{{"a", "Value", num(1)}, {"b", "Value2", num(1)}}},
	unaryOp("Sin", "sin", "Value", 0),
	unaryOp("Cos", "cos", "Value", 0),
	unaryOp("Asin", "asin", "Value", 0),
	unaryOp("Acos", "acos", "Value", 0),
	{typ: "Atan", fn: "atan2", inputs: []port{{"y", "Y", num(0)}, {"x", "X", num(0)}}},
	{typ: "Cross", fn: "cross", inputs: []port{{"x", "Vector A", vec("vec3", 0, 0, 0)}, {"y", "Vector B", vec("vec3", 0, 0, 0)}}},
	{typ: "Dot", fn: "dot", inputs: []port{{"x", "Vector A", vec("vec3", 0, 0, 0)}, {"y", "Vector B", vec("vec3", 0, 0, 0)}}},
	{typ: "Normalize", fn: "normalize", inputs: []port{{"x", "Vector", vec("vec3", 0, 0, 0)}}},
	unaryOp("Length", "length", "Vector", 0),
	{typ: "Distance", fn: "distance", inputs: []port{{"x", "Point A", num(0)}, {"y", "Point B", num(0)}}},
	unaryOp("Abs", "abs", "Value", 0),
	{typ: "Sqrt", fn: "sqrt", inputs: []port{{"x", "Value", num(1)}}},
	{typ: "Pow", fn: "pow", inputs: []port{{"x", "Base", num(1)}, {"y", "Exponent", num(1)}}},
	{typ: "Pow2", fn: "pow2", inputs: []port{{"x", "Value", num(1)}}},
	unaryOp("Log", "log", "Value", 0),
	unaryOp("Floor", "floor", "Value", 0),
	unaryOp("Ceil", "ceil", "Value", 0),
	unaryOp("Fract", "fract", "Value", 0),
	unaryOp("Degrees", "degrees", "Radians", 0),
	{typ: "Mod", fn: "mod", inputs: []port{{"x", "Vector A", num(0)}, {"y", "Vector B", num(0)}}},
	{typ: "Mix", fn: "mix", inputs: []port{{"x", "Value A", num(0)}, {"y", "Value B", num(1)}, {"a", "Alpha", num(0.5)}}},
	{typ: "Clamp", fn: "clamp", inputs: []port{{"x", "Value", num(0)}, {"min", "Min", num(0)}, {"max", "Max", num(1)}}},
}
