package tsl

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ErrUnsupported is returned by Eval for expressions that have no CPU
// equivalent (textures, matrices, strings).
var ErrUnsupported = errors.New("unsupported in evaluation")

// Env carries the per-sample inputs available to Eval.
type Env struct {
	UV       v2.Vec
	Time     float64
	Position v3.Vec
	Normal   v3.Vec
}

// Value is the numeric result of Eval: a float or a 2-, 3- or 4-component
// vector. Components beyond N are zero.
type Value struct {
	N int
	V [4]float64
}

// Scalar wraps a float as a one-component Value.
func Scalar(x float64) Value {
	return Value{N: 1, V: [4]float64{x}}
}

// Vec builds a Value from components.
func Vec(cs ...float64) Value {
	v := Value{N: len(cs)}
	copy(v.V[:], cs)
	return v
}

// At returns component i, broadcasting scalars.
func (v Value) At(i int) float64 {
	if v.N == 1 {
		return v.V[0]
	}
	return v.V[i]
}

// RGBA maps the value to a colour, treating scalars as grey and filling a
// missing alpha with 1.
func (v Value) RGBA() [4]float64 {
	switch v.N {
	case 1:
		return [4]float64{v.V[0], v.V[0], v.V[0], 1}
	case 2:
		return [4]float64{v.V[0], v.V[1], 0, 1}
	case 3:
		return [4]float64{v.V[0], v.V[1], v.V[2], 1}
	}
	return v.V
}

func (v Value) String() string {
	parts := make([]string, v.N)
	for i := 0; i < v.N; i++ {
		parts[i] = FormatNumber(v.V[i])
	}
	if v.N == 1 {
		return parts[0]
	}
	return fmt.Sprintf("vec%d(%s)", v.N, strings.Join(parts, ", "))
}

func (v Value) v2() v2.Vec { return v2.Vec{X: v.At(0), Y: v.At(1)} }

func (v Value) v3() v3.Vec {
	if v.N == 2 {
		return v3.Vec{X: v.V[0], Y: v.V[1]}
	}
	return v3.Vec{X: v.At(0), Y: v.At(1), Z: v.At(2)}
}

func fromV2(a v2.Vec) Value { return Vec(a.X, a.Y) }
func fromV3(a v3.Vec) Value { return Vec(a.X, a.Y, a.Z) }

// ----------------------------------------------------------------------------
// Evaluation
// ----------------------------------------------------------------------------

// Eval computes e numerically for one sample.
func Eval(e Expr, env Env) (Value, error) {
	switch v := e.(type) {
	case Float:
		return Scalar(float64(v)), nil
	case Bool:
		return Scalar(truth(bool(v))), nil
	case Ident:
		return evalIdent(string(v), env)
	case Member:
		x, err := Eval(v.X, env)
		if err != nil {
			return Value{}, err
		}
		return swizzle(x, v.Field)
	case Call:
		args := make([]Value, len(v.Args))
		for i, a := range v.Args {
			av, err := Eval(a, env)
			if err != nil {
				return Value{}, err
			}
			args[i] = av
		}
		return evalCall(v.Fn, args, env)
	case nil:
		return Value{}, fmt.Errorf("nil expression: %w", ErrUnsupported)
	}
	return Value{}, fmt.Errorf("%s: %w", Format(e), ErrUnsupported)
}

func evalIdent(name string, env Env) (Value, error) {
	switch {
	case name == "time":
		return Scalar(env.Time), nil
	case name == "PI":
		return Scalar(math.Pi), nil
	case name == "PI2":
		return Scalar(2 * math.Pi), nil
	case name == "HALF_PI":
		return Scalar(math.Pi / 2), nil
	case name == "EPSILON":
		return Scalar(1e-6), nil
	case name == "matcapUV", name == "equirectUV", name == "screenUV", name == "viewportUV":
		return fromV2(env.UV), nil
	case strings.HasPrefix(name, "position"), name == "modelPosition":
		return fromV3(env.Position), nil
	case strings.HasPrefix(name, "normal"), strings.HasPrefix(name, "transformedNormal"):
		return fromV3(env.Normal), nil
	}
	return Value{}, fmt.Errorf("symbol %s: %w", name, ErrUnsupported)
}

func swizzle(x Value, field string) (Value, error) {
	out := Value{N: len(field)}
	for i, c := range field {
		idx := strings.IndexRune("xyzw", c)
		if idx < 0 {
			idx = strings.IndexRune("rgba", c)
		}
		if idx < 0 || (x.N > 1 && idx >= x.N) {
			return Value{}, fmt.Errorf("component .%s of %d-component value: %w", field, x.N, ErrUnsupported)
		}
		out.V[i] = x.At(idx)
	}
	return out, nil
}

func construct(n int, args []Value) Value {
	var flat []float64
	for _, a := range args {
		flat = append(flat, a.V[:a.N]...)
	}
	out := Value{N: n}
	if len(flat) == 1 {
		for i := 0; i < n; i++ {
			out.V[i] = flat[0]
		}
		return out
	}
	copy(out.V[:n], flat)
	return out
}

func widest(args ...Value) int {
	n := 1
	for _, a := range args {
		if a.N > n {
			n = a.N
		}
	}
	return n
}

func unary(a Value, f func(float64) float64) Value {
	out := Value{N: a.N}
	for i := 0; i < a.N; i++ {
		out.V[i] = f(a.V[i])
	}
	return out
}

func binary(a, b Value, f func(x, y float64) float64) Value {
	out := Value{N: widest(a, b)}
	for i := 0; i < out.N; i++ {
		out.V[i] = f(a.At(i), b.At(i))
	}
	return out
}

func ternary(a, b, c Value, f func(x, y, z float64) float64) Value {
	out := Value{N: widest(a, b, c)}
	for i := 0; i < out.N; i++ {
		out.V[i] = f(a.At(i), b.At(i), c.At(i))
	}
	return out
}

func truth(x bool) float64 {
	if x {
		return 1
	}
	return 0
}

func fract(x float64) float64 { return x - math.Floor(x) }

var unaryFuncs = map[string]func(float64) float64{
	"abs":         math.Abs,
	"acos":        math.Acos,
	"asin":        math.Asin,
	"atan":        math.Atan,
	"cbrt":        math.Cbrt,
	"ceil":        math.Ceil,
	"cos":         math.Cos,
	"exp":         math.Exp,
	"exp2":        math.Exp2,
	"floor":       math.Floor,
	"fract":       fract,
	"log":         math.Log,
	"log2":        math.Log2,
	"round":       math.Round,
	"sin":         math.Sin,
	"sqrt":        math.Sqrt,
	"tan":         math.Tan,
	"trunc":       math.Trunc,
	"negate":      func(x float64) float64 { return -x },
	"oneMinus":    func(x float64) float64 { return 1 - x },
	"reciprocal":  func(x float64) float64 { return 1 / x },
	"inverseSqrt": func(x float64) float64 { return 1 / math.Sqrt(x) },
	"saturate":    func(x float64) float64 { return sdf.Clamp(x, 0, 1) },
	"degrees":     func(x float64) float64 { return x * 180 / math.Pi },
	"radians":     func(x float64) float64 { return x * math.Pi / 180 },
	"pow2":        func(x float64) float64 { return x * x },
	"pow3":        func(x float64) float64 { return x * x * x },
	"pow4":        func(x float64) float64 { return x * x * x * x },
	"sign": func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return 0
	},
	"not":         func(x float64) float64 { return truth(x == 0) },
	"hash":        func(x float64) float64 { return fract(math.Sin(x*12.9898) * 43758.5453) },
	"oscSine":     func(t float64) float64 { return math.Sin(t*2*math.Pi)*0.5 + 0.5 },
	"oscSquare":   func(t float64) float64 { return truth(math.Sin(t*2*math.Pi) >= 0) },
	"oscTriangle": func(t float64) float64 { return math.Abs(fract(t+0.5)*2 - 1) },
	"oscSawtooth": fract,
}

var binaryFuncs = map[string]func(x, y float64) float64{
	"add":              func(x, y float64) float64 { return x + y },
	"sub":              func(x, y float64) float64 { return x - y },
	"mul":              func(x, y float64) float64 { return x * y },
	"div":              func(x, y float64) float64 { return x / y },
	"mod":              func(x, y float64) float64 { return x - y*math.Floor(x/y) },
	"modInt":           func(x, y float64) float64 { return math.Mod(math.Trunc(x), math.Trunc(y)) },
	"pow":              math.Pow,
	"atan2":            math.Atan2,
	"min":              math.Min,
	"max":              math.Max,
	"step":             func(edge, x float64) float64 { return truth(x >= edge) },
	"equal":            func(x, y float64) float64 { return truth(x == y) },
	"notEqual":         func(x, y float64) float64 { return truth(x != y) },
	"lessThan":         func(x, y float64) float64 { return truth(x < y) },
	"greaterThan":      func(x, y float64) float64 { return truth(x > y) },
	"lessThanEqual":    func(x, y float64) float64 { return truth(x <= y) },
	"greaterThanEqual": func(x, y float64) float64 { return truth(x >= y) },
	"and":              func(x, y float64) float64 { return truth(x != 0 && y != 0) },
	"or":               func(x, y float64) float64 { return truth(x != 0 || y != 0) },
	"xor":              func(x, y float64) float64 { return truth((x != 0) != (y != 0)) },
}

// arg returns args[i] or def when the call omitted it.
func arg(args []Value, i int, def Value) Value {
	if i < len(args) {
		return args[i]
	}
	return def
}

func evalCall(fn string, args []Value, env Env) (Value, error) {
	if f, ok := unaryFuncs[fn]; ok {
		if strings.HasPrefix(fn, "osc") && len(args) == 0 {
			return Scalar(f(env.Time)), nil
		}
		if len(args) != 1 {
			return Value{}, fmt.Errorf("%s expects 1 argument, got %d", fn, len(args))
		}
		return unary(args[0], f), nil
	}
	if f, ok := binaryFuncs[fn]; ok {
		if len(args) < 2 {
			return Value{}, fmt.Errorf("%s expects 2 arguments, got %d", fn, len(args))
		}
		// add/mul/etc. accept more than two operands and fold left.
		acc := binary(args[0], args[1], f)
		for _, a := range args[2:] {
			acc = binary(acc, a, f)
		}
		return acc, nil
	}

	switch fn {
	case "float", "int", "uint", "bool", "uniform", "varying":
		if len(args) == 0 {
			return Scalar(0), nil
		}
		if fn == "uniform" || fn == "varying" {
			return args[0], nil
		}
		x := args[0].V[0]
		if fn == "int" || fn == "uint" {
			x = math.Trunc(x)
		}
		if fn == "bool" {
			x = truth(x != 0)
		}
		return Scalar(x), nil
	case "vec2", "ivec2", "uvec2", "bvec2":
		return construct(2, args), nil
	case "vec3", "ivec3", "uvec3", "bvec3":
		return construct(3, args), nil
	case "vec4", "ivec4", "uvec4", "bvec4":
		return construct(4, args), nil
	case "color":
		if len(args) == 1 && args[0].N == 1 {
			h := int(args[0].V[0])
			return Vec(float64(h>>16&0xff)/255, float64(h>>8&0xff)/255, float64(h&0xff)/255), nil
		}
		return construct(3, args), nil
	case "uv":
		return fromV2(env.UV), nil
	case "length":
		if len(args) != 1 {
			return Value{}, fmt.Errorf("length expects 1 argument")
		}
		return Scalar(length(args[0])), nil
	case "lengthSq":
		l := length(args[0])
		return Scalar(l * l), nil
	case "distance":
		if len(args) != 2 {
			return Value{}, fmt.Errorf("distance expects 2 arguments")
		}
		return Scalar(length(binary(args[0], args[1], binaryFuncs["sub"]))), nil
	case "normalize":
		if len(args) != 1 {
			return Value{}, fmt.Errorf("normalize expects 1 argument")
		}
		switch args[0].N {
		case 1:
			return Scalar(unaryFuncs["sign"](args[0].V[0])), nil
		case 2:
			return fromV2(args[0].v2().Normalize()), nil
		}
		return fromV3(args[0].v3().Normalize()), nil
	case "dot":
		if len(args) != 2 {
			return Value{}, fmt.Errorf("dot expects 2 arguments")
		}
		if widest(args...) == 2 {
			return Scalar(args[0].v2().Dot(args[1].v2())), nil
		}
		return Scalar(args[0].v3().Dot(args[1].v3())), nil
	case "cross":
		if len(args) != 2 {
			return Value{}, fmt.Errorf("cross expects 2 arguments")
		}
		return fromV3(args[0].v3().Cross(args[1].v3())), nil
	case "clamp":
		x := arg(args, 0, Scalar(0))
		return ternary(x, arg(args, 1, Scalar(0)), arg(args, 2, Scalar(1)), sdf.Clamp), nil
	case "mix":
		if len(args) != 3 {
			return Value{}, fmt.Errorf("mix expects 3 arguments")
		}
		return ternary(args[0], args[1], args[2], sdf.Mix), nil
	case "smoothstep":
		if len(args) != 3 {
			return Value{}, fmt.Errorf("smoothstep expects 3 arguments")
		}
		return ternary(args[0], args[1], args[2], func(e0, e1, x float64) float64 {
			t := sdf.Clamp((x-e0)/(e1-e0), 0, 1)
			return t * t * (3 - 2*t)
		}), nil
	case "select":
		if len(args) != 3 {
			return Value{}, fmt.Errorf("select expects 3 arguments")
		}
		if args[0].V[0] != 0 {
			return args[1], nil
		}
		return args[2], nil
	case "remap", "remapClamp":
		x := arg(args, 0, Scalar(0))
		inLow, inHigh := arg(args, 1, Scalar(0)), arg(args, 2, Scalar(1))
		outLow, outHigh := arg(args, 3, Scalar(0)), arg(args, 4, Scalar(1))
		t := ternary(x, inLow, inHigh, func(x, lo, hi float64) float64 { return (x - lo) / (hi - lo) })
		if fn == "remapClamp" {
			t = unary(t, func(x float64) float64 { return sdf.Clamp(x, 0, 1) })
		}
		return ternary(t, outLow, outHigh, func(t, lo, hi float64) float64 { return sdf.Mix(lo, hi, t) }), nil
	case "range":
		lo, hi := arg(args, 0, Scalar(0)), arg(args, 1, Scalar(1))
		return binary(lo, hi, func(x, y float64) float64 { return (x + y) / 2 }), nil
	case "rotateUV":
		uv := arg(args, 0, fromV2(env.UV)).v2()
		rot := arg(args, 1, Scalar(0)).V[0]
		center := arg(args, 2, Vec(0.5, 0.5)).v2()
		d := uv.Sub(center)
		s, c := math.Sincos(rot)
		return fromV2(v2.Vec{X: c*d.X + s*d.Y, Y: c*d.Y - s*d.X}.Add(center)), nil
	}
	return Value{}, fmt.Errorf("%s(): %w", fn, ErrUnsupported)
}

func length(v Value) float64 {
	switch v.N {
	case 1:
		return math.Abs(v.V[0])
	case 2:
		return v.v2().Length()
	case 3:
		return v.v3().Length()
	}
	return math.Sqrt(v.V[0]*v.V[0] + v.V[1]*v.V[1] + v.V[2]*v.V[2] + v.V[3]*v.V[3])
}
