package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/tslgraph/pkg/tsl"
)

// run interprets the program with args bound to its parameters. Missing or
// nil arguments take the parameter default.
func (p *program) run(args []tsl.Expr) (tsl.Expr, error) {
	env := make(map[string]tsl.Expr, len(p.params))
	for i, prm := range p.params {
		if i < len(args) && args[i] != nil {
			env[prm.name] = args[i]
		} else {
			env[prm.name] = tsl.Float(prm.def)
		}
	}

	for _, st := range p.body {
		v := build(st.value, env)
		switch st.kind {
		case stmtDecl:
			env[st.name] = v
		case stmtReturn:
			return v, nil
		case stmtAssign:
			cur := env[st.name]
			if st.field == "" {
				if st.op != "" {
					v = tsl.Fn(st.op, cur, v)
				}
				env[st.name] = v
				continue
			}
			next, err := assignComponent(cur, st.field, st.op, v)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s.%s: %w", st.line, st.name, st.field, err)
			}
			env[st.name] = next
		}
	}
	return nil, fmt.Errorf("no return statement")
}

func build(e expr, env map[string]tsl.Expr) tsl.Expr {
	switch v := e.(type) {
	case numExpr:
		return tsl.Float(v.v)
	case strExpr:
		return tsl.Str(v.v)
	case boolExpr:
		return tsl.Bool(v.v)
	case refExpr:
		return env[v.name]
	case symExpr:
		return tsl.Ident(v.name)
	case memberExpr:
		return tsl.Member{X: build(v.x, env), Field: v.field}
	case callExpr:
		args := make([]tsl.Expr, len(v.args))
		for i, a := range v.args {
			args[i] = build(a, env)
		}
		return tsl.Fn(v.fn, args...)
	}
	return nil
}

// assignComponent rebuilds a vector with one component replaced:
// v.y.addAssign(t) on a vec3 becomes vec3(v.x, add(v.y, t), v.z).
func assignComponent(cur tsl.Expr, field, op string, v tsl.Expr) (tsl.Expr, error) {
	idx := strings.IndexByte("xyzw", field[0])
	if idx < 0 {
		idx = strings.IndexByte("rgba", field[0])
	}
	n := arity(cur)
	if n == 0 {
		return nil, fmt.Errorf("cannot tell how many components %s has", tsl.Format(cur))
	}
	if idx >= n {
		return nil, fmt.Errorf("component %s out of range for a %d-component value", field, n)
	}
	comps := make([]tsl.Expr, n)
	for i := range comps {
		comps[i] = tsl.Member{X: cur, Field: string("xyzw"[i])}
	}
	if op == "" {
		comps[idx] = v
	} else {
		comps[idx] = tsl.Fn(op, comps[idx], v)
	}
	return tsl.Fn(fmt.Sprintf("vec%d", n), comps...), nil
}

// elementwise builtins keep the component count of their widest operand.
var elementwise = map[string]bool{
	"add": true, "sub": true, "mul": true, "div": true, "mod": true,
	"negate": true, "oneMinus": true, "abs": true, "sign": true, "floor": true,
	"ceil": true, "fract": true, "round": true, "trunc": true, "sin": true,
	"cos": true, "tan": true, "exp": true, "exp2": true, "log": true, "log2": true,
	"sqrt": true, "pow": true, "pow2": true, "min": true, "max": true,
	"clamp": true, "saturate": true, "mix": true, "smoothstep": true, "step": true,
	"normalize": true, "uniform": true, "varying": true, "rotateUV": true,
}

// arity infers the component count of e, or 0 when it cannot be known
// without evaluating the shader.
func arity(e tsl.Expr) int {
	switch v := e.(type) {
	case tsl.Member:
		return len(v.Field)
	case tsl.Ident:
		switch {
		case strings.HasSuffix(string(v), "UV"):
			return 2
		case strings.HasPrefix(string(v), "position"), strings.HasPrefix(string(v), "normal"),
			strings.HasPrefix(string(v), "tangent"), strings.HasPrefix(string(v), "bitangent"),
			strings.HasPrefix(string(v), "transformed"), v == "cameraPosition":
			return 3
		}
	case tsl.Call:
		switch v.Fn {
		case "vec2", "ivec2", "uvec2", "bvec2", "uv":
			return 2
		case "vec3", "ivec3", "uvec3", "bvec3", "color", "cross":
			return 3
		case "vec4", "ivec4", "uvec4", "bvec4", "texture":
			return 4
		}
		if elementwise[v.Fn] {
			n := 0
			for _, a := range v.Args {
				n = max(n, arity(a))
			}
			return n
		}
	}
	return 0
}
