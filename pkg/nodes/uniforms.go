package nodes

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/tsl"
)

// ----------------------------------------------------------------------------
// FloatUniform
// ----------------------------------------------------------------------------

// FloatUniform is a scalar uniform whose value is private state.
type FloatUniform struct {
	graph.NodeBase
	value float64
	out   *graph.Output
}

func NewFloatUniform() *FloatUniform {
	u := &FloatUniform{NodeBase: graph.NewNodeBase("FloatUniform", "FloatUniform")}
	u.out = u.AddOutput("value", "Value", graph.SchemaFloat, nil, u.compute)
	return u
}

func (u *FloatUniform) compute([]tsl.Thunk) tsl.Thunk {
	return tsl.Const(tsl.Fn("uniform", tsl.Float(u.value)))
}

func (u *FloatUniform) Value() float64 { return u.value }

func (u *FloatUniform) SetValue(v float64) {
	u.value = v
	u.out.UpdateCompute(nil, u.compute)
}

func (u *FloatUniform) Code([]string) (graph.Code, error) {
	return graph.Code{
		Code:         declare(u, "uniform("+tsl.FormatNumber(u.value)+")"),
		Dependencies: []string{"uniform"},
	}, nil
}

func (u *FloatUniform) SerializeState() (string, error) {
	return tsl.FormatNumber(u.value), nil
}

func (u *FloatUniform) DeserializeState(data string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(data), 64)
	if err != nil {
		return fmt.Errorf("float uniform state %q: %w", data, err)
	}
	u.SetValue(v)
	return nil
}

// ----------------------------------------------------------------------------
// Vec2Uniform, Vec3Uniform
// ----------------------------------------------------------------------------

// VectorUniform is a vec2 or vec3 uniform backed by a THREE.Vector object in
// the generated source.
type VectorUniform struct {
	graph.NodeBase
	v   []float64
	out *graph.Output
}

// NewVectorUniform returns a Vec2Uniform (n=2) or Vec3Uniform (n=3) at the
// origin.
func NewVectorUniform(n int) *VectorUniform {
	if n != 2 && n != 3 {
		panic(fmt.Sprintf("vector uniform of %d components", n))
	}
	typ := fmt.Sprintf("Vec%dUniform", n)
	u := &VectorUniform{NodeBase: graph.NewNodeBase(typ, typ), v: make([]float64, n)}
	u.out = u.AddOutput("value", "Value", graph.SchemaAny, nil, u.compute)
	return u
}

func (u *VectorUniform) compute([]tsl.Thunk) tsl.Thunk {
	return tsl.Const(tsl.Fn("uniform", vec(fmt.Sprintf("vec%d", len(u.v)), u.v...)))
}

// Vector returns a copy of the components.
func (u *VectorUniform) Vector() []float64 {
	return append([]float64(nil), u.v...)
}

// SetVector replaces the components. Extra values are ignored and missing
// ones keep their current value.
func (u *VectorUniform) SetVector(vs ...float64) {
	copy(u.v, vs)
	u.out.UpdateCompute(nil, u.compute)
}

func (u *VectorUniform) Code([]string) (graph.Code, error) {
	name := graph.VarName(u)
	parts := make([]string, len(u.v))
	for i, x := range u.v {
		parts[i] = tsl.FormatNumber(x)
	}
	code := fmt.Sprintf("const %s_uni = new THREE.Vector%d(%s)\nconst %s = uniform(%s_uni)",
		name, len(u.v), strings.Join(parts, ", "), name, name)
	return graph.Code{Code: code, Dependencies: []string{"uniform"}}, nil
}

type vectorState struct {
	X float64  `json:"x"`
	Y float64  `json:"y"`
	Z *float64 `json:"z,omitempty"`
}

func (u *VectorUniform) SerializeState() (string, error) {
	s := vectorState{X: u.v[0], Y: u.v[1]}
	if len(u.v) == 3 {
		s.Z = &u.v[2]
	}
	b, err := json.Marshal(s)
	return string(b), err
}

func (u *VectorUniform) DeserializeState(data string) error {
	var s vectorState
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return fmt.Errorf("%s state: %w", u.Type, err)
	}
	vs := []float64{s.X, s.Y}
	if s.Z != nil {
		vs = append(vs, *s.Z)
	}
	u.SetVector(vs...)
	return nil
}

// ----------------------------------------------------------------------------
// Texture
// ----------------------------------------------------------------------------

// DefaultTexturePath is the image a new Texture node samples.
const DefaultTexturePath = "/uv_grid.jpg"

// Texture samples an image, loaded by path, at its uvs input.
type Texture struct {
	graph.NodeBase
	path string
	uvs  *graph.Input
	out  *graph.Output
}

func NewTexture() *Texture {
	t := &Texture{NodeBase: graph.NewNodeBase("Texture", "Texture"), path: DefaultTexturePath}
	t.uvs = t.AddInput("uvs", "UVs", graph.SchemaVec2, tsl.Const(uvDefault))
	t.out = t.AddOutput("value", "Value", graph.SchemaVec4, []*graph.Input{t.uvs}, t.compute)
	return t
}

func (t *Texture) compute(in []tsl.Thunk) tsl.Thunk {
	path := t.path
	return func() tsl.Expr { return tsl.Fn("texture", tsl.Str(path), in[0]()) }
}

func (t *Texture) Path() string { return t.path }

func (t *Texture) SetPath(p string) {
	t.path = p
	t.out.UpdateCompute([]*graph.Input{t.uvs}, t.compute)
}

// Code loads the image through a textureLoader the host page provides.
func (t *Texture) Code(args []string) (graph.Code, error) {
	name := graph.VarName(t)
	var lines []string
	uvRef := name + "_uv"
	if t.uvs.Connected() {
		uvRef = graph.ResolveArgs(t, args)[0]
	} else {
		lines = append(lines, fmt.Sprintf("const %s = uv()", uvRef))
	}
	lines = append(lines,
		fmt.Sprintf("const %s_texture = textureLoader.load(%s)", name, strconv.Quote(t.path)),
		fmt.Sprintf("const %s = texture(%s_texture, %s)", name, name, uvRef),
	)
	return graph.Code{
		Code:         strings.Join(lines, "\n"),
		Dependencies: []string{"texture", "uv"},
	}, nil
}

func (t *Texture) SerializeState() (string, error) { return t.path, nil }

func (t *Texture) DeserializeState(data string) error {
	if data == "" {
		return fmt.Errorf("texture state: empty path")
	}
	t.SetPath(data)
	return nil
}
