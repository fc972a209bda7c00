package nodes

import (
	"sync"

	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/tsl"
)

var attributeSpecs = []*funcSpec{
	{typ: "UV", name: "UV", fn: "uv", output: "value"},
}

// Register adds every built-in node kind to r.
func Register(r *graph.Registry) {
	specs := [][]*funcSpec{constantSpecs, logicSpecs, utilitySpecs, attributeSpecs}
	for _, group := range specs {
		for _, s := range group {
			r.Register(s.typ, func() graph.Node { return newFunc(s) })
		}
	}
	for _, s := range operatorSpecs {
		r.Register(s.typ, func() graph.Node { return newOperator(s) })
	}
	for _, n := range []int{2, 3, 4} {
		r.Register(NewSplit(n).Type, func() graph.Node { return NewSplit(n) })
	}
	r.Register("Color", func() graph.Node { return NewColor() })

	r.Register("FloatUniform", func() graph.Node { return NewFloatUniform() })
	r.Register("Vec2Uniform", func() graph.Node { return NewVectorUniform(2) })
	r.Register("Vec3Uniform", func() graph.Node { return NewVectorUniform(3) })
	r.Register("TimeUniform", func() graph.Node { return newSymbol("TimeUniform", "time", "value") })
	r.Register("Texture", func() graph.Node { return NewTexture() })

	r.Register("MatcapUV", func() graph.Node { return newSymbol("MatcapUV", "matcapUV", "output") })
	r.Register("EquirectUV", func() graph.Node { return newSymbol("EquirectUV", "equirectUV", "output") })
	for _, sym := range tsl.PositionSymbols() {
		r.Register(sym, func() graph.Node { return newSymbol(sym, sym, "value") })
	}

	r.Register("MeshStandardMaterial", func() graph.Node { return NewMaterial() })
}

var defaultRegistry = sync.OnceValue(func() *graph.Registry {
	r := graph.NewRegistry()
	Register(r)
	return r
})

// Registry returns a shared registry holding every built-in node kind.
func Registry() *graph.Registry { return defaultRegistry() }

// New builds a node of a built-in kind.
func New(typ string) (graph.Node, error) {
	return defaultRegistry().New(typ)
}

// MustNew is New for kinds known to exist; it panics otherwise.
func MustNew(typ string) graph.Node {
	n, err := New(typ)
	if err != nil {
		panic(err)
	}
	return n
}
