package nodes

import (
	"github.com/samber/lo"

	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/tsl"
)

// Material is the sink of a shader graph. Its code is the return statement
// of the generated function, so it declares no variable of its own.
type Material struct {
	graph.NodeBase
	color *graph.Input
}

// NewMaterial returns a MeshStandardMaterial sink with a red base colour.
func NewMaterial() *Material {
	m := &Material{NodeBase: graph.NewNodeBase("MeshStandardMaterial", "Mesh Standard Material")}
	m.color = m.AddInput("colorNode", "Base Color", graph.SchemaVec4, tsl.Const(vec("vec4", 1, 0, 0, 1)))
	m.AddInput("positionNode", "Position", graph.SchemaVec3, tsl.Const(tsl.Ident("positionLocal")))
	m.AddOutput("value", "Value", graph.SchemaVec4, []*graph.Input{m.color}, func(in []tsl.Thunk) tsl.Thunk {
		return in[0]
	})
	return m
}

// Code implements graph.Node. Only the colour is returned.
func (m *Material) Code(args []string) (graph.Code, error) {
	color := graph.ResolveArgs(m, args)[0]
	deps := []string{"vec4"}
	if !m.color.Connected() {
		deps = append(deps, tsl.Symbols(m.color.Value()())...)
	}
	return graph.Code{Code: "return " + color, Dependencies: lo.Uniq(deps)}, nil
}
