package codegen

import (
	"fmt"

	"github.com/xlab/treeprint"

	"github.com/chazu/tslgraph/pkg/graph"
)

// Tree is the dependency tree rooted at a sink. Parents holds the upstream
// node of every traced, connected input in input order. A node reachable
// along two paths appears twice.
type Tree struct {
	Node    graph.Node
	Parents []*Tree
}

// index maps every output id in the graph to its owning node.
type index map[string]graph.Node

func newIndex(g *graph.Graph) index {
	idx := make(index)
	for _, n := range g.AllNodes() {
		for _, out := range n.Base().Outputs() {
			idx[out.ID] = n
		}
	}
	return idx
}

// upstream resolves the node feeding in, or returns false when in is
// unconnected or fed by a node outside the graph.
func (idx index) upstream(in *graph.Input) (graph.Node, bool) {
	c := in.Connection()
	if c == nil {
		return nil, false
	}
	n, ok := idx[c.From.ID]
	return n, ok
}

// BuildTree builds the dependency tree of sink. When trace is set only that
// input of the sink is followed; every input of every upstream node is.
// Connections from nodes outside g are skipped.
func BuildTree(g *graph.Graph, sink graph.Node, trace string) (*Tree, error) {
	if sink == nil {
		return nil, fmt.Errorf("build tree: no sink node")
	}
	if trace != "" && sink.Base().Input(trace) == nil {
		return nil, fmt.Errorf("build tree: %s has no input %q", sink.Base().Type, trace)
	}
	return newIndex(g).build(sink, trace, map[*graph.NodeBase]bool{})
}

func (idx index) build(n graph.Node, trace string, path map[*graph.NodeBase]bool) (*Tree, error) {
	b := n.Base()
	if path[b] {
		return nil, fmt.Errorf("node %s: %w", graph.VarName(n), graph.ErrCycle)
	}
	path[b] = true
	defer delete(path, b)

	t := &Tree{Node: n}
	for _, in := range b.Inputs() {
		if trace != "" && in.Key != trace {
			continue
		}
		up, ok := idx.upstream(in)
		if !ok {
			continue
		}
		parent, err := idx.build(up, "", path)
		if err != nil {
			return nil, err
		}
		t.Parents = append(t.Parents, parent)
	}
	return t, nil
}

// Len returns the number of entries in the tree, counting repeats.
func (t *Tree) Len() int {
	n := 1
	for _, p := range t.Parents {
		n += p.Len()
	}
	return n
}

// String renders the tree with the sink at the top.
func (t *Tree) String() string {
	root := treeprint.NewWithRoot(label(t.Node))
	var add func(treeprint.Tree, *Tree)
	add = func(branch treeprint.Tree, t *Tree) {
		for _, p := range t.Parents {
			if len(p.Parents) == 0 {
				branch.AddNode(label(p.Node))
				continue
			}
			add(branch.AddBranch(label(p.Node)), p)
		}
	}
	add(root, t)
	return root.String()
}

func label(n graph.Node) string {
	return fmt.Sprintf("%s (%s)", graph.VarName(n), n.Base().Type)
}
