package graph

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/samber/lo"
)

// Position is canvas metadata stored alongside every node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Placement pairs a node with its canvas position for SetNodes.
type Placement struct {
	Node     Node
	Position Position
}

// Scheduler receives persist requests whenever the graph becomes dirty.
type Scheduler interface {
	Schedule()
}

// Graph owns a set of visible nodes, a set of hidden nodes that keep their
// wiring, per-node positions and the editing state (selection, draft
// connection) around them.
//
// The mutex guards the container maps. Port propagation is synchronous and
// must be driven from a single goroutine.
type Graph struct {
	mu              sync.RWMutex
	nodes           []Node
	hidden          map[string]Node
	positions       map[string]Position
	hiddenPositions map[string]Position
	selected        []Node
	draft           *Output
	dirty           bool

	scheduler Scheduler
	logger    hclog.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger used for warnings.
func WithLogger(l hclog.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

// WithScheduler sets the persist scheduler.
func WithScheduler(s Scheduler) Option {
	return func(g *Graph) { g.scheduler = s }
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		hidden:          make(map[string]Node),
		positions:       make(map[string]Position),
		hiddenPositions: make(map[string]Position),
		logger:          hclog.NewNullLogger(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// SetScheduler replaces the persist scheduler.
func (g *Graph) SetScheduler(s Scheduler) {
	g.mu.Lock()
	g.scheduler = s
	g.mu.Unlock()
}

// SetNodes inserts nodes, routing each to the visible or hidden set by its
// Visible flag, and marks the graph dirty.
func (g *Graph) SetNodes(placements ...Placement) {
	g.mu.Lock()
	for _, p := range placements {
		b := p.Node.Base()
		b.graph = g
		if b.Visible {
			g.nodes = append(g.nodes, p.Node)
			g.positions[b.ID] = p.Position
		} else {
			g.hidden[b.ID] = p.Node
			g.hiddenPositions[b.ID] = p.Position
		}
	}
	g.mu.Unlock()
	g.MarkDirty()
}

// HideNode moves a visible node into the hidden set. Its connections are
// left untouched.
func (g *Graph) HideNode(id string) error {
	g.mu.Lock()
	idx := slices.IndexFunc(g.nodes, func(n Node) bool { return n.Base().ID == id })
	if idx < 0 {
		g.mu.Unlock()
		g.logger.Warn("hide: node does not exist", "id", id)
		return fmt.Errorf("hide %s: %w", id, ErrNodeNotFound)
	}
	n := g.nodes[idx]
	g.nodes = slices.Delete(g.nodes, idx, idx+1)
	g.hidden[id] = n
	g.hiddenPositions[id] = g.positions[id]
	delete(g.positions, id)
	n.Base().Visible = false
	g.mu.Unlock()
	g.MarkDirty()
	return nil
}

// UnhideNode moves a hidden node back into the visible set at its saved
// position.
func (g *Graph) UnhideNode(id string) error {
	g.mu.Lock()
	n, ok := g.hidden[id]
	if !ok {
		g.mu.Unlock()
		g.logger.Warn("unhide: node does not exist", "id", id)
		return fmt.Errorf("unhide %s: %w", id, ErrNodeNotFound)
	}
	pos := g.hiddenPositions[id]
	delete(g.hidden, id)
	delete(g.hiddenPositions, id)
	g.mu.Unlock()

	n.Base().Visible = true
	g.SetNodes(Placement{Node: n, Position: pos})
	return nil
}

// RemoveNode drops a node from the visible set. It does not sever
// connections; dispose the node first, or call its Dispose directly, which
// removes it from the graph as well.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()
	g.nodes = slices.DeleteFunc(g.nodes, func(n Node) bool { return n.Base().ID == id })
	delete(g.positions, id)
	g.selected = slices.DeleteFunc(g.selected, func(n Node) bool { return n.Base().ID == id })
	g.mu.Unlock()
	g.MarkDirty()
}

// detach forgets a node entirely; called from NodeBase.Dispose.
func (g *Graph) detach(id string) {
	g.mu.Lock()
	g.nodes = slices.DeleteFunc(g.nodes, func(n Node) bool { return n.Base().ID == id })
	delete(g.positions, id)
	delete(g.hidden, id)
	delete(g.hiddenPositions, id)
	g.selected = slices.DeleteFunc(g.selected, func(n Node) bool { return n.Base().ID == id })
	g.mu.Unlock()
	g.MarkDirty()
}

// Nodes returns the visible nodes in insertion order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.nodes)
}

// HiddenNodes returns the hidden nodes ordered by id.
func (g *Graph) HiddenNodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := lo.Keys(g.hidden)
	sort.Strings(ids)
	out := make([]Node, len(ids))
	for i, id := range ids {
		out[i] = g.hidden[id]
	}
	return out
}

// AllNodes returns the visible nodes followed by the hidden ones.
func (g *Graph) AllNodes() []Node {
	return append(g.Nodes(), g.HiddenNodes()...)
}

// Node looks a node up by id in either set.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.hidden[id]; ok {
		return n, true
	}
	n, ok := lo.Find(g.nodes, func(n Node) bool { return n.Base().ID == id })
	return n, ok
}

// Len returns the number of visible and hidden nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes) + len(g.hidden)
}

// Position returns the stored position of a visible or hidden node.
func (g *Graph) Position(id string) (Position, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if p, ok := g.positions[id]; ok {
		return p, true
	}
	p, ok := g.hiddenPositions[id]
	return p, ok
}

// SetNodePosition updates a node's position.
func (g *Graph) SetNodePosition(id string, p Position) {
	g.mu.Lock()
	if _, ok := g.hidden[id]; ok {
		g.hiddenPositions[id] = p
	} else {
		g.positions[id] = p
	}
	g.mu.Unlock()
	g.MarkDirty()
}

// Connections returns every live connection in the graph, each once.
func (g *Graph) Connections() []*Connection {
	var all []*Connection
	for _, n := range g.AllNodes() {
		all = append(all, n.Base().Connections()...)
	}
	return lo.Uniq(all)
}

// NodeByPortID returns the node owning the input or output with id.
func (g *Graph) NodeByPortID(id string) (Node, bool) {
	for _, n := range g.AllNodes() {
		b := n.Base()
		for _, in := range b.inputs {
			if in.ID == id {
				return n, true
			}
		}
		for _, out := range b.outputs {
			if out.ID == id {
				return n, true
			}
		}
	}
	return nil, false
}

// SelectNodes replaces the selection, or extends it when additive is set.
func (g *Graph) SelectNodes(nodes []Node, additive bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if additive {
		g.selected = lo.Uniq(append(g.selected, nodes...))
		return
	}
	g.selected = slices.Clone(nodes)
}

// Selected returns the selected nodes.
func (g *Graph) Selected() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.selected)
}

// SetDraftConnectionSource records the output a pending connection starts
// from. nil clears it.
func (g *Graph) SetDraftConnectionSource(out *Output) {
	g.mu.Lock()
	g.draft = out
	g.mu.Unlock()
}

// DraftConnectionSource returns the pending connection source, or nil.
func (g *Graph) DraftConnectionSource() *Output {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.draft
}

// CommitDraftConnection connects the draft source to in, replacing any
// existing connection on in, and clears the draft.
func (g *Graph) CommitDraftConnection(in *Input) (*Connection, error) {
	g.mu.Lock()
	src := g.draft
	g.draft = nil
	g.mu.Unlock()
	if src == nil {
		return nil, ErrNoDraft
	}
	c, err := Relink(src, in)
	if err != nil {
		return nil, err
	}
	g.MarkDirty()
	return c, nil
}

// MarkDirty flags unsaved changes and asks the scheduler to persist.
func (g *Graph) MarkDirty() {
	g.mu.Lock()
	g.dirty = true
	s := g.scheduler
	g.mu.Unlock()
	if s != nil {
		s.Schedule()
	}
}

// Dirty reports whether there are unsaved changes.
func (g *Graph) Dirty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dirty
}

// MarkSaved clears the dirty flag.
func (g *Graph) MarkSaved() {
	g.mu.Lock()
	g.dirty = false
	g.mu.Unlock()
}

// Dispose clears all container state. Nodes themselves are not disposed.
func (g *Graph) Dispose() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range g.nodes {
		n.Base().graph = nil
	}
	for _, n := range g.hidden {
		n.Base().graph = nil
	}
	g.nodes = nil
	g.hidden = make(map[string]Node)
	g.positions = make(map[string]Position)
	g.hiddenPositions = make(map[string]Position)
	g.selected = nil
	g.draft = nil
	g.scheduler = nil
}
