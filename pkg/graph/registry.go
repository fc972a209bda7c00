package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Factory constructs a fresh node of one kind.
type Factory func() Node

// Registry maps type names to node factories. It is populated at startup
// and consulted by the codec when reconstructing saved graphs.
type Registry struct {
	mu  sync.RWMutex
	all map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{all: make(map[string]Factory)}
}

// Register adds a factory under name. Registering a name twice panics.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.all[name]; exists {
		panic(fmt.Sprintf("node type '%s' already registered", name))
	}
	r.all[name] = f
}

// New instantiates the node type registered under name.
func (r *Registry) New(name string) (Node, error) {
	r.mu.RLock()
	f, ok := r.all[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown node type %q", name)
	}
	return f(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.all[name]
	return ok
}

// Names returns every registered type name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.all)
	sort.Strings(names)
	return names
}
