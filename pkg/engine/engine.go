// Package engine compiles user-authored Fn( ... ) expressions into graph
// nodes. Source is parsed with tree-sitter, checked against the shading
// language allow-list and lowered to a small tree that is interpreted on
// every recompute; no user text is ever executed on the host.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/chazu/tslgraph/pkg/graph"
)

// Engine compiles custom node source. It is safe for concurrent use, but a
// compile that finishes after a newer one started reports ErrSuperseded,
// matching an editor that recompiles on every keystroke.
type Engine struct {
	mu         sync.Mutex
	generation uint64

	timeout time.Duration
	logger  hclog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l hclog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTimeout overrides CompileTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// NewEngine creates a new Engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{timeout: CompileTimeout, logger: hclog.NewNullLogger()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Compile turns source containing exactly one Fn( ... ) expression into a
// Definition.
//
// Return semantics:
//   - On success: returns definition + nil errors + nil error
//   - On rejected source: returns nil definition + compile errors + nil error
//   - On fatal failure (timeout, panic, parser setup): returns nil + nil + error
func (e *Engine) Compile(source string) (*Definition, []*CompileError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan compileResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- compileResult{err: fmt.Errorf("panic during compile: %v", r)}
			}
		}()

		def, errs, err := e.compile(source)
		ch <- compileResult{def: def, errors: errs, err: err}
	}()

	return waitWithTimeout(ch, gen, &e.mu, &e.generation, e.timeout)
}

func (e *Engine) compile(source string) (*Definition, []*CompileError, error) {
	lit, cerr := extract(source)
	if cerr != nil {
		return nil, []*CompileError{cerr}, nil
	}

	root, errs, err := parse(lit)
	if err != nil || len(errs) > 0 {
		return nil, errs, err
	}

	if errs := validate(root); len(errs) > 0 {
		e.logger.Debug("source rejected", "errors", len(errs))
		return nil, errs, nil
	}

	prog, cerr := lower(root)
	if cerr != nil {
		return nil, []*CompileError{cerr}, nil
	}

	e.logger.Debug("compiled custom node", "inputs", len(prog.params), "symbols", prog.symbols)
	return &Definition{Source: lit.text, prog: prog}, nil, nil
}

// NewCustomNode compiles source and builds a node from it. Compile errors
// are combined into a single error.
func (e *Engine) NewCustomNode(source string) (graph.Node, error) {
	def, errs, err := e.Compile(source)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		var result *multierror.Error
		for _, ce := range errs {
			result = multierror.Append(result, ce)
		}
		return nil, result.ErrorOrNil()
	}
	return def.NewNode(), nil
}
