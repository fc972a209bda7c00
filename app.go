package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/chazu/tslgraph/pkg/codec"
	"github.com/chazu/tslgraph/pkg/codegen"
	"github.com/chazu/tslgraph/pkg/config"
	"github.com/chazu/tslgraph/pkg/engine"
	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/nodes"
	"github.com/chazu/tslgraph/pkg/preview"
	"github.com/chazu/tslgraph/pkg/store"
	"github.com/chazu/tslgraph/pkg/tsl"
)

// App is the backend the CLI commands call. It owns the shared engine,
// codec and logger; every call opens its own graph.
type App struct {
	cfg      *config.Config
	fs       afero.Fs
	logger   hclog.Logger
	engine   *engine.Engine
	registry *graph.Registry
	codec    *codec.Codec
}

// DiagnosticData is a JSON-serializable problem report.
type DiagnosticData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// CheckResult describes a compiled custom node source.
type CheckResult struct {
	Inputs  []string         `json:"inputs"`
	Symbols []string         `json:"symbols"`
	Output  string           `json:"output"`
	Errors  []DiagnosticData `json:"errors"`
}

// CompileResult is the generated program for one sink.
type CompileResult struct {
	Source   string           `json:"source"`
	Imports  []string         `json:"imports"`
	Tree     string           `json:"tree"`
	Errors   []DiagnosticData `json:"errors"`
	Warnings []DiagnosticData `json:"warnings"`
}

// NewApp creates an App. A nil fs uses the OS filesystem.
func NewApp(cfg *config.Config, fs afero.Fs, logger hclog.Logger) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	eng := engine.NewEngine(engine.WithLogger(logger.Named("engine")))
	reg := nodes.Registry()
	return &App{
		cfg:      cfg,
		fs:       fs,
		logger:   logger,
		engine:   eng,
		registry: reg,
		codec:    codec.New(reg, codec.WithCompiler(eng), codec.WithLogger(logger.Named("codec"))),
	}
}

// Check compiles a custom node source and evaluates it with every input at
// its default.
func (a *App) Check(source string) CheckResult {
	result := CheckResult{Inputs: []string{}, Symbols: []string{}, Errors: []DiagnosticData{}}

	def, errs, err := a.engine.Compile(source)
	if err != nil {
		a.logger.Error("compile failed", "error", err)
		result.Errors = append(result.Errors, DiagnosticData{Message: err.Error()})
		return result
	}
	for _, e := range errs {
		result.Errors = append(result.Errors, DiagnosticData{Line: e.Line, Col: e.Col, Message: e.Kind.String() + ": " + e.Message})
	}
	if len(errs) > 0 {
		return result
	}

	result.Inputs = def.Inputs()
	result.Symbols = def.Symbols()
	n := def.NewNode()
	if n.Err() != nil {
		result.Errors = append(result.Errors, DiagnosticData{Message: n.Err().Error()})
		return result
	}
	result.Output = tsl.Format(n.Outputs()[0].Value()())
	return result
}

// openStore returns the store for ref. An empty ref uses the configured
// store; a ref ending in .db is a sqlite database; anything else is a JSON
// file.
func (a *App) openStore(ctx context.Context, ref string) (store.Store, func() error, error) {
	kind, p := a.cfg.Store.Kind, a.cfg.Store.Path
	if ref != "" {
		kind, p = "file", ref
		if filepath.Ext(ref) == ".db" {
			kind = "sqlite"
		}
	}
	if kind == "sqlite" {
		s, err := store.OpenSQLite(ctx, p, a.cfg.Store.Name)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return store.NewFileStore(a.fs, p), func() error { return nil }, nil
}

// Session is a graph opened for editing. Edits mark an autosaver pending
// and Close writes them.
type Session struct {
	Graph    *graph.Graph
	Warnings []DiagnosticData

	saver *store.Autosaver
	close func() error
}

// Close flushes pending saves and releases the store.
func (s *Session) Close(ctx context.Context) error {
	var result *multierror.Error
	if s.saver != nil {
		if err := s.saver.Close(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := s.close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Open loads the graph behind ref and attaches an autosaver to it.
func (a *App) Open(ctx context.Context, ref string) (*Session, error) {
	s, closeStore, err := a.openStore(ctx, ref)
	if err != nil {
		return nil, err
	}
	g := graph.New(graph.WithLogger(a.logger.Named("graph")))
	snap, err := store.LoadGraph(ctx, g, a.codec, s)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("load graph: %w", err)
	}

	// The graph is edited on the caller's goroutine, so timer-driven saves
	// stay pending and Close writes them from there.
	saver := store.NewAutosaver(store.SaveGraph(g, a.codec, s),
		store.WithDebounce(a.cfg.Store.DebounceDuration),
		store.WithMaxWait(a.cfg.Store.MaxWaitDuration),
		store.WithDispatcher(func(func()) {}),
		store.WithLogger(a.logger.Named("autosave")))
	g.SetScheduler(saver)

	return &Session{
		Graph:    g,
		Warnings: warnings(snap.Warnings()),
		saver:    saver,
		close:    closeStore,
	}, nil
}

func warnings(err error) []DiagnosticData {
	out := []DiagnosticData{}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			out = append(out, DiagnosticData{Message: e.Error()})
		}
	} else if err != nil {
		out = append(out, DiagnosticData{Message: err.Error()})
	}
	return out
}

// FindNode looks a node up by id, local name or generated variable name.
func FindNode(g *graph.Graph, ref string) (graph.Node, error) {
	if n, ok := g.Node(ref); ok {
		return n, nil
	}
	for _, n := range g.AllNodes() {
		if n.Base().LocalName == ref || graph.VarName(n) == ref {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", ref, graph.ErrNodeNotFound)
}

// findSink resolves ref, or picks the first visible material when ref is
// empty.
func findSink(g *graph.Graph, ref string) (graph.Node, error) {
	if ref != "" {
		return FindNode(g, ref)
	}
	for _, n := range g.Nodes() {
		if _, ok := n.(*nodes.Material); ok {
			return n, nil
		}
	}
	return nil, errors.New("graph has no material; name a sink node")
}

// Compile generates the program for sink in the graph behind ref. An empty
// trace compiles the whole tree.
func (a *App) Compile(ctx context.Context, ref, sink, trace string) CompileResult {
	result := CompileResult{Imports: []string{}, Errors: []DiagnosticData{}, Warnings: []DiagnosticData{}}

	sess, err := a.Open(ctx, ref)
	if err != nil {
		result.Errors = append(result.Errors, DiagnosticData{Message: err.Error()})
		return result
	}
	defer sess.Close(ctx)
	result.Warnings = sess.Warnings

	n, err := findSink(sess.Graph, sink)
	if err != nil {
		result.Errors = append(result.Errors, DiagnosticData{Message: err.Error()})
		return result
	}

	opts := []codegen.Option{
		codegen.WithImportSource(a.cfg.ImportSource),
		codegen.WithLogger(a.logger.Named("codegen")),
	}
	if trace != "" {
		opts = append(opts, codegen.WithTraceInput(trace))
	}
	res, err := codegen.Compile(sess.Graph, n, opts...)
	if err != nil {
		a.logger.Debug("codegen failed", "sink", graph.VarName(n), "error", err)
		result.Errors = append(result.Errors, DiagnosticData{Message: err.Error()})
		return result
	}
	result.Source = res.Source
	result.Imports = res.Imports
	result.Tree = res.Tree.String()
	return result
}

// Validate runs the structural checks on the graph behind ref.
func (a *App) Validate(ctx context.Context, ref string) ([]graph.ValidationError, []DiagnosticData, error) {
	sess, err := a.Open(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	defer sess.Close(ctx)
	return graph.Validate(sess.Graph), sess.Warnings, nil
}

// Preview renders every visible node of the graph behind ref into dir and
// returns the written file names.
func (a *App) Preview(ctx context.Context, ref, dir string, t float64) ([]string, error) {
	sess, err := a.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer sess.Close(ctx)

	swatches, err := preview.RenderGraph(ctx, sess.Graph, preview.Options{
		Width:  a.cfg.Preview.Width,
		Height: a.cfg.Preview.Height,
		Time:   t,
		Logger: a.logger.Named("preview"),
	})
	if err != nil {
		return nil, err
	}
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	var written []string
	for _, s := range swatches {
		name := filepath.Join(dir, s.Name()+".png")
		f, err := a.fs.Create(name)
		if err != nil {
			return written, fmt.Errorf("create %s: %w", name, err)
		}
		err = preview.EncodePNG(f, s.Image)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return written, fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}

// AddNode instantiates typ, or compiles fnSource into a custom node when it
// is not empty, and places it in the graph behind ref.
func (a *App) AddNode(ctx context.Context, ref, typ, fnSource, name string, pos graph.Position) (graph.Node, error) {
	sess, err := a.Open(ctx, ref)
	if err != nil {
		return nil, err
	}

	var n graph.Node
	if fnSource != "" {
		n, err = a.engine.NewCustomNode(fnSource)
	} else {
		n, err = a.registry.New(typ)
	}
	if err != nil {
		return nil, errors.Join(err, sess.Close(ctx))
	}
	if name != "" {
		if _, err := FindNode(sess.Graph, name); err == nil {
			return nil, errors.Join(fmt.Errorf("name %q is already used", name), sess.Close(ctx))
		}
		n.Base().LocalName = name
	}
	sess.Graph.SetNodes(graph.Placement{Node: n, Position: pos})
	return n, sess.Close(ctx)
}

// splitPort splits "node.port" at its last dot.
func splitPort(ref string) (node, port string, err error) {
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return "", "", fmt.Errorf("%q: want node.port", ref)
	}
	return ref[:i], ref[i+1:], nil
}

func (a *App) input(g *graph.Graph, ref string) (*graph.Input, error) {
	nodeRef, key, err := splitPort(ref)
	if err != nil {
		return nil, err
	}
	n, err := FindNode(g, nodeRef)
	if err != nil {
		return nil, err
	}
	in := n.Base().Input(key)
	if in == nil {
		return nil, fmt.Errorf("%s has no input %q", graph.VarName(n), key)
	}
	return in, nil
}

func (a *App) output(g *graph.Graph, ref string) (*graph.Output, error) {
	nodeRef, key, err := splitPort(ref)
	if err != nil {
		return nil, err
	}
	n, err := FindNode(g, nodeRef)
	if err != nil {
		return nil, err
	}
	out := n.Base().Output(key)
	if out == nil {
		return nil, fmt.Errorf("%s has no output %q", graph.VarName(n), key)
	}
	return out, nil
}

// Connect wires from (node.output) into to (node.input). With replace set
// an existing connection on the input is swapped out.
func (a *App) Connect(ctx context.Context, ref, from, to string, replace bool) error {
	sess, err := a.Open(ctx, ref)
	if err != nil {
		return err
	}
	err = func() error {
		out, err := a.output(sess.Graph, from)
		if err != nil {
			return err
		}
		in, err := a.input(sess.Graph, to)
		if err != nil {
			return err
		}
		if replace {
			sess.Graph.SetDraftConnectionSource(out)
			_, err = sess.Graph.CommitDraftConnection(in)
			return err
		}
		if _, err := out.Connect(in); err != nil {
			return err
		}
		sess.Graph.MarkDirty()
		return nil
	}()
	return errors.Join(err, sess.Close(ctx))
}

// SetInput writes a numeric literal to an unconnected input.
func (a *App) SetInput(ctx context.Context, ref, to, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("value %q: %w", value, err)
	}
	sess, err := a.Open(ctx, ref)
	if err != nil {
		return err
	}
	err = func() error {
		in, err := a.input(sess.Graph, to)
		if err != nil {
			return err
		}
		if err := in.Set(tsl.Num(v)); err != nil {
			return err
		}
		sess.Graph.MarkDirty()
		return nil
	}()
	return errors.Join(err, sess.Close(ctx))
}

// NodeTypes lists the registered node types plus the custom node type.
func (a *App) NodeTypes() []string {
	return append(a.registry.Names(), engine.CustomNodeType)
}
