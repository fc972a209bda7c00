package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/chazu/tslgraph/pkg/config"
	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/logging"
)

// Meta holds what every command shares: the UI, the filesystem and the
// flags common to all commands.
type Meta struct {
	Ui     cli.Ui
	Ctx    context.Context
	FS     afero.Fs     // nil uses the OS filesystem
	Logger hclog.Logger // nil builds one from the config

	configPath string
	logLevel   string
	graphRef   string
}

func (m *Meta) context() context.Context {
	if m.Ctx == nil {
		return context.Background()
	}
	return m.Ctx
}

func (m *Meta) fs() afero.Fs {
	if m.FS == nil {
		return afero.NewOsFs()
	}
	return m.FS
}

// flagSet returns a flag set carrying the common flags.
func (m *Meta) flagSet(name string) *flag.FlagSet {
	f := flag.NewFlagSet(name, flag.ContinueOnError)
	f.SetOutput(io.Discard)
	f.StringVar(&m.configPath, "config", "", "")
	f.StringVar(&m.logLevel, "log-level", "", "")
	f.StringVar(&m.graphRef, "graph", "", "")
	return f
}

// app loads the configuration and builds the App. Call after parsing.
func (m *Meta) app() (*App, error) {
	fsys := m.fs()
	cfg, err := config.Load(fsys, m.configPath)
	if err != nil {
		return nil, err
	}
	if m.logLevel != "" {
		cfg.LogLevel = m.logLevel
	}
	logger := m.Logger
	if logger == nil {
		logger = logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogFormat == "json"})
	}
	return NewApp(cfg, fsys, logger), nil
}

func (m *Meta) diagnostics(prefix string, ds []DiagnosticData) {
	for _, d := range ds {
		if d.Line > 0 {
			m.Ui.Error(fmt.Sprintf("%s: %d:%d: %s", prefix, d.Line, d.Col, d.Message))
		} else {
			m.Ui.Error(fmt.Sprintf("%s: %s", prefix, d.Message))
		}
	}
}

func (m *Meta) outputJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		m.Ui.Error(err.Error())
		return 1
	}
	m.Ui.Output(string(data))
	return 0
}

const commonHelp = `
Common options:
  -config=path     HCL configuration file (default tslgraph.hcl if present)
  -log-level=lvl   Override the configured log level
  -graph=ref       Graph to open: a .json file or a .db sqlite database.
                   Defaults to the configured store.
`

func commands(meta Meta) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"compile":  func() (cli.Command, error) { return &CompileCommand{Meta: meta}, nil },
		"tree":     func() (cli.Command, error) { return &TreeCommand{Meta: meta}, nil },
		"validate": func() (cli.Command, error) { return &ValidateCommand{Meta: meta}, nil },
		"check":    func() (cli.Command, error) { return &CheckCommand{Meta: meta}, nil },
		"preview":  func() (cli.Command, error) { return &PreviewCommand{Meta: meta}, nil },
		"nodes":    func() (cli.Command, error) { return &NodesCommand{Meta: meta}, nil },
		"add":      func() (cli.Command, error) { return &AddCommand{Meta: meta}, nil },
		"connect":  func() (cli.Command, error) { return &ConnectCommand{Meta: meta}, nil },
		"set":      func() (cli.Command, error) { return &SetCommand{Meta: meta}, nil },
		"watch":    func() (cli.Command, error) { return &WatchCommand{Meta: meta}, nil },
	}
}

// ----------------------------------------------------------------------------
// compile, tree
// ----------------------------------------------------------------------------

// CompileCommand prints the generated program for a sink.
type CompileCommand struct {
	Meta
}

func (c *CompileCommand) Run(args []string) int {
	f := c.flagSet("compile")
	sink := f.String("sink", "", "")
	trace := f.String("trace", "", "")
	asJSON := f.Bool("json", false, "")
	if err := f.Parse(args); err != nil {
		c.Ui.Error(err.Error())
		return cli.RunResultHelp
	}
	app, err := c.app()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	res := app.Compile(c.context(), c.graphRef, *sink, *trace)
	if *asJSON {
		if code := c.outputJSON(res); code != 0 || len(res.Errors) > 0 {
			return 1
		}
		return 0
	}
	c.diagnostics("warning", res.Warnings)
	if len(res.Errors) > 0 {
		c.diagnostics("error", res.Errors)
		return 1
	}
	c.Ui.Output(res.Source)
	return 0
}

func (c *CompileCommand) Help() string {
	return strings.TrimSpace(`
Usage: tslgraph compile [options]

  Generates the TSL program for a sink node and prints it.

Options:
  -sink=name     Node to compile. Defaults to the first material.
  -trace=input   Compile only the subtree feeding this input of the sink.
  -json          Print the result, imports and diagnostics as JSON.
` + commonHelp)
}

func (c *CompileCommand) Synopsis() string {
	return "Generate the TSL program for a graph"
}

// TreeCommand prints the dependency tree of a sink.
type TreeCommand struct {
	Meta
}

func (c *TreeCommand) Run(args []string) int {
	f := c.flagSet("tree")
	sink := f.String("sink", "", "")
	trace := f.String("trace", "", "")
	if err := f.Parse(args); err != nil {
		c.Ui.Error(err.Error())
		return cli.RunResultHelp
	}
	app, err := c.app()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	res := app.Compile(c.context(), c.graphRef, *sink, *trace)
	if len(res.Errors) > 0 {
		c.diagnostics("error", res.Errors)
		return 1
	}
	c.Ui.Output(strings.TrimRight(res.Tree, "\n"))
	return 0
}

func (c *TreeCommand) Help() string {
	return strings.TrimSpace(`
Usage: tslgraph tree [options]

  Prints the dependency tree code generation walks for a sink.

Options:
  -sink=name     Node to start from. Defaults to the first material.
  -trace=input   Only the subtree feeding this input of the sink.
` + commonHelp)
}

func (c *TreeCommand) Synopsis() string {
	return "Show the dependency tree of a sink"
}

// ----------------------------------------------------------------------------
// validate, check, nodes
// ----------------------------------------------------------------------------

// ValidateCommand runs the structural checks.
type ValidateCommand struct {
	Meta
}

func (c *ValidateCommand) Run(args []string) int {
	f := c.flagSet("validate")
	if err := f.Parse(args); err != nil {
		c.Ui.Error(err.Error())
		return cli.RunResultHelp
	}
	app, err := c.app()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	findings, warnings, err := app.Validate(c.context(), c.graphRef)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	c.diagnostics("warning", warnings)
	for _, v := range findings {
		if v.Severity == graph.SeverityError {
			c.Ui.Error(v.Error())
		} else {
			c.Ui.Warn(v.Error())
		}
	}
	if graph.HasErrors(findings) {
		return 1
	}
	c.Ui.Output("graph is valid")
	return 0
}

func (c *ValidateCommand) Help() string {
	return strings.TrimSpace(`
Usage: tslgraph validate [options]

  Checks the graph for cycles, dangling connections and variable name
  collisions.
` + commonHelp)
}

func (c *ValidateCommand) Synopsis() string {
	return "Check a graph for structural problems"
}

// CheckCommand compiles a custom node source file.
type CheckCommand struct {
	Meta
}

func (c *CheckCommand) Run(args []string) int {
	f := c.flagSet("check")
	asJSON := f.Bool("json", false, "")
	if err := f.Parse(args); err != nil {
		c.Ui.Error(err.Error())
		return cli.RunResultHelp
	}
	if f.NArg() != 1 {
		c.Ui.Error("check needs exactly one source file")
		return cli.RunResultHelp
	}
	app, err := c.app()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	src, err := afero.ReadFile(c.fs(), f.Arg(0))
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	res := app.Check(string(src))
	if *asJSON {
		if code := c.outputJSON(res); code != 0 || len(res.Errors) > 0 {
			return 1
		}
		return 0
	}
	if len(res.Errors) > 0 {
		c.diagnostics(f.Arg(0), res.Errors)
		return 1
	}
	c.Ui.Output(fmt.Sprintf("inputs:  %s", strings.Join(res.Inputs, ", ")))
	c.Ui.Output(fmt.Sprintf("symbols: %s", strings.Join(res.Symbols, ", ")))
	c.Ui.Output(fmt.Sprintf("output:  %s", res.Output))
	return 0
}

func (c *CheckCommand) Help() string {
	return strings.TrimSpace(`
Usage: tslgraph check [options] FILE

  Compiles the Fn(...) expression in FILE the way a custom node does and
  reports its inputs, the TSL symbols it uses and its output with every
  input at its default.

Options:
  -json          Print the result as JSON.
` + commonHelp)
}

func (c *CheckCommand) Synopsis() string {
	return "Compile a custom node source file"
}

// NodesCommand lists the node types.
type NodesCommand struct {
	Meta
}

func (c *NodesCommand) Run(args []string) int {
	f := c.flagSet("nodes")
	if err := f.Parse(args); err != nil {
		c.Ui.Error(err.Error())
		return cli.RunResultHelp
	}
	app, err := c.app()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	for _, name := range app.NodeTypes() {
		c.Ui.Output(name)
	}
	return 0
}

func (c *NodesCommand) Help() string {
	return strings.TrimSpace(`
Usage: tslgraph nodes

  Lists every node type that can be added to a graph.
`)
}

func (c *NodesCommand) Synopsis() string {
	return "List node types"
}

// ----------------------------------------------------------------------------
// preview
// ----------------------------------------------------------------------------

// PreviewCommand renders node swatches to PNG files.
type PreviewCommand struct {
	Meta
}

func (c *PreviewCommand) Run(args []string) int {
	f := c.flagSet("preview")
	out := f.String("out", "preview", "")
	t := f.Float64("time", 0, "")
	if err := f.Parse(args); err != nil {
		c.Ui.Error(err.Error())
		return cli.RunResultHelp
	}
	app, err := c.app()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	written, err := app.Preview(c.context(), c.graphRef, *out, *t)
	for _, name := range written {
		c.Ui.Output(name)
	}
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	return 0
}

func (c *PreviewCommand) Help() string {
	return strings.TrimSpace(`
Usage: tslgraph preview [options]

  Renders every visible node output that can be evaluated on the CPU to a
  PNG swatch named after the node and output.

Options:
  -out=dir       Directory to write into (default preview).
  -time=t        Value of the time uniform.
` + commonHelp)
}

func (c *PreviewCommand) Synopsis() string {
	return "Render node swatches to PNG"
}

// ----------------------------------------------------------------------------
// add, connect, set
// ----------------------------------------------------------------------------

// AddCommand places a new node.
type AddCommand struct {
	Meta
}

func (c *AddCommand) Run(args []string) int {
	f := c.flagSet("add")
	name := f.String("name", "", "")
	fnFile := f.String("fn", "", "")
	x := f.Float64("x", 0, "")
	y := f.Float64("y", 0, "")
	if err := f.Parse(args); err != nil {
		c.Ui.Error(err.Error())
		return cli.RunResultHelp
	}
	if (*fnFile == "") == (f.NArg() == 0) || f.NArg() > 1 {
		c.Ui.Error("add needs either a node type or -fn")
		return cli.RunResultHelp
	}
	app, err := c.app()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	var src string
	if *fnFile != "" {
		data, err := afero.ReadFile(c.fs(), *fnFile)
		if err != nil {
			c.Ui.Error(err.Error())
			return 1
		}
		src = string(data)
	}

	n, err := app.AddNode(c.context(), c.graphRef, f.Arg(0), src, *name, graph.Position{X: *x, Y: *y})
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	c.Ui.Output(fmt.Sprintf("added %s %s (%s)", n.Base().Type, graph.VarName(n), n.Base().ID))
	return 0
}

func (c *AddCommand) Help() string {
	return strings.TrimSpace(`
Usage: tslgraph add [options] TYPE
       tslgraph add [options] -fn=FILE

  Adds a node of TYPE, or a custom node compiled from FILE, to the graph.

Options:
  -name=name     Variable name for the node's statement.
  -x, -y         Position on the canvas.
` + commonHelp)
}

func (c *AddCommand) Synopsis() string {
	return "Add a node to a graph"
}

// ConnectCommand wires an output into an input.
type ConnectCommand struct {
	Meta
}

func (c *ConnectCommand) Run(args []string) int {
	f := c.flagSet("connect")
	replace := f.Bool("replace", false, "")
	if err := f.Parse(args); err != nil {
		c.Ui.Error(err.Error())
		return cli.RunResultHelp
	}
	if f.NArg() != 2 {
		c.Ui.Error("connect needs FROM and TO")
		return cli.RunResultHelp
	}
	app, err := c.app()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	if err := app.Connect(c.context(), c.graphRef, f.Arg(0), f.Arg(1), *replace); err != nil {
		if errors.Is(err, graph.ErrInputConnected) {
			err = fmt.Errorf("%w; use -replace to swap it", err)
		}
		c.Ui.Error(err.Error())
		return 1
	}
	c.Ui.Output(fmt.Sprintf("connected %s -> %s", f.Arg(0), f.Arg(1)))
	return 0
}

func (c *ConnectCommand) Help() string {
	return strings.TrimSpace(`
Usage: tslgraph connect [options] NODE.OUTPUT NODE.INPUT

  Connects an output to an input. Connections that would form a cycle are
  refused.

Options:
  -replace       Replace an existing connection on the input.
` + commonHelp)
}

func (c *ConnectCommand) Synopsis() string {
	return "Connect two ports"
}

// SetCommand writes a literal into an input.
type SetCommand struct {
	Meta
}

func (c *SetCommand) Run(args []string) int {
	f := c.flagSet("set")
	if err := f.Parse(args); err != nil {
		c.Ui.Error(err.Error())
		return cli.RunResultHelp
	}
	if f.NArg() != 2 {
		c.Ui.Error("set needs NODE.INPUT and VALUE")
		return cli.RunResultHelp
	}
	app, err := c.app()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	if err := app.SetInput(c.context(), c.graphRef, f.Arg(0), f.Arg(1)); err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	return 0
}

func (c *SetCommand) Help() string {
	return strings.TrimSpace(`
Usage: tslgraph set [options] NODE.INPUT VALUE

  Sets an unconnected input to a number.
` + commonHelp)
}

func (c *SetCommand) Synopsis() string {
	return "Set an input value"
}

// ----------------------------------------------------------------------------
// watch
// ----------------------------------------------------------------------------

// WatchCommand recompiles a graph file whenever it changes.
type WatchCommand struct {
	Meta

	// ready is closed once the watcher is installed. Tests wait on it.
	ready chan struct{}
}

func (c *WatchCommand) Run(args []string) int {
	f := c.flagSet("watch")
	sink := f.String("sink", "", "")
	out := f.String("out", "", "")
	delay := f.Duration("delay", 100*time.Millisecond, "")
	if err := f.Parse(args); err != nil {
		c.Ui.Error(err.Error())
		return cli.RunResultHelp
	}
	app, err := c.app()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	ref := c.graphRef
	if ref == "" {
		if app.cfg.Store.Kind != "file" {
			c.Ui.Error("watch needs a JSON graph file; pass -graph")
			return 1
		}
		ref = app.cfg.Store.Path
	}
	if filepath.Ext(ref) == ".db" {
		c.Ui.Error("watch needs a JSON graph file, not a database")
		return 1
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	defer watcher.Close()
	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(ref)); err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	ctx := c.context()
	emit := func() {
		res := app.Compile(ctx, ref, *sink, "")
		c.diagnostics("warning", res.Warnings)
		if len(res.Errors) > 0 {
			c.diagnostics("error", res.Errors)
			return
		}
		if *out == "" {
			c.Ui.Output(res.Source)
			return
		}
		if err := afero.WriteFile(c.fs(), *out, []byte(res.Source+"\n"), 0o644); err != nil {
			c.Ui.Error(err.Error())
			return
		}
		app.logger.Info("compiled", "graph", ref, "out", *out)
	}

	emit()
	if c.ready != nil {
		close(c.ready)
	}

	trigger := make(chan struct{}, 1)
	debounced := debounce.New(*delay)
	target := filepath.Clean(ref)
	for {
		select {
		case <-ctx.Done():
			return 0
		case ev, ok := <-watcher.Events:
			if !ok {
				return 0
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			debounced(func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return 0
			}
			app.logger.Warn("watch error", "error", err)
		case <-trigger:
			emit()
		}
	}
}

func (c *WatchCommand) Help() string {
	return strings.TrimSpace(`
Usage: tslgraph watch [options]

  Compiles the graph file, then recompiles whenever it changes on disk.

Options:
  -sink=name     Node to compile. Defaults to the first material.
  -out=file      Write the program to file instead of printing it.
  -delay=d       Quiet period before recompiling (default 100ms).
` + commonHelp)
}

func (c *WatchCommand) Synopsis() string {
	return "Recompile a graph file on every change"
}
