// Package logging builds the hclog loggers used throughout tslgraph.
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Options selects the logger's name, level and format.
type Options struct {
	Name   string
	Level  string // trace, debug, info, warn, error or off
	JSON   bool
	Output io.Writer // defaults to stderr
}

// New returns a root logger. An unknown level falls back to info.
func New(o Options) hclog.Logger {
	level := hclog.LevelFromString(o.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	out := o.Output
	if out == nil {
		out = os.Stderr
	}
	name := o.Name
	if name == "" {
		name = "tslgraph"
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		JSONFormat: o.JSON,
		Output:     out,
	})
}
