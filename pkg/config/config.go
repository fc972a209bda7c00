// Package config loads tslgraph settings from an HCL file. Every setting
// is optional; missing ones take the defaults from Default.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
)

// DefaultFile is the config file looked up in the working directory when
// no path is given.
const DefaultFile = "tslgraph.hcl"

// Config is the decoded configuration.
type Config struct {
	LogLevel     string         `hcl:"log_level,optional"`
	LogFormat    string         `hcl:"log_format,optional"`
	ImportSource string         `hcl:"import_source,optional"`
	Store        *StoreConfig   `hcl:"store,block"`
	Preview      *PreviewConfig `hcl:"preview,block"`
}

// StoreConfig selects where graphs are persisted.
type StoreConfig struct {
	Kind     string `hcl:"kind,optional"` // file or sqlite
	Path     string `hcl:"path,optional"`
	Name     string `hcl:"name,optional"` // row name in a sqlite store
	Debounce string `hcl:"debounce,optional"`
	MaxWait  string `hcl:"max_wait,optional"`

	DebounceDuration time.Duration
	MaxWaitDuration  time.Duration
}

// PreviewConfig sizes rendered swatches.
type PreviewConfig struct {
	Width  int `hcl:"width,optional"`
	Height int `hcl:"height,optional"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	_ = c.Validate() // fills the durations; defaults always validate
	return c
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.ImportSource == "" {
		c.ImportSource = "three/tsl"
	}
	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	if c.Store.Kind == "" {
		c.Store.Kind = "file"
	}
	if c.Store.Path == "" {
		if c.Store.Kind == "sqlite" {
			c.Store.Path = "graphs.db"
		} else {
			c.Store.Path = "graph.json"
		}
	}
	if c.Store.Name == "" {
		c.Store.Name = "default"
	}
	if c.Store.Debounce == "" {
		c.Store.Debounce = "250ms"
	}
	if c.Store.MaxWait == "" {
		c.Store.MaxWait = "2s"
	}
	if c.Preview == nil {
		c.Preview = &PreviewConfig{}
	}
	if c.Preview.Width == 0 {
		c.Preview.Width = 64
	}
	if c.Preview.Height == 0 {
		c.Preview.Height = 64
	}
}

// Load reads path from fs. An empty path tries DefaultFile and falls back
// to Default when it does not exist; a named file must exist.
func Load(fs afero.Fs, path string) (*Config, error) {
	name := path
	if name == "" {
		name = DefaultFile
	}
	src, err := afero.ReadFile(fs, name)
	if err != nil {
		if path == "" && os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(src, name, environ())
}

// Parse decodes HCL source. Expressions may refer to env.NAME for the
// variables in env.
func Parse(src []byte, filename string, env map[string]string) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", filename, diags)
	}

	var c Config
	if diags := gohcl.DecodeBody(file.Body, evalContext(env), &c); diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %w", filename, diags)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &c, nil
}

func evalContext(env map[string]string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vars[k] = cty.StringVal(v)
	}
	envVal := cty.EmptyObjectVal
	if len(vars) > 0 {
		envVal = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{Variables: map[string]cty.Value{"env": envVal}}
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

var (
	logLevels  = []string{"trace", "debug", "info", "warn", "error", "off"}
	logFormats = []string{"text", "json"}
	storeKinds = []string{"file", "sqlite"}
)

// Validate checks every setting and fills the parsed durations. All
// problems are reported together.
func (c *Config) Validate() error {
	var result *multierror.Error
	oneOf := func(field, v string, allowed []string) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		result = multierror.Append(result,
			fmt.Errorf("%s: %q is not one of %s", field, v, strings.Join(allowed, ", ")))
	}
	oneOf("log_level", c.LogLevel, logLevels)
	oneOf("log_format", c.LogFormat, logFormats)
	oneOf("store.kind", c.Store.Kind, storeKinds)

	var err error
	if c.Store.DebounceDuration, err = time.ParseDuration(c.Store.Debounce); err != nil {
		result = multierror.Append(result, fmt.Errorf("store.debounce: %w", err))
	} else if c.Store.DebounceDuration <= 0 {
		result = multierror.Append(result, fmt.Errorf("store.debounce: must be positive"))
	}
	if c.Store.MaxWaitDuration, err = time.ParseDuration(c.Store.MaxWait); err != nil {
		result = multierror.Append(result, fmt.Errorf("store.max_wait: %w", err))
	} else if c.Store.MaxWaitDuration < 0 {
		result = multierror.Append(result, fmt.Errorf("store.max_wait: must not be negative"))
	}

	size := func(field string, v int) {
		if v < 1 || v > 4096 {
			result = multierror.Append(result, fmt.Errorf("%s: %d is outside 1..4096", field, v))
		}
	}
	size("preview.width", c.Preview.Width)
	size("preview.height", c.Preview.Height)
	return result.ErrorOrNil()
}
