package store

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/hashicorp/go-hclog"
)

const (
	DefaultDebounce = 250 * time.Millisecond
	DefaultMaxWait  = 2 * time.Second
)

// Autosaver coalesces save requests. Each Schedule restarts a debounce
// timer; once the graph has been dirty for MaxWait, the next Schedule
// saves immediately so continuous editing still gets flushed.
//
// Saves run on the timer goroutine unless a dispatcher is set, in which
// case the dispatcher decides where they run. Graphs are not safe for
// concurrent use, so owners driving a graph from one goroutine should
// dispatch onto it.
type Autosaver struct {
	save     func(context.Context) error
	debounce func(func())
	maxWait  time.Duration
	dispatch func(func())
	logger   hclog.Logger
	now      func() time.Time

	mu         sync.Mutex
	dirtySince time.Time
	closed     bool

	saveMu sync.Mutex
}

// AutosaveOption configures an Autosaver.
type AutosaveOption func(*autosaveConfig)

type autosaveConfig struct {
	debounce time.Duration
	maxWait  time.Duration
	dispatch func(func())
	logger   hclog.Logger
}

// WithDebounce sets the quiet period before a save.
func WithDebounce(d time.Duration) AutosaveOption {
	return func(c *autosaveConfig) { c.debounce = d }
}

// WithMaxWait sets the ceiling on how long a dirty graph may go unsaved
// while edits keep arriving. Zero disables the ceiling.
func WithMaxWait(d time.Duration) AutosaveOption {
	return func(c *autosaveConfig) { c.maxWait = d }
}

// WithDispatcher runs saves through fn instead of on the timer goroutine.
func WithDispatcher(fn func(func())) AutosaveOption {
	return func(c *autosaveConfig) { c.dispatch = fn }
}

// WithLogger sets the logger for failed saves.
func WithLogger(l hclog.Logger) AutosaveOption {
	return func(c *autosaveConfig) { c.logger = l }
}

// NewAutosaver returns an autosaver that calls save.
func NewAutosaver(save func(context.Context) error, opts ...AutosaveOption) *Autosaver {
	cfg := autosaveConfig{
		debounce: DefaultDebounce,
		maxWait:  DefaultMaxWait,
		dispatch: func(fn func()) { fn() },
		logger:   hclog.NewNullLogger(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Autosaver{
		save:     save,
		debounce: debounce.New(cfg.debounce),
		maxWait:  cfg.maxWait,
		dispatch: cfg.dispatch,
		logger:   cfg.logger,
		now:      time.Now,
	}
}

// Schedule implements graph.Scheduler.
func (a *Autosaver) Schedule() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	now := a.now()
	if a.dirtySince.IsZero() {
		a.dirtySince = now
	}
	overdue := a.maxWait > 0 && now.Sub(a.dirtySince) >= a.maxWait
	a.mu.Unlock()

	if overdue {
		a.logger.Debug("save ceiling reached, saving now")
		a.dispatch(a.run)
		return
	}
	a.debounce(func() { a.dispatch(a.run) })
}

func (a *Autosaver) run() {
	if err := a.Flush(context.Background()); err != nil {
		a.logger.Error("autosave failed", "error", err)
	}
}

// Pending reports whether a save is outstanding.
func (a *Autosaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.dirtySince.IsZero()
}

// Flush saves now if anything is pending. A failed save stays pending.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	since := a.dirtySince
	a.dirtySince = time.Time{}
	a.mu.Unlock()
	if since.IsZero() {
		return nil
	}

	if err := a.save(ctx); err != nil {
		a.mu.Lock()
		if a.dirtySince.IsZero() {
			a.dirtySince = since
		}
		a.mu.Unlock()
		return err
	}
	return nil
}

// Close stops accepting requests and flushes pending work.
func (a *Autosaver) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return a.Flush(ctx)
}
