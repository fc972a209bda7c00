package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/chazu/tslgraph/pkg/codec"
	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/nodes"
	"github.com/chazu/tslgraph/pkg/tsl"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	s := NewFileStore(fs, "graphs/main.json")

	if _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load on empty fs = %v, want ErrNotFound", err)
	}

	for _, doc := range []string{`[{"id":"a"}]`, `[]`} {
		if err := s.Save(ctx, []byte(doc)); err != nil {
			t.Fatal(err)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != doc {
			t.Errorf("Load = %s, want %s", got, doc)
		}
	}
	if ok, _ := afero.Exists(fs, "graphs/main.json.tmp"); ok {
		t.Error("temporary file left behind")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.Save(cancelled, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Save with cancelled context = %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graphs.db")

	main, err := OpenSQLite(ctx, path, "main")
	if err != nil {
		t.Fatal(err)
	}
	defer main.Close()

	if _, err := main.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load before save = %v, want ErrNotFound", err)
	}
	if err := main.Save(ctx, []byte(`[1]`)); err != nil {
		t.Fatal(err)
	}
	if err := main.Save(ctx, []byte(`[2]`)); err != nil {
		t.Fatal(err)
	}

	other := NewSQLiteStore(main.db, "other")
	if err := other.Save(ctx, []byte(`[3]`)); err != nil {
		t.Fatal(err)
	}

	got, err := main.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `[2]` {
		t.Errorf("Load = %s, want [2]", got)
	}

	names, err := main.Names(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"main", "other"}, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

// counter records saves and signals each one.
type counter struct {
	n    atomic.Int32
	done chan struct{}
	err  error
	mu   sync.Mutex
}

func newCounter() *counter { return &counter{done: make(chan struct{}, 16)} }

func (c *counter) save(context.Context) error {
	c.mu.Lock()
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.n.Add(1)
	c.done <- struct{}{}
	return nil
}

func (c *counter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for save")
	}
}

func TestAutosaverCoalesces(t *testing.T) {
	c := newCounter()
	a := NewAutosaver(c.save, WithDebounce(20*time.Millisecond), WithMaxWait(0))

	for i := 0; i < 10; i++ {
		a.Schedule()
	}
	c.wait(t)
	time.Sleep(60 * time.Millisecond)
	if got := c.n.Load(); got != 1 {
		t.Errorf("saves = %d, want 1", got)
	}
	if a.Pending() {
		t.Error("nothing should be pending after the save")
	}
}

func TestAutosaverCeiling(t *testing.T) {
	c := newCounter()
	a := NewAutosaver(c.save, WithDebounce(time.Hour), WithMaxWait(2*time.Second))
	clock := time.Unix(1000, 0)
	a.now = func() time.Time { return clock }

	a.Schedule()
	clock = clock.Add(time.Second)
	a.Schedule()
	if got := c.n.Load(); got != 0 {
		t.Fatalf("saved %d times before the ceiling", got)
	}

	clock = clock.Add(1500 * time.Millisecond)
	a.Schedule()
	if got := c.n.Load(); got != 1 {
		t.Errorf("saves = %d, want 1 once dirty for longer than MaxWait", got)
	}
	if a.Pending() {
		t.Error("ceiling save should clear pending state")
	}
}

func TestAutosaverDispatcher(t *testing.T) {
	c := newCounter()
	queue := make(chan func(), 4)
	a := NewAutosaver(c.save,
		WithDebounce(5*time.Millisecond),
		WithDispatcher(func(fn func()) { queue <- fn }))

	a.Schedule()
	select {
	case fn := <-queue:
		if c.n.Load() != 0 {
			t.Fatal("save ran before the owner dispatched it")
		}
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("nothing dispatched")
	}
	c.wait(t)
}

func TestAutosaverFailedSaveStaysPending(t *testing.T) {
	c := newCounter()
	c.err = errors.New("disk full")
	a := NewAutosaver(c.save, WithDebounce(time.Hour))

	a.Schedule()
	if err := a.Flush(context.Background()); err == nil {
		t.Fatal("expected save error")
	}
	if !a.Pending() {
		t.Fatal("failed save should stay pending")
	}

	c.mu.Lock()
	c.err = nil
	c.mu.Unlock()
	if err := a.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := c.n.Load(); got != 1 {
		t.Errorf("saves = %d, want 1", got)
	}

	a.Schedule()
	if a.Pending() {
		t.Error("closed autosaver should ignore requests")
	}
}

func TestSaveAndLoadGraph(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(afero.NewMemMapFs(), "graph.json")
	c := codec.New(nodes.Registry())

	g := graph.New()
	fresh, err := LoadGraph(ctx, g, c, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh.Nodes()) != 0 {
		t.Fatal("empty store should load an empty graph")
	}

	a := NewAutosaver(SaveGraph(g, c, s), WithDebounce(time.Hour))
	g.SetScheduler(a)

	f := nodes.MustNew("Float")
	f.Base().LocalName = "f"
	if err := f.Base().Input("a").Set(tsl.Num(4)); err != nil {
		t.Fatal(err)
	}
	g.SetNodes(graph.Placement{Node: f, Position: graph.Position{X: 3, Y: 4}})
	if !g.Dirty() || !a.Pending() {
		t.Fatal("SetNodes should mark the graph dirty and schedule a save")
	}
	if err := a.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if g.Dirty() {
		t.Error("graph should be marked saved")
	}

	loaded := graph.New()
	if _, err := LoadGraph(ctx, loaded, c, s); err != nil {
		t.Fatal(err)
	}
	ns := loaded.Nodes()
	if len(ns) != 1 || ns[0].Base().LocalName != "f" {
		t.Fatalf("loaded nodes = %v", ns)
	}
	if got := tsl.Format(ns[0].Base().Input("a").Value()()); got != "4" {
		t.Errorf("f.a = %s", got)
	}
}
