// Package store persists encoded graphs. A Store holds one document; the
// Autosaver coalesces bursts of edits into a single save.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/tslgraph/pkg/codec"
	"github.com/chazu/tslgraph/pkg/graph"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("graph not found")

// Store reads and writes one encoded graph.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// SaveGraph returns a save function that encodes g and writes it to s,
// then marks g saved. It is meant for NewAutosaver.
func SaveGraph(g *graph.Graph, c *codec.Codec, s Store) func(context.Context) error {
	return func(ctx context.Context) error {
		data, err := c.Encode(g)
		if err != nil {
			return fmt.Errorf("encode graph: %w", err)
		}
		if err := s.Save(ctx, data); err != nil {
			return err
		}
		g.MarkSaved()
		return nil
	}
}

// LoadGraph reads s into g. A store with nothing saved leaves g empty and
// returns an empty snapshot.
func LoadGraph(ctx context.Context, g *graph.Graph, c *codec.Codec, s Store) (*codec.Snapshot, error) {
	data, err := s.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		data, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.Load(g, data)
}
