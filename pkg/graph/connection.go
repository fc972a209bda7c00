package graph

import (
	"errors"
	"slices"

	"github.com/google/uuid"
)

var (
	// ErrInputConnected is returned when wiring into, or writing to, an input
	// that already has a live connection.
	ErrInputConnected = errors.New("input already connected")

	// ErrCycle is returned when a connection would make a node depend on
	// itself.
	ErrCycle = errors.New("connection would create a cycle")

	// ErrDisposed is returned when operating on a disposed port.
	ErrDisposed = errors.New("port disposed")

	// ErrNodeNotFound is returned for unknown node ids.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoDraft is returned when committing without a draft source.
	ErrNoDraft = errors.New("no draft connection source")
)

// Connection is a live edge from an output to an input.
type Connection struct {
	ID   string
	From *Output
	To   *Input

	disposed bool
}

func newConnection(from *Output, to *Input) *Connection {
	return &Connection{ID: uuid.NewString(), From: from, To: to}
}

// Disposed reports whether the connection has been severed.
func (c *Connection) Disposed() bool { return c.disposed }

// Dispose removes the connection from both endpoints and reverts the input
// to its own value. Calling Dispose twice is a no-op.
func (c *Connection) Dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	c.From.connections = slices.DeleteFunc(c.From.connections, func(x *Connection) bool { return x == c })
	if c.To.connection == c {
		c.To.connection = nil
		c.To.local = c.To.def
		c.To.propagate()
	}
}

// Relink connects out to in, first severing whatever currently feeds in.
func Relink(out *Output, in *Input) (*Connection, error) {
	if reaches(in, out) {
		return nil, ErrCycle
	}
	if prev := in.Connection(); prev != nil {
		if prev.From == out {
			return prev, nil
		}
		prev.Dispose()
	}
	return out.Connect(in)
}
