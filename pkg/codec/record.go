package codec

import (
	"encoding/json"

	"github.com/chazu/tslgraph/pkg/graph"
)

// ValueKind tags how an input's value was captured.
type ValueKind string

const (
	// Primitive is a number or string literal, stored as its JSON value.
	Primitive ValueKind = "PRIMITIVE"
	// Connected records the upstream output as JSON text holding a Link.
	Connected ValueKind = "CONNECTED"
	// NodeValue is a composite expression, stored as its source text. It
	// is informational: on load the input keeps its default.
	NodeValue ValueKind = "NODE"
)

// Value is the tagged value of one input.
type Value struct {
	Type  ValueKind       `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// InputRecord is one saved input.
type InputRecord struct {
	ID    string `json:"id"`
	Value Value  `json:"value"`
}

// OutputRecord is one saved output. Value holds the JSON-quoted display
// name, or the literal source for nodes compiled from user text.
type OutputRecord struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Link is the payload of a Connected value.
type Link struct {
	FromID   string `json:"fromId"`
	FromName string `json:"fromName"`
}

// Record is the persisted form of one node.
type Record struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Inputs        map[string]InputRecord  `json:"inputs"`
	Outputs       map[string]OutputRecord `json:"outputs"`
	Position      graph.Position          `json:"position"`
	InternalValue string                  `json:"internalValue,omitempty"`
	LocalName     string                  `json:"localName,omitempty"`
	Hidden        bool                    `json:"hidden,omitempty"`
}
