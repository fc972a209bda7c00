package graph

import (
	"fmt"
	"regexp"
	"sort"
)

// ValidationSeverity indicates whether a validation finding blocks code
// generation or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks compilation
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	NodeID   string             // which node has the problem (empty if graph-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] node %s: %s", e.Severity, shortID(e.NodeID), e.Message)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Validate runs the structural checks on g and returns every finding.
// An empty slice means the graph is valid. It never mutates the graph.
func Validate(g *Graph) []ValidationError {
	nodes := g.AllNodes()
	var errs []ValidationError
	errs = append(errs, validateDAG(nodes)...)
	errs = append(errs, validateReferences(g, nodes)...)
	errs = append(errs, validateNames(nodes)...)
	return errs
}

// HasErrors reports whether any finding is an error.
func HasErrors(findings []ValidationError) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// upstream returns the nodes feeding n, in input order.
func upstream(n Node) []*NodeBase {
	var out []*NodeBase
	for _, in := range n.Base().inputs {
		if c := in.connection; c != nil && c.From.owner != nil {
			out = append(out, c.From.owner)
		}
	}
	return out
}

// validateDAG checks for cycles using DFS with 3-color marking.
// White (0) = unvisited, gray (1) = in current DFS path, black (2) = fully explored.
// If we encounter a gray node during traversal, we have found a cycle.
func validateDAG(nodes []Node) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	byBase := make(map[*NodeBase]Node, len(nodes))
	for _, n := range nodes {
		byBase[n.Base()] = n
	}

	color := make(map[*NodeBase]int)
	var errs []ValidationError

	var visit func(b *NodeBase) bool // returns true if cycle found
	visit = func(b *NodeBase) bool {
		switch color[b] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				NodeID:   b.ID,
				Message:  fmt.Sprintf("cycle detected: node %s is part of a cycle", shortID(b.ID)),
				Severity: SeverityError,
			})
			return true
		}

		color[b] = gray
		n, ok := byBase[b]
		if !ok {
			// Not in this graph; handled by validateReferences.
			color[b] = black
			return false
		}
		for _, up := range upstream(n) {
			if visit(up) {
				return true
			}
		}
		color[b] = black
		return false
	}

	for _, n := range nodes {
		if color[n.Base()] == white {
			if visit(n.Base()) {
				// One cycle error is sufficient; stop early.
				break
			}
		}
	}
	return errs
}

// validateReferences checks that every connection touching a node in the
// graph has both endpoints on live nodes that belong to the graph.
func validateReferences(g *Graph, nodes []Node) []ValidationError {
	var errs []ValidationError
	for _, n := range nodes {
		b := n.Base()
		for _, in := range b.inputs {
			c := in.connection
			if c == nil {
				continue
			}
			from := c.From.owner
			switch {
			case from == nil:
				errs = append(errs, ValidationError{
					NodeID:   b.ID,
					Message:  fmt.Sprintf("input %q is fed by a detached output", in.Key),
					Severity: SeverityError,
				})
			case from.disposed:
				errs = append(errs, ValidationError{
					NodeID:   b.ID,
					Message:  fmt.Sprintf("input %q is fed by disposed node %s", in.Key, shortID(from.ID)),
					Severity: SeverityError,
				})
			case from.graph != g:
				errs = append(errs, ValidationError{
					NodeID:   b.ID,
					Message:  fmt.Sprintf("input %q is fed by node %s outside this graph", in.Key, shortID(from.ID)),
					Severity: SeverityWarning,
				})
			}
		}
	}
	return errs
}

var identPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// validateNames checks that every generated variable name is a valid
// identifier and unique. Duplicate user-assigned names are errors because
// the generated block would redeclare a constant; colliding id suffixes are
// warnings since they only occur by chance.
func validateNames(nodes []Node) []ValidationError {
	var errs []ValidationError
	byName := make(map[string][]Node)
	for _, n := range nodes {
		b := n.Base()
		if b.LocalName != "" && !identPattern.MatchString(b.LocalName) {
			errs = append(errs, ValidationError{
				NodeID:   b.ID,
				Message:  fmt.Sprintf("local name %q is not a valid identifier", b.LocalName),
				Severity: SeverityError,
			})
		}
		v := VarName(n)
		byName[v] = append(byName[v], n)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ns := byName[name]
		if len(ns) < 2 {
			continue
		}
		sev := SeverityWarning
		for _, n := range ns {
			if n.Base().LocalName != "" {
				sev = SeverityError
			}
		}
		errs = append(errs, ValidationError{
			Message:  fmt.Sprintf("variable name %q is shared by %d nodes", name, len(ns)),
			Severity: sev,
		})
	}
	return errs
}
