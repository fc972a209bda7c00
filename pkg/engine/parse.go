package engine

import (
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"

	"github.com/chazu/tslgraph/pkg/tsl"
)

// syntax is a detached copy of a tree-sitter node. Trees are converted
// eagerly so the native tree can be released before validation.
type syntax struct {
	kind     string
	field    string // field name within the parent, if any
	text     string
	isNamed  bool
	line     int
	col      int
	children []*syntax
}

// child returns the first child stored under field.
func (s *syntax) child(field string) *syntax {
	for _, c := range s.children {
		if c.field == field {
			return c
		}
	}
	return nil
}

// named returns the children that are not punctuation or keywords.
func (s *syntax) named() []*syntax {
	var out []*syntax
	for _, c := range s.children {
		if c.isNamed {
			out = append(out, c)
		}
	}
	return out
}

const loopQuery = `
	(for_statement) @loop
	(for_in_statement) @loop
	(while_statement) @loop
	(do_statement) @loop
`

var jsLanguage = tree_sitter.NewLanguage(tree_sitter_javascript.Language())

// parse runs tree-sitter over the extracted literal with a fresh parser.
// Syntax errors and loops come back as compile errors; err is reserved for
// failures of the parser itself.
func parse(lit fnLiteral) (*syntax, []*CompileError, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(jsLanguage); err != nil {
		return nil, nil, fmt.Errorf("loading javascript grammar: %w", err)
	}

	src := []byte(lit.text)
	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, nil, fmt.Errorf("parser returned no tree")
	}
	defer tree.Close()
	root := tree.RootNode()

	if root.HasError() {
		return nil, []*CompileError{syntaxError(root, src, lit)}, nil
	}

	loops, err := findLoops(root, src, lit)
	if err != nil {
		return nil, nil, err
	}
	if len(loops) > 0 {
		return nil, loops, nil
	}

	cursor := root.Walk()
	defer cursor.Close()
	return convert(cursor, src, lit), nil, nil
}

func findLoops(root *tree_sitter.Node, src []byte, lit fnLiteral) ([]*CompileError, error) {
	q, qerr := tree_sitter.NewQuery(jsLanguage, loopQuery)
	if qerr != nil {
		return nil, fmt.Errorf("loop query: %v", qerr)
	}
	defer q.Close()

	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()

	var errs []*CompileError
	matches := qc.Matches(q, root, src)
	for m := matches.Next(); m != nil; m = matches.Next() {
		for _, c := range m.Captures {
			pos := c.Node.StartPosition()
			line, col := lit.position(pos.Row, pos.Column)
			errs = append(errs, &CompileError{
				Kind: KindLoop, Line: line, Col: col,
				Message: fmt.Sprintf("loops are not allowed (%s)", c.Node.Kind()),
			})
		}
	}
	return errs, nil
}

// syntaxError reports the first error or missing node under n.
func syntaxError(n *tree_sitter.Node, src []byte, lit fnLiteral) *CompileError {
	var walk func(*tree_sitter.Node) *tree_sitter.Node
	walk = func(n *tree_sitter.Node) *tree_sitter.Node {
		if n.IsError() || n.IsMissing() {
			return n
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			c := n.Child(i)
			if c == nil || !(c.HasError() || c.IsMissing()) {
				continue
			}
			if bad := walk(c); bad != nil {
				return bad
			}
		}
		return nil
	}
	bad := walk(n)
	if bad == nil {
		return &CompileError{Kind: KindParse, Line: lit.line, Col: lit.col, Message: "syntax error"}
	}
	pos := bad.StartPosition()
	line, col := lit.position(pos.Row, pos.Column)
	msg := fmt.Sprintf("unexpected %q", truncate(bad.Utf8Text(src), 20))
	if bad.IsMissing() {
		msg = fmt.Sprintf("missing %s", bad.Kind())
	}
	return &CompileError{Kind: KindParse, Line: line, Col: col, Message: msg}
}

func convert(c *tree_sitter.TreeCursor, src []byte, lit fnLiteral) *syntax {
	n := c.Node()
	pos := n.StartPosition()
	s := &syntax{kind: n.Kind(), field: c.FieldName(), text: n.Utf8Text(src), isNamed: n.IsNamed()}
	s.line, s.col = lit.position(pos.Row, pos.Column)
	if c.GotoFirstChild() {
		for {
			if c.Node().Kind() != "comment" {
				s.children = append(s.children, convert(c, src, lit))
			}
			if !c.GotoNextSibling() {
				break
			}
		}
		c.GotoParent()
	}
	return s
}

// position maps a row/column inside the literal to the original source.
func (l fnLiteral) position(row, col uint) (int, int) {
	if row == 0 {
		return l.line, l.col + int(col)
	}
	return l.line + int(row), int(col) + 1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ----------------------------------------------------------------------------
// Validation
// ----------------------------------------------------------------------------

// validate walks the whole tree and reports every call or identifier that
// escapes the allow-list.
func validate(root *syntax) []*CompileError {
	var errs []*CompileError
	fail := func(s *syntax, k ErrorKind, format string, args ...any) {
		errs = append(errs, &CompileError{Kind: k, Line: s.line, Col: s.col, Message: fmt.Sprintf(format, args...)})
	}

	var walk func(*syntax)
	walk = func(s *syntax) {
		switch s.kind {
		case "call_expression":
			fn := s.child("function")
			switch {
			case fn == nil:
			case fn.kind == "identifier" && !tsl.IsBuiltin(fn.text) && !tsl.IsReserved(fn.text):
				fail(fn, KindDisallowedCall, "call to %q is not allowed", fn.text)
			case fn.kind == "member_expression":
				if p := fn.child("property"); p != nil && !tsl.IsMethod(p.text) && !tsl.IsReserved(p.text) {
					fail(p, KindDisallowedCall, "method %q is not allowed", p.text)
				}
			}
		case "identifier", "shorthand_property_identifier":
			if tsl.IsReserved(s.text) {
				fail(s, KindDisallowedIdentifier, "access to %q is not allowed", s.text)
			}
		case "property_identifier":
			if tsl.IsReserved(s.text) {
				fail(s, KindDisallowedIdentifier, "property %q is not allowed", s.text)
			}
		case "this", "super":
			fail(s, KindDisallowedIdentifier, "%q is not allowed", s.kind)
		case "subscript_expression":
			fail(s, KindDisallowedIdentifier, "computed member access is not allowed")
		case "new_expression":
			fail(s, KindDisallowedCall, "new is not allowed")
		case "import":
			fail(s, KindDisallowedIdentifier, "import is not allowed")
		}
		for _, c := range s.children {
			walk(c)
		}
	}
	walk(root)
	return errs
}
