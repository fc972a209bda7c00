package engine

import (
	"fmt"
	"strings"
)

// fnLiteral is the span of one top-level Fn(...) expression in the source.
type fnLiteral struct {
	text string
	line int // 1-based line of the F
	col  int // 1-based column of the F
}

// extract finds exactly one top-level Fn( ... ) call in source. String
// literals, template literals and comments are skipped, so parentheses
// inside them do not count. Anything outside the literal is ignored.
func extract(source string) (fnLiteral, *CompileError) {
	var found []fnLiteral
	line, col := 1, 1
	i := 0
	advance := func(n int) {
		for k := 0; k < n && i < len(source); k++ {
			if source[i] == '\n' {
				line++
				col = 1
			} else {
				col++
			}
			i++
		}
	}

	for i < len(source) {
		if skip := skipNonCode(source, i); skip > 0 {
			advance(skip)
			continue
		}
		if !isFnStart(source, i) {
			advance(1)
			continue
		}
		startLine, startCol, start := line, col, i
		open := strings.IndexByte(source[i:], '(') + i
		end, ok := matchParen(source, open)
		if !ok {
			return fnLiteral{}, &CompileError{
				Kind: KindExtract, Line: startLine, Col: startCol,
				Message: "unterminated Fn( expression",
			}
		}
		found = append(found, fnLiteral{text: source[start : end+1], line: startLine, col: startCol})
		advance(end + 1 - i)
	}

	switch len(found) {
	case 0:
		return fnLiteral{}, &CompileError{Kind: KindExtract, Message: "no Fn( ... ) expression found"}
	case 1:
		return found[0], nil
	}
	return fnLiteral{}, &CompileError{
		Kind: KindExtract, Line: found[1].line, Col: found[1].col,
		Message: fmt.Sprintf("found %d Fn( ... ) expressions, expected exactly one", len(found)),
	}
}

// isFnStart reports whether an identifier Fn followed by an opening
// parenthesis begins at i.
func isFnStart(s string, i int) bool {
	if !strings.HasPrefix(s[i:], "Fn") {
		return false
	}
	if i > 0 && (isIdentByte(s[i-1]) || s[i-1] == '.') {
		return false
	}
	j := i + 2
	for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
		j++
	}
	return j < len(s) && s[j] == '('
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// matchParen returns the index of the parenthesis closing the one at open.
func matchParen(s string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(s); {
		if skip := skipNonCode(s, i); skip > 0 {
			i += skip
			continue
		}
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, true
			}
		}
		i++
	}
	return 0, false
}

// skipNonCode returns the length of the string literal or comment starting
// at i, or 0 if none starts there. Unterminated ones run to the end.
func skipNonCode(s string, i int) int {
	rest := s[i:]
	switch {
	case strings.HasPrefix(rest, "//"):
		if n := strings.IndexByte(rest, '\n'); n >= 0 {
			return n
		}
		return len(rest)
	case strings.HasPrefix(rest, "/*"):
		if n := strings.Index(rest[2:], "*/"); n >= 0 {
			return n + 4
		}
		return len(rest)
	case rest[0] == '"' || rest[0] == '\'' || rest[0] == '`':
		q := rest[0]
		for j := 1; j < len(rest); j++ {
			switch rest[j] {
			case '\\':
				j++
			case q:
				return j + 1
			case '\n':
				if q != '`' {
					return j
				}
			}
		}
		return len(rest)
	}
	return 0
}
