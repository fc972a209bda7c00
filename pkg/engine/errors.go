package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a compile failure.
type ErrorKind int

const (
	KindExtract ErrorKind = iota
	KindParse
	KindLoop
	KindDisallowedCall
	KindDisallowedIdentifier
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindExtract:
		return "extract"
	case KindParse:
		return "parse"
	case KindLoop:
		return "loop"
	case KindDisallowedCall:
		return "disallowed call"
	case KindDisallowedIdentifier:
		return "disallowed identifier"
	case KindUnsupported:
		return "unsupported"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// CompileError is a problem in user-authored source. It is reported to the
// caller rather than treated as fatal.
type CompileError struct {
	Kind    ErrorKind
	Line    int
	Col     int
	Message string
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d:%d: %s: %s", e.Line, e.Col, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ErrSuperseded is returned by a compile whose result arrived after a newer
// compile had started.
var ErrSuperseded = errors.New("compile superseded by newer request")

// HasKind reports whether errs holds an error of kind k.
func HasKind(errs []*CompileError, k ErrorKind) bool {
	for _, e := range errs {
		if e.Kind == k {
			return true
		}
	}
	return false
}
