// Package tsl models values flowing through graph ports as small expression
// trees in the three.js shading language. Expressions are never executed on
// the host; they are formatted back to source text, scanned for the symbols
// they reference, or evaluated numerically by Eval for previews.
package tsl

import (
	"strconv"
	"strings"
)

// Expr is a node of a shading-language expression tree.
// The set of implementations is closed: Float, Str, Bool, Ident, Call,
// Member.
type Expr interface {
	expr()
}

// Float is a numeric literal.
type Float float64

// Str is a string literal.
type Str string

// Bool is a boolean literal.
type Bool bool

// Ident is a named shading-language symbol such as time, PI or positionLocal.
type Ident string

// Call is a builtin invocation. Method-style calls (a.add(b)) are stored in
// function form with the receiver as the first argument.
type Call struct {
	Fn   string
	Args []Expr
}

// Member is a component access such as v.x or v.xy.
type Member struct {
	X     Expr
	Field string
}

func (Float) expr()  {}
func (Str) expr()    {}
func (Bool) expr()   {}
func (Ident) expr()  {}
func (Call) expr()   {}
func (Member) expr() {}

// Thunk produces the current expression of a port on demand.
type Thunk func() Expr

// Const lifts a fixed expression into a Thunk.
func Const(e Expr) Thunk {
	return func() Expr { return e }
}

// Num is shorthand for Const(Float(v)).
func Num(v float64) Thunk {
	return Const(Float(v))
}

// Fn builds a Call expression.
func Fn(name string, args ...Expr) Call {
	return Call{Fn: name, Args: args}
}

// Floats converts numbers to literal expressions.
func Floats(vs ...float64) []Expr {
	out := make([]Expr, len(vs))
	for i, v := range vs {
		out[i] = Float(v)
	}
	return out
}

// FormatNumber renders a number the way the generated source expects:
// shortest decimal form, no exponent, no trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Format renders e as shading-language source. A nil expression renders as
// the empty string.
func Format(e Expr) string {
	var sb strings.Builder
	write(&sb, e)
	return sb.String()
}

func write(sb *strings.Builder, e Expr) {
	switch v := e.(type) {
	case nil:
	case Float:
		sb.WriteString(FormatNumber(float64(v)))
	case Str:
		sb.WriteString(strconv.Quote(string(v)))
	case Bool:
		sb.WriteString(strconv.FormatBool(bool(v)))
	case Ident:
		sb.WriteString(string(v))
	case Call:
		sb.WriteString(v.Fn)
		sb.WriteByte('(')
		for i, a := range v.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			write(sb, a)
		}
		sb.WriteByte(')')
	case Member:
		write(sb, v.X)
		sb.WriteByte('.')
		sb.WriteString(v.Field)
	}
}

// Symbols returns the external names referenced by e (called builtins and
// named constants) in order of first appearance.
func Symbols(e Expr) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(Expr)
	walk = func(e Expr) {
		switch v := e.(type) {
		case Ident:
			if !seen[string(v)] {
				seen[string(v)] = true
				out = append(out, string(v))
			}
		case Call:
			if !seen[v.Fn] {
				seen[v.Fn] = true
				out = append(out, v.Fn)
			}
			for _, a := range v.Args {
				walk(a)
			}
		case Member:
			walk(v.X)
		}
	}
	walk(e)
	return out
}

// IsPrimitive reports whether e is a plain literal (number or string), as
// opposed to a composite generator expression.
func IsPrimitive(e Expr) bool {
	switch e.(type) {
	case Float, Str:
		return true
	}
	return false
}
