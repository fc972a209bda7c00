package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/chazu/tslgraph/pkg/tsl"
)

// The lowered program is a small tagged tree. Nothing in it refers back to
// the host language; Interpret only ever builds tsl expressions.

type expr interface{ lowered() }

type (
	numExpr    struct{ v float64 }
	strExpr    struct{ v string }
	boolExpr   struct{ v bool }
	refExpr    struct{ name string } // parameter or local
	symExpr    struct{ name string } // allow-listed constant
	callExpr   struct {
		fn   string
		args []expr
	}
	memberExpr struct {
		x     expr
		field string
	}
)

func (numExpr) lowered()    {}
func (strExpr) lowered()    {}
func (boolExpr) lowered()   {}
func (refExpr) lowered()    {}
func (symExpr) lowered()    {}
func (callExpr) lowered()   {}
func (memberExpr) lowered() {}

type stmtKind int

const (
	stmtDecl stmtKind = iota
	stmtAssign
	stmtReturn
)

type stmt struct {
	kind  stmtKind
	name  string // declared or assigned local
	field string // single component for component assignment
	op    string // builtin applied by a compound assignment, "" for plain
	value expr
	line  int
	col   int
}

type param struct {
	name string
	def  float64
}

type program struct {
	params  []param
	body    []stmt
	symbols []string // free names the source imports
}

type lowerer struct {
	scope   map[string]bool
	symbols []string
}

func fail(s *syntax, k ErrorKind, format string, args ...any) *CompileError {
	return &CompileError{Kind: k, Line: s.line, Col: s.col, Message: fmt.Sprintf(format, args...)}
}

func unsupported(s *syntax) *CompileError {
	return fail(s, KindUnsupported, "%s is not supported", strings.ReplaceAll(s.kind, "_", " "))
}

// lower turns the validated syntax tree of `Fn(<arrow function>)` into a
// program.
func lower(root *syntax) (*program, *CompileError) {
	stmts := root.named()
	if len(stmts) != 1 || stmts[0].kind != "expression_statement" {
		return nil, fail(root, KindUnsupported, "expected a single Fn( ... ) expression")
	}
	call := stmts[0].named()[0]
	if call.kind != "call_expression" || call.child("function").text != "Fn" {
		return nil, fail(call, KindUnsupported, "expected a single Fn( ... ) expression")
	}
	args := call.child("arguments").named()
	if len(args) != 1 || args[0].kind != "arrow_function" {
		return nil, fail(call, KindUnsupported, "Fn expects one arrow function")
	}
	arrow := args[0]

	l := &lowerer{scope: map[string]bool{}}
	p := &program{}
	params, err := l.params(arrow)
	if err != nil {
		return nil, err
	}
	p.params = params

	body := arrow.child("body")
	if body.kind == "statement_block" {
		p.body, err = l.block(body)
	} else {
		var e expr
		e, err = l.expr(body)
		p.body = []stmt{{kind: stmtReturn, value: e, line: body.line, col: body.col}}
	}
	if err != nil {
		return nil, err
	}
	p.symbols = lo.Uniq(l.symbols)
	return p, nil
}

// params accepts `x => ...`, `(a, b) => ...` and `([a, b]) => ...`. A
// parameter may carry a numeric default; otherwise it defaults to 0.
func (l *lowerer) params(arrow *syntax) ([]param, *CompileError) {
	if single := arrow.child("parameter"); single != nil {
		l.scope[single.text] = true
		return []param{{name: single.text}}, nil
	}
	list := arrow.child("parameters")
	if list == nil {
		return nil, nil
	}
	items := list.named()
	if len(items) == 1 && items[0].kind == "array_pattern" {
		items = items[0].named()
	}

	var out []param
	for _, it := range items {
		var p param
		switch it.kind {
		case "identifier":
			p.name = it.text
		case "assignment_pattern":
			left, right := it.child("left"), it.child("right")
			if left == nil || left.kind != "identifier" {
				return nil, unsupported(it)
			}
			v, ok := numericLiteral(right)
			if !ok {
				return nil, fail(right, KindUnsupported, "parameter default must be a number")
			}
			p = param{name: left.text, def: v}
		default:
			return nil, unsupported(it)
		}
		if l.scope[p.name] {
			return nil, fail(it, KindUnsupported, "duplicate parameter %q", p.name)
		}
		l.scope[p.name] = true
		out = append(out, p)
	}
	return out, nil
}

func (l *lowerer) block(b *syntax) ([]stmt, *CompileError) {
	var out []stmt
	for _, s := range b.named() {
		switch s.kind {
		case "lexical_declaration", "variable_declaration":
			for _, d := range s.named() {
				name, value := d.child("name"), d.child("value")
				if name == nil || name.kind != "identifier" {
					return nil, fail(d, KindUnsupported, "destructuring declarations are not supported")
				}
				if value == nil {
					return nil, fail(d, KindUnsupported, "declaration of %q needs a value", name.text)
				}
				e, err := l.expr(value)
				if err != nil {
					return nil, err
				}
				l.scope[name.text] = true
				out = append(out, stmt{kind: stmtDecl, name: name.text, value: e, line: d.line, col: d.col})
			}
		case "expression_statement":
			st, err := l.assignment(s.named()[0])
			if err != nil {
				return nil, err
			}
			out = append(out, st)
		case "return_statement":
			vals := s.named()
			if len(vals) == 0 {
				return nil, fail(s, KindUnsupported, "return needs a value")
			}
			e, err := l.expr(vals[0])
			if err != nil {
				return nil, err
			}
			return append(out, stmt{kind: stmtReturn, value: e, line: s.line, col: s.col}), nil
		case "empty_statement":
		default:
			return nil, unsupported(s)
		}
	}
	return nil, fail(b, KindUnsupported, "function body has no return statement")
}

var compoundOps = map[string]string{"+=": "add", "-=": "sub", "*=": "mul", "/=": "div", "%=": "mod"}

// assignment lowers an expression statement, which must mutate a local:
// v.mulAssign(2), v.x.addAssign(t), v = e or v += e.
func (l *lowerer) assignment(e *syntax) (stmt, *CompileError) {
	var target, value *syntax
	var op string
	switch e.kind {
	case "call_expression":
		fn := e.child("function")
		if fn.kind != "member_expression" || !tsl.IsAssignMethod(fn.child("property").text) {
			return stmt{}, fail(e, KindUnsupported, "expression statement has no effect")
		}
		args := e.child("arguments").named()
		if len(args) != 1 {
			return stmt{}, fail(e, KindUnsupported, "%s takes one argument", fn.child("property").text)
		}
		target, value = fn.child("object"), args[0]
		op = tsl.AssignOp(fn.child("property").text)
	case "assignment_expression":
		target, value = e.child("left"), e.child("right")
	case "augmented_assignment_expression":
		target, value = e.child("left"), e.child("right")
		var ok bool
		if op, ok = compoundOps[e.child("operator").text]; !ok {
			return stmt{}, fail(e, KindUnsupported, "operator %s is not supported", e.child("operator").text)
		}
	default:
		return stmt{}, fail(e, KindUnsupported, "expression statement has no effect")
	}

	st := stmt{kind: stmtAssign, op: op, line: e.line, col: e.col}
	switch {
	case target.kind == "identifier" && l.scope[target.text]:
		st.name = target.text
	case target.kind == "member_expression" &&
		target.child("object").kind == "identifier" && l.scope[target.child("object").text] &&
		len(target.child("property").text) == 1 && tsl.IsSwizzle(target.child("property").text):
		st.name, st.field = target.child("object").text, target.child("property").text
	default:
		return stmt{}, fail(target, KindUnsupported, "assignment target must be a local variable or one of its components")
	}
	v, err := l.expr(value)
	if err != nil {
		return stmt{}, err
	}
	st.value = v
	return st, nil
}

var comparisonOps = map[string]string{
	"<": "lessThan", ">": "greaterThan", "<=": "lessThanEqual", ">=": "greaterThanEqual",
	"==": "equal", "===": "equal", "!=": "notEqual", "!==": "notEqual",
}

func (l *lowerer) expr(s *syntax) (expr, *CompileError) {
	switch s.kind {
	case "number":
		v, ok := numericLiteral(s)
		if !ok {
			return nil, fail(s, KindUnsupported, "bad number %q", s.text)
		}
		return numExpr{v}, nil
	case "string":
		return strExpr{stringLiteral(s)}, nil
	case "true", "false":
		return boolExpr{s.kind == "true"}, nil
	case "identifier":
		switch {
		case l.scope[s.text]:
			return refExpr{s.text}, nil
		case tsl.IsConstant(s.text), tsl.IsBuiltin(s.text):
			l.symbols = append(l.symbols, s.text)
			return symExpr{s.text}, nil
		}
		return nil, fail(s, KindDisallowedIdentifier, "unknown identifier %q", s.text)
	case "parenthesized_expression":
		return l.expr(s.named()[0])
	case "unary_expression":
		if v, ok := numericLiteral(s); ok {
			return numExpr{v}, nil
		}
		op := s.child("operator").text
		return nil, fail(s, KindUnsupported, "operator %s on shader values is not supported; use a method such as .negate()", op)
	case "binary_expression":
		return l.binary(s)
	case "member_expression":
		field := s.child("property").text
		if !tsl.IsSwizzle(field) {
			return nil, fail(s.child("property"), KindUnsupported, "property %q is not supported", field)
		}
		x, err := l.expr(s.child("object"))
		if err != nil {
			return nil, err
		}
		return memberExpr{x: x, field: field}, nil
	case "call_expression":
		return l.call(s)
	}
	return nil, unsupported(s)
}

// binary folds arithmetic over number literals and maps comparisons to
// their builtins. Arithmetic on shader values has to use methods, since
// the generated source cannot overload operators.
func (l *lowerer) binary(s *syntax) (expr, *CompileError) {
	op := s.child("operator").text
	left, err := l.expr(s.child("left"))
	if err != nil {
		return nil, err
	}
	right, err := l.expr(s.child("right"))
	if err != nil {
		return nil, err
	}
	a, aok := left.(numExpr)
	b, bok := right.(numExpr)
	if aok && bok {
		if v, ok := fold(op, a.v, b.v); ok {
			if math.IsInf(v, 0) || math.IsNaN(v) {
				return nil, fail(s, KindUnsupported, "%s %s %s is not a finite number", tsl.FormatNumber(a.v), op, tsl.FormatNumber(b.v))
			}
			return numExpr{v}, nil
		}
	}
	if fn, ok := comparisonOps[op]; ok {
		return nil, fail(s, KindUnsupported, "operator %s is evaluated on the host; use %s()", op, fn)
	}
	return nil, fail(s, KindUnsupported, "operator %s on shader values is not supported; use a method", op)
}

// call lowers a builtin or method call. Operands are lowered left to
// right, a receiver before its method's arguments, and a builtin's name is
// recorded once its arguments have been.
func (l *lowerer) call(s *syntax) (expr, *CompileError) {
	fn := s.child("function")
	switch fn.kind {
	case "identifier":
		if fn.text == "Fn" {
			return nil, fail(fn, KindUnsupported, "nested Fn is not supported")
		}
		args, err := l.args(s.child("arguments"))
		if err != nil {
			return nil, err
		}
		l.symbols = append(l.symbols, fn.text)
		return callExpr{fn: fn.text, args: args}, nil
	case "member_expression":
		method := fn.child("property").text
		recv, err := l.expr(fn.child("object"))
		if err != nil {
			return nil, err
		}
		args, err := l.args(s.child("arguments"))
		if err != nil {
			return nil, err
		}
		switch {
		case tsl.IsPassThrough(method):
			return recv, nil
		case tsl.IsAssignMethod(method):
			return nil, fail(fn, KindUnsupported, "%s can only be used as a statement", method)
		}
		return callExpr{fn: method, args: append([]expr{recv}, args...)}, nil
	}
	return nil, unsupported(fn)
}

// fold applies an arithmetic operator to two number literals.
func fold(op string, a, b float64) (float64, bool) {
	switch op {
	case "+":
		return a + b, true
	case "-":
		return a - b, true
	case "*":
		return a * b, true
	case "/":
		return a / b, true
	case "%":
		return math.Mod(a, b), true
	}
	return 0, false
}

func (l *lowerer) args(s *syntax) ([]expr, *CompileError) {
	if s == nil {
		return nil, nil
	}
	var out []expr
	for _, a := range s.named() {
		e, err := l.expr(a)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// numericLiteral reads a number, optionally negated.
func numericLiteral(s *syntax) (float64, bool) {
	if s == nil {
		return 0, false
	}
	switch s.kind {
	case "number":
		text := strings.ReplaceAll(s.text, "_", "")
		if v, err := strconv.ParseFloat(text, 64); err == nil {
			return v, true
		}
		if v, err := strconv.ParseInt(text, 0, 64); err == nil {
			return float64(v), true
		}
	case "unary_expression":
		arg := s.child("argument")
		switch op := s.child("operator").text; op {
		case "-", "+":
			if v, ok := numericLiteral(arg); ok {
				if op == "-" {
					v = -v
				}
				return v, true
			}
		}
	case "parenthesized_expression":
		if n := s.named(); len(n) == 1 {
			return numericLiteral(n[0])
		}
	}
	return 0, false
}

func stringLiteral(s *syntax) string {
	var sb strings.Builder
	for _, c := range s.children {
		switch c.kind {
		case "string_fragment":
			sb.WriteString(c.text)
		case "escape_sequence":
			if u, err := strconv.Unquote(`"` + c.text + `"`); err == nil {
				sb.WriteString(u)
			} else {
				sb.WriteString(strings.TrimPrefix(c.text, `\`))
			}
		}
	}
	return sb.String()
}
