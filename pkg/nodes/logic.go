package nodes

import "github.com/chazu/tslgraph/pkg/tsl"

func comparison(typ, fn string) *funcSpec {
	return &funcSpec{typ: typ, name: typ, fn: fn, output: "result", inputs: ab(0, 0)}
}

var logicSpecs = []*funcSpec{
	comparison("Equal", "equal"),
	{typ: "NotEqual", name: "NotEqual", fn: "equal", output: "result", inputs: ab(0, 0), negate: true},
	comparison("GreaterThan", "greaterThan"),
	comparison("LessThan", "lessThan"),
	comparison("GreaterThanEqual", "greaterThanEqual"),
	comparison("LessThanEqual", "lessThanEqual"),
	comparison("And", "and"),
	comparison("Or", "or"),
	{typ: "Not", name: "Not", fn: "not", output: "result", inputs: []port{{"a", "A", tsl.Bool(true)}}},
	{typ: "Conditional", name: "Conditional", fn: "select", output: "result", inputs: []port{
		{"condition", "Condition", tsl.Bool(true)},
		{"then", "Then", num(1)},
		{"else", "Else", num(0)},
	}},
}
