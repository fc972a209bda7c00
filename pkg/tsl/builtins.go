package tsl

import (
	"sort"
	"strings"
)

// ----------------------------------------------------------------------------
// Allow-list
// ----------------------------------------------------------------------------

// functions are callable builtins that may appear as bare identifiers in
// call position, e.g. vec3(1, 0, 0) or mix(a, b, 0.5).
var functions = toSet(
	// constructors
	"float", "int", "uint", "bool", "color",
	"vec2", "vec3", "vec4", "ivec2", "ivec3", "ivec4", "uvec2", "uvec3", "uvec4",
	"bvec2", "bvec3", "bvec4", "mat2", "mat3", "mat4",
	// arithmetic
	"add", "sub", "mul", "div", "mod", "modInt", "negate", "oneMinus",
	// math
	"abs", "acos", "asin", "atan", "atan2", "cbrt", "ceil", "clamp", "cos",
	"cross", "dFdx", "dFdy", "degrees", "distance", "dot", "exp", "exp2",
	"faceForward", "floor", "fract", "fwidth", "inverseSqrt", "length",
	"lengthSq", "log", "log2", "max", "min", "mix", "normalize", "pow", "pow2",
	"pow3", "pow4", "radians", "reciprocal", "reflect", "refract", "round",
	"saturate", "sign", "sin", "smoothstep", "sqrt", "step", "tan", "transpose",
	"trunc",
	// logic
	"equal", "notEqual", "lessThan", "greaterThan", "lessThanEqual",
	"greaterThanEqual", "and", "or", "not", "xor", "select",
	// utility
	"remap", "remapClamp", "hash", "range", "oscSine", "oscSquare",
	"oscTriangle", "oscSawtooth", "rotateUV", "spherizeUV", "spritesheetUV",
	"rotate", "checker",
	// inputs
	"uv", "uniform", "texture", "varying", "attribute", "Fn",
)

// positionSymbols are the geometry, camera, model and screen accessors that
// are exposed as plain symbols.
var positionSymbols = []string{
	"positionGeometry", "positionLocal", "positionWorld", "positionWorldDirection",
	"positionView", "positionViewDirection",
	"normalGeometry", "normalLocal", "normalView", "normalWorld",
	"transformedNormalView", "transformedNormalWorld", "transformedClearcoatNormalView",
	"tangentGeometry", "tangentLocal", "tangentView", "tangentWorld",
	"transformedTangentView", "transformedTangentWorld",
	"bitangentGeometry", "bitangentLocal", "bitangentView", "bitangentWorld",
	"transformedBitangentView", "transformedBitangentWorld",
	"cameraNear", "cameraFar", "cameraProjectionMatrix", "cameraProjectionMatrixInverse",
	"cameraViewMatrix", "cameraWorldMatrix", "cameraNormalMatrix", "cameraPosition",
	"modelDirection", "modelViewMatrix", "modelNormalMatrix", "modelWorldMatrix",
	"modelPosition", "modelScale", "modelViewPosition", "modelWorldMatrixInverse",
	"screenUV", "screenCoordinate", "screenSize",
	"viewportUV", "viewport", "viewportCoordinate", "viewportSize",
}

// constants are symbols usable without a call.
var constants = toSet(append([]string{
	"time", "deltaTime", "frameId", "PI", "PI2", "HALF_PI", "EPSILON", "INFINITY",
	"matcapUV", "equirectUV",
}, positionSymbols...)...)

// assignMethods mutate their receiver in place.
var assignMethods = toSet(
	"assign", "addAssign", "subAssign", "mulAssign", "divAssign", "modAssign",
)

// passThroughMethods return their receiver unchanged as far as the
// expression tree is concerned.
var passThroughMethods = toSet("toVar", "toConst", "toVarying")

// reserved are host names that user code must never reach.
var reserved = toSet(
	"window", "global", "globalThis", "self", "console", "document", "eval",
	"Function", "process", "require", "module", "exports", "import",
	"constructor", "__proto__", "prototype", "this", "arguments",
	"setTimeout", "setInterval", "fetch", "XMLHttpRequest", "Reflect", "Proxy",
)

func toSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// IsBuiltin reports whether name is an allow-listed builtin function.
func IsBuiltin(name string) bool { return functions[name] }

// IsConstant reports whether name is an allow-listed symbol usable without a call.
func IsConstant(name string) bool { return constants[name] }

// IsMethod reports whether name may be invoked with method syntax on an
// expression (a.add(b), v.toVar(), v.mulAssign(2)).
func IsMethod(name string) bool {
	return functions[name] || assignMethods[name] || passThroughMethods[name]
}

// IsAssignMethod reports whether name is an in-place assignment method.
func IsAssignMethod(name string) bool { return assignMethods[name] }

// IsPassThrough reports whether name is a method that returns its receiver.
func IsPassThrough(name string) bool { return passThroughMethods[name] }

// IsReserved reports whether name refers to a host global or a
// prototype-walking property.
func IsReserved(name string) bool { return reserved[name] }

// AssignOp returns the arithmetic builtin an assign method applies,
// e.g. "add" for "addAssign". Plain "assign" returns "".
func AssignOp(method string) string {
	if method == "assign" {
		return ""
	}
	return strings.TrimSuffix(method, "Assign")
}

// PositionSymbols lists the geometry accessors in declaration order.
func PositionSymbols() []string {
	out := make([]string, len(positionSymbols))
	copy(out, positionSymbols)
	return out
}

// Builtins returns every allow-listed function name, sorted.
func Builtins() []string {
	out := make([]string, 0, len(functions))
	for n := range functions {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// IsSwizzle reports whether field is a component selector such as x, xy,
// rgb or zyx.
func IsSwizzle(field string) bool {
	if field == "" || len(field) > 4 {
		return false
	}
	xyzw := strings.Trim(field, "xyzw") == ""
	rgba := strings.Trim(field, "rgba") == ""
	return xyzw || rgba
}
