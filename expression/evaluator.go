// Package expression implements the JSON-tree expression evaluator of
// spec §4.4: literals, variable references with property-path specifiers,
// binary operators, and string interpolation, all walked over the
// dynamically-tagged aro.Value model.
package expression

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/arolang/runtime"
)

// Evaluator implements aro.ExpressionEvaluator. It holds no state of its
// own — every Evaluate call is pure except for variable reads against the
// supplied Context (spec §4.4: "The evaluator is pure (no side effects)
// except that variable references read the current context").
type Evaluator struct{}

func New() *Evaluator { return &Evaluator{} }

var _ aro.ExpressionEvaluator = (*Evaluator)(nil)

// Evaluate walks a decoded JSON expression node. Node shapes recognized
// (spec §4.4):
//
//	{"$lit": <v>}
//	{"$var": "name", "$specs": [...]}
//	{"$binary": {"op": ..., "left": ..., "right": ...}}
//	{"$interpolated": "template"}
//	plain map -> object literal, recursively evaluated
//	plain slice -> sequence literal, recursively evaluated
//	plain scalar -> literal
func (e *Evaluator) Evaluate(ctx *aro.Context, node any) (aro.Value, error) {
	switch n := node.(type) {
	case nil:
		return aro.Null(), nil
	case map[string]any:
		if lit, ok := n["$lit"]; ok {
			return aro.FromNative(lit), nil
		}
		if varName, ok := n["$var"]; ok {
			name, _ := varName.(string)
			specs := stringSlice(n["$specs"])
			return e.evalVar(ctx, name, specs)
		}
		if binary, ok := n["$binary"]; ok {
			binMap, _ := binary.(map[string]any)
			return e.evalBinary(ctx, binMap)
		}
		if tmpl, ok := n["$interpolated"]; ok {
			text, _ := tmpl.(string)
			rendered, err := e.Interpolate(ctx, text)
			if err != nil {
				return aro.Value{}, err
			}
			return aro.String(rendered), nil
		}
		// Plain object literal: evaluate every value recursively.
		out := aro.NewOrderedMap()
		for k, v := range n {
			child, err := e.Evaluate(ctx, v)
			if err != nil {
				return aro.Value{}, err
			}
			out.Set(k, child)
		}
		return aro.Map(out), nil
	case []any:
		out := make([]aro.Value, len(n))
		for i, elem := range n {
			v, err := e.Evaluate(ctx, elem)
			if err != nil {
				return aro.Value{}, err
			}
			out[i] = v
		}
		return aro.Sequence(out), nil
	default:
		return aro.FromNative(n), nil
	}
}

// EvaluateGuard evaluates node and coerces the result to a boolean (spec
// §4.2 step 2: dispatch-site guards). Non-boolean results are coerced by
// truthy: null, zero, the empty string and empty sequences/maps are false,
// everything else is true.
func (e *Evaluator) EvaluateGuard(ctx *aro.Context, node any) (bool, error) {
	v, err := e.Evaluate(ctx, node)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func truthy(v aro.Value) bool {
	switch v.Kind() {
	case aro.KindNull:
		return false
	case aro.KindBool:
		return v.AsBool()
	case aro.KindInt:
		return v.AsInt() != 0
	case aro.KindFloat:
		return v.AsFloat() != 0
	case aro.KindString:
		return v.AsString() != ""
	case aro.KindSequence:
		return len(v.AsSequence()) > 0
	case aro.KindMap:
		return v.AsMap().Len() > 0
	default:
		return true
	}
}

// evalVar resolves a `$var` node, special-casing specs == ["count"] for
// repository bases (spec §4.4: "if specs is ["count"] and the base names
// a repository, return the repository size").
func (e *Evaluator) evalVar(ctx *aro.Context, name string, specs []string) (aro.Value, error) {
	if len(specs) == 1 && specs[0] == "count" && strings.HasSuffix(name, "-repository") {
		if repo, ok := ctx.Repository(name); ok {
			return aro.Int(int64(repo.Count())), nil
		}
	}
	v, ok := ctx.Resolve(name)
	if !ok {
		return aro.Value{}, fmt.Errorf("expression: undefined variable %q", name)
	}
	for _, seg := range specs {
		next, ok := navigate(v, seg)
		if !ok {
			return aro.Value{}, fmt.Errorf("expression: %q has no property %q", name, seg)
		}
		v = next
	}
	return v, nil
}

func navigate(v aro.Value, key string) (aro.Value, bool) {
	switch v.Kind() {
	case aro.KindMap:
		return v.AsMap().Get(key)
	case aro.KindSequence:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(v.AsSequence()) {
			return aro.Value{}, false
		}
		return v.AsSequence()[idx], true
	default:
		return aro.Value{}, false
	}
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, elem := range raw {
		if s, ok := elem.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// evalBinary implements spec §4.4's operator set:
// + - * / % ++ == != is isNot < > <= >= and or contains matches.
func (e *Evaluator) evalBinary(ctx *aro.Context, n map[string]any) (aro.Value, error) {
	if n == nil {
		return aro.Value{}, fmt.Errorf("expression: $binary node missing op/left/right")
	}
	op, _ := n["op"].(string)
	left, err := e.Evaluate(ctx, n["left"])
	if err != nil {
		return aro.Value{}, err
	}
	right, err := e.Evaluate(ctx, n["right"])
	if err != nil {
		return aro.Value{}, err
	}

	switch op {
	case "+", "-", "*", "/", "%":
		return arithmetic(op, left, right)
	case "++":
		return aro.String(scalarString(left) + scalarString(right)), nil
	case "==", "is":
		return aro.Bool(valuesEqual(left, right)), nil
	case "!=", "isNot":
		return aro.Bool(!valuesEqual(left, right)), nil
	case "<", ">", "<=", ">=":
		return compareOp(op, left, right)
	case "and":
		return aro.Bool(truthy(left) && truthy(right)), nil
	case "or":
		return aro.Bool(truthy(left) || truthy(right)), nil
	case "contains":
		return aro.Bool(containsOp(left, right)), nil
	case "matches":
		re, err := regexp.Compile(scalarString(right))
		if err != nil {
			return aro.Value{}, fmt.Errorf("expression: bad regex %q: %w", scalarString(right), err)
		}
		return aro.Bool(re.MatchString(scalarString(left))), nil
	default:
		return aro.Value{}, fmt.Errorf("expression: unknown operator %q", op)
	}
}

// arithmetic implements spec §4.4's "preserve integer-vs-double types
// when both operands are integers" rule: only promotes to float when
// either operand already is one.
func arithmetic(op string, left, right aro.Value) (aro.Value, error) {
	if left.Kind() == aro.KindInt && right.Kind() == aro.KindInt {
		a, b := left.AsInt(), right.AsInt()
		switch op {
		case "+":
			return aro.Int(a + b), nil
		case "-":
			return aro.Int(a - b), nil
		case "*":
			return aro.Int(a * b), nil
		case "/":
			if b == 0 {
				return aro.Value{}, fmt.Errorf("expression: division by zero")
			}
			return aro.Int(a / b), nil
		case "%":
			if b == 0 {
				return aro.Value{}, fmt.Errorf("expression: modulo by zero")
			}
			return aro.Int(a % b), nil
		}
	}
	a, aok := numericOf(left)
	b, bok := numericOf(right)
	if !aok || !bok {
		return aro.Value{}, fmt.Errorf("expression: arithmetic operand is not numeric")
	}
	switch op {
	case "+":
		return aro.Float(a + b), nil
	case "-":
		return aro.Float(a - b), nil
	case "*":
		return aro.Float(a * b), nil
	case "/":
		if b == 0 {
			return aro.Value{}, fmt.Errorf("expression: division by zero")
		}
		return aro.Float(a / b), nil
	case "%":
		if int64(b) == 0 {
			return aro.Value{}, fmt.Errorf("expression: modulo by zero")
		}
		return aro.Float(float64(int64(a) % int64(b))), nil
	default:
		return aro.Value{}, fmt.Errorf("expression: unknown arithmetic operator %q", op)
	}
}

func numericOf(v aro.Value) (float64, bool) {
	switch v.Kind() {
	case aro.KindInt:
		return float64(v.AsInt()), true
	case aro.KindFloat:
		return v.AsFloat(), true
	default:
		return 0, false
	}
}

func valuesEqual(a, b aro.Value) bool {
	if isNumeric(a) && isNumeric(b) {
		af, _ := numericOf(a)
		bf, _ := numericOf(b)
		return af == bf
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case aro.KindNull:
		return true
	case aro.KindBool:
		return a.AsBool() == b.AsBool()
	case aro.KindString:
		return a.AsString() == b.AsString()
	default:
		encA, _ := aro.ToJSON(a)
		encB, _ := aro.ToJSON(b)
		return string(encA) == string(encB)
	}
}

func isNumeric(v aro.Value) bool { return v.Kind() == aro.KindInt || v.Kind() == aro.KindFloat }

// compareOp implements the date > numeric > lexicographic fallback order
// of spec §4.4.
func compareOp(op string, left, right aro.Value) (aro.Value, error) {
	var cmp int
	if lt, lok := asTime(left); lok {
		if rt, rok := asTime(right); rok {
			switch {
			case lt.Before(rt):
				cmp = -1
			case lt.After(rt):
				cmp = 1
			default:
				cmp = 0
			}
			return aro.Bool(applyCmp(op, cmp)), nil
		}
	}
	if isNumeric(left) && isNumeric(right) {
		lf, _ := numericOf(left)
		rf, _ := numericOf(right)
		switch {
		case lf < rf:
			cmp = -1
		case lf > rf:
			cmp = 1
		default:
			cmp = 0
		}
		return aro.Bool(applyCmp(op, cmp)), nil
	}
	cmp = strings.Compare(scalarString(left), scalarString(right))
	return aro.Bool(applyCmp(op, cmp)), nil
}

func applyCmp(op string, cmp int) bool {
	switch op {
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}

func asTime(v aro.Value) (time.Time, bool) {
	if v.Kind() == aro.KindTime {
		return v.AsTime(), true
	}
	if v.Kind() == aro.KindString {
		if t, err := time.Parse(time.RFC3339, v.AsString()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func containsOp(haystack, needle aro.Value) bool {
	switch haystack.Kind() {
	case aro.KindString:
		return strings.Contains(haystack.AsString(), scalarString(needle))
	case aro.KindSequence:
		for _, elem := range haystack.AsSequence() {
			if valuesEqual(elem, needle) {
				return true
			}
		}
		return false
	case aro.KindMap:
		_, ok := haystack.AsMap().Get(scalarString(needle))
		return ok
	default:
		return false
	}
}

func scalarString(v aro.Value) string {
	switch v.Kind() {
	case aro.KindString:
		return v.AsString()
	case aro.KindInt:
		return strconv.FormatInt(v.AsInt(), 10)
	case aro.KindFloat:
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	case aro.KindBool:
		return strconv.FormatBool(v.AsBool())
	case aro.KindNull:
		return ""
	default:
		encoded, _ := aro.ToJSON(v)
		return string(encoded)
	}
}

// interpolationPattern matches `${name}` and `${<base: spec1: spec2>}`.
var interpolationPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Interpolate implements spec §4.4's $interpolated node: resolves
// `${name}` or `${<base: property: ...>}` placeholders against ctx.
func (e *Evaluator) Interpolate(ctx *aro.Context, template string) (string, error) {
	var firstErr error
	result := interpolationPattern.ReplaceAllStringFunc(template, func(match string) string {
		inner := interpolationPattern.FindStringSubmatch(match)[1]
		inner = strings.TrimSpace(inner)
		var base string
		var specs []string
		if strings.HasPrefix(inner, "<") && strings.HasSuffix(inner, ">") {
			parts := strings.Split(strings.Trim(inner, "<>"), ":")
			for i, p := range parts {
				p = strings.TrimSpace(p)
				if i == 0 {
					base = p
				} else {
					specs = append(specs, p)
				}
			}
		} else {
			base = inner
		}
		v, err := e.evalVar(ctx, base, specs)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return ""
		}
		return scalarString(v)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
