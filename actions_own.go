package aro

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
)

// RegisterOwnActions installs the `own` semantic-role verbs (spec §4.2).
func RegisterOwnActions(r *Registry) {
	r.Register("compute", RoleOwn, actionCompute)
	r.Register("create", RoleOwn, actionCreate)
	r.Register("transform", RoleOwn, actionTransform)
	r.Register("validate", RoleOwn, actionValidate)
	r.Register("compare", RoleOwn, actionCompare)
	r.Register("update", RoleOwn, actionTransform)
	r.Register("set", RoleOwn, actionSet)
	r.Register("configure", RoleOwn, actionSet)
	r.Register("split", RoleOwn, actionSplit)
	r.Register("accept", RoleOwn, actionAccept)
	r.Register("merge", RoleOwn, actionTransform)
	r.Register("map", RoleOwn, actionMap)
	r.Register("filter", RoleOwn, actionFilter)
	r.Register("reduce", RoleOwn, actionReduce)
}

// actionCompute implements spec §4.3 Compute: dispatches by specifier
// (not base). Built-ins: length/count, uppercase, lowercase, hash,
// identity, script (expr-lang delegate for arithmetic/plugin-style
// computations not otherwise named). Falls back to arithmetic evaluation
// of `_expression_` when no specifier is recognized, then to
// UnknownComputation.
func actionCompute(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	operand, hasOperand := ctx.Resolve(object.Base)

	switch result.Specifier() {
	case "length", "count":
		if !hasOperand {
			return Fail(&ActionError{Kind: ErrComputationError, Message: fmt.Sprintf("binding %q is not defined", object.Base)})
		}
		if isRepositoryName(object.Base) {
			if repo, ok := ctx.Repository(object.Base); ok {
				return Succeed(Int(int64(repo.Count())))
			}
		}
		return Succeed(Int(int64(lengthOf(operand))))
	case "uppercase":
		return Succeed(String(strings.ToUpper(stringOf(operand))))
	case "lowercase":
		return Succeed(String(strings.ToLower(stringOf(operand))))
	case "hash":
		sum := sha256.Sum256([]byte(stringOf(operand)))
		return Succeed(String(hex.EncodeToString(sum[:])))
	case "identity":
		return Succeed(operand)
	case "script":
		return computeScript(ctx)
	case "":
		if expression, ok := ctx.Resolve(BindingExpression); ok && !expression.IsNull() {
			return Succeed(expression)
		}
		return Fail(&ActionError{Kind: ErrComputationError, Message: "Compute requires a specifier or an _expression_ operand"})
	default:
		if expression, ok := ctx.Resolve(BindingExpression); ok && !expression.IsNull() {
			return Succeed(expression)
		}
		return Fail(&ActionError{Kind: ErrComputationError, Message: fmt.Sprintf("unknown computation %q", result.Specifier())})
	}
}

// computeScript evaluates `_expression_`'s raw text (bound as a string by
// a prior pre-evaluation call) as an expr-lang program against the
// context's resolvable bindings — the "plugin-provided computation"
// delegate path of spec §4.3, generalized to a first-class built-in since
// expr-lang is always available.
func computeScript(ctx *Context) ActionOutcome {
	source, ok := ctx.Resolve(BindingExpression)
	if !ok || source.Kind() != KindString {
		return Fail(&ActionError{Kind: ErrComputationError, Message: "script computation requires a string _expression_"})
	}
	env := exprEnvFor(ctx)
	program, err := expr.Compile(source.AsString(), expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return Fail(&ActionError{Kind: ErrComputationError, Message: fmt.Sprintf("script compile error: %v", err)})
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return Fail(&ActionError{Kind: ErrComputationError, Message: fmt.Sprintf("script eval error: %v", err)})
	}
	return Succeed(FromNative(out))
}

// exprEnvFor exposes every currently-resolvable name as an expr-lang
// variable, plus base64_encode/base64_decode helpers and a defined()
// predicate, mirroring the teacher's DSL-script evaluator environment.
func exprEnvFor(ctx *Context) map[string]any {
	env := map[string]any{
		"base64_encode": func(s string) string { return base64Encode(s) },
		"base64_decode": func(s string) string { return base64Decode(s) },
		"defined": func(name string) bool {
			_, ok := ctx.Resolve(name)
			return ok
		},
	}
	for s := ctx.scope; s != nil; s = s.parent {
		for name, v := range s.bindings {
			if _, exists := env[name]; !exists {
				env[name] = v.Native()
			}
		}
	}
	published.mu.RLock()
	for name, v := range published.bindings {
		if _, exists := env[name]; !exists {
			env[name] = v.Native()
		}
	}
	published.mu.RUnlock()
	return env
}

// actionCreate implements spec §4.3 Create: binds `_expression_` to the
// result name; if preposition is `with` and the expression is an object
// literal, the literal is the new value (both cases collapse to the same
// behavior since `_expression_` already carries the evaluated literal).
func actionCreate(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	if expression, ok := ctx.Resolve(BindingExpression); ok {
		return Succeed(expression)
	}
	if literal, ok := ctx.Resolve(BindingLiteral); ok {
		return Succeed(literal)
	}
	resolved, err := ctx.MustResolve(object.Base)
	if err != nil {
		return Fail(err)
	}
	return Succeed(resolved)
}

// actionTransform implements spec §4.3 Transform/merge: source `from`
// object.Base, optionally deep-merged `with` a patch mapping bound as
// `_expression_` or `_to_`. The source is never mutated (spec §8
// round-trip law).
func actionTransform(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	source, err := ctx.MustResolve(object.Base)
	if err != nil {
		return Fail(err)
	}
	patch, hasPatch := ctx.Resolve(BindingExpression)
	if !hasPatch {
		patch, hasPatch = ctx.Resolve(BindingTo)
	}
	if !hasPatch || patch.Kind() != KindMap {
		return Succeed(source.Clone())
	}
	merged := deepMerge(source.Clone(), patch)
	return Succeed(merged)
}

func deepMerge(base, patch Value) Value {
	if base.Kind() != KindMap || patch.Kind() != KindMap {
		return patch
	}
	result := base.AsMap().Clone()
	for _, key := range patch.AsMap().Keys() {
		patchVal, _ := patch.AsMap().Get(key)
		if existing, ok := result.Get(key); ok && existing.Kind() == KindMap && patchVal.Kind() == KindMap {
			result.Set(key, deepMerge(existing, patchVal))
		} else {
			result.Set(key, patchVal.Clone())
		}
	}
	return Map(result)
}

// actionValidate implements spec §4.3 Validate: checks object.Base
// against the schema named by result.Specifier() (or result.Base when no
// specifier is given), setting a sibling binding `validation` to
// `{success|failed, errors}`. Validation failure is never installed as an
// execution error (spec §7's taxonomy: `ValidationFailed` is "bound as
// validation.failed; not stored as error").
func actionValidate(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	schemaName := result.Specifier()
	if schemaName == "" {
		schemaName = result.Base
	}
	subject, err := ctx.MustResolve(object.Base)
	if err != nil {
		return Fail(err)
	}
	out := NewOrderedMap()
	if ctx.Schemas() == nil {
		out.Set("success", Bool(false))
		out.Set("errors", Sequence([]Value{String("no schema registry configured")}))
		ctx.Bind("validation", Map(out))
		return Succeed(Map(out))
	}
	ok, errs := ctx.Schemas().Validate(schemaName, subject)
	errVals := make([]Value, len(errs))
	for i, e := range errs {
		errVals[i] = String(e)
	}
	out.Set("success", Bool(ok))
	out.Set("failed", Bool(!ok))
	out.Set("errors", Sequence(errVals))
	ctx.Bind("validation", Map(out))
	return Succeed(Map(out))
}

// actionCompare implements spec §4.3 Compare: produces a {equal,
// lessThan, greaterThan} triple; dates compare chronologically when both
// sides parse as ISO-8601, else numerically, else lexicographically
// (spec §4.4's $binary comparison fallback order, reused here).
func actionCompare(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	left, err := ctx.MustResolve(object.Base)
	if err != nil {
		return Fail(err)
	}
	right, ok := ctx.Resolve(BindingTo)
	if !ok {
		right, ok = ctx.Resolve(BindingExpression)
	}
	if !ok {
		return Fail(&ActionError{Kind: ErrComputationError, Message: "Compare requires a _to_ or _expression_ operand"})
	}
	cmp, err2 := compareValues(left, right)
	if err2 != nil {
		return Fail(&ActionError{Kind: ErrComputationError, Message: err2.Error()})
	}
	out := NewOrderedMap()
	out.Set("equal", Bool(cmp == 0))
	out.Set("lessThan", Bool(cmp < 0))
	out.Set("greaterThan", Bool(cmp > 0))
	return Succeed(Map(out))
}

// compareValues implements the date > numeric > lexicographic fallback
// order spec §4.4 specifies for $binary comparisons.
func compareValues(a, b Value) (int, error) {
	if at, aok := asTime(a); aok {
		if bt, bok := asTime(b); bok {
			switch {
			case at.Before(bt):
				return -1, nil
			case at.After(bt):
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if isNumeric(a) && isNumeric(b) {
		af, bf := numericOf(a), numericOf(b)
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	as, bs := stringOf(a), stringOf(b)
	return strings.Compare(as, bs), nil
}

func asTime(v Value) (time.Time, bool) {
	if v.Kind() == KindTime {
		return v.AsTime(), true
	}
	if v.Kind() == KindString {
		if t, err := time.Parse(time.RFC3339, v.AsString()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isNumeric(v Value) bool { return v.Kind() == KindInt || v.Kind() == KindFloat }

func numericOf(v Value) float64 {
	if v.Kind() == KindInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

// actionSet implements spec §4.3 Set/Configure: unconditional rebind of
// the result variable.
func actionSet(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	var v Value
	if expression, ok := ctx.Resolve(BindingExpression); ok {
		v = expression
	} else if literal, ok := ctx.Resolve(BindingLiteral); ok {
		v = literal
	} else {
		resolved, err := ctx.MustResolve(object.Base)
		if err != nil {
			return Fail(err)
		}
		v = resolved
	}
	ctx.Bind(result.Base, v)
	return ActionOutcome{Succeeded: true, Value: v}
}

// actionSplit splits a string operand on a separator specifier (defaults
// to a single space), returning a sequence of strings.
func actionSplit(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	operand, err := ctx.MustResolve(object.Base)
	if err != nil {
		return Fail(err)
	}
	sep := " "
	if len(object.Specifiers) > 0 {
		sep = object.Specifiers[0]
	}
	parts := strings.Split(stringOf(operand), sep)
	seq := make([]Value, len(parts))
	for i, p := range parts {
		seq[i] = String(p)
	}
	return Succeed(Sequence(seq))
}

// actionAccept binds the object's resolved value through without
// modification — used where a source statement merely accepts an
// incoming value into a named binding without further computation.
func actionAccept(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	v, err := ctx.MustResolve(object.Base)
	if err != nil {
		return Fail(err)
	}
	return Succeed(v)
}

// actionMap/Filter/Reduce implement spec §4.3's sequence operators:
// operate on a sequence via an expression tree referencing the implicit
// loop item (bound as `item`, with `index` also bound).
func actionMap(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	seq, evaluator, expr, err := sequenceOpPrelude(ctx, object)
	if err != nil {
		return Fail(err)
	}
	out := make([]Value, len(seq))
	for i, item := range seq {
		child := ctx.NewChild()
		child.Bind("item", item)
		child.Bind("index", Int(int64(i)))
		v, evalErr := evaluator.Evaluate(child, expr)
		if evalErr != nil {
			return Fail(&ActionError{Kind: ErrComputationError, Message: evalErr.Error()})
		}
		out[i] = v
	}
	return Succeed(Sequence(out))
}

func actionFilter(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	seq, evaluator, expr, err := sequenceOpPrelude(ctx, object)
	if err != nil {
		return Fail(err)
	}
	var out []Value
	for i, item := range seq {
		child := ctx.NewChild()
		child.Bind("item", item)
		child.Bind("index", Int(int64(i)))
		keep, evalErr := evaluator.EvaluateGuard(child, expr)
		if evalErr != nil {
			return Fail(&ActionError{Kind: ErrComputationError, Message: evalErr.Error()})
		}
		if keep {
			out = append(out, item)
		}
	}
	if out == nil {
		out = []Value{}
	}
	return Succeed(Sequence(out))
}

func actionReduce(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	seq, evaluator, expr, err := sequenceOpPrelude(ctx, object)
	if err != nil {
		return Fail(err)
	}
	acc, _ := ctx.Resolve("initial")
	for i, item := range seq {
		child := ctx.NewChild()
		child.Bind("item", item)
		child.Bind("index", Int(int64(i)))
		child.Bind("accumulator", acc)
		v, evalErr := evaluator.Evaluate(child, expr)
		if evalErr != nil {
			return Fail(&ActionError{Kind: ErrComputationError, Message: evalErr.Error()})
		}
		acc = v
	}
	return Succeed(acc)
}

func sequenceOpPrelude(ctx *Context, object ObjectDescriptor) ([]Value, ExpressionEvaluator, any, error) {
	source, err := ctx.MustResolve(object.Base)
	if err != nil {
		return nil, nil, nil, err
	}
	if source.Kind() != KindSequence {
		return nil, nil, nil, &ActionError{Kind: ErrComputationError, Message: fmt.Sprintf("%q is not a sequence", object.Base)}
	}
	evaluator := ctx.Evaluator()
	if evaluator == nil {
		return nil, nil, nil, &ActionError{Kind: ErrInternalError, Message: "no expression evaluator configured"}
	}
	expression, ok := ctx.Resolve(BindingExpression)
	if !ok {
		return nil, nil, nil, &ActionError{Kind: ErrComputationError, Message: "requires an _expression_ operand"}
	}
	return source.AsSequence(), evaluator, expression.Native(), nil
}

func lengthOf(v Value) int {
	switch v.Kind() {
	case KindString:
		return len(v.AsString())
	case KindSequence:
		return len(v.AsSequence())
	case KindMap:
		return v.AsMap().Len()
	case KindBytes:
		return len(v.AsBytes())
	default:
		return 0
	}
}

func stringOf(v Value) string {
	if v.Kind() == KindString {
		return v.AsString()
	}
	return renderValueForError(v)
}
