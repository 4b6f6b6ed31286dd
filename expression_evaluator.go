package aro

// ExpressionEvaluator is the dependency Context/Dispatch needs from the
// expression/ package. Defined here — not in expression/ — so the root
// package never imports expression/; expression/ imports aro for Value
// and Context instead (same DAG-preserving trick as EventBus in event.go).
//
// tree is always the `any` produced by decoding a JSON expression node
// (spec §4.4): a map with a single "$lit"/"$var"/"$binary"/"$interpolated"
// key, a plain map, a plain slice, or a scalar.
type ExpressionEvaluator interface {
	// Evaluate walks a JSON-tree expression node and returns its Value.
	Evaluate(ctx *Context, tree any) (Value, error)
	// EvaluateGuard evaluates tree and coerces the result to a boolean,
	// per the dispatch algorithm's guard-check step (spec §4.2 step 2).
	EvaluateGuard(ctx *Context, tree any) (bool, error)
	// Interpolate resolves `${name}` / `${<base: specs...>}` placeholders
	// in template against ctx's bindings (spec §4.4 $interpolated).
	Interpolate(ctx *Context, template string) (string, error)
}
