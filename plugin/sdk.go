// Package plugin is the entire surface a third-party task author needs.
//
// This package contains ONLY the types plugin developers interact with.
// Plugin authors should import this package and never the root
// "github.com/arolang/runtime" package directly.
//
// # Import restriction
//
// Plugin developers should ONLY import:
//
//	import "github.com/arolang/runtime/plugin"
//
// NEVER import:
//
//	import "github.com/arolang/runtime"  // too much access to internals
//
// # Plugin structure
//
// A minimal plugin requires:
//  1. A plugin struct (can be empty)
//  2. A New() function returning something implementing plugin.Provider
//  3. At least one registered Task
//
// Example:
//
//	type Greeter struct{}
//
//	func New() plugin.Provider { return &Greeter{} }
//
//	func (g *Greeter) Tasks() map[string]plugin.Task {
//	    return map[string]plugin.Task{
//	        "greet.hello": g.hello,
//	    }
//	}
//
//	func (g *Greeter) hello(ctx *plugin.Context, result plugin.Result, object plugin.Object) plugin.Outcome {
//	    name, _ := ctx.MustResolve(object.Base)
//	    return plugin.Succeed(plugin.String("hello, " + name.AsString()))
//	}
//
// # Configuration
//
// Plugins can define a Config struct with declarative tags and run it
// through config.Prepare (defaults, then validation) themselves, as
// contrib/http's New does; the host process does not call config.Prepare:
//
//	type Config struct {
//	    Timeout time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
//	}
//
// # Lifecycle
//
// Plugins can optionally implement Initializer/Shutdowner for setup and
// teardown around the process's own startup/shutdown sequence. Task
// methods never call these directly — the host does, once, at the
// right point in the sequence.
//
// # Task methods
//
// A Task has exactly one signature, matching the root package's
// ActionFunc so a registered plugin task behaves exactly like a builtin
// verb to Dispatch:
//
//	func(ctx *plugin.Context, result plugin.Result, object plugin.Object) plugin.Outcome
//
// Task names are the caller's choice (convention: "plugin.method", e.g.
// "postgres.query", "webhook.post") — there is no reflection-based
// auto-discovery; Tasks() returns the map explicitly so a plugin's
// exported verb surface is always visible by reading one method.
package plugin

import "github.com/arolang/runtime"

// Provider is what a loaded plugin exposes: its verb table. LoadNative
// and LoadScript both return a Provider once a plugin file is resolved.
type Provider interface {
	Tasks() map[string]Task
}

// Task is the function signature every plugin verb implements — a type
// alias to aro.ActionFunc, so a plugin task IS an ActionFunc and
// Registry.Register accepts it without adaptation.
type Task = aro.ActionFunc

// Context, Result, Object, and Outcome alias the root package's dispatch
// vocabulary so plugin code never imports "github.com/arolang/runtime"
// for types it only ever passes through.
type (
	Context    = aro.Context
	Result     = aro.ResultDescriptor
	Object     = aro.ObjectDescriptor
	Outcome    = aro.ActionOutcome
	Value      = aro.Value
	OrderedMap = aro.OrderedMap
)

// Succeed and Fail build an Outcome the same way every builtin action
// does.
func Succeed(v aro.Value) Outcome { return aro.Succeed(v) }
func Fail(err error) Outcome      { return aro.Fail(err) }

// String, Int, Bool, and Map are the Value constructors a plugin task
// needs most often, re-exported so plugin authors don't need a second
// import for the handful of constructors that show up in nearly every
// task body.
func String(s string) aro.Value         { return aro.String(s) }
func Int(i int64) aro.Value             { return aro.Int(i) }
func Bool(b bool) aro.Value             { return aro.Bool(b) }
func Map(m *aro.OrderedMap) aro.Value   { return aro.Map(m) }
func NewMap() *aro.OrderedMap           { return aro.NewOrderedMap() }

// BindingExpression names the binding an action's computed operand (a
// request body, a guard's predicate tree) is read from — the same
// binding actionFetch and the other builtin request/export actions use.
const BindingExpression = aro.BindingExpression
