package aro

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// published holds process-global bindings — names bound once and visible
// to every Context regardless of scope chain, guarded by a single
// sync.RWMutex per spec §3 ("published (process-global) bindings behind a
// sync.RWMutex"). Reads vastly outnumber writes (every Resolve call that
// misses the local scope chain falls through here), hence RWMutex over a
// plain Mutex.
var published = struct {
	mu       sync.RWMutex
	bindings map[string]Value
}{bindings: make(map[string]Value)}

// PublishGlobal makes a binding visible to every Context in the process,
// independent of scope nesting (spec §3).
func PublishGlobal(name string, v Value) {
	published.mu.Lock()
	defer published.mu.Unlock()
	published.bindings[name] = v
}

func resolvePublished(name string) (Value, bool) {
	published.mu.RLock()
	defer published.mu.RUnlock()
	v, ok := published.bindings[name]
	return v, ok
}

// WaitReason describes why a Context is parked mid-activation (spec §4.5's
// "yield-while-blocked" contract — a handler that awaits something records
// why, so the scheduler and observability can distinguish a blocked
// activation from a hung one).
type WaitReason int

const (
	WaitNone WaitReason = iota
	WaitEvent
	WaitNativeService
	WaitShutdownDrain
)

// Context is the Execution Context: the runtime value spec §3 calls "the
// execution context" — a scope chain of bindings, an exactly-once response
// slot, an execution-error slot, a reference to the event bus, and the
// schema registry in force for validation actions. Every action receives
// the Context it was dispatched against and every child activation
// (nested action block, event handler, parallel iteration) gets a new
// Context chained off its parent via NewChild.
type Context struct {
	id     string
	goCtx  context.Context
	parent *Context
	scope  *scope

	registry       *Registry
	bus            EventBus
	eval           ExpressionEvaluator
	repos          RepositoryManager
	services       ServiceManager
	schemaRegistry *SchemaRegistry
	businessActivity string

	// span is the activation-level trace span NewContext opens; it ends
	// the moment this Context reaches a terminal state. Child Contexts
	// (NewChild/NewBlockScope) don't own one of their own — their actions'
	// dispatch spans parent directly off this one via the shared goCtx.
	span trace.Span

	mu             sync.Mutex
	response       *Value
	responseSet    bool
	executionError error
	waitReason     WaitReason

	// currentVerb/currentStatement back the "the code is the error
	// message" contract (spec §4.2): StatementTemplate needs the verb and
	// raw statement text of whatever action is currently dispatching so
	// it can render resolved values back into the source text.
	currentVerb      string
	currentStatement string
}

// NewContext creates the root Context for a business activity activation
// (an inbound HTTP request, a TCP connection event, a scheduled trigger,
// Application-Start/Application-End). businessActivity names the feature
// set this activation belongs to (spec §4.5 repository keying,
// observability span naming).
func NewContext(goCtx context.Context, businessActivity string, registry *Registry, bus EventBus, eval ExpressionEvaluator, repos RepositoryManager, schemas *SchemaRegistry) *Context {
	if bus == nil {
		bus = noopEventBus{}
	}
	if goCtx == nil {
		goCtx = context.Background()
	}
	spanCtx, span := otel.Tracer("aro").Start(goCtx, "activation "+businessActivity)
	return &Context{
		id:               uuid.NewString(),
		goCtx:            spanCtx,
		span:             span,
		scope:            newScope(nil),
		registry:         registry,
		bus:              bus,
		eval:             eval,
		repos:            repos,
		schemaRegistry:   schemas,
		businessActivity: businessActivity,
	}
}

// NewChild opens a nested scope for a block of actions (spec §3 "scope
// chain: parent/child"). The child shares the parent's registry, bus,
// schema registry and business activity, but has its own response slot —
// event handlers and parallel-for-each iterations each get their own
// terminal state independent of their publisher/parent.
func (c *Context) NewChild() *Context {
	return &Context{
		id:               uuid.NewString(),
		goCtx:            c.goCtx,
		parent:           c,
		scope:            newScope(c.scope),
		registry:         c.registry,
		bus:              c.bus,
		eval:             c.eval,
		repos:            c.repos,
		services:         c.services,
		schemaRegistry:   c.schemaRegistry,
		businessActivity: c.businessActivity,
	}
}

// WithServices installs the process's ServiceManager. Called once during
// bootstrap on the root Context; child contexts inherit it through
// NewChild/NewBlockScope.
func (c *Context) WithServices(s ServiceManager) *Context {
	c.services = s
	return c
}

// NewBlockScope opens a nested scope that still shares the parent's
// response/error slots — used for simple nested action blocks (an "if"
// body, a loop body) where a Respond inside the block should terminate
// the same activation as its enclosing block, unlike NewChild.
func (c *Context) NewBlockScope() *Context {
	child := c.NewChild()
	child.response = c.response
	return child
}

func (c *Context) ID() string               { return c.id }
func (c *Context) BusinessActivity() string  { return c.businessActivity }
func (c *Context) GoContext() context.Context {
	if c.goCtx == nil {
		return context.Background()
	}
	return c.goCtx
}
func (c *Context) Registry() *Registry       { return c.registry }
func (c *Context) EventBus() EventBus        { return c.bus }
func (c *Context) Evaluator() ExpressionEvaluator { return c.eval }
func (c *Context) Repositories() RepositoryManager { return c.repos }
func (c *Context) Schemas() *SchemaRegistry   { return c.schemaRegistry }

// Repository resolves name within this context's business activity,
// returning (nil, false) if no RepositoryManager is wired (e.g. a unit
// test context built without one).
func (c *Context) Repository(name string) (Repository, bool) {
	if c.repos == nil {
		return nil, false
	}
	return c.repos.Repository(c.businessActivity, name), true
}

// Bind attaches name to v in the current scope. Reserved names may always
// be (re)bound by the runtime itself (used internally to install `event`,
// `request`, `pathParameters`, etc.); ordinary action-introduced bindings
// enforce the rebind policy from Open Question #1.
func (c *Context) Bind(name string, v Value) {
	c.scope.bind(name, v)
}

// BindChecked enforces the rebind policy: a name already bound in the
// current (local) scope may only be rebound when the dispatching verb is
// Set or Configure. Every other verb gets ImmutableRebindError on a
// second bind of the same local name.
func (c *Context) BindChecked(name string, v Value, verb string) error {
	if c.scope.boundLocally(name) {
		lowered := lowerVerb(verb)
		if lowered != "set" && lowered != "configure" {
			return &ImmutableRebindError{Name: name, Verb: verb}
		}
	}
	c.scope.bind(name, v)
	return nil
}

// Unbind removes name from the current scope only, permitting a
// subsequent rebind regardless of verb (the explicit-unbind half of Open
// Question #1's resolution).
func (c *Context) Unbind(name string) {
	c.scope.unbind(name)
}

// Resolve looks up name through the scope chain, then falls back to
// process-global published bindings.
func (c *Context) Resolve(name string) (Value, bool) {
	if v, ok := c.scope.lookup(name); ok {
		return v, true
	}
	return resolvePublished(name)
}

// MustResolve resolves name or returns a PropertyMissing error (spec §7).
func (c *Context) MustResolve(name string) (Value, error) {
	v, ok := c.Resolve(name)
	if !ok {
		return Value{}, &ActionError{Kind: ErrPropertyMissing, Message: fmt.Sprintf("binding %q is not defined", name)}
	}
	return v, nil
}

// SetResponse fills the exactly-once response slot (spec §3). A second
// call is a no-op reporting false, letting dispatch treat the activation
// as already terminal rather than silently overwriting the first
// response.
func (c *Context) SetResponse(v Value) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.responseSet {
		return false
	}
	c.response = &v
	c.responseSet = true
	c.endSpanLocked()
	return true
}

func (c *Context) Response() (Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.responseSet {
		return Value{}, false
	}
	return *c.response, true
}

func (c *Context) IsTerminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responseSet || c.executionError != nil
}

// SetExecutionError records a thrown/propagated error for this
// activation (spec §3 "executionError slot").
func (c *Context) SetExecutionError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.executionError == nil {
		c.executionError = err
		c.endSpanLocked()
	}
}

// endSpanLocked ends this Context's activation span, if it owns one. Safe
// to call more than once (SetResponse and SetExecutionError both reach
// here, though only the first terminal transition does anything) since the
// span is cleared after ending. Callers must hold c.mu.
func (c *Context) endSpanLocked() {
	if c.span != nil {
		c.span.End()
		c.span = nil
	}
}

func (c *Context) ExecutionError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executionError
}

func (c *Context) SetWait(r WaitReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitReason = r
}

func (c *Context) Wait() WaitReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitReason
}

func (c *Context) setCurrentStatement(verb, statement string) {
	c.currentVerb = verb
	c.currentStatement = statement
}

func lowerVerb(v string) string {
	out := make([]byte, len(v))
	for i := 0; i < len(v); i++ {
		ch := v[i]
		if ch >= 'A' && ch <= 'Z' {
			ch += 'a' - 'A'
		}
		out[i] = ch
	}
	return string(out)
}
