package aro

import (
	"fmt"

	"github.com/google/uuid"
)

// RegisterServiceActions installs the `service` semantic-role verbs:
// start, stop, listen, watch, connect, close, keepalive, call (spec
// §4.2). Binding behavior is "as applicable"; only Keepalive parks the
// calling thread.
func RegisterServiceActions(r *Registry) {
	r.Register("start", RoleService, actionStart)
	r.Register("listen", RoleService, actionStart)
	r.Register("watch", RoleService, actionWatch)
	r.Register("stop", RoleService, actionStop)
	r.Register("close", RoleService, actionStop)
	r.Register("connect", RoleService, actionConnect)
	r.Register("keepalive", RoleService, actionKeepalive)
	r.Register("call", RoleService, actionCall)
}

// actionStart implements spec §4.3 Start/Listen: instantiate the named
// service (HTTP, TCP) and register it for shutdown. Configuration
// (port, etc.) comes from `_expression_` when present.
func actionStart(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	svc := ctx.Services()
	if svc == nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: "no service manager configured"})
	}
	config, _ := ctx.Resolve(BindingExpression)
	if err := svc.Start(ctx, object.Base, config); err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	out := NewOrderedMap()
	out.Set("name", String(object.Base))
	out.Set("started", Bool(true))
	return Succeed(Map(out))
}

// actionWatch implements spec §4.3 Watch: instantiate a file monitor
// service the same way Start does, on the path named by the object.
func actionWatch(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	svc := ctx.Services()
	if svc == nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: "no service manager configured"})
	}
	config, hasConfig := ctx.Resolve(BindingExpression)
	if !hasConfig {
		cfg := NewOrderedMap()
		cfg.Set("path", String(object.Base))
		config = Map(cfg)
	}
	if err := svc.Start(ctx, object.Base, config); err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	return Succeed(Bool(true))
}

// actionStop implements spec §4.3 Stop/Close: drain and tear down the
// named service.
func actionStop(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	svc := ctx.Services()
	if svc == nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: "no service manager configured"})
	}
	if err := svc.Stop(ctx, object.Base); err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	return Succeed(Bool(true))
}

// actionConnect resolves (but does not itself open) a named outbound
// connection target — most feature sets connect implicitly via Fetch or
// Send; Connect exists for protocols (raw TCP dial) layered on top of
// service/tcp, delegated to the service manager under the same Start
// path with a "dial" config flag.
func actionConnect(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	svc := ctx.Services()
	if svc == nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: "no service manager configured"})
	}
	cfg := NewOrderedMap()
	cfg.Set("dial", Bool(true))
	cfg.Set("address", String(object.Base))
	if err := svc.Start(ctx, object.Base, Map(cfg)); err != nil {
		return Fail(&ActionError{Kind: ErrNetworkError, Message: err.Error()})
	}
	return Succeed(Bool(true))
}

// actionKeepalive implements spec §4.3/§5 Keepalive: install SIGINT/
// SIGTERM handlers, publish WaitStateEntered, then block the caller
// until a shutdown signal arrives. This is the only service verb that
// parks (spec §4.2's role table).
func actionKeepalive(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	svc := ctx.Services()
	if svc == nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: "no service manager configured"})
	}
	ctx.SetWait(WaitNativeService)
	defer ctx.SetWait(WaitNone)
	ctx.EventBus().Publish(ctx, Event{ID: uuid.NewString(), Topic: "WaitStateEntered", Payload: Map(NewOrderedMap())})
	if err := svc.AwaitShutdown(ctx); err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	return Succeed(Bool(true))
}

// actionCall invokes a named plugin task directly (bypassing the event
// bus), for feature sets that need a synchronous request/response round
// trip to a registered plugin rather than an async Emit/handler pair.
func actionCall(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	registry := ctx.Registry()
	action, ok := registry.lookup(object.Base)
	if !ok {
		return Fail(&ActionError{Kind: ErrInternalError, Message: fmt.Sprintf("no callable task %q registered", object.Base)})
	}
	return action.fn(ctx, result, object)
}
