package aro

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// RegisterExportActions installs the `export` semantic-role verbs: store,
// publish, log, send, emit, write, delete, broadcast (spec §4.2). None of
// these bind their result into the caller's scope.
func RegisterExportActions(r *Registry) {
	r.Register("store", RoleExport, actionStore)
	r.Register("publish", RoleExport, actionPublish)
	r.Register("log", RoleExport, actionLog)
	r.Register("send", RoleExport, actionSend)
	r.Register("emit", RoleExport, actionEmit)
	r.Register("write", RoleExport, actionWrite)
	r.Register("delete", RoleExport, actionDelete)
	r.Register("broadcast", RoleExport, actionBroadcast)
}

func operandValue(ctx *Context, object ObjectDescriptor) Value {
	if v, ok := ctx.Resolve(BindingExpression); ok {
		return v
	}
	if v, ok := ctx.Resolve(BindingLiteral); ok {
		return v
	}
	if v, ok := ctx.Resolve(object.Base); ok {
		return v
	}
	return String(object.Base)
}

// actionStore implements spec §4.3 Store: for a repository target,
// append an entity and emit RepositoryChanged{added}; for a file target,
// overwrite or create; for a queue/connection target, enqueue (delegated
// to the named ConnectionSender as a Send).
func actionStore(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	entity := operandValue(ctx, object)

	if isRepositoryName(object.Base) {
		repo, ok := ctx.Repository(object.Base)
		if !ok {
			return Fail(&ActionError{Kind: ErrInternalError, Message: "no repository manager configured"})
		}
		if err := repo.Append(entity); err != nil {
			return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
		}
		added := NewOrderedMap()
		added.Set("repository", String(object.Base))
		added.Set("added", entity)
		ctx.EventBus().Publish(ctx, Event{ID: uuid.NewString(), Topic: "RepositoryChanged", Payload: Map(added)})
		return Succeed(entity)
	}

	if result.Specifier() == "file" || looksLikePath(object.Base) {
		return writeFile(object.Base, entity)
	}

	if svc := ctx.Services(); svc != nil {
		if conn, ok := svc.Connections(object.Base); ok {
			payload, err := ToJSON(entity)
			if err != nil {
				return Fail(&ActionError{Kind: ErrComputationError, Message: err.Error()})
			}
			if err := conn.Send(object.Base, payload); err != nil {
				return Fail(&ActionError{Kind: ErrNetworkError, Message: err.Error()})
			}
			return Succeed(entity)
		}
	}

	return Fail(&ActionError{Kind: ErrInternalError, Message: fmt.Sprintf("Store: no repository, file, or connection target named %q", object.Base)})
}

func looksLikePath(s string) bool {
	return len(s) > 0 && (s[0] == '.' || s[0] == '/' || filepath.Ext(s) != "")
}

func writeFile(path string, v Value) ActionOutcome {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	var raw []byte
	if v.Kind() == KindBytes {
		raw = v.AsBytes()
	} else if v.Kind() == KindString {
		raw = []byte(v.AsString())
	} else {
		encoded, err := ToJSON(v)
		if err != nil {
			return Fail(&ActionError{Kind: ErrComputationError, Message: err.Error()})
		}
		raw = encoded
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	return Succeed(v)
}

// actionPublish implements spec §4.3 Publish: installs (alias, value)
// into the process-global mapping.
func actionPublish(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	v := operandValue(ctx, object)
	alias := result.Base
	if alias == "" {
		alias = object.Base
	}
	PublishGlobal(alias, v)
	return Succeed(v)
}

// actionLog writes a structured log line via slog, correlated to the
// current activation through ctx.GoContext() (the teacher's
// `e.l.InfoContext` pattern).
func actionLog(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	v := operandValue(ctx, object)
	slog.InfoContext(ctx.GoContext(), stringOf(v), "businessActivity", ctx.BusinessActivity())
	return Succeed(v)
}

// actionSend implements spec §4.3 Send: transmit to the addressed
// connection id (object.Base, or the first specifier). It publishes no
// event, BroadcastRequested included, and does not accept a server name
// as its target; sending to every connection of a server is
// actionBroadcast.
func actionSend(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	v := operandValue(ctx, object)
	svc := ctx.Services()
	if svc == nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: "no service manager configured"})
	}
	target := object.Base
	if len(object.Specifiers) > 0 {
		target = object.Specifiers[0]
	}
	payload, err := encodeForWire(v)
	if err != nil {
		return Fail(&ActionError{Kind: ErrComputationError, Message: err.Error()})
	}
	// A connection id carries no server affiliation in the wire format,
	// so every registered native-service name is tried in turn.
	for _, name := range []string{"ws-server", "tcp-server", "http-server"} {
		if conn, ok := svc.Connections(name); ok {
			if err := conn.Send(target, payload); err == nil {
				return Succeed(v)
			}
		}
	}
	return Fail(&ActionError{Kind: ErrNetworkError, Message: fmt.Sprintf("no connection %q is open", target)})
}

func encodeForWire(v Value) ([]byte, error) {
	if v.Kind() == KindString {
		return []byte(v.AsString()), nil
	}
	if v.Kind() == KindBytes {
		return v.AsBytes(), nil
	}
	return ToJSON(v)
}

// actionEmit implements spec §4.3 Emit: construct a user event and
// publish it on the bus.
func actionEmit(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	topic := object.Base
	payload := operandValue(ctx, object)
	if err := ctx.EventBus().Publish(ctx, Event{ID: uuid.NewString(), Topic: topic, Payload: payload}); err != nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	return Succeed(payload)
}

// actionWrite is Store's explicit-file alias — some feature sets say
// "Write the report to report.json" rather than "Store"; both funnel
// through writeFile.
func actionWrite(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	v := operandValue(ctx, object)
	path := object.Base
	if len(object.Specifiers) > 0 {
		path = object.Specifiers[0]
	}
	return writeFile(path, v)
}

// actionDelete implements spec §4.3 Delete: remove from repository
// matching predicate, or remove a file.
func actionDelete(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	if isRepositoryName(object.Base) {
		repo, ok := ctx.Repository(object.Base)
		if !ok {
			return Fail(&ActionError{Kind: ErrInternalError, Message: "no repository manager configured"})
		}
		evaluator := ctx.Evaluator()
		predicate, hasPredicate := ctx.Resolve(BindingExpression)
		var tree any
		if hasPredicate {
			tree = predicate.Native()
		}
		n, err := repo.DeleteWhere(func(item Value) bool {
			if !hasPredicate || evaluator == nil {
				return true
			}
			child := ctx.NewChild()
			child.Bind("item", item)
			ok, err := evaluator.EvaluateGuard(child, tree)
			return err == nil && ok
		})
		if err != nil {
			return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
		}
		removed := NewOrderedMap()
		removed.Set("repository", String(object.Base))
		removed.Set("removed", Int(int64(n)))
		ctx.EventBus().Publish(ctx, Event{ID: uuid.NewString(), Topic: "RepositoryChanged", Payload: Map(removed)})
		return Succeed(Int(int64(n)))
	}
	if err := os.Remove(object.Base); err != nil && !os.IsNotExist(err) {
		return Fail(&ActionError{Kind: ErrInternalError, Message: err.Error()})
	}
	return Succeed(Bool(true))
}

// actionBroadcast implements spec §4.3/§4.6.1/§4.7 Broadcast: send to all
// connections of a named server, optionally excluding the sender
// (when the object carries an `excludingSender` specifier sourced from
// the current `event.connectionId`).
func actionBroadcast(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome {
	v := operandValue(ctx, object)
	svc := ctx.Services()
	if svc == nil {
		return Fail(&ActionError{Kind: ErrInternalError, Message: "no service manager configured"})
	}
	serverName := object.Base
	conn, ok := svc.Connections(serverName)
	if !ok {
		return Fail(&ActionError{Kind: ErrInternalError, Message: fmt.Sprintf("no service named %q", serverName)})
	}
	exclude := ""
	for _, spec := range object.Specifiers {
		if spec == "excludingSender" || spec == "excluding-sender" {
			if sender, ok := ctx.Resolve("event:connectionId"); ok {
				exclude = stringOf(sender)
			}
		}
	}
	payload, err := encodeForWire(v)
	if err != nil {
		return Fail(&ActionError{Kind: ErrComputationError, Message: err.Error()})
	}
	count, err := conn.Broadcast(payload, exclude)
	if err != nil {
		return Fail(&ActionError{Kind: ErrNetworkError, Message: err.Error()})
	}
	out := NewOrderedMap()
	out.Set("count", Int(int64(count)))
	return Succeed(Map(out))
}
