package aro

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
)

// Dispatch runs the Action Dispatch algorithm of spec §4.2 for one
// compiled statement. guard is the optional JSON-tree guard expression
// attached to the call site (nil when there is no `when` clause); tmpl
// carries the unparsed source text for the error-as-source-text contract
// (spec §9, statement.go).
//
// Dispatch is what the interpreter-mode statement runner (cmd/aro-runtime)
// funnels through, so the algorithm lives in exactly one place;
// cabi/bindings.go exports no per-verb entry points. Every call opens
// a child span named after verb, parented off ctx's activation span
// (observability/setup.go's TracerProvider, or a no-op tracer when no
// collector is configured).
func Dispatch(ctx *Context, verb string, result ResultDescriptor, object ObjectDescriptor, guard any, tmpl StatementTemplate) ActionOutcome {
	_, span := otel.Tracer("aro").Start(ctx.GoContext(), verb)
	defer span.End()

	defer func() {
		// _expression_ and _literal_ are statement-scoped (spec §4.2 step 6).
		ctx.Unbind(BindingExpression)
		ctx.Unbind(BindingLiteral)
	}()

	if ctx.IsTerminal() {
		// A prior statement in this activation already set a response or
		// an execution error; later statements are no-ops (spec §3 Invariants).
		return ActionOutcome{Succeeded: true}
	}

	action, ok := ctx.Registry().lookup(verb)
	if !ok {
		err := &ActionError{Kind: ErrInternalError, Message: fmt.Sprintf("no such verb %q", verb), Verb: verb}
		ctx.SetExecutionError(err)
		return Fail(err)
	}

	if guard != nil {
		if evaluator := ctx.Evaluator(); evaluator != nil {
			passed, err := evaluator.EvaluateGuard(ctx, guard)
			if err != nil {
				actionErr := &ActionError{Kind: ErrComputationError, Message: "guard evaluation failed", Verb: verb, Cause: err}
				ctx.SetExecutionError(actionErr)
				return Fail(actionErr)
			}
			if !passed {
				return ActionOutcome{Succeeded: true}
			}
		}
	}

	ctx.setCurrentStatement(verb, tmpl.Source)

	outcome := action.fn(ctx, result, object)

	if !outcome.Succeeded {
		var actionErr *ActionError
		if ae, ok := outcome.Err.(*ActionError); ok {
			actionErr = ae
		} else {
			actionErr = &ActionError{Kind: ErrInternalError, Message: tmpl.RenderError(ctx), Cause: outcome.Err}
		}
		actionErr.Verb = verb
		if actionErr.Message == "" {
			actionErr.Message = tmpl.RenderError(ctx)
		}
		ctx.SetExecutionError(actionErr)
		slog.ErrorContext(ctx.GoContext(), "action failed", "verb", verb, "error", actionErr.Error())
		return outcome
	}

	switch action.role {
	case RoleRequest, RoleOwn:
		if result.Base != "" {
			if err := ctx.BindChecked(result.Base, outcome.Value, verb); err != nil {
				ctx.SetExecutionError(err)
				return Fail(err)
			}
		}
	case RoleResponse, RoleExport, RoleService:
		// Response/export/service verbs do not bind their result into the
		// caller's scope (spec §4.2 step 4); Return/Throw/Keepalive set
		// their own terminal state via Context.SetResponse/SetExecutionError.
	}

	return outcome
}

// RoleOf reports the semantic role registered for verb, or (RoleOwn,
// false) if the verb is unknown — used by callers that need to decide
// terminality ahead of dispatch (e.g. the HTTP handler deciding whether to
// keep running statements).
func RoleOf(r *Registry, verb string) (SemanticRole, bool) {
	a, ok := r.lookup(verb)
	if !ok {
		return RoleOwn, false
	}
	return a.role, true
}
