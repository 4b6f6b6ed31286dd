package aro

import (
	"testing"

	"github.com/arolang/runtime/config"
)

func TestDispatchExtractFromRequest(t *testing.T) {
	ctx := newTestContext()
	body := NewOrderedMap()
	body.Set("msg", String("hi"))
	req := NewOrderedMap()
	req.Set("body", Map(body))
	ctx.Bind("request", Map(req))
	ctx.Bind("body", Map(body))

	outcome := Dispatch(ctx, "extract", ResultDescriptor{Base: "msg"},
		ObjectDescriptor{Preposition: PrepositionFrom, Base: "body", Specifiers: []string{"msg"}},
		nil, StatementTemplate{Verb: "Extract", Source: "Extract the msg from the body"})

	if !outcome.Succeeded {
		t.Fatalf("extract failed: %v", outcome.Err)
	}
	if outcome.Value.AsString() != "hi" {
		t.Errorf("extracted value = %q, want %q", outcome.Value.AsString(), "hi")
	}
	bound, ok := ctx.Resolve("msg")
	if !ok || bound.AsString() != "hi" {
		t.Error("extract did not bind result into scope")
	}
}

func TestDispatchExtractMissingPropertyFails(t *testing.T) {
	ctx := newTestContext()
	ctx.Bind("thing", Map(NewOrderedMap()))

	outcome := Dispatch(ctx, "extract", ResultDescriptor{Base: "missing"},
		ObjectDescriptor{Preposition: PrepositionFrom, Base: "thing", Specifiers: []string{"missing"}},
		nil, StatementTemplate{Verb: "Extract", Source: "Extract the missing from the thing"})

	if outcome.Succeeded {
		t.Fatal("expected extract of a missing property to fail")
	}
	ae, ok := outcome.Err.(*ActionError)
	if !ok {
		t.Fatalf("expected *ActionError, got %T", outcome.Err)
	}
	if ae.Kind != ErrPropertyMissing {
		t.Errorf("error kind = %v, want ErrPropertyMissing", ae.Kind)
	}
	if ctx.ExecutionError() == nil {
		t.Error("expected execution error to be recorded on the context")
	}
}

func TestDispatchExtractFromCLIParameters(t *testing.T) {
	config.Args.SetArguments([]string{"aro-runtime", "--env=production"})
	t.Cleanup(func() { config.Args.SetArguments(nil) })

	ctx := newTestContext()
	outcome := Dispatch(ctx, "extract", ResultDescriptor{Base: "env"},
		ObjectDescriptor{Preposition: PrepositionFrom, Base: "parameters", Specifiers: []string{"env"}},
		nil, StatementTemplate{Verb: "Extract", Source: "Extract the env from the parameters"})

	if !outcome.Succeeded {
		t.Fatalf("extract failed: %v", outcome.Err)
	}
	if outcome.Value.AsString() != "production" {
		t.Errorf("extracted value = %q, want %q", outcome.Value.AsString(), "production")
	}
}

func TestDispatchIsNoOpAfterTerminal(t *testing.T) {
	ctx := newTestContext()
	ctx.SetResponse(String("already done"))

	outcome := Dispatch(ctx, "extract", ResultDescriptor{Base: "x"},
		ObjectDescriptor{Preposition: PrepositionFrom, Base: "request"},
		nil, StatementTemplate{Verb: "Extract", Source: "Extract the x from the request"})

	if !outcome.Succeeded {
		t.Error("dispatch after terminal state should report succeeded (no-op), not fail")
	}
	if _, ok := ctx.Resolve("x"); ok {
		t.Error("no-op dispatch after terminal state should not bind anything")
	}
}

func TestDispatchReturnIsTerminalAndExactlyOnce(t *testing.T) {
	ctx := newTestContext()
	data := NewOrderedMap()
	data.Set("echo", String("hi"))
	ctx.Bind(BindingExpression, Map(data))

	outcome := Dispatch(ctx, "return", ResultDescriptor{Base: "ok"}, ObjectDescriptor{},
		nil, StatementTemplate{Verb: "Return", Source: "Return OK with the _expression_"})
	if !outcome.Succeeded {
		t.Fatalf("return failed: %v", outcome.Err)
	}
	if !ctx.IsTerminal() {
		t.Error("context should be terminal after Return")
	}

	// A second statement in the same activation should now be a no-op.
	second := Dispatch(ctx, "extract", ResultDescriptor{Base: "y"},
		ObjectDescriptor{Preposition: PrepositionFrom, Base: "request"},
		nil, StatementTemplate{})
	if !second.Succeeded {
		t.Error("statement after Return should be a no-op, not a failure")
	}
}

func TestDispatchSetAllowsRebind(t *testing.T) {
	ctx := newTestContext()
	ctx.Bind("counter", Int(1))
	ctx.Bind(BindingExpression, Int(2))

	outcome := Dispatch(ctx, "set", ResultDescriptor{Base: "counter"}, ObjectDescriptor{Base: "counter"},
		nil, StatementTemplate{Verb: "Set", Source: "Set the counter to the _expression_"})
	if !outcome.Succeeded {
		t.Fatalf("set failed: %v", outcome.Err)
	}
	v, _ := ctx.Resolve("counter")
	if v.AsInt() != 2 {
		t.Errorf("counter = %d, want 2", v.AsInt())
	}
}

func TestDispatchRejectsRebindOfLocalNameForNonSetVerb(t *testing.T) {
	ctx := newTestContext()
	ctx.Bind("x", String("first"))
	thing := NewOrderedMap()
	thing.Set("x", String("second"))
	ctx.Bind("thing", Map(thing))

	outcome := Dispatch(ctx, "extract", ResultDescriptor{Base: "x"},
		ObjectDescriptor{Preposition: PrepositionFrom, Base: "thing", Specifiers: []string{"x"}},
		nil, StatementTemplate{Verb: "Extract", Source: "Extract the x from the thing"})

	if outcome.Succeeded {
		t.Fatal("expected rebind of an already-bound local name by a non-Set/Configure verb to fail")
	}
	if _, ok := outcome.Err.(*ImmutableRebindError); !ok {
		t.Errorf("expected *ImmutableRebindError, got %T", outcome.Err)
	}
	bound, _ := ctx.Resolve("x")
	if bound.AsString() != "first" {
		t.Error("original binding should not have been overwritten")
	}
}

func TestDispatchUnknownVerbIsInternalError(t *testing.T) {
	ctx := newTestContext()
	outcome := Dispatch(ctx, "frobnicate", ResultDescriptor{}, ObjectDescriptor{}, nil, StatementTemplate{})
	if outcome.Succeeded {
		t.Fatal("unknown verb should fail")
	}
	ae, ok := outcome.Err.(*ActionError)
	if !ok || ae.Kind != ErrInternalError {
		t.Errorf("expected ErrInternalError, got %v", outcome.Err)
	}
}
