package aro

import "testing"

func newTestContext() *Context {
	registry := NewRegistry()
	RegisterBuiltins(registry)
	return NewContext(nil, "test-activity", registry, nil, nil, nil, nil)
}

func TestBindAndResolve(t *testing.T) {
	ctx := newTestContext()
	ctx.Bind("name", String("ada"))

	v, ok := ctx.Resolve("name")
	if !ok {
		t.Fatal("expected name to resolve")
	}
	if v.AsString() != "ada" {
		t.Errorf("name = %q, want %q", v.AsString(), "ada")
	}
}

func TestBindCheckedRejectsRebindForNonSetVerbs(t *testing.T) {
	ctx := newTestContext()
	ctx.Bind("x", Int(1))

	err := ctx.BindChecked("x", Int(2), "Extract")
	if err == nil {
		t.Fatal("expected ImmutableRebindError, got nil")
	}
	if _, ok := err.(*ImmutableRebindError); !ok {
		t.Errorf("expected *ImmutableRebindError, got %T", err)
	}
}

func TestBindCheckedAllowsRebindForSetVerb(t *testing.T) {
	ctx := newTestContext()
	ctx.Bind("x", Int(1))

	if err := ctx.BindChecked("x", Int(2), "Set"); err != nil {
		t.Fatalf("Set should be allowed to rebind: %v", err)
	}
	v, _ := ctx.Resolve("x")
	if v.AsInt() != 2 {
		t.Errorf("x = %d, want 2", v.AsInt())
	}
}

func TestUnbindThenRebindAllowed(t *testing.T) {
	ctx := newTestContext()
	ctx.Bind("x", Int(1))
	ctx.Unbind("x")

	if err := ctx.BindChecked("x", Int(2), "Extract"); err != nil {
		t.Fatalf("rebind after explicit unbind should succeed: %v", err)
	}
}

func TestChildScopeDoesNotLeakToParent(t *testing.T) {
	parent := newTestContext()
	parent.Bind("shared", String("parent-value"))

	child := parent.NewChild()
	child.Bind("onlyChild", Int(7))

	if _, ok := parent.Resolve("onlyChild"); ok {
		t.Error("child binding leaked into parent scope")
	}
	if v, ok := child.Resolve("shared"); !ok || v.AsString() != "parent-value" {
		t.Error("child did not see parent's binding")
	}
}

func TestSetResponseIsExactlyOnce(t *testing.T) {
	ctx := newTestContext()
	if !ctx.SetResponse(String("first")) {
		t.Fatal("first SetResponse should succeed")
	}
	if ctx.SetResponse(String("second")) {
		t.Fatal("second SetResponse should be rejected")
	}
	v, ok := ctx.Response()
	if !ok || v.AsString() != "first" {
		t.Errorf("response = %v, want 'first'", v.Native())
	}
}

func TestPublishGlobalVisibleAcrossContexts(t *testing.T) {
	PublishGlobal("globalFlag", Bool(true))

	ctx := newTestContext()
	v, ok := ctx.Resolve("globalFlag")
	if !ok || !v.AsBool() {
		t.Error("published global binding not visible to a fresh context")
	}
}
