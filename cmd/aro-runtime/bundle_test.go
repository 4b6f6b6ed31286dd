package main

import (
	"os"
	"path/filepath"
	"testing"

	aro "github.com/arolang/runtime"
)

func TestLoadBundleDecodesRoutesHandlersAndServices(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.json")
	raw := `{
		"businessActivity": "orders",
		"routes": [
			{"method": "GET", "path": "/orders/{id}", "operationId": "getOrder",
			 "statements": [{"verb": "Extract", "result": {"base": "id"},
			 "object": {"preposition": "from", "base": "pathParameters", "specifiers": ["id"]}, "source": "Extract the id from the pathParameters.id"}]}
		],
		"handlers": [
			{"topic": "OrderCreated", "statements": []}
		],
		"services": [
			{"name": "http-server", "config": {"port": 8080}}
		]
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}

	b, err := LoadBundle(path)
	if err != nil {
		t.Fatalf("LoadBundle failed: %v", err)
	}
	if b.BusinessActivity != "orders" {
		t.Errorf("businessActivity = %q, want %q", b.BusinessActivity, "orders")
	}
	if len(b.Routes) != 1 || b.Routes[0].OperationID != "getOrder" {
		t.Fatalf("routes decoded incorrectly: %+v", b.Routes)
	}
	if len(b.Handlers) != 1 || b.Handlers[0].Topic != "OrderCreated" {
		t.Fatalf("handlers decoded incorrectly: %+v", b.Handlers)
	}
	if len(b.Services) != 1 || b.Services[0].Name != "http-server" {
		t.Fatalf("services decoded incorrectly: %+v", b.Services)
	}
}

func TestLoadBundleMissingFileReturnsError(t *testing.T) {
	if _, err := LoadBundle("/nonexistent/bundle.json"); err == nil {
		t.Error("expected an error loading a missing bundle file")
	}
}

func TestRunStatementsDispatchesEachInOrder(t *testing.T) {
	registry := aro.NewRegistry()
	aro.RegisterBuiltins(registry)
	registry.Seal()
	ctx := aro.NewContext(nil, "orders", registry, nil, nil, nil, nil)
	ctx.Bind("name", aro.String("alice"))

	stmts := []StatementDesc{
		{
			Verb:   "Extract",
			Result: ResultJ{Base: "greeting"},
			Object: ObjectJ{Preposition: "from", Base: "name"},
			Source: "Extract the greeting from the name",
		},
		{
			Verb:   "Extract",
			Result: ResultJ{Base: "copy"},
			Object: ObjectJ{Preposition: "from", Base: "greeting"},
			Source: "Extract the copy from the greeting",
		},
	}
	runStatements(ctx, stmts)

	v, ok := ctx.Resolve("greeting")
	if !ok || v.AsString() != "alice" {
		t.Errorf("expected greeting=alice bound, got %v ok=%v", v, ok)
	}
	// copy can only resolve if the first statement ran before the second.
	c, ok := ctx.Resolve("copy")
	if !ok || c.AsString() != "alice" {
		t.Errorf("expected copy=alice bound from greeting, got %v ok=%v", c, ok)
	}
}

func TestRunStatementsStopsAfterTerminalState(t *testing.T) {
	registry := aro.NewRegistry()
	aro.RegisterBuiltins(registry)
	registry.Seal()
	ctx := aro.NewContext(nil, "orders", registry, nil, nil, nil, nil)
	ctx.SetResponse(aro.String("already done"))

	stmts := []StatementDesc{
		{
			Verb:   "Extract",
			Result: ResultJ{Base: "never"},
			Object: ObjectJ{Preposition: "from", Base: "missing"},
			Source: "Extract the never from the missing",
		},
	}
	// Must not panic or set an execution error — the statement is a no-op
	// once the activation is terminal.
	runStatements(ctx, stmts)
	if ctx.ExecutionError() != nil {
		t.Errorf("expected no execution error once terminal, got: %v", ctx.ExecutionError())
	}
}

func TestRunStatementsRejectsUnknownPreposition(t *testing.T) {
	registry := aro.NewRegistry()
	aro.RegisterBuiltins(registry)
	registry.Seal()
	ctx := aro.NewContext(nil, "orders", registry, nil, nil, nil, nil)

	stmts := []StatementDesc{
		{
			Verb:   "Extract",
			Result: ResultJ{Base: "x"},
			Object: ObjectJ{Preposition: "nonsense", Base: "y"},
			Source: "Extract the x from the y",
		},
	}
	runStatements(ctx, stmts)
	if ctx.ExecutionError() == nil {
		t.Error("expected an execution error for an unparseable preposition")
	}
}
