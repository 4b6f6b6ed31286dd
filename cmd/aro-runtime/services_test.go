package main

import (
	"testing"
	"time"

	aro "github.com/arolang/runtime"
)

func newTestBundle() *Bundle {
	return &Bundle{
		BusinessActivity: "orders",
		Routes: []RouteDescriptor{
			{Method: "GET", Path: "/health", OperationID: "health", Statements: nil},
		},
	}
}

func testContextFactory() func() *aro.Context {
	registry := aro.NewRegistry()
	aro.RegisterBuiltins(registry)
	registry.Seal()
	return func() *aro.Context {
		return aro.NewContext(nil, "orders", registry, nil, nil, nil, nil)
	}
}

func TestServiceManagerStartHTTPIsIdempotent(t *testing.T) {
	m := newServiceManager(newTestBundle(), testContextFactory())
	cfg := aro.Map(portConfig(0))

	if err := m.Start(m.newContext(), "http-server", cfg); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := m.Start(m.newContext(), "http-server", cfg); err != nil {
		t.Fatalf("second Start (idempotent) failed: %v", err)
	}
	if len(m.http) != 1 {
		t.Errorf("expected exactly one http-server entry, got %d", len(m.http))
	}

	// Give the accept-loop goroutine a moment to bind before closing.
	time.Sleep(20 * time.Millisecond)
	m.StopAll()
	if len(m.http) != 0 {
		t.Errorf("expected http map empty after StopAll, got %d entries", len(m.http))
	}
}

func TestServiceManagerStartTCPIsIdempotent(t *testing.T) {
	m := newServiceManager(newTestBundle(), testContextFactory())
	cfg := aro.Map(portConfig(0))

	if err := m.Start(m.newContext(), "tcp-server", cfg); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := m.Start(m.newContext(), "tcp-server", cfg); err != nil {
		t.Fatalf("second Start (idempotent) failed: %v", err)
	}
	if len(m.tcp) != 1 {
		t.Errorf("expected exactly one tcp-server entry, got %d", len(m.tcp))
	}

	time.Sleep(20 * time.Millisecond)
	m.StopAll()
	if len(m.tcp) != 0 {
		t.Errorf("expected tcp map empty after StopAll, got %d entries", len(m.tcp))
	}
}

func TestServiceManagerStopUnknownServiceErrors(t *testing.T) {
	m := newServiceManager(newTestBundle(), testContextFactory())
	if err := m.Stop(m.newContext(), "nope"); err == nil {
		t.Error("expected an error stopping an unregistered service name")
	}
}

func TestServiceManagerConnectionsNotFoundForUnstartedService(t *testing.T) {
	m := newServiceManager(newTestBundle(), testContextFactory())
	if _, ok := m.Connections("http-server"); ok {
		t.Error("expected Connections to report not-found before Start")
	}
}

func TestConfigMapExtractsEntriesFromMapValue(t *testing.T) {
	om := aro.NewOrderedMap()
	om.Set("port", aro.Int(9090))
	om.Set("path", aro.String("/tmp/watched"))

	out := configMap(aro.Map(om))
	if out["port"].AsInt() != 9090 {
		t.Errorf("port = %v, want 9090", out["port"])
	}
	if out["path"].AsString() != "/tmp/watched" {
		t.Errorf("path = %v, want /tmp/watched", out["path"])
	}
}

func TestConfigMapEmptyForNonMapValue(t *testing.T) {
	out := configMap(aro.String("not a map"))
	if len(out) != 0 {
		t.Errorf("expected empty map for a non-map Value, got %v", out)
	}
}

func portConfig(port int) *aro.OrderedMap {
	om := aro.NewOrderedMap()
	om.Set("port", aro.Int(int64(port)))
	return om
}
