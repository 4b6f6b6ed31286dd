package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	aro "github.com/arolang/runtime"
	"github.com/arolang/runtime/service/filemon"
	httpservice "github.com/arolang/runtime/service/http"
	"github.com/arolang/runtime/service/tcp"
)

// serviceManager is the concrete aro.ServiceManager this process wires up
// (spec.md §4.6/§4.7/§4.8): it owns every native HTTP/TCP/file-monitor
// instance a running feature set starts, and the single shutdown-signal
// channel Keepalive blocks on. The root package never imports the
// service/* packages directly (service.go's doc comment) — this is the
// one place that bridges the two.
type serviceManager struct {
	newContext func() *aro.Context
	bundle     *Bundle

	mu       sync.Mutex
	http     map[string]*httpservice.Server
	tcp      map[string]*tcp.Server
	watchers map[string]*filemon.Watcher

	sigCh chan os.Signal
}

func newServiceManager(bundle *Bundle, newContext func() *aro.Context) *serviceManager {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return &serviceManager{
		newContext: newContext,
		bundle:     bundle,
		http:       make(map[string]*httpservice.Server),
		tcp:        make(map[string]*tcp.Server),
		watchers:   make(map[string]*filemon.Watcher),
		sigCh:      sigCh,
	}
}

// Start implements aro.ServiceManager. name's conventional values are
// "http-server" and "tcp-server" (spec.md §6 native-service entry
// points); anything else is a file-monitor path, exactly as actionWatch's
// default config shape (repository.go's sibling actions_service.go)
// already assumes.
func (m *serviceManager) Start(ctx *aro.Context, name string, cfgVal aro.Value) error {
	cfg := configMap(cfgVal)

	switch name {
	case "http-server":
		return m.startHTTP(cfg)
	case "tcp-server":
		return m.startTCP(cfg)
	default:
		return m.startWatcher(name, cfg)
	}
}

func (m *serviceManager) startHTTP(cfg map[string]aro.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.http["http-server"]; exists {
		return nil
	}

	port := 8080
	if p, ok := cfg["port"]; ok {
		port = int(p.AsInt())
	}
	srv := httpservice.NewServer(fmt.Sprintf(":%d", port))
	srv.NewContext = m.newContext

	for _, route := range m.bundle.Routes {
		route := route
		contentType := route.ContentType
		srv.Handle(route.Method, route.Path, route.OperationID, contentType, func(ctx *aro.Context) {
			runStatements(ctx, route.Statements)
		})
	}

	m.http["http-server"] = srv
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			fmt.Fprintf(os.Stderr, "http-server: %v\n", err)
		}
	}()
	return nil
}

func (m *serviceManager) startTCP(cfg map[string]aro.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tcp["tcp-server"]; exists {
		return nil
	}

	port := 9000
	if p, ok := cfg["port"]; ok {
		port = int(p.AsInt())
	}
	srv := tcp.NewServer(fmt.Sprintf(":%d", port))
	srv.NewContext = m.newContext

	m.tcp["tcp-server"] = srv
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			fmt.Fprintf(os.Stderr, "tcp-server: %v\n", err)
		}
	}()
	return nil
}

func (m *serviceManager) startWatcher(name string, cfg map[string]aro.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.watchers[name]; exists {
		return nil
	}

	path := name
	if p, ok := cfg["path"]; ok && p.Kind() == aro.KindString {
		path = p.AsString()
	}
	w := filemon.NewWatcher(path)
	w.NewContext = m.newContext
	if err := w.Start(); err != nil {
		return err
	}
	m.watchers[name] = w
	return nil
}

// Stop implements aro.ServiceManager.
func (m *serviceManager) Stop(ctx *aro.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if srv, ok := m.http[name]; ok {
		delete(m.http, name)
		return srv.Close()
	}
	if srv, ok := m.tcp[name]; ok {
		delete(m.tcp, name)
		return srv.Close()
	}
	if w, ok := m.watchers[name]; ok {
		delete(m.watchers, name)
		return w.Stop()
	}
	return fmt.Errorf("service manager: no such service %q", name)
}

// Connections implements aro.ServiceManager: resolves the
// aro.ConnectionSender for Send/Broadcast (spec §4.3).
func (m *serviceManager) Connections(name string) (aro.ConnectionSender, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if srv, ok := m.http[name]; ok {
		return srv, true
	}
	if srv, ok := m.tcp[name]; ok {
		return srv, true
	}
	return nil, false
}

// AwaitShutdown implements aro.ServiceManager's Keepalive support: blocks
// until SIGINT/SIGTERM arrives.
func (m *serviceManager) AwaitShutdown(ctx *aro.Context) error {
	select {
	case <-m.sigCh:
		return nil
	case <-ctx.GoContext().Done():
		return ctx.GoContext().Err()
	}
}

// StopAll closes every running service, for the shutdown sequence's
// "close services" step (spec §5).
func (m *serviceManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for n, srv := range m.http {
		srv.Close()
		delete(m.http, n)
	}
	for n, srv := range m.tcp {
		srv.Close()
		delete(m.tcp, n)
	}
	for n, w := range m.watchers {
		w.Stop()
		delete(m.watchers, n)
	}
}

func configMap(v aro.Value) map[string]aro.Value {
	out := make(map[string]aro.Value)
	if v.Kind() != aro.KindMap || v.AsMap() == nil {
		return out
	}
	m := v.AsMap()
	for _, k := range m.Keys() {
		val, _ := m.Get(k)
		out[k] = val
	}
	return out
}
