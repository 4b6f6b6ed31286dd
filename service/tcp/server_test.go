package tcp

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/arolang/runtime"
	"github.com/arolang/runtime/eventbus"
)

func newTestServer(t *testing.T, bus *eventbus.Bus) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0")
	registry := aro.NewRegistry()
	aro.RegisterBuiltins(registry)
	s.NewContext = func() *aro.Context {
		return aro.NewContext(nil, "test", registry, bus, nil, nil, nil)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	s.listener = ln
	s.Addr = ln.Addr().String()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serveConn(conn)
			}()
		}
	}()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTCPServerEmitsDataReceived(t *testing.T) {
	bus := eventbus.New(eventbus.NewScheduler())
	var wg sync.WaitGroup
	wg.Add(1)
	var received string
	bus.Subscribe("DataReceived", func(ctx *aro.Context, evt aro.Event) error {
		defer wg.Done()
		if payload, ok := ctx.Resolve("event:payload"); ok {
			received = string(payload.AsBytes())
		}
		return nil
	})

	s := newTestServer(t, bus)
	conn, err := net.Dial("tcp", s.Addr)
	if err != nil {
		t.Fatalf("net.Dial: %v", err)
	}
	defer conn.Close()
	conn.Write([]byte("hello tcp"))

	if waitTimeout(&wg, 2*time.Second) {
		t.Fatal("DataReceived was not published within timeout")
	}
	if received != "hello tcp" {
		t.Errorf("payload = %q, want %q", received, "hello tcp")
	}
}

func TestTCPServerSendWritesToConnection(t *testing.T) {
	bus := eventbus.New(eventbus.NewScheduler())
	var connected sync.WaitGroup
	connected.Add(1)
	var connectionID string
	bus.Subscribe("ClientConnected", func(ctx *aro.Context, evt aro.Event) error {
		defer connected.Done()
		if id, ok := ctx.Resolve("event:connectionId"); ok {
			connectionID = id.AsString()
		}
		return nil
	})

	s := newTestServer(t, bus)
	conn, err := net.Dial("tcp", s.Addr)
	if err != nil {
		t.Fatalf("net.Dial: %v", err)
	}
	defer conn.Close()

	if waitTimeout(&connected, 2*time.Second) {
		t.Fatal("ClientConnected was not published within timeout")
	}

	if err := s.Send(connectionID, []byte("reply")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 5)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "reply" {
		t.Errorf("received = %q, want %q", buf, "reply")
	}
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return false
	case <-time.After(timeout):
		return true
	}
}
