// Package tcp implements the Native TCP Socket Server of spec §4.7: the
// same accept-loop topology as service/http, but framing-agnostic —
// whatever arrives on the wire is forwarded as a DataReceived event.
package tcp

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/arolang/runtime"
)

const readBufferSize = 4096

// Server is a single native TCP listener, keyed connections by
// connectionId, guarded by its own lock (spec §5 "HTTP/TCP connection
// maps: lock-protected; per-connection I/O is single-threaded in its
// worker").
type Server struct {
	Addr       string
	NewContext func() *aro.Context

	listener net.Listener

	connMu sync.RWMutex
	conns  map[string]net.Conn

	closing chan struct{}
	wg      sync.WaitGroup
}

func NewServer(addr string) *Server {
	return &Server{
		Addr:    addr,
		conns:   make(map[string]net.Conn),
		closing: make(chan struct{}),
	}
}

func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("service/tcp: listen %s: %w", s.Addr, err)
	}
	s.listener = ln
	slog.Info("tcp server listening", "addr", s.Addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return nil
			default:
				return err
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) Close() error {
	close(s.closing)
	if s.listener != nil {
		s.listener.Close()
	}
	s.connMu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Server) serveConn(conn net.Conn) {
	connectionID := uuid.NewString()
	remote := conn.RemoteAddr().String()

	s.connMu.Lock()
	s.conns[connectionID] = conn
	s.connMu.Unlock()

	s.publish("ClientConnected", connectionID, remote, nil)

	defer func() {
		conn.Close()
		s.connMu.Lock()
		delete(s.conns, connectionID)
		s.connMu.Unlock()
		s.publish("ClientDisconnected", connectionID, remote, nil)
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			s.publish("DataReceived", connectionID, remote, payload)
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) publish(topic, connectionID, remoteAddress string, payload []byte) {
	if s.NewContext == nil {
		return
	}
	ctx := s.NewContext()
	evt := aro.NewOrderedMap()
	evt.Set("connectionId", aro.String(connectionID))
	evt.Set("remoteAddress", aro.String(remoteAddress))
	if payload != nil {
		evt.Set("payload", aro.Bytes(payload))
	}
	ctx.EventBus().Publish(ctx, aro.Event{Topic: topic, Payload: aro.Map(evt)})
}

var _ aro.ConnectionSender = (*Server)(nil)

func (s *Server) Send(connectionID string, payload []byte) error {
	s.connMu.RLock()
	conn, ok := s.conns[connectionID]
	s.connMu.RUnlock()
	if !ok {
		return fmt.Errorf("service/tcp: unknown connection %q", connectionID)
	}
	_, err := conn.Write(payload)
	return err
}

func (s *Server) Broadcast(payload []byte, excludeConnectionID string) (int, error) {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	sent := 0
	for id, conn := range s.conns {
		if id == excludeConnectionID {
			continue
		}
		if _, err := conn.Write(payload); err == nil {
			sent++
		}
	}
	return sent, nil
}
