// Package http implements the Native HTTP Server of spec §4.6: a
// hand-rolled accept loop over raw net.Conn sockets (not net/http — the
// response marshaling, route matching, and WebSocket upgrade all need to
// see bytes the standard HTTP server hides), one goroutine per accepted
// connection, feeding directly into the runtime's Context/dispatch layer.
package http

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arolang/runtime"
)

// Handler runs a feature set's compiled statements against a freshly
// created Context for one matched request. It has already had request,
// pathParameters, queryParameters and body bound.
type Handler func(ctx *aro.Context)

// Server is a single native HTTP listener. It implements aro.ConnectionSender
// for the WebSocket connections it accepts on its configured upgrade path.
type Server struct {
	Addr         string
	WebSocketPath string
	NewContext   func() *aro.Context

	router   *Router
	handlers map[string]Handler

	listener net.Listener

	connMu sync.RWMutex
	conns  map[string]net.Conn

	closing chan struct{}
	wg      sync.WaitGroup
}

func NewServer(addr string) *Server {
	return &Server{
		Addr:     addr,
		router:   NewRouter(),
		handlers: make(map[string]Handler),
		conns:    make(map[string]net.Conn),
		closing:  make(chan struct{}),
	}
}

// Handle registers a route at startup (spec §5: "route table ... written
// at startup only, thereafter read-only").
func (s *Server) Handle(method, pattern, operationID, contentType string, h Handler) {
	s.router.Register(method, pattern, operationID, contentType)
	s.handlers[operationID] = h
}

// ListenAndServe opens the listening socket and runs the accept loop until
// Close is called. It returns once the listener is closed.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("service/http: listen %s: %w", s.Addr, err)
	}
	s.listener = ln
	slog.Info("http server listening", "addr", s.Addr)

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

// Close stops accepting new connections and waits (up to the caller's own
// drain timeout) for in-flight workers to finish.
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
	defer conn.Close()
	reader := bufio.NewReader(conn)

	req, err := readRequest(reader)
	if err != nil {
		return
	}

	if s.WebSocketPath != "" && req.path == s.WebSocketPath && isWebSocketUpgrade(req) {
		s.serveWebSocket(conn, reader, req)
		return
	}

	s.serveHTTP(conn, req)
}

type httpRequest struct {
	method  string
	path    string
	query   map[string]string
	headers map[string]string
	body    []byte
}

// readRequest reads the request line and headers until the blank line,
// then — if Content-Length is present — the remaining body bytes (spec
// §4.6 steps 1-2). bufio.Reader's buffering absorbs TCP fragmentation for
// us in place of a manual select() loop.
func readRequest(r *bufio.Reader) (httpRequest, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return httpRequest{}, err
	}
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return httpRequest{}, fmt.Errorf("service/http: malformed request line %q", line)
	}
	method := parts[0]
	rawPath := parts[1]

	headers := make(map[string]string)
	for {
		hline, err := r.ReadString('\n')
		if err != nil {
			return httpRequest{}, err
		}
		hline = strings.TrimRight(hline, "\r\n")
		if hline == "" {
			break
		}
		idx := strings.IndexByte(hline, ':')
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(hline[:idx]))
		headers[key] = strings.TrimSpace(hline[idx+1:])
	}

	path, query := splitPathQuery(rawPath)

	var body []byte
	if cl := headers["content-length"]; cl != "" {
		n, err := strconv.Atoi(cl)
		if err == nil && n > 0 {
			body = make([]byte, n)
			if _, err := readFull(r, body); err != nil {
				return httpRequest{}, err
			}
		}
	}

	return httpRequest{method: method, path: path, query: query, headers: headers, body: body}, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// splitPathQuery parses the URI into a path and a query map,
// percent-decoding both keys and values (spec §4.6 step 3).
func splitPathQuery(raw string) (string, map[string]string) {
	query := make(map[string]string)
	path := raw
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		path = raw[:idx]
		values, err := url.ParseQuery(raw[idx+1:])
		if err == nil {
			for k, vs := range values {
				if len(vs) > 0 {
					query[k] = vs[0]
				}
			}
		}
	}
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}
	return path, query
}

func isWebSocketUpgrade(req httpRequest) bool {
	return strings.EqualFold(req.headers["upgrade"], "websocket") &&
		strings.Contains(strings.ToLower(req.headers["connection"]), "upgrade")
}

func (s *Server) serveHTTP(conn net.Conn, req httpRequest) {
	rt, params, ok := s.router.Match(req.method, req.path)
	if !ok {
		writeResponse(conn, 404, "application/json", []byte(`{"error":"not found"}`))
		return
	}
	handler, ok := s.handlers[rt.operationID]
	if !ok {
		writeResponse(conn, 500, "application/json", []byte(`{"error":"no handler registered"}`))
		return
	}

	ctx := s.NewContext()
	bindRequestContext(ctx, req, params)

	handler(ctx)

	status, body := responseFor(ctx)
	ct := contentTypeFor(req.path, rt.contentType, body)
	writeResponse(conn, status, ct, body)
}

func bindRequestContext(ctx *aro.Context, req httpRequest, params map[string]string) {
	pathParams := aro.NewOrderedMap()
	for k, v := range params {
		pathParams.Set(k, aro.String(v))
	}
	queryParams := aro.NewOrderedMap()
	for k, v := range req.query {
		queryParams.Set(k, aro.String(v))
	}

	requestMap := aro.NewOrderedMap()
	requestMap.Set("method", aro.String(req.method))
	requestMap.Set("path", aro.String(req.path))
	headers := aro.NewOrderedMap()
	for k, v := range req.headers {
		headers.Set(k, aro.String(v))
	}
	requestMap.Set("headers", aro.Map(headers))

	var bodyVal aro.Value
	trimmed := bytes.TrimSpace(req.body)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if parsed, err := aro.FromJSON(trimmed); err == nil {
			bodyVal = parsed
		}
	}
	if bodyVal.Kind() == aro.KindNull && len(req.body) > 0 {
		bodyVal = aro.String(string(req.body))
	}
	requestMap.Set("body", bodyVal)

	ctx.Bind(aro.BindingRequest, aro.Map(requestMap))
	ctx.Bind(aro.BindingPathParameters, aro.Map(pathParams))
	ctx.Bind(aro.BindingQueryParameters, aro.Map(queryParams))
	ctx.Bind("body", bodyVal)
}

// responseFor reads the activation's terminal state — either the
// (status, data) Return installed, or the thrown/propagated error's
// mapped HTTP status (spec §7 Open Question #2).
func responseFor(ctx *aro.Context) (int, []byte) {
	if err := ctx.ExecutionError(); err != nil {
		status := 500
		if ae, ok := err.(*aro.ActionError); ok {
			status = ae.HTTPStatus()
		}
		body, _ := aro.ToJSON(aro.Map(errorBody(err.Error())))
		return status, body
	}
	resp, ok := ctx.Response()
	if !ok {
		return 204, nil
	}
	m := resp.AsMap()
	status := 200
	var data aro.Value
	if m != nil {
		if s, ok := m.Get("status"); ok {
			status = int(s.AsInt())
		}
		if d, ok := m.Get("data"); ok {
			data = d
		}
	}
	if data.Kind() == aro.KindNull {
		return status, nil
	}
	body, err := aro.ToJSON(data)
	if err != nil {
		return 500, []byte(`{"error":"failed to encode response"}`)
	}
	return status, body
}

func errorBody(message string) *aro.OrderedMap {
	m := aro.NewOrderedMap()
	m.Set("error", aro.String(message))
	return m
}

func writeResponse(conn net.Conn, status int, contentType string, body []byte) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", status, statusText(status))
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(body))
	buf.WriteString("Connection: close\r\n\r\n")
	buf.Write(body)
	conn.Write(buf.Bytes())

	// Shut the write side, brief sleep to let the client read, then close
	// (spec §4.6 step 8).
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
	time.Sleep(10 * time.Millisecond)
}

var statusTexts = map[int]string{
	200: "OK", 201: "Created", 202: "Accepted", 204: "No Content",
	400: "Bad Request", 401: "Unauthorized", 403: "Forbidden", 404: "Not Found",
	409: "Conflict", 422: "Unprocessable Entity", 500: "Internal Server Error",
	503: "Service Unavailable",
}

func statusText(code int) string {
	if t, ok := statusTexts[code]; ok {
		return t
	}
	return "Status"
}

// serveWebSocket completes the handshake then enters the frame loop
// (spec §4.6 step 4, §4.6.1).
func (s *Server) serveWebSocket(conn net.Conn, reader *bufio.Reader, req httpRequest) {
	key := req.headers["sec-websocket-key"]
	if key == "" {
		return
	}
	accept := acceptKey(key)
	handshake := fmt.Sprintf(
		"HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: %s\r\n\r\n",
		accept,
	)
	if _, err := conn.Write([]byte(handshake)); err != nil {
		return
	}

	connectionID := uuid.NewString()
	s.connMu.Lock()
	s.conns[connectionID] = conn
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		delete(s.conns, connectionID)
		s.connMu.Unlock()
		s.publishDisconnect(connectionID, req)
	}()

	s.publishConnected(connectionID, req)

	var fragments []byte

	for {
		frame, err := readFrame(reader)
		if err != nil {
			return
		}
		switch frame.opcode {
		case opClose:
			writeFrame(conn, opClose, nil)
			return
		case opPing:
			writeFrame(conn, opPong, frame.payload)
		case opPong:
			// no action required
		case opText, opBinary:
			if frame.fin {
				s.publishMessage(connectionID, frame.payload)
			} else {
				fragments = append(fragments[:0], frame.payload...)
			}
		case opContinuation:
			fragments = append(fragments, frame.payload...)
			if frame.fin {
				s.publishMessage(connectionID, fragments)
				fragments = nil
			}
		}
	}
}

func (s *Server) publishConnected(connectionID string, req httpRequest) {
	s.publishConnectionEvent("ClientConnected", connectionID, req)
}

func (s *Server) publishDisconnect(connectionID string, req httpRequest) {
	s.publishConnectionEvent("ClientDisconnected", connectionID, req)
}

func (s *Server) publishConnectionEvent(topic, connectionID string, req httpRequest) {
	if s.NewContext == nil {
		return
	}
	ctx := s.NewContext()
	payload := aro.NewOrderedMap()
	payload.Set("connectionId", aro.String(connectionID))
	payload.Set("path", aro.String(req.path))
	ctx.EventBus().Publish(ctx, aro.Event{Topic: topic, Payload: aro.Map(payload)})
}

func (s *Server) publishMessage(connectionID string, payload []byte) {
	if s.NewContext == nil {
		return
	}
	ctx := s.NewContext()
	evt := aro.NewOrderedMap()
	evt.Set("connectionId", aro.String(connectionID))
	evt.Set("message", aro.String(string(payload)))
	ctx.EventBus().Publish(ctx, aro.Event{Topic: "WebSocketMessage", Payload: aro.Map(evt)})
}

var _ aro.ConnectionSender = (*Server)(nil)

// Send writes payload as a single text frame to the named connection
// (spec §4.6.1 "outbound frames are unmasked").
func (s *Server) Send(connectionID string, payload []byte) error {
	s.connMu.RLock()
	conn, ok := s.conns[connectionID]
	s.connMu.RUnlock()
	if !ok {
		return fmt.Errorf("service/http: unknown connection %q", connectionID)
	}
	return writeFrame(conn, opText, payload)
}

// Broadcast writes payload to every connection except excludeConnectionID
// (empty string excludes none), returning the count of recipients.
func (s *Server) Broadcast(payload []byte, excludeConnectionID string) (int, error) {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	sent := 0
	for id, conn := range s.conns {
		if id == excludeConnectionID {
			continue
		}
		if err := writeFrame(conn, opText, payload); err == nil {
			sent++
		}
	}
	return sent, nil
}
