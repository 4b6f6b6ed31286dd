package aro

// ConnectionSender is what a native service (HTTP/WebSocket server, TCP
// socket server) exposes for Send/Broadcast (spec §4.3, §4.6.1, §4.7).
type ConnectionSender interface {
	Send(connectionID string, payload []byte) error
	Broadcast(payload []byte, excludeConnectionID string) (int, error)
}

// ServiceManager is the dependency Context/actions_service.go need from
// whichever concrete native service packages (service/http, service/tcp,
// service/filemon) are wired into the running process. Defined here so
// the root package never imports those packages directly; cmd/aro-runtime
// is where the concrete wiring happens.
type ServiceManager interface {
	// Start instantiates and registers the named service ("http-server",
	// "tcp-server", or a file-monitor name) for later Stop/shutdown.
	Start(ctx *Context, name string, config Value) error
	Stop(ctx *Context, name string) error
	// Connections resolves the ConnectionSender for a named server, used
	// by Send/Broadcast.
	Connections(name string) (ConnectionSender, bool)
	// AwaitShutdown blocks until a shutdown signal arrives (spec §4.3
	// Keepalive) and returns once the process should begin its drain.
	AwaitShutdown(ctx *Context) error
}

func (c *Context) Services() ServiceManager { return c.services }
