// Package server implements the protocol server of spec.md §4.G: the
// graph-IO holder (ClientRegistry), the WebSocket listener, and the admin
// HTTP surface of SPEC_FULL.md §4.J.
package server

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowd/flowd/internal/network"
	"github.com/flowd/flowd/internal/protocol"
)

const (
	clientSendBuf   = 256
	writeTimeout    = time.Second
	broadcastBuffer = 1024
)

// client is one connected WebSocket peer: its socket, its outbound queue,
// and its protocol bookkeeping.
type client struct {
	conn    *websocket.Conn
	session *protocol.ClientSession
	send    chan []byte
}

// ClientRegistry is the graph-IO holder (GLOSSARY): the connected-client
// set plus the active graph's boundary-inport sinks, behind one mutex for
// inserts/emits (§5 "Shared resources"). It implements runtime.IOHolder
// and component.Notifier. Grounded on
// internal/websocket/dag_streamer.go's register/unregister/broadcast
// channel hub, generalized from a fixed DAGEvent struct to the full FBP
// Network Protocol envelope.
type ClientRegistry struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*client
	inports map[string]network.BoundaryInport

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

// NewClientRegistry creates an empty registry. Call Run in its own
// goroutine before accepting connections.
func NewClientRegistry(logger *slog.Logger) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientRegistry{
		logger:     logger,
		clients:    make(map[string]*client),
		inports:    make(map[string]network.BoundaryInport),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, broadcastBuffer),
	}
}

// Run is the hub goroutine: the only place that mutates the client set in
// response to register/unregister/broadcast traffic, mirroring the
// teacher's DAGStreamer.Run loop.
func (r *ClientRegistry) Run() {
	for {
		select {
		case c := <-r.register:
			r.mu.Lock()
			r.clients[c.session.RemoteAddr] = c
			n := len(r.clients)
			r.mu.Unlock()
			r.logger.Info("client connected", "remote_addr", c.session.RemoteAddr, "total", n)

		case c := <-r.unregister:
			r.mu.Lock()
			if _, ok := r.clients[c.session.RemoteAddr]; ok {
				delete(r.clients, c.session.RemoteAddr)
				close(c.send)
			}
			n := len(r.clients)
			r.mu.Unlock()
			r.logger.Info("client disconnected", "remote_addr", c.session.RemoteAddr, "total", n)

		case msg := <-r.broadcast:
			r.mu.Lock()
			for addr, c := range r.clients {
				select {
				case c.send <- msg:
				default:
					r.logger.Warn("client send queue full, dropping client", "remote_addr", addr)
					delete(r.clients, addr)
					close(c.send)
				}
			}
			r.mu.Unlock()
		}
	}
}

// send writes an envelope to one client only (used for request/response,
// not broadcast).
func (r *ClientRegistry) send(c *client, raw []byte) {
	select {
	case c.send <- raw:
	default:
		r.logger.Warn("client send queue full on direct reply", "remote_addr", c.session.RemoteAddr)
	}
}

func (r *ClientRegistry) broadcastEnvelope(family, command string, payload any) {
	raw, err := protocol.Encode(family, command, payload)
	if err != nil {
		r.logger.Error("failed to encode broadcast envelope", "family", family, "command", command, "error", err)
		return
	}
	select {
	case r.broadcast <- raw:
	default:
		r.logger.Warn("broadcast queue full, dropping event", "family", family, "command", command)
	}
}

// Notify implements component.Notifier. eventType follows the
// "family:command" convention (e.g. "network:stopped"); anything without
// a colon is broadcast under the "runtime" family.
func (r *ClientRegistry) Notify(eventType string, data map[string]any) {
	family, command, ok := strings.Cut(eventType, ":")
	if !ok {
		family, command = protocol.FamilyRuntime, eventType
	}
	r.broadcastEnvelope(family, command, data)
}

// SetBoundaryInports implements runtime.IOHolder.
func (r *ClientRegistry) SetBoundaryInports(ports []network.BoundaryInport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inports = make(map[string]network.BoundaryInport, len(ports))
	for _, p := range ports {
		r.inports[p.Name] = p
	}
}

// InportSink implements runtime.IOHolder.
func (r *ClientRegistry) InportSink(name string) (network.BoundaryInport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.inports[name]
	return p, ok
}

// BroadcastConnect implements runtime.IOHolder (§4.E step 9).
func (r *ClientRegistry) BroadcastConnect(port string) {
	r.broadcastEnvelope(protocol.FamilyRuntime, "packet", protocol.RuntimePacketEvent{Port: port, Event: "connect"})
}

// BroadcastDisconnect implements runtime.IOHolder (§4.E step 6, §4.H).
func (r *ClientRegistry) BroadcastDisconnect(port string) {
	r.broadcastEnvelope(protocol.FamilyRuntime, "packet", protocol.RuntimePacketEvent{Port: port, Event: "disconnect"})
}

// BroadcastPacket implements runtime.IOHolder (§4.H outport side).
func (r *ClientRegistry) BroadcastPacket(port string, payload []byte) {
	r.broadcastEnvelope(protocol.FamilyRuntime, "packet", protocol.RuntimePacketEvent{
		Port:    port,
		Event:   "data",
		Payload: string(payload),
	})
}

// BroadcastNetworkStopped implements runtime.IOHolder (§4.E step 8).
func (r *ClientRegistry) BroadcastNetworkStopped(graphName string) {
	r.broadcastEnvelope(protocol.FamilyNetwork, "stopped", protocol.Stopped{Graph: graphName, Started: true, Running: false})
}

// ClientCount reports the number of connected clients, used by /healthz.
func (r *ClientRegistry) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
