package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/graph"
	"github.com/flowd/flowd/internal/protocol"
	"github.com/flowd/flowd/internal/runtime"
)

// DefaultListenAddr is spec.md §6's default protocol listener address.
const DefaultListenAddr = "localhost:3569"

// Server is the protocol server of §4.G: a WebSocket listener advertising
// the `noflo` sub-protocol, dispatching decoded envelopes to the graph,
// registry, and scheduler.
type Server struct {
	logger    *slog.Logger
	registry  *component.Registry
	scheduler *runtime.Scheduler
	io        *ClientRegistry

	graphMu sync.RWMutex
	graphs  map[string]*graph.Graph

	upgrader websocket.Upgrader
	http     *http.Server
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		Subprotocols:    []string{"noflo"},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

// New creates a protocol server bound to listenAddr (default
// DefaultListenAddr). io must already have Run started in its own
// goroutine.
func New(logger *slog.Logger, registry *component.Registry, scheduler *runtime.Scheduler, io *ClientRegistry, listenAddr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if listenAddr == "" {
		listenAddr = DefaultListenAddr
	}
	s := &Server{
		logger:    logger,
		registry:  registry,
		scheduler: scheduler,
		io:        io,
		graphs:    map[string]*graph.Graph{"main": graph.New("main")},
		upgrader:  newUpgrader(),
	}
	s.http = &http.Server{
		Addr:              listenAddr,
		Handler:           http.HandlerFunc(s.handleUpgrade),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run blocks serving the WebSocket listener until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("protocol server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight
// handlers to return, per the graceful-shutdown convention cmd/flowd uses
// for every listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	sess := protocol.NewClientSession(r.RemoteAddr)
	_ = sess.Activate()
	c := &client{conn: conn, session: sess, send: make(chan []byte, clientSendBuf)}

	s.io.register <- c
	go s.writePump(c)
	s.readLoop(c)
}

// writePump is the single writer goroutine per connection; gorilla's
// websocket.Conn forbids concurrent writes, so every outbound message
// (direct reply or broadcast) flows through this one loop and its 1s
// write deadline (§4.G "write timeout 1s").
func (s *Server) writePump(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.logger.Warn("websocket write failed, closing", "remote_addr", c.session.RemoteAddr, "error", err)
			c.conn.Close()
			return
		}
	}
	c.conn.Close()
}

// errorGraphName best-effort recovers the graph name a failed network-family
// request named, falling back to the scheduler's active graph, matching
// §7's requirement that `network:error` always carries a graph.
func (s *Server) errorGraphName(env protocol.Envelope) string {
	var req struct {
		Graph string `json:"graph"`
	}
	if err := env.Decode(&req); err == nil && req.Graph != "" {
		return req.Graph
	}
	if g := s.scheduler.Graph(); g != nil {
		return g.Properties.Name
	}
	return "main"
}

// readLoop is §4.G's message loop: read one frame, parse, dispatch, reply.
// A frame whose envelope does not parse closes the connection. Any error
// from dispatch, including an unknown family or command, gets an error
// reply and the connection stays open.
func (s *Server) readLoop(c *client) {
	defer func() {
		s.io.unregister <- c
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.session.RecordMessage(false, len(raw))

		env, err := protocol.ParseEnvelope(raw)
		if err != nil {
			c.session.RecordError(err)
			return
		}

		replies, err := s.dispatch(env)
		if err != nil {
			c.session.RecordError(err)
			var out []byte
			var encErr error
			if env.Protocol == protocol.FamilyNetwork {
				out, encErr = protocol.Encode(env.Protocol, "error", protocol.NetworkError{
					Message: err.Error(),
					Stack:   fmt.Sprintf("%+v", err),
					Graph:   s.errorGraphName(env),
				})
			} else {
				out, encErr = protocol.Encode(env.Protocol, "error", protocol.Error{Message: err.Error()})
			}
			if encErr == nil {
				s.io.send(c, out)
			}
			continue
		}
		for _, reply := range replies {
			out, err := protocol.Encode(reply.family, reply.command, reply.payload)
			if err != nil {
				s.logger.Error("failed to encode reply", "error", err)
				continue
			}
			c.session.RecordMessage(true, len(out))
			s.io.send(c, out)
		}
	}
}
