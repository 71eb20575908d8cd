// Package runtime implements the scheduler of spec.md §4.F: it owns the
// active graph, the runtime status record, the process table produced by
// the network builder, and the watchdog. Grounded on
// internal/ghostpool/pool_manager.go's worker-lifecycle shape (spawn,
// track, join) generalized from a fixed worker pool to a graph-shaped
// process table, and on original_source/src/main.rs for the start/stop
// ordering the two-phase spawn depends on.
package runtime

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
	"github.com/flowd/flowd/internal/graph"
	"github.com/flowd/flowd/internal/metrics"
	"github.com/flowd/flowd/internal/network"
)

// pongBufSize bounds the shared watchdog pong channel; sized generously
// since a burst of simultaneous pongs must never block a process.
const pongBufSize = 256

// IOHolder is the scheduler's view of the graph-IO holder (§3 "Ownership",
// GLOSSARY: implemented as server.ClientRegistry). Kept as a narrow
// interface here so this package never imports the protocol server, which
// itself depends on this one.
type IOHolder interface {
	component.Notifier

	// SetBoundaryInports replaces the set of graph-inport sinks the
	// protocol server pushes client packets into.
	SetBoundaryInports(ports []network.BoundaryInport)
	// InportSink looks up a graph-inport sink by its public name.
	InportSink(name string) (network.BoundaryInport, bool)

	BroadcastConnect(port string)
	BroadcastDisconnect(port string)
	BroadcastPacket(port string, payload []byte)
	BroadcastNetworkStopped(graphName string)
}

// TraceEvent is one recorded packet transit, captured only while tracing
// is enabled (`start-trace`); debug mode does not affect it.
type TraceEvent struct {
	At      time.Time
	Process string
	Port    string
	Bytes   int
}

// Scheduler owns exactly one active graph's runtime state at a time.
type Scheduler struct {
	logger   *slog.Logger
	registry *component.Registry
	metrics  *metrics.Metrics

	status Status

	// mu guards everything below: the process table and watchdog/boundary
	// handles form one unit of state that start/stop/packet must see
	// consistently. Separate from the graph's own structural lock, which
	// lives on graph.Graph's caller (the protocol server holds it).
	mu             sync.Mutex
	graph          *graph.Graph
	built          *network.Built
	watchdogStop   chan struct{}
	watchdogDone   chan struct{}
	boundaryStop   chan struct{}
	boundaryDone   chan struct{}
	boundaryWakeup *edge.Wakeup

	debugEdges map[string]bool
	traceMu    sync.Mutex
	trace      []TraceEvent

	timingMu     sync.RWMutex
	pingInterval time.Duration
	pongTimeout  time.Duration
}

// New creates an idle scheduler bound to a component registry.
func New(logger *slog.Logger, registry *component.Registry, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger:     logger,
		registry:   registry,
		metrics:    m,
		debugEdges: make(map[string]bool),
	}
}

// Status returns a consistent snapshot of the runtime status record.
func (s *Scheduler) Status() Snapshot {
	return s.status.snapshot()
}

// Running reports whether a network is currently running, the guard
// spec.md §3 requires graph-editing handlers to check before mutating
// (`ResourceBusy`).
func (s *Scheduler) Running() bool {
	return s.status.isRunning()
}

// DebugMode reports whether `debug-mode` is currently enabled.
func (s *Scheduler) DebugMode() bool {
	return s.status.isDebug()
}

// SetWatchdogTiming overrides the watchdog's ping interval and pong
// timeout (SPEC_FULL.md §4.J), taking effect on the next network start.
// Zero values are ignored, leaving the corresponding default in place.
func (s *Scheduler) SetWatchdogTiming(pingInterval, pongTimeout time.Duration) {
	s.timingMu.Lock()
	defer s.timingMu.Unlock()
	if pingInterval > 0 {
		s.pingInterval = pingInterval
	}
	if pongTimeout > 0 {
		s.pongTimeout = pongTimeout
	}
}

func (s *Scheduler) watchdogPingInterval() time.Duration {
	s.timingMu.RLock()
	defer s.timingMu.RUnlock()
	if s.pingInterval > 0 {
		return s.pingInterval
	}
	return defaultWatchdogPingInterval
}

func (s *Scheduler) watchdogPongTimeout() time.Duration {
	s.timingMu.RLock()
	defer s.timingMu.RUnlock()
	if s.pongTimeout > 0 {
		return s.pongTimeout
	}
	return defaultWatchdogPongTimeout
}

// Graph returns the currently loaded graph, or nil if none was ever built.
func (s *Scheduler) Graph() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph
}

// Start performs §4.E via internal/network, then §4.F step: unparks every
// process, spawns the boundary-outport handler and the watchdog, and
// notifies io of every graph-inport connect. The process-table-non-empty
// check is the "already running" guard §4.F calls for.
func (s *Scheduler) Start(g *graph.Graph, io IOHolder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.built != nil {
		return fmt.Errorf("runtime: network already running: %w", graph.ErrBusy)
	}

	pong := make(chan edge.Signal, pongBufSize)
	built, err := network.Start(g, s.registry, pong, io)
	if err != nil {
		return err
	}

	s.graph = g
	s.built = built

	io.SetBoundaryInports(built.BoundaryInports)

	s.boundaryStop = make(chan struct{})
	s.boundaryDone = make(chan struct{})
	s.boundaryWakeup = built.Wakeups[network.OutGraphName]
	go s.runBoundaryOutports(s.boundaryWakeup, built.BoundaryOutports, io, s.boundaryStop, s.boundaryDone)

	for _, p := range built.Processes {
		p.Wakeup.Unpark()
	}

	s.watchdogStop = make(chan struct{})
	s.watchdogDone = make(chan struct{})
	go s.runWatchdog(g.Properties.Name, built.Processes, pong, io, s.watchdogStop, s.watchdogDone)

	for name := range g.Inports {
		io.BroadcastConnect(name)
	}

	s.status.markStarted(time.Now())
	if s.metrics != nil {
		s.metrics.ProcessesRunning.WithLabelValues(g.Properties.Name).Set(float64(len(built.Processes)))
		s.metrics.NetworkStarts.Inc()
	}
	s.logger.Info("network started", "graph", g.Properties.Name, "processes", len(built.Processes))
	return nil
}

// Stop implements §4.F stop(). fromWatchdog distinguishes the
// watchdog-driven path (every process already exited, no signalling or
// joining of processes/watchdog needed) from a client-requested stop.
func (s *Scheduler) Stop(io IOHolder, fromWatchdog bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.built == nil {
		s.status.markStopped()
		return nil
	}

	if !fromWatchdog {
		for name := range s.graph.Inports {
			io.BroadcastDisconnect(name)
		}
		for _, p := range s.built.Processes {
			select {
			case p.Signals <- edge.SignalStop:
			default:
			}
			p.Wakeup.Unpark()
		}
		close(s.watchdogStop)
		<-s.watchdogDone
		for _, p := range s.built.Processes {
			<-p.Done
		}
	}

	close(s.boundaryStop)
	if s.boundaryWakeup != nil {
		s.boundaryWakeup.Unpark()
	}
	<-s.boundaryDone

	graphName := s.graph.Properties.Name
	s.built = nil
	s.status.markStopped()
	if s.metrics != nil {
		s.metrics.ProcessesRunning.WithLabelValues(graphName).Set(0)
		s.metrics.NetworkStops.Inc()
	}
	s.logger.Info("network stopped", "graph", graphName, "from_watchdog", fromWatchdog)

	if fromWatchdog {
		io.BroadcastNetworkStopped(graphName)
	}
	return nil
}

// Packet implements §4.F packet(): deliver a client-originated runtime
// packet into the graph inport named by port, spin-waiting while the
// producer is full.
func (s *Scheduler) Packet(port string, payload []byte, io IOHolder) error {
	sink, ok := io.InportSink(port)
	if !ok {
		return fmt.Errorf("runtime: graph inport %q: %w", port, graph.ErrNotFound)
	}
	for !sink.Producer.TryPush(payload) {
		if sink.Wakeup != nil {
			sink.Wakeup.Unpark()
		}
		runtime.Gosched()
	}
	if sink.Wakeup != nil {
		sink.Wakeup.Unpark()
	}
	return nil
}

// SetDebugMode toggles the debug flag (`debug-mode`).
func (s *Scheduler) SetDebugMode(enable bool) {
	s.status.setDebug(enable)
}

// SetDebugEdges replaces the stored set of edges (identified by
// "src.port->tgt.port" keys) for `set-debug-edges`. The set is only stored;
// no debug events are emitted for these edges.
func (s *Scheduler) SetDebugEdges(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugEdges = make(map[string]bool, len(keys))
	for _, k := range keys {
		s.debugEdges[k] = true
	}
}

// StartTrace begins recording TraceEvents.
func (s *Scheduler) StartTrace() {
	s.status.setTracing(true)
}

// StopTrace ends recording. Per §4.F, calling it while tracing is already
// off is an error.
func (s *Scheduler) StopTrace() error {
	if !s.status.isTracing() {
		return fmt.Errorf("runtime: trace is not active: %w", graph.ErrInvalidInput)
	}
	s.status.setTracing(false)
	return nil
}

// ClearTrace discards any recorded trace events.
func (s *Scheduler) ClearTrace() {
	s.traceMu.Lock()
	defer s.traceMu.Unlock()
	s.trace = nil
}

// DumpTrace returns a copy of the recorded trace events.
func (s *Scheduler) DumpTrace() []TraceEvent {
	s.traceMu.Lock()
	defer s.traceMu.Unlock()
	out := make([]TraceEvent, len(s.trace))
	copy(out, s.trace)
	return out
}

// recordTrace appends an event if tracing is currently enabled.
func (s *Scheduler) recordTrace(process, port string, n int) {
	if !s.status.isTracing() {
		return
	}
	s.traceMu.Lock()
	defer s.traceMu.Unlock()
	s.trace = append(s.trace, TraceEvent{At: time.Now(), Process: process, Port: port, Bytes: n})
}

// Persist is the §4.F stub: it always succeeds, reserved for later disk
// serialisation of the graph.
func (s *Scheduler) Persist() error {
	return nil
}

// runBoundaryOutports is the §4.E step 6 / §4.H outport-side thread: one
// goroutine polling every graph-outport consumer, broadcasting each popped
// packet as a `runtime:packet` event, and emitting `disconnect` per port on
// shutdown.
func (s *Scheduler) runBoundaryOutports(wakeup *edge.Wakeup, consumers []network.BoundaryOutportConsumer, io IOHolder, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if len(consumers) == 0 {
		<-stop
		return
	}
	for {
		select {
		case <-stop:
			for _, c := range consumers {
				io.BroadcastDisconnect(c.PublicName)
			}
			return
		default:
		}

		progressed := false
		for _, c := range consumers {
			payload, ok, _ := c.Consumer.TryPop()
			if !ok {
				continue
			}
			progressed = true
			io.BroadcastPacket(c.PublicName, payload)
			s.recordTrace(c.PublicName, c.PublicName, len(payload))
		}
		if !progressed {
			if wakeup != nil {
				wakeup.Park()
			} else {
				time.Sleep(time.Millisecond)
			}
		}
	}
}
