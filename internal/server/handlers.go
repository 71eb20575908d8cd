package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/graph"
	"github.com/flowd/flowd/internal/protocol"
)

// outMsg is one envelope the dispatcher wants written back to the
// requesting client, in order. Several commands reply with more than one
// message (`getruntime` + its `ports` follow-up, `list`'s N components +
// `componentsready`), hence a slice rather than a single reply.
type outMsg struct {
	family  string
	command string
	payload any
}

func reply(family, command string, payload any) []outMsg {
	return []outMsg{{family: family, command: command, payload: payload}}
}

// dispatch routes one decoded envelope to its handler (§4.G dispatch
// table). Lock discipline: graph mutations take graphMu for writing,
// graph queries take it for reading; state-changing runtime ops go
// through the scheduler, which holds its own lock.
func (s *Server) dispatch(env protocol.Envelope) ([]outMsg, error) {
	switch env.Protocol {
	case protocol.FamilyRuntime:
		return s.dispatchRuntime(env)
	case protocol.FamilyComponent:
		return s.dispatchComponent(env)
	case protocol.FamilyGraph:
		return s.dispatchGraph(env)
	case protocol.FamilyNetwork:
		return s.dispatchNetwork(env)
	case protocol.FamilyTrace:
		return s.dispatchTrace(env)
	default:
		return nil, fmt.Errorf("server: unknown protocol family %q", env.Protocol)
	}
}

func (s *Server) graphByName(name string) (*graph.Graph, bool) {
	if name == "" {
		name = "main"
	}
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	g, ok := s.graphs[name]
	return g, ok
}

func (s *Server) requireGraph(name string) (*graph.Graph, error) {
	g, ok := s.graphByName(name)
	if !ok {
		return nil, fmt.Errorf("server: graph %q: %w", name, graph.ErrNotFound)
	}
	return g, nil
}

// requireNotRunning is the §3 "mutation forbidden while the network is
// running" guard every graph-editing command in dispatchGraph checks before
// touching s.graphs: a running network holds process-table references into
// the exact graph a client might otherwise rename nodes out from under.
func (s *Server) requireNotRunning() error {
	if s.scheduler.Status().Running {
		return fmt.Errorf("server: graph is running: %w", graph.ErrBusy)
	}
	return nil
}

// LoadGraph registers a pre-built graph under the server's graph table,
// as if a client had built it via the graph protocol family — used by
// cmd/flowd to install a startup graph read from disk before the
// protocol server starts accepting connections.
func (s *Server) LoadGraph(g *graph.Graph) {
	name := g.Properties.Name
	if name == "" {
		name = "main"
	}
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	s.graphs[name] = g
}

// StartGraph starts the named graph's network, equivalent to a client
// sending a network:start request for it.
func (s *Server) StartGraph(name string) error {
	g, err := s.requireGraph(name)
	if err != nil {
		return err
	}
	return s.scheduler.Start(g, s.io)
}

func (s *Server) getOrCreateGraph(name string) *graph.Graph {
	if name == "" {
		name = "main"
	}
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	g, ok := s.graphs[name]
	if !ok {
		g = graph.New(name)
		s.graphs[name] = g
	}
	return g
}

// --- runtime family ---

func (s *Server) dispatchRuntime(env protocol.Envelope) ([]outMsg, error) {
	switch env.Command {
	case "getruntime":
		info := protocol.RuntimeInfo{
			Type:            "flowd",
			Version:         "0.1.0",
			Capabilities:    []string{"protocol:runtime", "protocol:graph", "protocol:network", "protocol:component", "protocol:trace"},
			AllCapabilities: []string{"protocol:runtime", "protocol:graph", "protocol:network", "protocol:component", "protocol:trace"},
			ID:              "flowd",
			Label:           "flowd",
		}
		var activeGraph string
		if g := s.scheduler.Graph(); g != nil {
			activeGraph = g.Properties.Name
			info.Graph = activeGraph
		}
		return append(reply(protocol.FamilyRuntime, "runtime", info), s.portsMessage(activeGraph)...), nil
	case "packet":
		var req protocol.PacketRequest
		if err := env.Decode(&req); err != nil {
			return nil, fmt.Errorf("server: decode packet: %w", err)
		}
		payload, err := decodePacketPayload(req.Payload)
		if err != nil {
			return nil, err
		}
		if err := s.scheduler.Packet(req.Port, payload, s.io); err != nil {
			return nil, err
		}
		return reply(protocol.FamilyRuntime, "packetsent", protocol.PacketSent{Graph: req.Graph, Port: req.Port, Event: req.Event}), nil
	default:
		return nil, fmt.Errorf("server: unknown runtime command %q", env.Command)
	}
}

func (s *Server) portsMessage(graphName string) []outMsg {
	g, ok := s.graphByName(graphName)
	if !ok {
		return reply(protocol.FamilyRuntime, "ports", protocol.Ports{Graph: graphName})
	}
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	p := protocol.Ports{Graph: graphName}
	for name, ep := range g.Inports {
		p.InPorts = append(p.InPorts, portSpecFromExported(name, ep))
	}
	for name, ep := range g.Outports {
		p.OutPorts = append(p.OutPorts, portSpecFromExported(name, ep))
	}
	return reply(protocol.FamilyRuntime, "ports", p)
}

func portSpecFromExported(name string, ep *graph.ExportedPort) protocol.PortSpec {
	return protocol.PortSpec{ID: name, Description: ep.Metadata.Label}
}

// decodePacketPayload accepts either a base64 string (the wire convention
// for binary IIP/packet payloads) or a raw JSON value, falling back to the
// verbatim bytes when neither decodes cleanly.
func decodePacketPayload(raw json.RawMessage) ([]byte, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if decoded, err := base64.StdEncoding.DecodeString(str); err == nil {
			return decoded, nil
		}
		return []byte(str), nil
	}
	return raw, nil
}

// --- component family ---

func (s *Server) dispatchComponent(env protocol.Envelope) ([]outMsg, error) {
	switch env.Command {
	case "list":
		descs := s.registry.List()
		msgs := make([]outMsg, 0, len(descs)+1)
		for _, d := range descs {
			msgs = append(msgs, outMsg{protocol.FamilyComponent, "component", componentFromDescriptor(d)})
		}
		msgs = append(msgs, outMsg{protocol.FamilyComponent, "componentsready", protocol.ComponentsReady{Count: len(descs)}})
		return msgs, nil
	case "getsource":
		var req protocol.GetSourceRequest
		if err := env.Decode(&req); err != nil {
			return nil, fmt.Errorf("server: decode getsource: %w", err)
		}
		if g, ok := s.graphByName(req.Name); ok {
			body, err := g.MarshalJSON()
			if err != nil {
				return nil, err
			}
			return reply(protocol.FamilyComponent, "source", protocol.Source{Name: req.Name, Language: "json", Code: string(body)}), nil
		}
		src, ok := s.registry.GetSource(req.Name)
		if !ok {
			return nil, fmt.Errorf("server: component %q: %w", req.Name, graph.ErrNotFound)
		}
		return reply(protocol.FamilyComponent, "source", protocol.Source{Name: req.Name, Language: "go", Code: src}), nil
	default:
		return nil, fmt.Errorf("server: unknown component command %q", env.Command)
	}
}

func componentFromDescriptor(d component.Descriptor) protocol.Component {
	c := protocol.Component{
		Name:              d.Name,
		Description:       d.Description,
		Icon:              d.Icon,
		Subgraph:          d.Subgraph,
		SupportsHealth:    d.SupportsHealth,
		SupportsPerf:      d.SupportsPerf,
		SupportsReconnect: d.SupportsReconnect,
	}
	for _, p := range d.InPorts {
		c.InPorts = append(c.InPorts, portSpecFromDescriptor(p))
	}
	for _, p := range d.OutPorts {
		c.OutPorts = append(c.OutPorts, portSpecFromDescriptor(p))
	}
	return c
}

func portSpecFromDescriptor(p component.PortDescriptor) protocol.PortSpec {
	return protocol.PortSpec{
		ID:          p.Name,
		Type:        p.Type,
		Schema:      p.Schema,
		Required:    p.Required,
		Addressable: p.Array,
		Description: p.Description,
		Values:      p.AllowedValues,
		Default:     p.Default,
	}
}

// --- graph family ---

// Graph mutations acknowledge by calling reply with the decoded request,
// echoing the request payload back unchanged on success, the ack-by-echo
// convention the original flowd implementation follows for every graph
// mutation.

func (s *Server) dispatchGraph(env protocol.Envelope) ([]outMsg, error) {
	switch env.Command {
	case "clear":
		var req protocol.ClearRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		if _, err := s.requireGraph(req.Graph); err != nil {
			return nil, err
		}
		name := nonEmpty(req.Graph)
		s.graphMu.Lock()
		s.graphs[name] = graph.New(name)
		s.graphMu.Unlock()
		return reply(protocol.FamilyGraph, "clear", req), nil

	case "addnode":
		var req protocol.AddNodeRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g := s.getOrCreateGraph(req.Graph)
		s.graphMu.Lock()
		err := g.AddNode(req.ID, req.Component, req.Metadata)
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, "addnode", req), nil

	case "removenode":
		var req protocol.RemoveNodeRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g, err := s.requireGraph(req.Graph)
		if err != nil {
			return nil, err
		}
		s.graphMu.Lock()
		err = g.RemoveNode(req.ID)
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, "removenode", req), nil

	case "renamenode":
		var req protocol.RenameNodeRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g, err := s.requireGraph(req.Graph)
		if err != nil {
			return nil, err
		}
		s.graphMu.Lock()
		err = g.RenameNode(req.From, req.To)
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, "renamenode", req), nil

	case "changenode":
		var req protocol.AddNodeRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g, err := s.requireGraph(req.Graph)
		if err != nil {
			return nil, err
		}
		s.graphMu.Lock()
		err = g.ChangeNode(req.ID, req.Metadata)
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, "changenode", req), nil

	case "addedge":
		var req protocol.AddEdgeRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g := s.getOrCreateGraph(req.Graph)
		s.graphMu.Lock()
		g.AddEdge(&graph.Edge{Src: req.Src.ToGraph(), Tgt: req.Tgt.ToGraph(), Metadata: req.Metadata})
		s.graphMu.Unlock()
		return reply(protocol.FamilyGraph, "addedge", req), nil

	case "removeedge":
		var req protocol.RemoveEdgeRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g, err := s.requireGraph(req.Graph)
		if err != nil {
			return nil, err
		}
		s.graphMu.Lock()
		err = g.RemoveEdge(req.Src.ToGraph(), req.Tgt.ToGraph())
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, "removeedge", req), nil

	case "changeedge":
		var req protocol.AddEdgeRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g, err := s.requireGraph(req.Graph)
		if err != nil {
			return nil, err
		}
		s.graphMu.Lock()
		err = g.ChangeEdge(req.Src.ToGraph(), req.Tgt.ToGraph(), req.Metadata)
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, "changeedge", req), nil

	case "addinitial":
		var req protocol.AddInitialRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(req.Src.Data)
		if err != nil {
			return nil, fmt.Errorf("server: decode addinitial data: %w: %w", err, graph.ErrInvalidData)
		}
		g := s.getOrCreateGraph(req.Graph)
		s.graphMu.Lock()
		g.AddInitial(data, req.Tgt.ToGraph())
		s.graphMu.Unlock()
		return reply(protocol.FamilyGraph, "addinitial", req), nil

	case "removeinitial":
		var req protocol.RemoveInitialRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g, err := s.requireGraph(req.Graph)
		if err != nil {
			return nil, err
		}
		s.graphMu.Lock()
		err = removeInitialByTarget(g, req.Tgt.ToGraph())
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, "removeinitial", req), nil

	case "addinport", "addoutport":
		var req protocol.ExportedPortRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g := s.getOrCreateGraph(req.Graph)
		ep := graph.ExportedPort{Process: req.Node, Port: req.Port, Metadata: req.Metadata}
		s.graphMu.Lock()
		var err error
		if env.Command == "addinport" {
			err = g.AddInport(req.Public, ep)
		} else {
			err = g.AddOutport(req.Public, ep)
		}
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, env.Command, req), nil

	case "removeinport", "removeoutport":
		var req protocol.ExportedPortRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g, err := s.requireGraph(req.Graph)
		if err != nil {
			return nil, err
		}
		s.graphMu.Lock()
		if env.Command == "removeinport" {
			err = g.RemoveInport(req.Public)
		} else {
			err = g.RemoveOutport(req.Public)
		}
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, env.Command, req), nil

	case "renameinport", "renameoutport":
		var req protocol.ExportedPortRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g, err := s.requireGraph(req.Graph)
		if err != nil {
			return nil, err
		}
		s.graphMu.Lock()
		if env.Command == "renameinport" {
			err = g.RenameInport(req.From, req.Public)
		} else {
			err = g.RenameOutport(req.From, req.Public)
		}
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, env.Command, req), nil

	case "addgroup":
		var req protocol.GroupRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g := s.getOrCreateGraph(req.Graph)
		s.graphMu.Lock()
		err := g.AddGroup(req.Name, req.Nodes, req.Metadata)
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, "addgroup", req), nil

	case "removegroup":
		var req protocol.GroupRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g, err := s.requireGraph(req.Graph)
		if err != nil {
			return nil, err
		}
		s.graphMu.Lock()
		err = g.RemoveGroup(req.Name)
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, "removegroup", req), nil

	case "renamegroup":
		var req protocol.GroupRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g, err := s.requireGraph(req.Graph)
		if err != nil {
			return nil, err
		}
		s.graphMu.Lock()
		err = g.RenameGroup(req.From, req.Name)
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, "renamegroup", req), nil

	case "changegroup":
		var req protocol.GroupRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.requireNotRunning(); err != nil {
			return nil, err
		}
		g, err := s.requireGraph(req.Graph)
		if err != nil {
			return nil, err
		}
		s.graphMu.Lock()
		err = g.ChangeGroup(req.Name, req.Nodes, req.Metadata)
		s.graphMu.Unlock()
		if err != nil {
			return nil, err
		}
		return reply(protocol.FamilyGraph, "changegroup", req), nil

	default:
		return nil, fmt.Errorf("server: unknown graph command %q", env.Command)
	}
}

// removeInitialByTarget removes the IIP edge feeding tgt. The wire protocol's
// removeinitial request names only the target port, not the IIP's data, so
// this bypasses graph.RemoveInitial's exact-data match.
func removeInitialByTarget(g *graph.Graph, tgt graph.Endpoint) error {
	for i, e := range g.Edges {
		if e.IsIIP() && e.Tgt.Process == tgt.Process && e.Tgt.Port == tgt.Port {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("initial -> %+v: %w", tgt, graph.ErrNotFound)
}

func nonEmpty(name string) string {
	if name == "" {
		return "main"
	}
	return name
}

// --- network family ---

func (s *Server) dispatchNetwork(env protocol.Envelope) ([]outMsg, error) {
	switch env.Command {
	case "getstatus":
		var req protocol.StartRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		return reply(protocol.FamilyNetwork, "status", s.statusPayload(req.Graph)), nil

	case "start":
		var req protocol.StartRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		g, err := s.requireGraph(req.Graph)
		if err != nil {
			return nil, err
		}
		if err := s.scheduler.Start(g, s.io); err != nil {
			return nil, err
		}
		status := protocol.Started(s.statusPayload(req.Graph))
		return reply(protocol.FamilyNetwork, "started", status), nil

	case "stop":
		var req protocol.StopRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.scheduler.Stop(s.io, false); err != nil {
			return nil, err
		}
		status := protocol.Stopped(s.statusPayload(req.Graph))
		return reply(protocol.FamilyNetwork, "stopped", status), nil

	case "persist":
		var req protocol.PersistRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		if err := s.scheduler.Persist(); err != nil {
			return nil, err
		}
		return reply(protocol.FamilyNetwork, "persist", req), nil

	case "debug":
		var req protocol.DebugRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		s.scheduler.SetDebugMode(req.Enable)
		return reply(protocol.FamilyNetwork, "debug", req), nil

	case "edges":
		var req protocol.EdgesRequest
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		s.scheduler.SetDebugEdges(req.Edges)
		return reply(protocol.FamilyNetwork, "edges", req), nil

	default:
		return nil, fmt.Errorf("server: unknown network command %q", env.Command)
	}
}

func (s *Server) statusPayload(graphName string) protocol.Status {
	snap := s.scheduler.Status()
	name := graphName
	if g := s.scheduler.Graph(); g != nil {
		name = g.Properties.Name
	} else if name == "" {
		name = "main"
	}
	st := protocol.Status{Graph: name, Started: snap.Started, Running: snap.Running, Debug: s.scheduler.DebugMode()}
	if !snap.StartedAt.IsZero() {
		st.StartedAt = snap.StartedAt.UTC().Format(time.RFC3339)
	}
	return st
}

// --- trace family ---

func (s *Server) dispatchTrace(env protocol.Envelope) ([]outMsg, error) {
	var req protocol.TraceRequest
	if err := env.Decode(&req); err != nil {
		return nil, err
	}
	switch env.Command {
	case "start":
		s.scheduler.StartTrace()
		return reply(protocol.FamilyTrace, "start", req), nil
	case "stop":
		if err := s.scheduler.StopTrace(); err != nil {
			return nil, err
		}
		return reply(protocol.FamilyTrace, "stop", req), nil
	case "clear":
		s.scheduler.ClearTrace()
		return reply(protocol.FamilyTrace, "clear", req), nil
	case "dump":
		events := s.scheduler.DumpTrace()
		dump := protocol.TraceDump{Graph: req.Graph}
		for _, e := range events {
			dump.Entries = append(dump.Entries, protocol.TraceEntry{
				At:      e.At.UTC().Format(time.RFC3339Nano),
				Process: e.Process,
				Port:    e.Port,
				Bytes:   e.Bytes,
			})
		}
		return reply(protocol.FamilyTrace, "dump", dump), nil
	default:
		return nil, fmt.Errorf("server: unknown trace command %q", env.Command)
	}
}
