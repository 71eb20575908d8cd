// Package protocol defines the JSON-over-WebSocket wire format of
// spec.md §4.G / §6: the envelope every request and response is tagged
// with, and the payload types for the full dispatch table. It is pure
// wire format — no graph, registry, or scheduler state lives here, the
// same separation the teacher draws between frame encoding and the
// session/business logic that interprets a decoded frame.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/flowd/flowd/internal/graph"
)

// Protocol family tags (the `protocol` field of every envelope).
const (
	FamilyRuntime   = "runtime"
	FamilyComponent = "component"
	FamilyGraph     = "graph"
	FamilyNetwork   = "network"
	FamilyTrace     = "trace"
)

// Envelope is the outer `{protocol, command, payload}` shape every FBP
// Network Protocol message shares.
type Envelope struct {
	Protocol string          `json:"protocol"`
	Command  string          `json:"command"`
	Payload  json.RawMessage `json:"payload"`
}

// ParseEnvelope decodes the outer envelope without interpreting payload.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("protocol: malformed envelope: %w", err)
	}
	if e.Protocol == "" || e.Command == "" {
		return Envelope{}, fmt.Errorf("protocol: envelope missing protocol or command")
	}
	return e, nil
}

// Decode unmarshals the envelope's payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Encode builds a ready-to-write envelope for a given family/command/payload.
func Encode(family, command string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s.%s: %w", family, command, err)
	}
	return json.Marshal(Envelope{Protocol: family, Command: command, Payload: body})
}

// --- runtime family ---

// RuntimeInfo is the `runtime` response to `getruntime`.
type RuntimeInfo struct {
	Type            string   `json:"type"`
	Version         string   `json:"version"`
	Capabilities    []string `json:"capabilities"`
	AllCapabilities []string `json:"allCapabilities"`
	Graph           string   `json:"graph,omitempty"`
	ID              string   `json:"id"`
	Label           string   `json:"label"`
	Namespace       string   `json:"namespace,omitempty"`
}

// PortSpec describes one inport/outport in the `ports` response.
type PortSpec struct {
	ID          string   `json:"id"`
	Type        string   `json:"type,omitempty"`
	Schema      string   `json:"schema,omitempty"`
	Required    bool     `json:"required"`
	Addressable bool     `json:"addressable"`
	Description string   `json:"description,omitempty"`
	Values      []string `json:"values,omitempty"`
	Default     string   `json:"default,omitempty"`
}

// Ports is the `ports` response that follows `getruntime`.
type Ports struct {
	Graph    string     `json:"graph"`
	InPorts  []PortSpec `json:"inPorts"`
	OutPorts []PortSpec `json:"outPorts"`
}

// --- component family ---

// Component is one `component` response entry in the `list` flow.
type Component struct {
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	Icon              string     `json:"icon,omitempty"`
	Subgraph          bool       `json:"subgraph"`
	InPorts           []PortSpec `json:"inPorts"`
	OutPorts          []PortSpec `json:"outPorts"`
	SupportsHealth    bool       `json:"health"`
	SupportsPerf      bool       `json:"perf"`
	SupportsReconnect bool       `json:"reconnect"`
}

// ComponentsReady is the terminal message of a `list` response, naming
// how many `component` messages preceded it.
type ComponentsReady struct {
	Count int `json:"count"`
}

// GetSourceRequest names either the active graph or a component kind.
type GetSourceRequest struct {
	Name string `json:"name"`
}

// Source is the `getsource` response.
type Source struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	Library  string `json:"library,omitempty"`
	Code     string `json:"code"`
}

// --- graph family ---

// EndpointSpec is the wire form of a process/port reference.
type EndpointSpec struct {
	Process string `json:"process"`
	Port    string `json:"port"`
	Index   *int   `json:"index,omitempty"`
}

// ToGraph converts a wire endpoint to the graph package's Endpoint.
func (e EndpointSpec) ToGraph() graph.Endpoint {
	return graph.Endpoint{Process: e.Process, Port: e.Port, Index: e.Index}
}

// EndpointSpecFromGraph converts a graph.Endpoint to its wire form.
func EndpointSpecFromGraph(ep graph.Endpoint) EndpointSpec {
	return EndpointSpec{Process: ep.Process, Port: ep.Port, Index: ep.Index}
}

// ClearRequest resets a graph.
type ClearRequest struct {
	Graph string `json:"graph"`
	ID    string `json:"id,omitempty"`
}

// AddNodeRequest adds a node; also used to decode `changenode` (Metadata
// replaces, rather than adds to, the recorded metadata).
type AddNodeRequest struct {
	Graph     string              `json:"graph"`
	ID        string              `json:"id"`
	Component string              `json:"component"`
	Metadata  graph.NodeMetadata  `json:"metadata"`
}

// RemoveNodeRequest removes a node by name.
type RemoveNodeRequest struct {
	Graph string `json:"graph"`
	ID    string `json:"id"`
}

// RenameNodeRequest renames a node.
type RenameNodeRequest struct {
	Graph string `json:"graph"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// AddEdgeRequest adds an edge; also decodes `changeedge`.
type AddEdgeRequest struct {
	Graph    string             `json:"graph"`
	Src      EndpointSpec       `json:"src"`
	Tgt      EndpointSpec       `json:"tgt"`
	Metadata graph.EdgeMetadata `json:"metadata"`
}

// RemoveEdgeRequest removes the first edge matching src/tgt exactly.
type RemoveEdgeRequest struct {
	Graph string       `json:"graph"`
	Src   EndpointSpec `json:"src"`
	Tgt   EndpointSpec `json:"tgt"`
}

// AddInitialRequest attaches an IIP to a target port. Src carries the
// base64 payload (noflo convention: `src.data`), not a process reference.
type AddInitialRequest struct {
	Graph string `json:"graph"`
	Src   struct {
		Data string `json:"data"`
	} `json:"src"`
	Tgt EndpointSpec `json:"tgt"`
}

// RemoveInitialRequest removes the IIP feeding a target port.
type RemoveInitialRequest struct {
	Graph string       `json:"graph"`
	Tgt   EndpointSpec `json:"tgt"`
}

// ExportedPortRequest adds/renames/removes a graph inport or outport.
type ExportedPortRequest struct {
	Graph    string                     `json:"graph"`
	Public   string                     `json:"public"`
	From     string                     `json:"from,omitempty"` // rename source name
	Node     string                     `json:"node,omitempty"`
	Port     string                     `json:"port,omitempty"`
	Metadata graph.ExportedPortMetadata `json:"metadata"`
}

// GroupRequest adds/renames/removes/changes a named node group.
type GroupRequest struct {
	Graph    string              `json:"graph"`
	Name     string              `json:"name"`
	From     string              `json:"from,omitempty"`
	Nodes    []string            `json:"nodes,omitempty"`
	Metadata graph.GroupMetadata `json:"metadata"`
}

// --- network family ---

// Status is the `getstatus` response.
type Status struct {
	Graph     string `json:"graph"`
	Started   bool   `json:"started"`
	Running   bool   `json:"running"`
	Debug     bool   `json:"debug"`
	StartedAt string `json:"uptime,omitempty"`
}

// StartRequest/StopRequest/PersistRequest name the graph to act on.
type StartRequest struct {
	Graph string `json:"graph"`
}

type StopRequest struct {
	Graph string `json:"graph"`
}

type PersistRequest struct {
	Graph string `json:"graph"`
}

// Started/Stopped mirror Status; separate types because the protocol
// names them distinctly even though the payload shape is identical.
type Started Status
type Stopped Status

// DebugRequest toggles the scheduler's debug flag.
type DebugRequest struct {
	Graph   string `json:"graph"`
	Enable  bool   `json:"enable"`
}

// EdgesRequest sets the debugged-edge set (`src.port->tgt.port` keys).
type EdgesRequest struct {
	Graph string   `json:"graph"`
	Edges []string `json:"edges"`
}

// --- packet I/O ---

// PacketRequest is an inbound `runtime:packet` delivering data into a
// graph inport.
type PacketRequest struct {
	Graph   string          `json:"graph"`
	Port    string          `json:"port"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Schema  string          `json:"schema,omitempty"`
}

// PacketSent acknowledges a processed PacketRequest.
type PacketSent struct {
	Graph string `json:"graph"`
	Port  string `json:"port"`
	Event string `json:"event"`
}

// RuntimePacketEvent is the outbound broadcast for a graph outport packet
// (event "data") or a boundary connect/disconnect notification.
type RuntimePacketEvent struct {
	Graph   string `json:"graph"`
	Port    string `json:"port"`
	Event   string `json:"event"`
	Payload string `json:"payload,omitempty"`
}

// --- trace family ---

type TraceRequest struct {
	Graph string `json:"graph"`
}

// TraceEntry is one recorded packet transit.
type TraceEntry struct {
	At      string `json:"date"`
	Process string `json:"process"`
	Port    string `json:"port"`
	Bytes   int    `json:"bytes"`
}

// TraceDump is the `dump` response.
type TraceDump struct {
	Graph   string       `json:"graph"`
	Entries []TraceEntry `json:"entries"`
}

// --- errors ---

// Error is the generic `{message}` error response of §7.
type Error struct {
	Message string `json:"message"`
}

// NetworkError additionally carries a stack trace and the graph name, per
// §7's `network:error` variant.
type NetworkError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Graph   string `json:"graph,omitempty"`
}
