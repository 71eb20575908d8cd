// Package graph implements the in-memory FBP graph model: nodes, edges,
// initial information packets, exported inports/outports and groups, plus
// the mutation operations that keep the graph's invariants intact.
package graph

import "time"

// Endpoint identifies one side of an edge: a process name, a port name on
// that process, and an optional array-port index. A zero-value Endpoint
// with an empty Process and Port represents the source side of an IIP.
type Endpoint struct {
	Process string `json:"process,omitempty"`
	Port    string `json:"port"`
	Index   *int   `json:"index,omitempty"`
}

// IsIIPSource reports whether this endpoint is the synthetic empty source
// of an initial information packet edge.
func (e Endpoint) IsIIPSource() bool {
	return e.Process == "" && e.Port == ""
}

// NodeMetadata carries UI-only placement information. Never interpreted by
// the network builder or the scheduler.
type NodeMetadata struct {
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Label  string  `json:"label,omitempty"`
}

// Node is a named instance of a component kind.
type Node struct {
	Name      string       `json:"-"`
	Component string       `json:"component"`
	Metadata  NodeMetadata `json:"metadata"`
}

// EdgeMetadata carries UI-only routing hints (e.g. route color).
type EdgeMetadata struct {
	Route *int `json:"route,omitempty"`
}

// Edge connects a source endpoint to a target endpoint. An IIP edge has a
// zero-value Src (see Endpoint.IsIIPSource) and a non-nil Data payload.
type Edge struct {
	Src      Endpoint     `json:"src,omitempty"`
	Tgt      Endpoint     `json:"tgt"`
	Data     []byte       `json:"data,omitempty"`
	Metadata EdgeMetadata `json:"metadata,omitempty"`
}

// IsIIP reports whether this edge is an initial information packet rather
// than a process-to-process connection.
func (e Edge) IsIIP() bool {
	return e.Src.IsIIPSource()
}

// ExportedPortMetadata carries UI placement for a graph-boundary port.
type ExportedPortMetadata struct {
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
	Label string  `json:"label,omitempty"`
}

// ExportedPort maps a public, graph-boundary port name to the internal
// process/port it is wired to.
type ExportedPort struct {
	Process  string                `json:"process"`
	Port     string                `json:"port"`
	Metadata ExportedPortMetadata  `json:"metadata,omitempty"`
}

// GroupMetadata carries purely cosmetic group styling.
type GroupMetadata struct {
	Label string `json:"label,omitempty"`
}

// Group is a cosmetic collection of node names, e.g. for visual clustering
// in the editor. Groups have no effect on execution.
type Group struct {
	Name     string        `json:"name"`
	Nodes    []string      `json:"nodes"`
	Metadata GroupMetadata `json:"metadata,omitempty"`
}

// Environment describes the runtime environment the graph targets,
// mirroring the noflo graph JSON "environment" object.
type Environment struct {
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`
}

// Properties holds the graph's descriptive metadata.
type Properties struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Icon        string      `json:"icon,omitempty"`
	Environment Environment `json:"environment,omitempty"`
}

// Graph is the full in-memory FBP graph. The protocol server keeps a table
// of graphs by name; the scheduler runs the network of at most one of them
// at a time.
type Graph struct {
	CaseSensitive bool
	Properties    Properties
	Nodes         map[string]*Node
	Edges         []*Edge
	Inports       map[string]*ExportedPort
	Outports      map[string]*ExportedPort
	Groups        []*Group

	// UpdatedAt is set to the creation time by New. The mutation ops do not
	// update it, and it is not part of the JSON export.
	UpdatedAt time.Time
}

// New returns an empty, named graph.
func New(name string) *Graph {
	return &Graph{
		CaseSensitive: true,
		Properties:    Properties{Name: name},
		Nodes:         make(map[string]*Node),
		Edges:         make([]*Edge, 0),
		Inports:       make(map[string]*ExportedPort),
		Outports:      make(map[string]*ExportedPort),
		Groups:        make([]*Group, 0),
		UpdatedAt:     time.Now(),
	}
}
