package graph

import "fmt"

// Clear empties every collection in the graph. Callers are responsible for
// checking the "network not running" precondition (see
// Server.requireNotRunning in internal/server) before invoking this.
func (g *Graph) Clear() {
	g.Nodes = make(map[string]*Node)
	g.Edges = make([]*Edge, 0)
	g.Inports = make(map[string]*ExportedPort)
	g.Outports = make(map[string]*ExportedPort)
	g.Groups = make([]*Group, 0)
}

// AddNode inserts a new node, filling UI-metadata defaults the editor
// omitted.
func (g *Graph) AddNode(name, component string, meta NodeMetadata) error {
	if _, exists := g.Nodes[name]; exists {
		return fmt.Errorf("node %q: %w", name, ErrAlreadyExists)
	}
	if meta.Width == 0 {
		meta.Width = 72
	}
	if meta.Height == 0 {
		meta.Height = 72
	}
	if meta.Label == "" {
		meta.Label = name
	}
	g.Nodes[name] = &Node{Name: name, Component: component, Metadata: meta}
	return nil
}

// RemoveNode deletes a node. Edges referencing it are not cascaded; the
// editor is expected to remove them (spec.md §4.B).
func (g *Graph) RemoveNode(name string) error {
	if _, exists := g.Nodes[name]; !exists {
		return fmt.Errorf("node %q: %w", name, ErrNotFound)
	}
	delete(g.Nodes, name)
	return nil
}

// RenameNode moves a node to a new key and rewrites every edge endpoint,
// exported port, and group membership that referenced the old name, all in
// a single atomic step.
func (g *Graph) RenameNode(oldName, newName string) error {
	node, exists := g.Nodes[oldName]
	if !exists {
		return fmt.Errorf("node %q: %w", oldName, ErrNotFound)
	}
	if _, exists := g.Nodes[newName]; exists {
		return fmt.Errorf("node %q: %w", newName, ErrAlreadyExists)
	}

	node.Name = newName
	delete(g.Nodes, oldName)
	g.Nodes[newName] = node

	for _, e := range g.Edges {
		if e.Src.Process == oldName {
			e.Src.Process = newName
		}
		if e.Tgt.Process == oldName {
			e.Tgt.Process = newName
		}
	}
	for _, p := range g.Inports {
		if p.Process == oldName {
			p.Process = newName
		}
	}
	for _, p := range g.Outports {
		if p.Process == oldName {
			p.Process = newName
		}
	}
	for _, grp := range g.Groups {
		for i, n := range grp.Nodes {
			if n == oldName {
				grp.Nodes[i] = newName
			}
		}
	}
	return nil
}

// ChangeNode overwrites a node's UI metadata fields.
func (g *Graph) ChangeNode(name string, meta NodeMetadata) error {
	node, exists := g.Nodes[name]
	if !exists {
		return fmt.Errorf("node %q: %w", name, ErrNotFound)
	}
	node.Metadata = meta
	return nil
}

// AddEdge appends a process-to-process connection.
func (g *Graph) AddEdge(e *Edge) {
	g.Edges = append(g.Edges, e)
}

func edgeMatches(e *Edge, src, tgt Endpoint) bool {
	return endpointEqual(e.Src, src) && endpointEqual(e.Tgt, tgt)
}

func endpointEqual(a, b Endpoint) bool {
	if a.Process != b.Process || a.Port != b.Port {
		return false
	}
	if (a.Index == nil) != (b.Index == nil) {
		return false
	}
	if a.Index != nil && *a.Index != *b.Index {
		return false
	}
	return true
}

// RemoveEdge removes the first edge whose source and target exactly match.
func (g *Graph) RemoveEdge(src, tgt Endpoint) error {
	for i, e := range g.Edges {
		if edgeMatches(e, src, tgt) {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("edge %+v -> %+v: %w", src, tgt, ErrNotFound)
}

// ChangeEdge replaces the metadata of the first matching edge.
func (g *Graph) ChangeEdge(src, tgt Endpoint, meta EdgeMetadata) error {
	for _, e := range g.Edges {
		if edgeMatches(e, src, tgt) {
			e.Metadata = meta
			return nil
		}
	}
	return fmt.Errorf("edge %+v -> %+v: %w", src, tgt, ErrNotFound)
}

// AddInitial appends an IIP edge: empty source, data payload set.
func (g *Graph) AddInitial(data []byte, tgt Endpoint) {
	g.Edges = append(g.Edges, &Edge{Tgt: tgt, Data: data})
}

// RemoveInitial removes the first IIP edge whose data and target match.
func (g *Graph) RemoveInitial(data []byte, tgt Endpoint) error {
	for i, e := range g.Edges {
		if !e.IsIIP() {
			continue
		}
		if string(e.Data) == string(data) && endpointEqual(e.Tgt, tgt) {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("initial -> %+v: %w", tgt, ErrNotFound)
}

// AddInport exports a process inport under a public name.
func (g *Graph) AddInport(public string, ep ExportedPort) error {
	if _, exists := g.Inports[public]; exists {
		return fmt.Errorf("inport %q: %w", public, ErrAlreadyExists)
	}
	g.Inports[public] = &ep
	return nil
}

// RemoveInport un-exports a public inport name.
func (g *Graph) RemoveInport(public string) error {
	if _, exists := g.Inports[public]; !exists {
		return fmt.Errorf("inport %q: %w", public, ErrNotFound)
	}
	delete(g.Inports, public)
	return nil
}

// RenameInport renames a public inport.
func (g *Graph) RenameInport(oldName, newName string) error {
	p, exists := g.Inports[oldName]
	if !exists {
		return fmt.Errorf("inport %q: %w", oldName, ErrNotFound)
	}
	if _, exists := g.Inports[newName]; exists {
		return fmt.Errorf("inport %q: %w", newName, ErrAlreadyExists)
	}
	delete(g.Inports, oldName)
	g.Inports[newName] = p
	return nil
}

// AddOutport exports a process outport under a public name.
func (g *Graph) AddOutport(public string, ep ExportedPort) error {
	if _, exists := g.Outports[public]; exists {
		return fmt.Errorf("outport %q: %w", public, ErrAlreadyExists)
	}
	g.Outports[public] = &ep
	return nil
}

// RemoveOutport un-exports a public outport name.
func (g *Graph) RemoveOutport(public string) error {
	if _, exists := g.Outports[public]; !exists {
		return fmt.Errorf("outport %q: %w", public, ErrNotFound)
	}
	delete(g.Outports, public)
	return nil
}

// RenameOutport renames a public outport.
func (g *Graph) RenameOutport(oldName, newName string) error {
	p, exists := g.Outports[oldName]
	if !exists {
		return fmt.Errorf("outport %q: %w", oldName, ErrNotFound)
	}
	if _, exists := g.Outports[newName]; exists {
		return fmt.Errorf("outport %q: %w", newName, ErrAlreadyExists)
	}
	delete(g.Outports, oldName)
	g.Outports[newName] = p
	return nil
}

func (g *Graph) findGroup(name string) (*Group, int) {
	for i, grp := range g.Groups {
		if grp.Name == name {
			return grp, i
		}
	}
	return nil, -1
}

// AddGroup appends a cosmetic group.
func (g *Graph) AddGroup(name string, nodes []string, meta GroupMetadata) error {
	if grp, _ := g.findGroup(name); grp != nil {
		return fmt.Errorf("group %q: %w", name, ErrAlreadyExists)
	}
	g.Groups = append(g.Groups, &Group{Name: name, Nodes: nodes, Metadata: meta})
	return nil
}

// RemoveGroup removes a cosmetic group.
func (g *Graph) RemoveGroup(name string) error {
	_, idx := g.findGroup(name)
	if idx < 0 {
		return fmt.Errorf("group %q: %w", name, ErrNotFound)
	}
	g.Groups = append(g.Groups[:idx], g.Groups[idx+1:]...)
	return nil
}

// RenameGroup renames a cosmetic group.
func (g *Graph) RenameGroup(oldName, newName string) error {
	grp, _ := g.findGroup(oldName)
	if grp == nil {
		return fmt.Errorf("group %q: %w", oldName, ErrNotFound)
	}
	if other, _ := g.findGroup(newName); other != nil {
		return fmt.Errorf("group %q: %w", newName, ErrAlreadyExists)
	}
	grp.Name = newName
	return nil
}

// ChangeGroup overwrites a group's node membership and metadata.
func (g *Graph) ChangeGroup(name string, nodes []string, meta GroupMetadata) error {
	grp, _ := g.findGroup(name)
	if grp == nil {
		return fmt.Errorf("group %q: %w", name, ErrNotFound)
	}
	grp.Nodes = nodes
	grp.Metadata = meta
	return nil
}
