// Package component defines the contract every leaf process implements
// (spec.md §4.D) and the registry that enumerates available component
// kinds and resolves a kind name to a constructor (spec.md §4.C).
package component

import "github.com/flowd/flowd/internal/edge"

// PortDescriptor describes one inport or outport of a component kind.
type PortDescriptor struct {
	Name          string
	Type          string
	Schema        string
	Required      bool
	Array         bool
	Description   string
	AllowedValues []string
	Default       string
}

// Descriptor is a component kind's metadata: identity, port contract, and
// flowd-specific capability flags.
type Descriptor struct {
	Name        string
	Description string
	Icon        string
	Subgraph    bool
	InPorts     []PortDescriptor
	OutPorts    []PortDescriptor

	// Capability flags surfaced to the protocol `component` response.
	SupportsHealth    bool
	SupportsPerf      bool
	SupportsReconnect bool
}

// InPort looks up an inport descriptor by name.
func (d Descriptor) InPort(name string) (PortDescriptor, bool) {
	for _, p := range d.InPorts {
		if p.Name == name {
			return p, true
		}
	}
	return PortDescriptor{}, false
}

// OutPort looks up an outport descriptor by name.
func (d Descriptor) OutPort(name string) (PortDescriptor, bool) {
	for _, p := range d.OutPorts {
		if p.Name == name {
			return p, true
		}
	}
	return PortDescriptor{}, false
}

// OutSink is one target a component's outport writes to: the producer
// half of the edge, a non-owning wakeup handle for the target process, and
// the target process name (debug only).
type OutSink struct {
	Producer   *edge.Producer
	Wakeup     *edge.Wakeup
	TargetName string
}

// Ports is the port-set a process is constructed with: an ordered sequence
// of consumer halves per inport name (to support array ports) and an
// ordered sequence of sink records per outport name.
type Ports struct {
	In  map[string][]*edge.Consumer
	Out map[string][]*OutSink
}

// Notifier is the minimal surface of the shared graph-IO holder a
// component needs: the ability to emit a client-visible notification
// without importing the protocol server package (which itself depends on
// this one).
type Notifier interface {
	Notify(eventType string, data map[string]any)
}

// Runner is a constructed, ready-to-run process instance.
type Runner interface {
	// Run blocks until the process decides to exit: source port
	// abandoned, stop signal received, or a fatal internal error.
	Run()
}

// Constructor builds a Runner from its assigned ports, signal channel,
// watchdog pong sender, and the shared notifier.
type Constructor func(name string, ports Ports, signals <-chan edge.Signal, pong chan<- edge.Signal, notifier Notifier) (Runner, error)
