// Package network implements the network builder of spec.md §4.E: it
// validates a graph against a component registry, materialises every edge
// as a bounded process edge, instantiates every process, and wires the
// graph-boundary inport/outport handlers.
package network

import (
	"fmt"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
	"github.com/flowd/flowd/internal/graph"
)

// InGraphName and OutGraphName are the synthetic process-table keys used
// for a graph's exported inports/outports (spec.md §4.E step 2).
const (
	InGraphName  = "<graph>-IN"
	OutGraphName = "<graph>-OUT"
)

// portSet is the per-process port allocation the builder assembles before
// spawning anything.
type portSet struct {
	in     map[string][]*edge.Consumer
	out    map[string][]*component.OutSink
	wakeup *edge.Wakeup
}

func newPortSet() *portSet {
	return &portSet{
		in:     make(map[string][]*edge.Consumer),
		out:    make(map[string][]*component.OutSink),
		wakeup: edge.NewWakeup(),
	}
}

// Process is a spawned process handle, returned to the caller (runtime
// scheduler) for lifecycle management.
type Process struct {
	Name     string
	Signals  edge.SignalChan
	Wakeup   *edge.Wakeup
	Done     chan struct{}
	Runner   component.Runner
	startErr error
}

// BoundaryInport is a graph inport sink the protocol server pushes
// client-originated packets into.
type BoundaryInport struct {
	Name     string
	Producer *edge.Producer
	Wakeup   *edge.Wakeup
}

// BoundaryOutportConsumer is one inport (on the synthetic <graph>-OUT
// process) the outport handler thread polls.
type BoundaryOutportConsumer struct {
	PublicName string
	Consumer   *edge.Consumer
}

// Built is everything the network builder produced: the spawned
// processes, the graph-boundary sinks, and the name->wakeup map the
// watchdog and `packet` delivery use.
type Built struct {
	Processes        []*Process
	ByName           map[string]*Process
	BoundaryInports  []BoundaryInport
	BoundaryOutports []BoundaryOutportConsumer
	Wakeups          map[string]*edge.Wakeup
}

// Start runs the full §4.E procedure: array-port validation, port-set
// allocation, edge materialisation, required-port checking, process
// spawn, boundary handler wiring. It does not start the watchdog or
// unpark processes — the caller (runtime.Scheduler) does that once it has
// recorded the process table, so a construction failure never leaves a
// live process behind.
func Start(g *graph.Graph, registry *component.Registry, pong chan<- edge.Signal, notifier component.Notifier) (*Built, error) {
	sets, err := allocatePortSets(g)
	if err != nil {
		return nil, err
	}

	if err := validateArrayPorts(g, registry); err != nil {
		return nil, err
	}

	built := &Built{
		ByName:  make(map[string]*Process),
		Wakeups: make(map[string]*edge.Wakeup),
	}
	for name, ps := range sets {
		built.Wakeups[name] = ps.wakeup
	}

	materialiseEdges(g, sets, built)

	if err := checkRequiredPorts(g, registry, sets); err != nil {
		return nil, err
	}

	constructors := make(map[string]component.Constructor, len(g.Nodes))
	for name, node := range g.Nodes {
		ctor, ok := registry.Resolve(node.Component)
		if !ok {
			return nil, fmt.Errorf("network: node %q: component %q: %w", name, node.Component, graph.ErrNotFound)
		}
		constructors[name] = ctor
	}

	procs, err := spawn(g, sets, constructors, built.Wakeups, pong, notifier)
	if err != nil {
		return nil, err
	}
	built.Processes = procs
	for _, p := range procs {
		built.ByName[p.Name] = p
	}

	wireBoundaryHandlers(g, sets, built)

	return built, nil
}

// allocatePortSets performs §4.E step 2: one entry per node plus the two
// synthetic graph-boundary keys if the graph exposes inports/outports.
func allocatePortSets(g *graph.Graph) (map[string]*portSet, error) {
	sets := make(map[string]*portSet, len(g.Nodes)+2)
	for name := range g.Nodes {
		sets[name] = newPortSet()
	}
	if len(g.Inports) > 0 {
		sets[InGraphName] = newPortSet()
	}
	if len(g.Outports) > 0 {
		sets[OutGraphName] = newPortSet()
	}
	return sets, nil
}

// validateArrayPorts performs §4.E step 1: every source-port or
// target-port participating in more than one edge must be declared
// array-capable by its component's descriptor.
func validateArrayPorts(g *graph.Graph, registry *component.Registry) error {
	srcCount := make(map[string]int)
	tgtCount := make(map[string]int)
	for _, e := range g.Edges {
		if !e.IsIIP() {
			srcCount[e.Src.Process+"\x00"+e.Src.Port]++
		}
		tgtCount[e.Tgt.Process+"\x00"+e.Tgt.Port]++
	}

	check := func(counts map[string]int, lookup func(desc component.Descriptor, port string) (component.PortDescriptor, bool)) error {
		for key, n := range counts {
			if n <= 1 {
				continue
			}
			var proc, port string
			for i := 0; i < len(key); i++ {
				if key[i] == 0 {
					proc, port = key[:i], key[i+1:]
					break
				}
			}
			node, ok := g.Nodes[proc]
			if !ok {
				continue // dangling reference validated later as part of required-port / spawn resolution
			}
			desc, ok := registry.Get(node.Component)
			if !ok {
				continue
			}
			pd, ok := lookup(desc, port)
			if !ok || !pd.Array {
				return fmt.Errorf("network: port %s.%s receives %d connections but is not array-capable: %w", proc, port, n, graph.ErrInvalidInput)
			}
		}
		return nil
	}

	if err := check(srcCount, func(d component.Descriptor, p string) (component.PortDescriptor, bool) { return d.OutPort(p) }); err != nil {
		return err
	}
	return check(tgtCount, func(d component.Descriptor, p string) (component.PortDescriptor, bool) { return d.InPort(p) })
}

// materialiseEdges performs §4.E step 3. Besides the graph's own edges, it
// synthesises one boundary edge per exported inport (from the synthetic
// <graph>-IN process, outport named by the public name, into the real
// node's port) and per exported outport (from the real node's port into
// the synthetic <graph>-OUT process, inport named by the public name) —
// "for graph inports/outports, the synthetic process names are used."
func materialiseEdges(g *graph.Graph, sets map[string]*portSet, built *Built) {
	for public, ep := range g.Inports {
		prod, cons := edge.New(edge.BufSize)
		if tgtSet := sets[ep.Process]; tgtSet != nil {
			tgtSet.in[ep.Port] = append(tgtSet.in[ep.Port], cons)
		}
		if inSet := sets[InGraphName]; inSet != nil {
			var wakeup *edge.Wakeup
			if tgtSet := sets[ep.Process]; tgtSet != nil {
				wakeup = tgtSet.wakeup
			}
			inSet.out[public] = append(inSet.out[public], &component.OutSink{
				Producer:   prod,
				Wakeup:     wakeup,
				TargetName: ep.Process,
			})
		}
	}
	for public, ep := range g.Outports {
		prod, cons := edge.New(edge.BufSize)
		if outSet := sets[OutGraphName]; outSet != nil {
			outSet.in[public] = append(outSet.in[public], cons)
		}
		if srcSet := sets[ep.Process]; srcSet != nil {
			var wakeup *edge.Wakeup
			if outSet := sets[OutGraphName]; outSet != nil {
				wakeup = outSet.wakeup
			}
			srcSet.out[ep.Port] = append(srcSet.out[ep.Port], &component.OutSink{
				Producer:   prod,
				Wakeup:     wakeup,
				TargetName: OutGraphName,
			})
		}
	}

	for _, e := range g.Edges {
		if e.IsIIP() {
			capacity := edge.IIPBufSize
			prod, cons := edge.New(capacity)
			prod.TryPush(e.Data)
			prod.Drop() // consumer sees EOF immediately after the one packet
			tgtSet := sets[e.Tgt.Process]
			if tgtSet == nil {
				continue
			}
			tgtSet.in[e.Tgt.Port] = append(tgtSet.in[e.Tgt.Port], cons)
			continue
		}

		prod, cons := edge.New(edge.BufSize)

		srcName := e.Src.Process
		tgtName := e.Tgt.Process
		srcSet := sets[srcName]
		tgtSet := sets[tgtName]
		if tgtSet != nil {
			tgtSet.in[e.Tgt.Port] = append(tgtSet.in[e.Tgt.Port], cons)
		}
		if srcSet != nil {
			var wakeup *edge.Wakeup
			if tgtSet != nil {
				wakeup = tgtSet.wakeup
			}
			srcSet.out[e.Src.Port] = append(srcSet.out[e.Src.Port], &component.OutSink{
				Producer:   prod,
				Wakeup:     wakeup,
				TargetName: tgtName,
			})
		}
	}
}

// checkRequiredPorts performs §4.E step 4: every required port in a
// non-synthetic process's descriptor must appear either in its port-map or
// as a graph-exported boundary.
func checkRequiredPorts(g *graph.Graph, registry *component.Registry, sets map[string]*portSet) error {
	exportedIn := make(map[string]bool)
	for _, p := range g.Inports {
		exportedIn[p.Process+"\x00"+p.Port] = true
	}
	exportedOut := make(map[string]bool)
	for _, p := range g.Outports {
		exportedOut[p.Process+"\x00"+p.Port] = true
	}

	for name, node := range g.Nodes {
		desc, ok := registry.Get(node.Component)
		if !ok {
			return fmt.Errorf("network: node %q: component %q: %w", name, node.Component, graph.ErrNotFound)
		}
		ps := sets[name]
		for _, pd := range desc.InPorts {
			if !pd.Required {
				continue
			}
			if _, wired := ps.in[pd.Name]; wired {
				continue
			}
			if exportedIn[name+"\x00"+pd.Name] {
				continue
			}
			return fmt.Errorf("network: node %q: required inport %q unconnected: %w", name, pd.Name, graph.ErrNotFound)
		}
		for _, pd := range desc.OutPorts {
			if !pd.Required {
				continue
			}
			if _, wired := ps.out[pd.Name]; wired {
				continue
			}
			if exportedOut[name+"\x00"+pd.Name] {
				continue
			}
			return fmt.Errorf("network: node %q: required outport %q unconnected: %w", name, pd.Name, graph.ErrNotFound)
		}
	}
	return nil
}

// spawn performs §4.E step 5: each process thread parks, resolves its
// outport wakeups from the shared name->wakeup map, constructs the
// component, and calls Run. Two-phase start (spec.md §9) solves the
// cyclic dependency that an upstream process needs its downstream
// neighbour's wakeup handle, which may not exist yet at spawn time.
func spawn(g *graph.Graph, sets map[string]*portSet, constructors map[string]component.Constructor, wakeups map[string]*edge.Wakeup, pong chan<- edge.Signal, notifier component.Notifier) ([]*Process, error) {
	procs := make([]*Process, 0, len(g.Nodes))

	for name, node := range g.Nodes {
		ps := sets[name]
		signals := edge.NewSignalChan()
		done := make(chan struct{})
		proc := &Process{Name: name, Signals: signals, Wakeup: ps.wakeup, Done: done}
		procs = append(procs, proc)

		ctor := constructors[name]
		nodeName := name
		nodeComponent := node.Component
		localPS := ps

		go func() {
			defer close(done)
			ps.wakeup.Park() // two-phase start: wait to be unparked by step 7

			for port, sinks := range localPS.out {
				for _, sink := range sinks {
					if sink.Wakeup == nil {
						if w, ok := wakeups[sink.TargetName]; ok {
							sink.Wakeup = w
						}
					}
				}
				localPS.out[port] = sinks
			}

			ports := component.Ports{In: localPS.in, Out: localPS.out}
			runner, err := ctor(nodeName, ports, signals, pong, notifier)
			if err != nil {
				proc.startErr = fmt.Errorf("network: node %q (%s): construct: %w", nodeName, nodeComponent, err)
				return
			}
			runner.Run()
		}()
	}

	return procs, nil
}

// wireBoundaryHandlers performs §4.E step 6: graph inports are exposed as
// sinks the protocol server writes into directly (no dedicated thread, per
// spec.md §4.H); graph outports are exposed as consumers for the dedicated
// boundary handler thread the caller (runtime) spawns.
func wireBoundaryHandlers(g *graph.Graph, sets map[string]*portSet, built *Built) {
	if inSet, ok := sets[InGraphName]; ok {
		for public := range g.Inports {
			for _, sink := range inSet.out[public] {
				built.BoundaryInports = append(built.BoundaryInports, BoundaryInport{
					Name:     public,
					Producer: sink.Producer,
					Wakeup:   sink.Wakeup,
				})
			}
		}
	}
	if outSet, ok := sets[OutGraphName]; ok {
		for public := range g.Outports {
			for _, cons := range outSet.in[public] {
				built.BoundaryOutports = append(built.BoundaryOutports, BoundaryOutportConsumer{
					PublicName: public,
					Consumer:   cons,
				})
			}
		}
	}
}
