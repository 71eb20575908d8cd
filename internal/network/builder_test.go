package network

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
	"github.com/flowd/flowd/internal/graph"
)

// fakeRepeat copies every inbound packet on IN to every sink on OUT, then
// exits once IN is abandoned — a minimal stand-in for core/Repeat used
// only to exercise the builder without depending on internal/components.
type fakeRepeat struct {
	ports   component.Ports
	signals <-chan edge.Signal
}

func (f *fakeRepeat) Run() {
	for {
		select {
		case sig := <-f.signals:
			if sig == edge.SignalStop {
				return
			}
		default:
		}

		progressed := false
		allAbandoned := true
		for _, cons := range f.ports.In["IN"] {
			payload, ok, abandoned := cons.TryPop()
			if !abandoned {
				allAbandoned = false
			}
			if ok {
				progressed = true
				for _, sink := range f.ports.Out["OUT"] {
					for !sink.Producer.TryPush(payload) {
						if sink.Wakeup != nil {
							sink.Wakeup.Unpark()
						}
						time.Sleep(time.Millisecond)
					}
					if sink.Wakeup != nil {
						sink.Wakeup.Unpark()
					}
				}
			}
		}
		if allAbandoned {
			for _, sinks := range f.ports.Out {
				for _, sink := range sinks {
					sink.Producer.Drop()
					if sink.Wakeup != nil {
						sink.Wakeup.Unpark()
					}
				}
			}
			return
		}
		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}
}

func repeatDescriptor() component.Descriptor {
	return component.Descriptor{
		Name:     "core/Repeat",
		InPorts:  []component.PortDescriptor{{Name: "IN", Required: true}},
		OutPorts: []component.PortDescriptor{{Name: "OUT"}},
	}
}

func repeatRegistry(t *testing.T) *component.Registry {
	t.Helper()
	r := component.NewRegistry(slog.Default())
	require.NoError(t, r.Register(repeatDescriptor(), func(name string, ports component.Ports, signals <-chan edge.Signal, pong chan<- edge.Signal, n component.Notifier) (component.Runner, error) {
		return &fakeRepeat{ports: ports, signals: signals}, nil
	}, ""))
	return r
}

func TestRoundTripIIP(t *testing.T) {
	g := graph.New("main")
	require.NoError(t, g.AddNode("R", "core/Repeat", graph.NodeMetadata{}))
	g.AddInitial([]byte("hello"), graph.Endpoint{Process: "R", Port: "IN"})
	require.NoError(t, g.AddOutport("OUT", graph.ExportedPort{Process: "R", Port: "OUT"}))

	built, err := Start(g, repeatRegistry(t), nil, nil)
	require.NoError(t, err)
	require.Len(t, built.BoundaryOutports, 1)

	for _, p := range built.Processes {
		p.Wakeup.Unpark()
	}

	var payload []byte
	require.Eventually(t, func() bool {
		data, ok, _ := built.BoundaryOutports[0].Consumer.TryPop()
		if ok {
			payload = data
			return true
		}
		return false
	}, time.Second, time.Millisecond)

	assert.Equal(t, "hello", string(payload))
}

func TestGraphInportDelivery(t *testing.T) {
	g := graph.New("main")
	require.NoError(t, g.AddNode("R", "core/Repeat", graph.NodeMetadata{}))
	require.NoError(t, g.AddInport("IN", graph.ExportedPort{Process: "R", Port: "IN"}))
	require.NoError(t, g.AddOutport("OUT", graph.ExportedPort{Process: "R", Port: "OUT"}))

	built, err := Start(g, repeatRegistry(t), nil, nil)
	require.NoError(t, err)
	require.Len(t, built.BoundaryInports, 1)
	require.Len(t, built.BoundaryOutports, 1)

	for _, p := range built.Processes {
		p.Wakeup.Unpark()
	}

	in := built.BoundaryInports[0]
	require.True(t, in.Producer.TryPush([]byte("x")))
	if in.Wakeup != nil {
		in.Wakeup.Unpark()
	}

	var payload []byte
	require.Eventually(t, func() bool {
		data, ok, _ := built.BoundaryOutports[0].Consumer.TryPop()
		if ok {
			payload = data
			return true
		}
		return false
	}, time.Second, time.Millisecond)

	assert.Equal(t, "x", string(payload))
}

func TestArrayPortRejection(t *testing.T) {
	g := graph.New("main")
	require.NoError(t, g.AddNode("R", "core/Repeat", graph.NodeMetadata{}))
	require.NoError(t, g.AddNode("A", "core/Repeat", graph.NodeMetadata{}))
	require.NoError(t, g.AddNode("B", "core/Repeat", graph.NodeMetadata{}))
	g.AddEdge(&graph.Edge{Src: graph.Endpoint{Process: "R", Port: "OUT"}, Tgt: graph.Endpoint{Process: "A", Port: "IN"}})
	g.AddEdge(&graph.Edge{Src: graph.Endpoint{Process: "R", Port: "OUT"}, Tgt: graph.Endpoint{Process: "B", Port: "IN"}})

	_, err := Start(g, repeatRegistry(t), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrInvalidInput)
}

func TestRequiredPortMissingFailsStart(t *testing.T) {
	g := graph.New("main")
	require.NoError(t, g.AddNode("R", "core/Repeat", graph.NodeMetadata{}))
	// IN is required and never connected.

	_, err := Start(g, repeatRegistry(t), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestUnknownComponentKindFailsStart(t *testing.T) {
	g := graph.New("main")
	require.NoError(t, g.AddNode("R", "does/NotExist", graph.NodeMetadata{}))

	_, err := Start(g, repeatRegistry(t), nil, nil)
	require.Error(t, err)
}
