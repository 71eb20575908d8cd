package runtime

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
	"github.com/flowd/flowd/internal/graph"
	"github.com/flowd/flowd/internal/network"
)

// fakeIO is a minimal in-memory IOHolder stand-in, grounded on the same
// register/broadcast shape server.ClientRegistry will implement.
type fakeIO struct {
	mu       sync.Mutex
	inports  map[string]network.BoundaryInport
	events   []string
	connects []string
	disconns []string
	packets  []string
}

func newFakeIO() *fakeIO {
	return &fakeIO{inports: make(map[string]network.BoundaryInport)}
}

func (f *fakeIO) Notify(eventType string, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *fakeIO) SetBoundaryInports(ports []network.BoundaryInport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range ports {
		f.inports[p.Name] = p
	}
}

func (f *fakeIO) InportSink(name string) (network.BoundaryInport, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.inports[name]
	return p, ok
}

func (f *fakeIO) BroadcastConnect(port string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, port)
}

func (f *fakeIO) BroadcastDisconnect(port string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconns = append(f.disconns, port)
}

func (f *fakeIO) BroadcastPacket(port string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packets = append(f.packets, port+":"+string(payload))
}

func (f *fakeIO) BroadcastNetworkStopped(graphName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "network:stopped:"+graphName)
}

// fakeEcho forwards IN to OUT, exiting on stop signal or once IN is
// abandoned — enough behaviour to exercise start/packet/stop.
type fakeEcho struct {
	ports   component.Ports
	signals <-chan edge.Signal
}

func (f *fakeEcho) Run() {
	for {
		select {
		case sig := <-f.signals:
			if sig == edge.SignalStop {
				return
			}
		default:
		}
		progressed := false
		for _, cons := range f.ports.In["IN"] {
			payload, ok, abandoned := cons.TryPop()
			if ok {
				progressed = true
				for _, sink := range f.ports.Out["OUT"] {
					sink.Producer.TryPush(payload)
					if sink.Wakeup != nil {
						sink.Wakeup.Unpark()
					}
				}
			}
			if abandoned {
				return
			}
		}
		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}
}

func echoRegistry(t *testing.T) *component.Registry {
	t.Helper()
	r := component.NewRegistry(slog.Default())
	desc := component.Descriptor{
		Name:    "core/Echo",
		InPorts: []component.PortDescriptor{{Name: "IN", Required: true}},
		OutPorts: []component.PortDescriptor{{Name: "OUT"}},
	}
	require.NoError(t, r.Register(desc, func(name string, ports component.Ports, signals <-chan edge.Signal, pong chan<- edge.Signal, n component.Notifier) (component.Runner, error) {
		return &fakeEcho{ports: ports, signals: signals}, nil
	}, ""))
	return r
}

func echoGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("main")
	require.NoError(t, g.AddNode("E", "core/Echo", graph.NodeMetadata{}))
	require.NoError(t, g.AddInport("IN", graph.ExportedPort{Process: "E", Port: "IN"}))
	require.NoError(t, g.AddOutport("OUT", graph.ExportedPort{Process: "E", Port: "OUT"}))
	return g
}

func TestStartPacketStop(t *testing.T) {
	sched := New(slog.Default(), echoRegistry(t), nil)
	io := newFakeIO()

	require.NoError(t, sched.Start(echoGraph(t), io))
	assert.True(t, sched.Status().Started)
	assert.True(t, sched.Status().Running)
	assert.Contains(t, io.connects, "IN")

	require.NoError(t, sched.Packet("IN", []byte("ping"), io))

	require.Eventually(t, func() bool {
		io.mu.Lock()
		defer io.mu.Unlock()
		return len(io.packets) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, "OUT:ping", io.packets[0])

	require.NoError(t, sched.Stop(io, false))
	assert.False(t, sched.Status().Running)
	assert.True(t, sched.Status().Started)
	assert.Contains(t, io.disconns, "IN")
	assert.Contains(t, io.disconns, "OUT")
}

func TestStartTwiceFails(t *testing.T) {
	sched := New(slog.Default(), echoRegistry(t), nil)
	io := newFakeIO()
	require.NoError(t, sched.Start(echoGraph(t), io))
	err := sched.Start(echoGraph(t), io)
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrBusy)
	require.NoError(t, sched.Stop(io, false))
}

func TestPacketUnknownPort(t *testing.T) {
	sched := New(slog.Default(), echoRegistry(t), nil)
	io := newFakeIO()
	require.NoError(t, sched.Start(echoGraph(t), io))
	defer sched.Stop(io, false)

	err := sched.Packet("NOPE", []byte("x"), io)
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestStopTraceWithoutStartIsError(t *testing.T) {
	sched := New(slog.Default(), echoRegistry(t), nil)
	err := sched.StopTrace()
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrInvalidInput)
}

func TestTraceRecordsWhileEnabled(t *testing.T) {
	sched := New(slog.Default(), echoRegistry(t), nil)
	io := newFakeIO()
	require.NoError(t, sched.Start(echoGraph(t), io))
	defer sched.Stop(io, false)

	sched.StartTrace()
	require.NoError(t, sched.Packet("IN", []byte("hi"), io))

	require.Eventually(t, func() bool {
		return len(sched.DumpTrace()) == 1
	}, time.Second, time.Millisecond)

	sched.ClearTrace()
	assert.Empty(t, sched.DumpTrace())
}
