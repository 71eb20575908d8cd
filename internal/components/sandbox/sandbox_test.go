package sandbox

import (
	"os"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
)

func TestDescriptorPorts(t *testing.T) {
	d := Descriptor()
	assert.Equal(t, "exec/Sandbox", d.Name)
	assert.Len(t, d.InPorts, 1)
	assert.Len(t, d.OutPorts, 2)
}

func TestSandboxExitsOnAbandonment(t *testing.T) {
	cmdProd, cmdCons := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{In: map[string][]*edge.Consumer{"CMD": {cmdCons}}}
	r, err := New("S", ports, signals, pong, nil)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() { r.Run(); close(done) }()

	cmdProd.Drop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sandbox did not exit after CMD abandonment")
	}
}

// TestSandboxExecutesCommand requires a reachable Docker daemon with
// gVisor's runsc runtime configured; it is skipped outside that
// environment rather than faked with a mock container runtime.
func TestSandboxExecutesCommand(t *testing.T) {
	if os.Getenv("FLOWD_DOCKER_INTEGRATION") == "" {
		t.Skip("set FLOWD_DOCKER_INTEGRATION=1 to run against a local Docker daemon")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	require.NoError(t, err)
	defer cli.Close()

	cmdProd, cmdCons := edge.New(4)
	outProd, outCons := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{
		In:  map[string][]*edge.Consumer{"CMD": {cmdCons}},
		Out: map[string][]*component.OutSink{"STDOUT": {{Producer: outProd}}},
	}
	r, err := New("S", ports, signals, pong, nil)
	require.NoError(t, err)
	go r.Run()

	cmdProd.TryPush([]byte("echo hello"))

	require.Eventually(t, func() bool {
		payload, ok, _ := outCons.TryPop()
		if !ok {
			return false
		}
		assert.Contains(t, string(payload), "hello")
		return true
	}, 10*time.Second, 50*time.Millisecond)
}
