package drop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
)

func TestDropDiscardsPackets(t *testing.T) {
	inProd, inCons := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{In: map[string][]*edge.Consumer{"IN": {inCons}}}
	r, err := New("D", ports, signals, pong, nil)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() { r.Run(); close(done) }()

	inProd.TryPush([]byte("x"))
	inProd.TryPush([]byte("y"))
	inProd.Drop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Drop did not exit after inport abandonment")
	}
}
