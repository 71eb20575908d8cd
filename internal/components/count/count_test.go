package count

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
)

func TestCountReportsTotalOnEOF(t *testing.T) {
	inProd, inCons := edge.New(8)
	outProd, outCons := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{
		In:  map[string][]*edge.Consumer{"IN": {inCons}},
		Out: map[string][]*component.OutSink{"COUNT": {{Producer: outProd}}},
	}
	r, err := New("C", ports, signals, pong, nil)
	require.NoError(t, err)
	go r.Run()

	inProd.TryPush([]byte("a"))
	inProd.TryPush([]byte("b"))
	inProd.TryPush([]byte("c"))
	inProd.Drop()

	require.Eventually(t, func() bool {
		payload, ok, _ := outCons.TryPop()
		if !ok {
			return false
		}
		assert.Equal(t, "3", string(payload))
		return true
	}, time.Second, time.Millisecond)
}
