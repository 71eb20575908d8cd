package repeat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
)

func TestRepeatCopiesPayload(t *testing.T) {
	inProd, inCons := edge.New(4)
	outProd, outCons := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{
		In:  map[string][]*edge.Consumer{"IN": {inCons}},
		Out: map[string][]*component.OutSink{"OUT": {{Producer: outProd}}},
	}

	r, err := New("R", ports, signals, pong, nil)
	require.NoError(t, err)
	go r.Run()

	inProd.TryPush([]byte("hello"))

	require.Eventually(t, func() bool {
		_, ok, _ := outCons.TryPop()
		return ok
	}, time.Second, time.Millisecond)

	signals <- edge.SignalStop
	inProd.Drop()
	assert.True(t, true)
}

func TestRepeatRespondsToPing(t *testing.T) {
	_, inCons := edge.New(4)
	outProd, _ := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{
		In:  map[string][]*edge.Consumer{"IN": {inCons}},
		Out: map[string][]*component.OutSink{"OUT": {{Producer: outProd}}},
	}
	r, err := New("R", ports, signals, pong, nil)
	require.NoError(t, err)
	go r.Run()

	signals <- edge.SignalPing
	require.Eventually(t, func() bool {
		select {
		case sig := <-pong:
			return sig == edge.SignalPong
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	signals <- edge.SignalStop
}
