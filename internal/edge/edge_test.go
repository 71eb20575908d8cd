package edge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryPushFullReturnsFalse(t *testing.T) {
	p, c := New(1)
	assert.True(t, p.TryPush([]byte("a")))
	assert.False(t, p.TryPush([]byte("b")), "second push into a cap-1 edge must report full")

	payload, ok, abandoned := c.TryPop()
	require.True(t, ok)
	assert.False(t, abandoned)
	assert.Equal(t, "a", string(payload))
}

func TestTryPopEmptyNotAbandoned(t *testing.T) {
	_, c := New(4)
	_, ok, abandoned := c.TryPop()
	assert.False(t, ok)
	assert.False(t, abandoned, "empty edge with a live producer must not report abandoned")
}

func TestDropSignalsAbandonedAfterDrain(t *testing.T) {
	p, c := New(4)
	require.True(t, p.TryPush([]byte("x")))
	p.Drop()

	payload, ok, abandoned := c.TryPop()
	require.True(t, ok)
	assert.False(t, abandoned)
	assert.Equal(t, "x", string(payload))

	_, ok, abandoned = c.TryPop()
	assert.False(t, ok)
	assert.True(t, abandoned, "after drain, a dropped producer must report abandoned")
}

func TestDropIsIdempotent(t *testing.T) {
	p, _ := New(1)
	assert.NotPanics(t, func() {
		p.Drop()
		p.Drop()
	})
}

func TestWakeupCollapsesToOnePendingPark(t *testing.T) {
	w := NewWakeup()
	w.Unpark()
	w.Unpark()
	w.Unpark()

	done := make(chan struct{})
	go func() {
		w.Park()
		close(done)
	}()
	<-done // first park returns immediately

	select {
	case <-w.ParkChan():
		t.Fatal("a second pending wakeup must not have accumulated")
	default:
	}
}

func TestOrderingIsFIFO(t *testing.T) {
	p, c := New(8)
	for i := 0; i < 5; i++ {
		require.True(t, p.TryPush([]byte{byte(i)}))
	}
	for i := 0; i < 5; i++ {
		payload, ok, _ := c.TryPop()
		require.True(t, ok)
		assert.Equal(t, byte(i), payload[0])
	}
}
