package redisclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
)

func TestRedisPublishesFromIN(t *testing.T) {
	mr := miniredis.RunT(t)
	confURL := fmt.Sprintf("redis://%s/0?channel=ticks", mr.Addr())

	watcher := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer watcher.Close()
	sub := watcher.Subscribe(context.Background(), "ticks")
	defer sub.Close()

	confProd, confCons := edge.New(1)
	inProd, inCons := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{
		In: map[string][]*edge.Consumer{"CONF": {confCons}, "IN": {inCons}},
	}
	r, err := New("R", ports, signals, pong, nil)
	require.NoError(t, err)
	go r.Run()

	confProd.TryPush([]byte(confURL))
	inProd.TryPush([]byte("hello"))

	msgCh := sub.Channel()
	select {
	case msg := <-msgCh:
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive published message via redis subscription")
	}
}

func TestRedisForwardsToOUT(t *testing.T) {
	mr := miniredis.RunT(t)
	confURL := fmt.Sprintf("redis://%s/0?channel=events", mr.Addr())

	confProd, confCons := edge.New(1)
	_, inCons := edge.New(1)
	outProd, outCons := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{
		In:  map[string][]*edge.Consumer{"CONF": {confCons}, "IN": {inCons}},
		Out: map[string][]*component.OutSink{"OUT": {{Producer: outProd}}},
	}
	r, err := New("R", ports, signals, pong, nil)
	require.NoError(t, err)
	go r.Run()

	confProd.TryPush([]byte(confURL))

	publisher := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer publisher.Close()

	require.Eventually(t, func() bool {
		n, err := publisher.Publish(context.Background(), "events", "world").Result()
		return err == nil && n > 0
	}, time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		payload, ok, _ := outCons.TryPop()
		if !ok {
			return false
		}
		assert.Equal(t, "world", string(payload))
		return true
	}, 2*time.Second, 20*time.Millisecond)
}
