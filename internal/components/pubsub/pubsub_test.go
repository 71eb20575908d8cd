package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
)

// newFakeServer starts an in-process Pub/Sub fake, mirroring the
// emulator-based testing approach for cloud.google.com/go/pubsub.
func newFakeServer(t *testing.T) []option.ClientOption {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { srv.Close() })
	// The component dials by project ID only; the client library routes
	// that to the fake through the emulator environment variable.
	t.Setenv("PUBSUB_EMULATOR_HOST", srv.Addr)
	conn, err := grpc.Dial(srv.Addr, grpc.WithInsecure())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return []option.ClientOption{option.WithGRPCConn(conn)}
}

func TestPubSubPublishesFromIN(t *testing.T) {
	opts := newFakeServer(t)
	ctx := context.Background()

	client, err := gcppubsub.NewClient(ctx, "proj", opts...)
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "ticks")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "ticks-sub", gcppubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	confProd, confCons := edge.New(1)
	inProd, inCons := edge.New(4)
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)

	ports := component.Ports{In: map[string][]*edge.Consumer{"CONF": {confCons}, "IN": {inCons}}}
	r, err := New("P", ports, signals, pong, nil)
	require.NoError(t, err)
	go r.Run()

	cfg, err := json.Marshal(confSpec{ProjectID: "proj", Topic: "ticks"})
	require.NoError(t, err)
	confProd.TryPush(cfg)
	inProd.TryPush([]byte("hello"))

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	received := make(chan string, 1)
	go sub.Receive(recvCtx, func(ctx context.Context, msg *gcppubsub.Message) {
		received <- string(msg.Data)
		msg.Ack()
	})

	select {
	case data := <-received:
		assert.Equal(t, "hello", data)
	case <-recvCtx.Done():
		t.Fatal("did not receive published message via pstest fake")
	}
}

func TestDescriptorPorts(t *testing.T) {
	d := Descriptor()
	assert.Equal(t, "broker/PubSub", d.Name)
	assert.Len(t, d.InPorts, 2)
	assert.Len(t, d.OutPorts, 1)
}
