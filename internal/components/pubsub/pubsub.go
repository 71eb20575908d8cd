// Package pubsub implements broker/PubSub: publishes every packet on IN to
// a Google Cloud Pub/Sub topic and forwards every message received on a
// companion subscription to OUT. Grounded on
// original_source/src/components/mqtt.rs for the publish/subscribe
// inport/outport shape, and on
// Generativebots-ocx-backend-go-svc/internal/events/pubsub_bus.go for the
// cloud.google.com/go/pubsub client usage (topic handle, non-blocking
// publish result handling). The topic and subscription must already exist;
// this component does not create them.
package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/components/common"
	"github.com/flowd/flowd/internal/edge"
)

// confSpec is the JSON configuration delivered as the CONF IIP.
type confSpec struct {
	ProjectID    string `json:"project_id"`
	Topic        string `json:"topic"`
	Subscription string `json:"subscription"`
}

// Descriptor is broker/PubSub's port contract.
func Descriptor() component.Descriptor {
	return component.Descriptor{
		Name:        "broker/PubSub",
		Description: "Publishes IN to, and forwards messages from, a Google Cloud Pub/Sub topic.",
		Icon:        "exchange",
		InPorts: []component.PortDescriptor{
			{Name: "CONF", Type: "any", Required: true, Description: `JSON config: {"project_id":"...","topic":"...","subscription":"..."}`},
			{Name: "IN", Type: "any", Required: true, Description: "data to publish to the configured topic"},
		},
		OutPorts: []component.PortDescriptor{
			{Name: "OUT", Type: "any", Required: true, Description: "messages received on the configured subscription"},
		},
	}
}

type runner struct {
	conf    []*edge.Consumer
	in      []*edge.Consumer
	out     []*component.OutSink
	signals <-chan edge.Signal
	pong    chan<- edge.Signal
}

// New constructs a PubSub process. Satisfies component.Constructor.
func New(name string, ports component.Ports, signals <-chan edge.Signal, pong chan<- edge.Signal, notifier component.Notifier) (component.Runner, error) {
	return &runner{conf: ports.In["CONF"], in: ports.In["IN"], out: ports.Out["OUT"], signals: signals, pong: pong}, nil
}

func (r *runner) readConf() (confSpec, bool) {
	for {
		if common.HandleSignal(r.signals, r.pong) {
			return confSpec{}, false
		}
		for _, cons := range r.conf {
			payload, ok, abandoned := cons.TryPop()
			if ok {
				var cfg confSpec
				if err := json.Unmarshal(payload, &cfg); err != nil {
					return confSpec{}, false
				}
				return cfg, true
			}
			if abandoned {
				return confSpec{}, false
			}
		}
		time.Sleep(time.Millisecond)
	}
}

func (r *runner) Run() {
	cfg, ok := r.readConf()
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return
	}
	defer client.Close()

	topic := client.Topic(cfg.Topic)
	defer topic.Stop()

	var sub *pubsub.Subscription
	msgs := make(chan *pubsub.Message, 32)
	if cfg.Subscription != "" {
		sub = client.Subscription(cfg.Subscription)
		go func() {
			sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
				select {
				case msgs <- msg:
				case <-ctx.Done():
					msg.Nack()
				}
			})
		}()
	}

	for {
		if common.HandleSignal(r.signals, r.pong) {
			return
		}

		progressed := false
		for _, cons := range r.in {
			payload, ok, abandoned := cons.TryPop()
			if ok {
				progressed = true
				topic.Publish(ctx, &pubsub.Message{Data: payload})
			}
			if abandoned {
				common.CloseOutputs(map[string][]*component.OutSink{"OUT": r.out})
				return
			}
		}

		select {
		case msg := <-msgs:
			common.Push(r.out, msg.Data)
			msg.Ack()
			progressed = true
		default:
		}

		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}
}
