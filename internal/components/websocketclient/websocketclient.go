// Package websocketclient implements net/WebsocketClient: connects to the
// URL received on CONF, forwards every packet arriving on IN into the
// socket, and emits every message received from the socket on OUT.
// Grounded on original_source/src/components/ws.rs's WSClientComponent,
// with its blocking tungstenite client replaced by
// github.com/gorilla/websocket (the teacher's websocket library, reused
// here for the client side of the same protocol).
package websocketclient

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/components/common"
	"github.com/flowd/flowd/internal/edge"
)

// Descriptor is net/WebsocketClient's port contract.
func Descriptor() component.Descriptor {
	return component.Descriptor{
		Name:        "net/WebsocketClient",
		Description: "Sends and receives messages, transformed into IPs, via a WebSocket connection.",
		Icon:        "plug",
		InPorts: []component.PortDescriptor{
			{Name: "CONF", Type: "any", Required: true, Description: "connection URL with optional configuration parameters", Default: "wss://example.com:8080/socketpath"},
			{Name: "IN", Type: "any", Required: true, Description: "IPs to be sent as WebSocket messages"},
		},
		OutPorts: []component.PortDescriptor{
			{Name: "OUT", Type: "any", Required: true, Description: "incoming WebSocket messages, transformed to IPs"},
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

// New constructs a WebsocketClient process. Satisfies component.Constructor.
func New(name string, ports component.Ports, signals <-chan edge.Signal, pong chan<- edge.Signal, notifier component.Notifier) (component.Runner, error) {
	return &runner{conf: ports.In["CONF"], in: ports.In["IN"], out: ports.Out["OUT"], signals: signals, pong: pong}, nil
}

func (r *runner) readConf() (string, bool) {
	for {
		if common.HandleSignal(r.signals, r.pong) {
			return "", false
		}
		for _, cons := range r.conf {
			payload, ok, abandoned := cons.TryPop()
			if ok {
				return string(payload), true
			}
			if abandoned {
				return "", false
			}
		}
		time.Sleep(time.Millisecond)
	}
}

func (r *runner) Run() {
	url, ok := r.readConf()
	if !ok {
		return
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	msgs := make(chan []byte, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case msgs <- data:
			case <-done:
				return
			}
		}
	}()

	for {
		if common.HandleSignal(r.signals, r.pong) {
			return
		}

		progressed := false
		for _, cons := range r.in {
			payload, ok, abandoned := cons.TryPop()
			if ok {
				progressed = true
				conn.WriteMessage(websocket.BinaryMessage, payload)
			}
			if abandoned {
				common.CloseOutputs(map[string][]*component.OutSink{"OUT": r.out})
				return
			}
		}

		select {
		case data := <-msgs:
			common.Push(r.out, data)
			progressed = true
		default:
		}

		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}
}
