// Package repeat implements core/Repeat: copies every packet from IN to
// OUT unchanged. Grounded on original_source/src/components/repeat.rs.
package repeat

import (
	"time"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/components/common"
	"github.com/flowd/flowd/internal/edge"
)

// Descriptor is core/Repeat's port contract.
func Descriptor() component.Descriptor {
	return component.Descriptor{
		Name:        "core/Repeat",
		Description: "Copies data as-is from IN port to OUT port.",
		Icon:        "arrow-right",
		InPorts: []component.PortDescriptor{
			{Name: "IN", Type: "any", Required: true, Description: "data to be repeated on outport"},
		},
		OutPorts: []component.PortDescriptor{
			{Name: "OUT", Type: "any", Required: true, Description: "repeated data from IN port"},
		},
	}
}

type runner struct {
	in      []*edge.Consumer
	out     []*component.OutSink
	signals <-chan edge.Signal
	pong    chan<- edge.Signal
}

// New constructs a Repeat process. Satisfies component.Constructor.
func New(name string, ports component.Ports, signals <-chan edge.Signal, pong chan<- edge.Signal, notifier component.Notifier) (component.Runner, error) {
	return &runner{in: ports.In["IN"], out: ports.Out["OUT"], signals: signals, pong: pong}, nil
}

func (r *runner) Run() {
	for {
		if common.HandleSignal(r.signals, r.pong) {
			return
		}

		progressed := false
		for _, cons := range r.in {
			payload, ok, abandoned := cons.TryPop()
			if ok {
				progressed = true
				common.Push(r.out, payload)
			}
			if abandoned {
				for _, sink := range r.out {
					sink.Producer.Drop()
					if sink.Wakeup != nil {
						sink.Wakeup.Unpark()
					}
				}
				return
			}
		}
		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}
}
