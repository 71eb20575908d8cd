// Package drop implements core/Drop: discards every packet received on IN.
// Grounded on original_source/src/components/drop.rs.
package drop

import (
	"time"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/components/common"
	"github.com/flowd/flowd/internal/edge"
)

// Descriptor is core/Drop's port contract.
func Descriptor() component.Descriptor {
	return component.Descriptor{
		Name:        "core/Drop",
		Description: "Drops all packets received on IN port.",
		Icon:        "trash-o",
		InPorts: []component.PortDescriptor{
			{Name: "IN", Type: "any", Required: true, Description: "data to be dropped"},
		},
	}
}

type runner struct {
	in      []*edge.Consumer
	signals <-chan edge.Signal
	pong    chan<- edge.Signal
}

// New constructs a Drop process. Satisfies component.Constructor.
func New(name string, ports component.Ports, signals <-chan edge.Signal, pong chan<- edge.Signal, notifier component.Notifier) (component.Runner, error) {
	return &runner{in: ports.In["IN"], signals: signals, pong: pong}, nil
}

func (r *runner) Run() {
	for {
		if common.HandleSignal(r.signals, r.pong) {
			return
		}

		progressed := false
		for _, cons := range r.in {
			_, ok, abandoned := cons.TryPop()
			if ok {
				progressed = true
			}
			if abandoned {
				return
			}
		}
		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}
}
