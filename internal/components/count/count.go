// Package count implements core/Count: counts packets received on IN,
// discarding them, and reports the final count on COUNT once IN is
// abandoned. Grounded on original_source/src/components/count.rs.
package count

import (
	"strconv"
	"time"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/components/common"
	"github.com/flowd/flowd/internal/edge"
)

// Descriptor is core/Count's port contract. COUNT is array-capable per
// SPEC_FULL.md §4.I's port table.
func Descriptor() component.Descriptor {
	return component.Descriptor{
		Name:        "core/Count",
		Description: "Counts the number of packets, discarding them, and sending the packet count once input closes.",
		Icon:        "cut",
		InPorts: []component.PortDescriptor{
			{Name: "IN", Type: "any", Required: true, Description: "IPs to count"},
		},
		OutPorts: []component.PortDescriptor{
			{Name: "COUNT", Type: "any", Required: true, Array: true, Description: "reports count on this outport"},
		},
	}
}

type runner struct {
	in      []*edge.Consumer
	out     []*component.OutSink
	signals <-chan edge.Signal
	pong    chan<- edge.Signal
}

// New constructs a Count process. Satisfies component.Constructor.
func New(name string, ports component.Ports, signals <-chan edge.Signal, pong chan<- edge.Signal, notifier component.Notifier) (component.Runner, error) {
	return &runner{in: ports.In["IN"], out: ports.Out["COUNT"], signals: signals, pong: pong}, nil
}

func (r *runner) Run() {
	var packets int64
	for {
		if common.HandleSignal(r.signals, r.pong) {
			return
		}

		progressed := false
		for _, cons := range r.in {
			_, ok, abandoned := cons.TryPop()
			if ok {
				packets++
				progressed = true
			}
			if abandoned {
				common.Push(r.out, []byte(strconv.FormatInt(packets, 10)))
				common.CloseOutputs(map[string][]*component.OutSink{"COUNT": r.out})
				return
			}
		}
		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}
}
