// Package cron implements core/Cron: reads a cron schedule expression from
// the WHEN inport and emits an empty packet on TICK every time it fires.
// Grounded on original_source/src/components/cron.rs, with the Rust
// `cron` crate's schedule iterator replaced by
// github.com/robfig/cron/v3's parser.
package cron

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/components/common"
	"github.com/flowd/flowd/internal/edge"
)

// Descriptor is core/Cron's port contract.
func Descriptor() component.Descriptor {
	return component.Descriptor{
		Name:        "core/Cron",
		Description: "Sends an empty packet every time the cron schedule fires.",
		Icon:        "clock-o",
		InPorts: []component.PortDescriptor{
			{Name: "WHEN", Type: "any", Required: true, Description: "IP with cron schedule expression"},
		},
		OutPorts: []component.PortDescriptor{
			{Name: "TICK", Type: "any", Required: true, Description: "tick IP every time the cron schedule fires"},
		},
	}
}

type runner struct {
	when    []*edge.Consumer
	tick    []*component.OutSink
	signals <-chan edge.Signal
	pong    chan<- edge.Signal
}

// New constructs a Cron process. Satisfies component.Constructor.
func New(name string, ports component.Ports, signals <-chan edge.Signal, pong chan<- edge.Signal, notifier component.Notifier) (component.Runner, error) {
	return &runner{when: ports.In["WHEN"], tick: ports.Out["TICK"], signals: signals, pong: pong}, nil
}

// readSchedule blocks (spin-waiting with back-off) until a schedule
// expression arrives on WHEN, mirroring cron.rs's initial blocking pop.
func (r *runner) readSchedule() (cron.Schedule, bool) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for {
		if common.HandleSignal(r.signals, r.pong) {
			return nil, false
		}
		for _, cons := range r.when {
			payload, ok, abandoned := cons.TryPop()
			if ok {
				sched, err := parser.Parse(string(payload))
				if err != nil {
					return nil, false
				}
				return sched, true
			}
			if abandoned {
				return nil, false
			}
		}
		time.Sleep(time.Millisecond)
	}
}

func (r *runner) Run() {
	sched, ok := r.readSchedule()
	if !ok {
		return
	}

	next := sched.Next(time.Now())
	for {
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case sig := <-r.signals:
			timer.Stop()
			if sig == edge.SignalStop {
				return
			}
			if sig == edge.SignalPing {
				select {
				case r.pong <- edge.SignalPong:
				default:
				}
			}
			continue
		case <-timer.C:
			common.Push(r.tick, []byte{})
			next = sched.Next(time.Now())
		}
	}
}
