// Package kerneltap implements sys/KernelTap: forwards events read off an
// attached eBPF ring buffer map as packets on OUT. Grounded on
// Generativebots-ocx-backend-go-svc/internal/ringbuf/reader.go, including
// its "mock mode" fallback for when no BPF object is actually loaded
// (this module never compiles or loads a .o file, so the ring stays nil
// and the component idles, logging once, exactly as the teacher's
// Reader.Start does when r.ring == nil).
package kerneltap

import (
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"

	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/components/common"
	"github.com/flowd/flowd/internal/edge"
)

// Descriptor is sys/KernelTap's port contract. It has no inports: events
// originate from the kernel, not from the graph.
func Descriptor() component.Descriptor {
	return component.Descriptor{
		Name:        "sys/KernelTap",
		Description: "Forwards events read from an attached eBPF ring buffer map.",
		Icon:        "bolt",
		OutPorts: []component.PortDescriptor{
			{Name: "OUT", Type: "any", Required: true, Description: "raw event payload bytes read from the kernel ring buffer"},
		},
	}
}

type runner struct {
	out     []*component.OutSink
	ring    *ringbuf.Reader
	signals <-chan edge.Signal
	pong    chan<- edge.Signal
	log     *slog.Logger
}

// New constructs a KernelTap process. Satisfies component.Constructor.
// It attempts to lift the RLIMIT_MEMLOCK restriction so a ring buffer map
// can be mapped, but attaches no BPF program: without a compiled object
// file there is nothing to attach to, so the reader stays nil and Run
// idles (mock mode), matching the teacher's reader.
func New(name string, ports component.Ports, signals <-chan edge.Signal, pong chan<- edge.Signal, notifier component.Notifier) (component.Runner, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, err
	}
	return &runner{out: ports.Out["OUT"], signals: signals, pong: pong, log: slog.With("component", "sys/KernelTap")}, nil
}

func (r *runner) Run() {
	if r.ring == nil {
		r.log.Warn("no BPF ring buffer attached, idling in mock mode")
		for {
			if common.HandleSignal(r.signals, r.pong) {
				common.CloseOutputs(map[string][]*component.OutSink{"OUT": r.out})
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	for {
		if common.HandleSignal(r.signals, r.pong) {
			r.ring.Close()
			common.CloseOutputs(map[string][]*component.OutSink{"OUT": r.out})
			return
		}

		record, err := r.ring.Read()
		if err != nil {
			if err == ringbuf.ErrClosed {
				common.CloseOutputs(map[string][]*component.OutSink{"OUT": r.out})
				return
			}
			continue
		}
		common.Push(r.out, parsePayload(record.RawSample))
	}
}

// parsePayload extracts the variable-length payload trailing the fixed
// pid/uid/len header, mirroring reader.go's manual little-endian layout.
func parsePayload(raw []byte) []byte {
	if len(raw) < 16 {
		return nil
	}
	dataLen := binary.LittleEndian.Uint32(raw[12:16])
	payload := raw[16:]
	if int(dataLen) < len(payload) {
		payload = payload[:dataLen]
	}
	return payload
}
