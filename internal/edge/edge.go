// Package edge implements the process-edge primitives of spec.md §4.A: a
// bounded single-producer single-consumer byte-payload FIFO, a per-process
// wakeup handle, and the per-process signal channel.
//
// A Go buffered channel already gives FIFO order, a bounded capacity, and a
// non-blocking try-push/try-pop pair for free; the one thing an ordinary
// channel does not give is an explicit "abandoned" signal distinct from
// "empty", so TryPop surfaces both. Closing the channel once (Drop) is the
// abandonment signal the consumer observes.
package edge

import "sync"

// DefaultBufSize is PROCESSEDGE_BUFSIZE from spec.md §4.A: the capacity of
// an ordinary process-to-process edge.
const DefaultBufSize = 2401

// BufSize is the live capacity the network builder uses for every
// non-IIP process edge it allocates. It starts at DefaultBufSize and may
// be overridden once, at startup, from configuration (SPEC_FULL.md
// §4.J's edge.buffer_size) before any network is started.
var BufSize = DefaultBufSize

// IIPBufSize is the capacity of an edge carrying a single initial
// information packet.
const IIPBufSize = 1

// Producer is the write half of a process edge. Owned exclusively by one
// process; never shared.
type Producer struct {
	ch        chan []byte
	closeOnce sync.Once
}

// Consumer is the read half of a process edge. Owned exclusively by one
// process; never shared.
type Consumer struct {
	ch chan []byte
}

// New allocates a process edge of the given capacity and returns its two
// halves.
func New(capacity int) (*Producer, *Consumer) {
	ch := make(chan []byte, capacity)
	return &Producer{ch: ch}, &Consumer{ch: ch}
}

// TryPush attempts a non-blocking send. It returns false ("full") if the
// edge is saturated; the caller is expected to unpark the consumer and
// retry after yielding (spec.md §4.A, §5 back-pressure).
func (p *Producer) TryPush(payload []byte) bool {
	select {
	case p.ch <- payload:
		return true
	default:
		return false
	}
}

// Drop abandons the producer half. Idempotent. The consumer observes this
// as `abandoned=true` once the buffered backlog has been drained.
func (p *Producer) Drop() {
	p.closeOnce.Do(func() { close(p.ch) })
}

// TryPop attempts a non-blocking receive. ok is true iff a payload was
// returned. abandoned is true iff the producer has been dropped and no
// payload remains buffered.
func (c *Consumer) TryPop() (payload []byte, ok bool, abandoned bool) {
	select {
	case payload, open := <-c.ch:
		if open {
			return payload, true, false
		}
		return nil, false, true
	default:
		return nil, false, false
	}
}
