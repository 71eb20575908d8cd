// Package common holds the signal-handling and shutdown helpers every leaf
// component under internal/components shares, grounded on the repeated
// "check signals / check ports / park" loop shape original_source's
// src/components/*.rs files all follow.
package common

import (
	"github.com/flowd/flowd/internal/component"
	"github.com/flowd/flowd/internal/edge"
)

// HandleSignal drains at most one pending signal. It reports stop=true on a
// stop signal (the caller must return from Run), and answers a ping with a
// pong on the shared watchdog channel, matching every components/*.rs file's
// `if ip == b"stop" ... else if ip == b"ping"` branch.
func HandleSignal(signals <-chan edge.Signal, pong chan<- edge.Signal) (stop bool) {
	select {
	case sig := <-signals:
		switch sig {
		case edge.SignalStop:
			return true
		case edge.SignalPing:
			select {
			case pong <- edge.SignalPong:
			default:
			}
		}
	default:
	}
	return false
}

// CloseOutputs drops every producer on every outport and unparks its
// target, the shutdown step RepeatComponent::run performs ("drop(out);
// out_wakeup.unpark()") generalized to an arbitrary outport set.
func CloseOutputs(out map[string][]*component.OutSink) {
	for _, sinks := range out {
		for _, sink := range sinks {
			sink.Producer.Drop()
			if sink.Wakeup != nil {
				sink.Wakeup.Unpark()
			}
		}
	}
}

// Push writes payload to every sink on an outport, unparking each target.
func Push(sinks []*component.OutSink, payload []byte) {
	for _, sink := range sinks {
		for !sink.Producer.TryPush(payload) {
			if sink.Wakeup != nil {
				sink.Wakeup.Unpark()
			}
		}
		if sink.Wakeup != nil {
			sink.Wakeup.Unpark()
		}
	}
}
