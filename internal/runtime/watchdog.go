package runtime

import (
	"time"

	"github.com/flowd/flowd/internal/edge"
	"github.com/flowd/flowd/internal/network"
)

// defaultWatchdogPingInterval/defaultWatchdogPongTimeout are spec.md
// §4.E step 8's 7s/1s defaults, overridable via SetWatchdogTiming
// (SPEC_FULL.md §4.J's watchdog.ping_interval_sec/pong_timeout_sec).
const (
	defaultWatchdogPingInterval = 7 * time.Second
	defaultWatchdogPongTimeout  = 1 * time.Second
)

type processHealth int

const (
	healthOK processHealth = iota
	healthSlow
	healthExited
)

func (h processHealth) gaugeValue() float64 {
	switch h {
	case healthOK:
		return 1
	case healthSlow:
		return 0.5
	default:
		return 0
	}
}

// runWatchdog is §4.E step 8: every ping interval (7s by default, see
// SetWatchdogTiming), ping every process and classify it
// OK / slow / exited, then if every process has exited drive an orderly
// stop. The pong channel is shared across every process (one constructor
// parameter, not per-process) so pongs cannot be attributed to a single
// sender; a process's own `Done` channel (closed when its Run returns) is
// the reliable exited signal, and a full signal channel is the reliable
// slow signal — the shared-channel pong count is used only as a coarse
// liveness check across the whole batch.
func (s *Scheduler) runWatchdog(graphName string, procs []*network.Process, pong <-chan edge.Signal, io IOHolder, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.watchdogPingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.tick(graphName, procs, pong, io) {
				return
			}
		}
	}
}

// tick runs one ping/classify round. It returns true if every process has
// exited, in which case it has already driven the network stop.
func (s *Scheduler) tick(graphName string, procs []*network.Process, pong <-chan edge.Signal, io IOHolder) bool {
	pending := 0
	allExited := true

	for _, p := range procs {
		health, sentPing := s.pingOne(p)
		if health != healthExited {
			allExited = false
		}
		if sentPing {
			pending++
		}
		if s.metrics != nil {
			s.metrics.ProcessHealth.WithLabelValues(graphName, p.Name).Set(health.gaugeValue())
		}
	}

	if pending > 0 {
		if got := drainPongs(pong, pending, s.watchdogPongTimeout()); got < pending {
			s.logger.Debug("watchdog pong timeout", "graph", graphName, "expected", pending, "received", got)
		}
	}

	if allExited && len(procs) > 0 {
		s.logger.Warn("every process exited, stopping network", "graph", graphName)
		go func() {
			_ = s.Stop(io, true)
		}()
		return true
	}
	return false
}

// pingOne classifies a single process and, unless it has already exited,
// attempts to send it a ping and unpark it. The bool return reports
// whether a ping was actually queued (used to size the pong drain).
func (s *Scheduler) pingOne(p *network.Process) (processHealth, bool) {
	select {
	case <-p.Done:
		return healthExited, false
	default:
	}

	select {
	case p.Signals <- edge.SignalPing:
		p.Wakeup.Unpark()
		return healthOK, true
	default:
		p.Wakeup.Unpark()
		return healthSlow, false
	}
}

// drainPongs best-effort collects up to n pongs within timeout and returns
// how many arrived; tick logs a shortfall at debug level as a liveness
// signal. It waits at most timeout, so it never blocks the next tick.
func drainPongs(pong <-chan edge.Signal, n int, timeout time.Duration) int {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	received := 0
	for received < n {
		select {
		case <-pong:
			received++
		case <-deadline.C:
			return received
		}
	}
	return received
}
