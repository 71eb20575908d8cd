package edge

// Wakeup is the opaque unpark token every process owns exactly one of.
// Unpark is idempotent: calling it any number of times while the process is
// not parked still only wakes the next Park call exactly once — lost
// wakeups never accumulate beyond one, because the underlying channel has
// capacity 1.
type Wakeup struct {
	ch chan struct{}
}

// NewWakeup allocates an unparked wakeup handle.
func NewWakeup() *Wakeup {
	return &Wakeup{ch: make(chan struct{}, 1)}
}

// Unpark schedules one wakeup. Safe to call from any goroutine, any number
// of times; never blocks.
func (w *Wakeup) Unpark() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Park blocks until the next Unpark call (or returns immediately if one is
// already pending).
func (w *Wakeup) Park() {
	<-w.ch
}

// ParkChan exposes the underlying channel for use in a select alongside a
// signal-channel receive or a watchdog timeout, without consuming the
// wakeup outside of a real receive.
func (w *Wakeup) ParkChan() <-chan struct{} {
	return w.ch
}
