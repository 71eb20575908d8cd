package edge

// Signal is a short control message carried on a process's signal channel.
type Signal string

const (
	SignalStop Signal = "stop"
	SignalPing Signal = "ping"
	SignalPong Signal = "pong"
)

// SignalBufSize is the capacity of a process's signal channel (spec.md
// §4.A).
const SignalBufSize = 2

// SignalChan is the MPSC control channel carrying stop/ping/pong (and any
// future signals) to one process. An ordinary Go channel is already MPSC,
// so no further wrapping is needed.
type SignalChan chan Signal

// NewSignalChan allocates a process's signal channel at its fixed
// capacity.
func NewSignalChan() SignalChan {
	return make(SignalChan, SignalBufSize)
}
