package kerneltap

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowd/flowd/internal/edge"
)

func TestDescriptorHasNoInports(t *testing.T) {
	d := Descriptor()
	assert.Equal(t, "sys/KernelTap", d.Name)
	assert.Empty(t, d.InPorts)
	assert.Len(t, d.OutPorts, 1)
}

func TestParsePayloadExtractsTrailingBytes(t *testing.T) {
	raw := make([]byte, 16+4)
	raw[12] = 4 // little-endian length = 4
	copy(raw[16:], []byte("data"))
	assert.Equal(t, []byte("data"), parsePayload(raw))
}

func TestParsePayloadRejectsShortRecord(t *testing.T) {
	assert.Nil(t, parsePayload(make([]byte, 4)))
}

func TestRunIdlesInMockModeUntilStop(t *testing.T) {
	signals := edge.NewSignalChan()
	pong := make(chan edge.Signal, 1)
	r := &runner{signals: signals, pong: pong, log: slog.Default()}

	done := make(chan struct{})
	go func() { r.Run(); close(done) }()

	signals <- edge.SignalStop

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("KernelTap did not exit on stop signal while idling")
	}
}
