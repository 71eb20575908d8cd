package protocol

import (
	"fmt"
	"sync"
	"time"
)

// ClientState is the lifecycle of one WebSocket client connection.
type ClientState string

const (
	ClientStateConnected    ClientState = "CONNECTED"
	ClientStateHandshaking  ClientState = "HANDSHAKING"
	ClientStateReady        ClientState = "READY"
	ClientStateClosing      ClientState = "CLOSING"
	ClientStateClosed       ClientState = "CLOSED"
)

// ClientSession tracks one protocol-server connection's bookkeeping:
// identity, lifecycle state, and traffic counters. Grounded on the
// teacher's mutex-guarded, counter-bearing Session struct, carrying the
// same shape (state machine + timestamps + counters under a RWMutex) but
// keyed by WebSocket remote address instead of a 128-bit session ID, and
// with the AOCS-specific fields (tenant, trust, governance, sequence
// numbers) dropped — the FBP Network Protocol has no concept of them.
type ClientSession struct {
	RemoteAddr string
	State      ClientState

	ConnectedAt time.Time
	LastActive  time.Time

	MessagesIn  int64
	MessagesOut int64
	BytesIn     int64
	BytesOut    int64
	ErrorCount  int64
	LastError   string

	mu sync.RWMutex
}

// NewClientSession creates a session in the CONNECTED state.
func NewClientSession(remoteAddr string) *ClientSession {
	now := time.Now()
	return &ClientSession{
		RemoteAddr:  remoteAddr,
		State:       ClientStateConnected,
		ConnectedAt: now,
		LastActive:  now,
	}
}

// Activate transitions a session from CONNECTED/HANDSHAKING to READY once
// the `noflo` sub-protocol handshake completes.
func (s *ClientSession) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != ClientStateConnected && s.State != ClientStateHandshaking {
		return fmt.Errorf("protocol: cannot activate session in state %s", s.State)
	}
	s.State = ClientStateReady
	s.LastActive = time.Now()
	return nil
}

// Touch updates the last-active timestamp.
func (s *ClientSession) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActive = time.Now()
}

// RecordMessage tallies one sent/received message of the given size.
func (s *ClientSession) RecordMessage(outgoing bool, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActive = time.Now()
	if outgoing {
		s.MessagesOut++
		s.BytesOut += int64(size)
	} else {
		s.MessagesIn++
		s.BytesIn += int64(size)
	}
}

// RecordError tallies a protocol or handler error observed on this
// session; it does not itself close the connection.
func (s *ClientSession) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorCount++
	s.LastError = err.Error()
}

// Close transitions the session to CLOSED. Idempotent.
func (s *ClientSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = ClientStateClosed
}

// IsClosed reports whether Close has been called.
func (s *ClientSession) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State == ClientStateClosed
}

// Stats is a point-in-time snapshot of a session's counters, safe to log
// or expose without holding the session's lock afterward.
type Stats struct {
	RemoteAddr  string
	State       ClientState
	ConnectedAt time.Time
	LastActive  time.Time
	MessagesIn  int64
	MessagesOut int64
	BytesIn     int64
	BytesOut    int64
	ErrorCount  int64
}

// Snapshot returns the session's current Stats.
func (s *ClientSession) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		RemoteAddr:  s.RemoteAddr,
		State:       s.State,
		ConnectedAt: s.ConnectedAt,
		LastActive:  s.LastActive,
		MessagesIn:  s.MessagesIn,
		MessagesOut: s.MessagesOut,
		BytesIn:     s.BytesIn,
		BytesOut:    s.BytesOut,
		ErrorCount:  s.ErrorCount,
	}
}
