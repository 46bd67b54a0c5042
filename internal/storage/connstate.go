package storage

import "sync/atomic"

// ConnState is the process-wide store connectivity flag. It starts false,
// is set true only by the startup connection routine, and is set false by
// any component that sees a persistence operation fail. There is no
// automatic recovery probe: once down, the flag stays down until restart.
//
// All reads and writes go through these accessors so the single-writer-per-
// transition property stays visible in tests.
type ConnState struct {
	connected atomic.Bool
}

func NewConnState() *ConnState {
	return &ConnState{}
}

// Connected reports whether the store is considered reachable.
func (s *ConnState) Connected() bool {
	return s.connected.Load()
}

// MarkConnected is called by the startup connection routine only.
func (s *ConnState) MarkConnected() {
	s.connected.Store(true)
}

// MarkDown records a persistence failure. Returns true if this call
// performed the transition, false if the flag was already down; callers
// use that to emit the status update exactly once per transition.
func (s *ConnState) MarkDown() bool {
	return s.connected.CompareAndSwap(true, false)
}
