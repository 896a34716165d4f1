package common

import (
	"errors"
	"sync/atomic"
)

// ErrReentrantCall is returned when an entry point is re-entered while a
// previous invocation is still in flight.
var ErrReentrantCall = errors.New("reentrant call")

// Latch is the in-progress flag guarding state-mutating entry points. It must
// be acquired before any external call (fund transfer, cross-engine call) so
// a callee cannot re-invoke the entry point and observe half-updated state.
// Release runs on every exit path, typically via defer.
type Latch struct {
	busy atomic.Bool
}

// Acquire marks the latch busy, failing if it already is.
func (l *Latch) Acquire() error {
	if !l.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// Release clears the busy flag.
func (l *Latch) Release() {
	l.busy.Store(false)
}
