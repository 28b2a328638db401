package transfer

import (
	"sync/atomic"

	"github.com/fruitsalade/dirsync/internal/metrics"
)

// Guard admits at most one run at a time. Callers that are refused are not
// queued.
type Guard struct {
	busy atomic.Bool
}

// TryAdmit marks the guard busy and returns true, or returns false at once
// if a run is already active.
func (g *Guard) TryAdmit() bool {
	if !g.busy.CompareAndSwap(false, true) {
		return false
	}
	metrics.SetRunActive(true)
	return true
}

// Release marks the guard idle.
func (g *Guard) Release() {
	metrics.SetRunActive(false)
	g.busy.Store(false)
}

// Busy reports whether a run is active.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}

// Do runs fn if admitted and releases the guard on every exit path,
// including a panic in fn (which is propagated). It reports whether fn ran.
func (g *Guard) Do(fn func()) bool {
	if !g.TryAdmit() {
		return false
	}
	defer g.Release()
	fn()
	return true
}
