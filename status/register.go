package status

import "sync/atomic"

// Register is the wait-free status register described in spec.md §4.1.
// All operations are safe to call from any goroutine without additional
// synchronisation.
type Register struct {
	phase     atomic.Uint32
	sub       atomic.Uint32
	completed atomic.Uint32
	total     atomic.Uint32
}

// NewRegister returns a Register in the Inactive phase with a zeroed fetch
// counter.
func NewRegister() *Register {
	return &Register{}
}

// LoadPhase returns the current phase.
func (r *Register) LoadPhase() Phase {
	return Phase(r.phase.Load())
}

// SwapPhase atomically replaces the phase and returns the previous value.
// This is the primitive every IPC method uses to test "am I the first to
// claim this phase?" (spec.md §4.1).
func (r *Register) SwapPhase(next Phase) Phase {
	return Phase(r.phase.Swap(uint32(next)))
}

// CompareAndSwapPhase atomically moves the phase from old to next, reporting
// whether it did so.
func (r *Register) CompareAndSwapPhase(old, next Phase) bool {
	return r.phase.CompareAndSwap(uint32(old), uint32(next))
}

// StoreSub sets the current sub-phase byte.
func (r *Register) StoreSub(sub SubPhase) {
	r.sub.Store(uint32(sub))
}

// LoadSub returns the current sub-phase byte.
func (r *Register) LoadSub() SubPhase {
	return SubPhase(r.sub.Load())
}

// StoreFetch sets the fetch counters. Used when starting a session (total is
// set before the first completed increment, per invariant 4) and when
// resetting a finished session back to {0,0}.
func (r *Register) StoreFetch(completed, total uint32) {
	r.total.Store(total)
	r.completed.Store(completed)
}

// IncrementCompleted advances the completed counter by one and returns the
// new value. Callers are responsible for not exceeding Total; the fetch
// workflow only calls this from its single-threaded state machine.
func (r *Register) IncrementCompleted() uint32 {
	return r.completed.Add(1)
}

// LoadFetch returns a consistent-enough snapshot of the fetch counters. A
// racing writer may advance completed between the two loads; since completed
// only ever increases within a session this can only under-report, never
// report an impossible completed > total.
func (r *Register) LoadFetch() FetchState {
	total := r.total.Load()
	completed := r.completed.Load()
	return FetchState{Completed: completed, Total: total}
}

// Reset returns every field to its zero value (phase Inactive, sub 0, fetch
// {0,0}). Used by the IPC Reset method.
func (r *Register) Reset() {
	r.phase.Store(uint32(Inactive))
	r.sub.Store(0)
	r.completed.Store(0)
	r.total.Store(0)
}
