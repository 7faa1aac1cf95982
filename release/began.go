package release

import "sync/atomic"

// Began is the irrevocable-cancellation latch of spec.md's
// "ReleaseUpgradeBegan": Trigger is called once the workflow crosses into
// operations that cannot be cancelled safely (entering step 11), and while
// set, the dispatcher must refuse every cancellation request. Shared via
// Deps rather than held per-workflow-run, since the dispatcher needs to
// observe it from its own goroutine.
type Began struct {
	flag atomic.Bool
}

// NewBegan returns a latch in the not-yet-begun state.
func NewBegan() *Began { return &Began{} }

// Trigger latches the flag permanently true until Reset.
func (b *Began) Trigger() { b.flag.Store(true) }

// IsTriggered reports whether Trigger has been called since the last Reset.
func (b *Began) IsTriggered() bool { return b.flag.Load() }

// Reset clears the latch. The daemon does not call it: once triggered, the
// latch stays set until the process restarts.
func (b *Began) Reset() { b.flag.Store(false) }
