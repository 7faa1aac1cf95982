// Package phase provides a generic sequential-step executor shared by the
// fetch and recovery workflows: each step receives the current accumulated
// state, may mutate external state, and returns the next state or an error
// that stops the run. It generalises the teacher's ProcessChain
// (orchestrate/workflows/chain.go in the retrieval pack) with the
// cancellation-token check spec.md §5 requires at every suspension point, in
// addition to the usual context check.
package phase

import (
	"context"
	"fmt"
	"time"

	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/observability"
	"github.com/pop-os/upgrade-daemon/upgradeerrors"
)

// Step is a single named unit of work in a sequential run.
type Step[S any] struct {
	Name string
	Run  func(ctx context.Context, state S) (S, error)
}

// Error wraps a failing step with the name of the step and the state at the
// time of failure, in the shape of the teacher's ChainError.
type Error[S any] struct {
	Step  string
	State S
	Err   error
}

func (e *Error[S]) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *Error[S]) Unwrap() error { return e.Err }

const (
	EventStepStart    observability.EventType = "phase.step.start"
	EventStepComplete observability.EventType = "phase.step.complete"
)

// Run executes steps in order, stopping at the first error or the first
// point token.IsTriggered() observes a cancellation request. ctx.Err() is
// also honoured so callers can additionally bound a run with a deadline.
func Run[S any](
	ctx context.Context,
	token *cancel.Token,
	observer observability.Observer,
	source string,
	steps []Step[S],
	initial S,
) (S, error) {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	state := initial
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return state, &Error[S]{Step: step.Name, State: state, Err: err}
		}
		if token != nil && token.IsTriggered() {
			return state, &Error[S]{Step: step.Name, State: state, Err: upgradeerrors.ErrCancelled}
		}

		observer.OnEvent(ctx, observability.Event{
			Type:      EventStepStart,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    source,
			Data:      map[string]any{"step": step.Name},
		})

		next, err := step.Run(ctx, state)
		if err != nil {
			observer.OnEvent(ctx, observability.Event{
				Type:      EventStepComplete,
				Level:     observability.LevelWarning,
				Timestamp: time.Now(),
				Source:    source,
				Data:      map[string]any{"step": step.Name, "error": true},
			})
			return state, &Error[S]{Step: step.Name, State: next, Err: err}
		}
		state = next

		observer.OnEvent(ctx, observability.Event{
			Type:      EventStepComplete,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    source,
			Data:      map[string]any{"step": step.Name, "error": false},
		})
	}

	return state, nil
}
