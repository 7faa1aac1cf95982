// Package worker implements the workflow worker of spec.md §4.4: a single
// long-lived consumer of the dispatcher's mailbox that dispatches each
// WorkflowRequest to the matching state machine (fetch, recovery, release)
// and reports the outcome back to the dispatcher. Grounded on the
// teacher's orchestrate/hub goroutine that drains a MessageChannel and
// dispatches to named node handlers (orchestrate/hub/hub.go), generalised
// from a graph-of-nodes dispatch to this daemon's closed set of workflow
// kinds.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/events"
	"github.com/pop-os/upgrade-daemon/fetch"
	"github.com/pop-os/upgrade-daemon/fetcher"
	"github.com/pop-os/upgrade-daemon/ipc"
	"github.com/pop-os/upgrade-daemon/observability"
	"github.com/pop-os/upgrade-daemon/recovery"
	"github.com/pop-os/upgrade-daemon/release"
	"github.com/pop-os/upgrade-daemon/releaseapi"
	"github.com/pop-os/upgrade-daemon/status"
)

// EventInhibitFailed is emitted when a sleep inhibitor could not be
// acquired; the worker proceeds anyway per spec.md §4.4 step 1.
const EventInhibitFailed observability.EventType = "worker.inhibit.failed"

// SleepInhibitor acquires a system-sleep inhibitor for the duration of one
// workflow request (spec.md §4.4 step 1), mirroring the out-of-scope
// logind `inhibit_suspend` lock the original implementation takes: modeled
// as a narrow interface the same way release.BootConfigurator stands in
// for systemd-boot, since no logind D-Bus client exists in the retrieval
// pack. Release must be called exactly once, and is a no-op if Acquire
// failed.
type SleepInhibitor interface {
	Acquire() (release func(), err error)
}

// NoOpInhibitor never acquires a real lock; it is the default when no
// logind connection is available, matching the original's "log and
// proceed" fallback (spec.md §4.4 step 1).
type NoOpInhibitor struct{}

// Acquire always succeeds and returns a no-op release.
func (NoOpInhibitor) Acquire() (func(), error) { return func() {}, nil }

// Worker owns the dispatcher's mailbox and drives it to completion,
// one request at a time (spec.md §5's "single-threaded cooperative inside
// the worker").
type Worker struct {
	dispatcher *ipc.Dispatcher
	inhibitor  SleepInhibitor
	observer   observability.Observer

	bus            *events.Bus
	register       *status.Register
	began          *release.Began
	httpClient     fetcher.Client
	api            *releaseapi.Client
	currentRelease string
}

// Deps are the collaborators shared by every workflow this worker runs.
type Deps struct {
	Dispatcher     *ipc.Dispatcher
	Bus            *events.Bus
	Register       *status.Register
	Began          *release.Began
	HTTPClient     fetcher.Client
	API            *releaseapi.Client
	Observer       observability.Observer
	Inhibitor      SleepInhibitor
	CurrentRelease string
}

// New returns a Worker ready to drain d.Dispatcher's mailbox.
func New(d Deps) *Worker {
	inhibitor := d.Inhibitor
	if inhibitor == nil {
		inhibitor = NoOpInhibitor{}
	}
	return &Worker{
		dispatcher:     d.Dispatcher,
		inhibitor:      inhibitor,
		observer:       d.Observer,
		bus:            d.Bus,
		register:       d.Register,
		began:          d.Began,
		httpClient:     d.HTTPClient,
		api:            d.API,
		currentRelease: d.CurrentRelease,
	}
}

// Run drains the mailbox until ctx is cancelled, processing one request at
// a time to completion before the next (spec.md §5's single-threaded
// worker model).
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.dispatcher.Mailbox():
			w.handle(ctx, req)
		}
	}
}

// handle implements spec.md §4.4's per-request contract: inhibit sleep,
// register a delay-shutdown token, dispatch, report the outcome, release
// the inhibitor.
func (w *Worker) handle(ctx context.Context, req ipc.WorkflowRequest) {
	release, err := w.inhibitor.Acquire()
	if err != nil {
		w.observer.OnEvent(ctx, observability.Event{
			Type:      EventInhibitFailed,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "worker",
			Data:      map[string]any{"error": err.Error()},
		})
		release = func() {}
	}
	defer release()

	token := w.dispatcher.CurrentToken()
	delay, err := token.Delay()
	if err == nil {
		defer delay.Release()
	}

	result := w.dispatch(ctx, token, req)
	w.dispatcher.Foreground() <- result
}

func (w *Worker) dispatch(ctx context.Context, token *cancel.Token, req ipc.WorkflowRequest) ipc.ForegroundResult {
	switch req.Kind {
	case ipc.RequestFetchUpdates, ipc.RequestUpgradePackages:
		d := fetch.Deps{
			Bus:        w.bus,
			Register:   w.register,
			Token:      token,
			HTTPClient: w.httpClient,
			Observer:   w.observer,
			Release:    w.currentRelease,
		}
		outcome := fetch.Run(ctx, d, req.FetchInput)
		return ipc.ForegroundResult{Kind: req.Kind, Fetch: outcome}

	case ipc.RequestRecoveryUpgradeFile, ipc.RequestRecoveryUpgradeRelease:
		d := recovery.Deps{
			Bus:            w.bus,
			Register:       w.register,
			Token:          token,
			HTTPClient:     w.httpClient,
			Observer:       w.observer,
			API:            w.api,
			CurrentRelease: w.currentRelease,
		}
		outcome := recovery.Run(ctx, d, req.RecoverySource)
		return ipc.ForegroundResult{Kind: req.Kind, Recovery: outcome}

	case ipc.RequestReleaseUpgrade:
		d := release.Deps{
			Bus:        w.bus,
			Register:   w.register,
			Token:      token,
			HTTPClient: w.httpClient,
			Observer:   w.observer,
			Began:      w.began,
		}
		outcome, commit := release.Run(ctx, d, req.ReleaseInput)
		return ipc.ForegroundResult{Kind: req.Kind, Release: outcome, ReleaseCommit: commit}

	default:
		return ipc.ForegroundResult{
			Kind:    req.Kind,
			Release: events.Result{Ok: false, Why: fmt.Sprintf("worker: unhandled request kind %v", req.Kind)},
		}
	}
}
