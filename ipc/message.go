// Package ipc implements the dispatcher of spec.md §4.9: the single
// long-lived object exporting the bus name and object path of §6.1, the
// worker mailbox it feeds, and the signal fan-out subscribers read from.
package ipc

import (
	"github.com/pop-os/upgrade-daemon/fetch"
	"github.com/pop-os/upgrade-daemon/recovery"
	"github.com/pop-os/upgrade-daemon/release"
)

// RequestKind discriminates the WorkflowRequest union the dispatcher hands
// to the worker's mailbox (spec.md §4.4).
type RequestKind int

const (
	RequestFetchUpdates RequestKind = iota
	RequestUpgradePackages
	RequestRecoveryUpgradeFile
	RequestRecoveryUpgradeRelease
	RequestReleaseUpgrade
	RequestReleaseRepair
)

// WorkflowRequest is one entry in the worker's mailbox. Exactly one of the
// payload fields is meaningful, selected by Kind — the same tagged-union
// shape events.Event already uses for the bus on the output side.
type WorkflowRequest struct {
	Kind RequestKind

	FetchInput     fetch.Input
	RecoverySource recovery.Source
	ReleaseInput   release.Input

	// Correlates a request with the foreground-result channel entry the
	// worker produces once it completes, so ReleaseUpgradeFinalize can find
	// the CommitState belonging to the request that produced it.
	ID string
}

// LastKnown holds the most recent {status, why} pair for each
// workflow family, read back by the *Status methods of spec.md §6.1.
// Populated by the dispatcher's foreground-result drain (step 1 of the
// main loop), never written concurrently with a read since both happen on
// the dispatcher's own goroutine.
type LastKnown struct {
	Fetch    WorkflowStatus
	Recovery WorkflowStatus
	Release  WorkflowStatus
}

// WorkflowStatus is the {status byte, human-readable reason} pair spec.md's
// *Status methods return. Status 0 means "never run"; 1 means "succeeded";
// 2 means "failed", with Why carrying the error message.
type WorkflowStatus struct {
	Status uint8
	Why    string
}

const (
	StatusNeverRun  uint8 = 0
	StatusSucceeded uint8 = 1
	StatusFailed    uint8 = 2
)

func statusFromResult(ok bool, why string) WorkflowStatus {
	if ok {
		return WorkflowStatus{Status: StatusSucceeded}
	}
	return WorkflowStatus{Status: StatusFailed, Why: why}
}
