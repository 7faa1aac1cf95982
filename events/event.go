// Package events defines the typed progress events carried from the
// workflow worker to the IPC dispatcher (spec.md §4.3) and the unbounded
// multi-producer single-consumer bus that carries them.
package events

// ReleaseEvent is the ordered sequence of coarse transitions emitted by the
// release workflow (spec.md §3). For a successful upgrade these are observed
// in this order; Failure may appear at any point.
type ReleaseEvent byte

const (
	ReleaseUpdatingPackageLists ReleaseEvent = iota
	ReleaseFetchingPackages
	ReleaseUpgradingPackages
	ReleaseInstallingPackages
	ReleaseUpdatingSourceLists
	ReleaseFetchingPackagesForNewRelease
	ReleaseAttemptingSystemdUnit
	ReleaseAttemptingRecovery
	ReleaseSuccess
	ReleaseFailure
	ReleaseRemovingConflicts
	ReleaseSimulating
)

// RecoveryEvent is the ordered sequence of coarse transitions emitted by the
// recovery workflow. {Fetching, Verifying, Syncing, Complete} in this order
// for a success.
type RecoveryEvent byte

const (
	RecoveryFetching RecoveryEvent = iota
	RecoveryVerifying
	RecoverySyncing
	RecoveryComplete
)

// Result is the pass/fail outcome carried by *Result events and stored in
// LastKnown.
type Result struct {
	// Ok is true when the workflow completed without error.
	Ok bool
	// Why is a human-readable message; empty on success.
	Why string
}

// Kind discriminates the Event union. The bus carries a closed set of event
// shapes, one constructor per kind below.
type Kind int

const (
	KindFetchResult Kind = iota
	KindFetched
	KindFetching
	KindNoConnection
	KindRecoveryProgress
	KindRecoveryPhase
	KindRecoveryResult
	KindReleasePhase
	KindReleaseResult
	KindAptUpgrade
)

// Event is a single typed progress event. Exactly one of the payload fields
// is meaningful, selected by Kind; this mirrors the tagged-union shape of
// spec.md §4.3 without needing a sum type in Go.
type Event struct {
	Kind Kind

	// FetchResult / RecoveryResult / ReleaseResult
	Result Result

	// Fetched / Fetching
	PackageName string
	Completed   uint32
	Total       uint32

	// RecoveryProgress
	Bytes     uint64
	ByteTotal uint64

	// RecoveryPhase
	RecoveryPhase RecoveryEvent

	// ReleasePhase
	ReleasePhase ReleaseEvent

	// AptUpgrade: package name -> version string
	Versions map[string]string
}

// FetchResult builds a KindFetchResult event.
func FetchResult(r Result) Event { return Event{Kind: KindFetchResult, Result: r} }

// Fetched builds a KindFetched event: a single package finished downloading.
func Fetched(name string, completed, total uint32) Event {
	return Event{Kind: KindFetched, PackageName: name, Completed: completed, Total: total}
}

// Fetching builds a KindFetching event: a single package download started.
func Fetching(name string) Event {
	return Event{Kind: KindFetching, PackageName: name}
}

// NoConnection builds a KindNoConnection event.
func NoConnection() Event { return Event{Kind: KindNoConnection} }

// RecoveryProgressEvent builds a KindRecoveryProgress event (bytes/1024,
// total/1024 per spec.md §4.6 — callers pass already-scaled values).
func RecoveryProgressEvent(bytesKiB, totalKiB uint64) Event {
	return Event{Kind: KindRecoveryProgress, Bytes: bytesKiB, ByteTotal: totalKiB}
}

// RecoveryPhaseEvent builds a KindRecoveryPhase event.
func RecoveryPhaseEvent(phase RecoveryEvent) Event {
	return Event{Kind: KindRecoveryPhase, RecoveryPhase: phase}
}

// RecoveryResult builds a KindRecoveryResult event.
func RecoveryResult(r Result) Event { return Event{Kind: KindRecoveryResult, Result: r} }

// ReleasePhaseEvent builds a KindReleasePhase event.
func ReleasePhaseEvent(phase ReleaseEvent) Event {
	return Event{Kind: KindReleasePhase, ReleasePhase: phase}
}

// ReleaseResult builds a KindReleaseResult event.
func ReleaseResult(r Result) Event { return Event{Kind: KindReleaseResult, Result: r} }

// AptUpgrade builds a KindAptUpgrade event carrying per-package upgrade
// versions as they stream from the package manager.
func AptUpgrade(versions map[string]string) Event {
	return Event{Kind: KindAptUpgrade, Versions: versions}
}
