// Package status holds the daemon's single phase/sub-phase/fetch-counter
// register (spec.md §4.1). The phase is claimed and released by the IPC
// dispatcher, the sub-phase and fetch counters are written by the workflow
// worker, and IPC methods read every field concurrently with both, so the
// register is built entirely from atomics: guarding it with
// a mutex would serialise status reads against the worker, which is the one
// thing this type exists to avoid.
package status

// Phase is the top-level state of the daemon.
type Phase byte

const (
	Inactive Phase = iota
	FetchingPackages
	RecoveryUpgrade
	ReleaseUpgrade
	PackageUpgrade
)

func (p Phase) String() string {
	switch p {
	case Inactive:
		return "inactive"
	case FetchingPackages:
		return "fetching_packages"
	case RecoveryUpgrade:
		return "recovery_upgrade"
	case ReleaseUpgrade:
		return "release_upgrade"
	case PackageUpgrade:
		return "package_upgrade"
	default:
		return "unknown"
	}
}

// SubPhase is a byte whose interpretation depends on Phase: a ReleaseEvent
// for ReleaseUpgrade, a RecoveryEvent for RecoveryUpgrade, otherwise opaque.
type SubPhase byte

// FetchState is the {completed, total} package-count pair tracked during a
// fetch session. completed is monotonically non-decreasing within a session
// and never exceeds total once total has been set (spec.md invariant 4).
type FetchState struct {
	Completed uint32
	Total     uint32
}
