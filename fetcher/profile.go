package fetcher

import "time"

// Profile bounds one fetcher's concurrency, per spec.md §5's two named
// profiles. Both the recovery ISO download (§4.6) and the package fetcher
// (§4.5) run the same bounded-concurrency executor, parameterised by Profile.
type Profile struct {
	// Concurrency is the maximum number of in-flight requests.
	Concurrency int
	// Connections records the number of connections per request for the
	// profile. fetchFrom does not read it: every fetch is one whole-body
	// GET over a single connection, with no ranged parts.
	Connections int
	// PartSize records the ranged-GET part size for the profile. fetchFrom
	// does not read it; no fetch is split into parts.
	PartSize int64
	// IdleTimeout is the maximum gap between successive reads before a
	// fetch is aborted as stalled.
	IdleTimeout time.Duration
	// Retries records the profile's retry budget. No fetcher or workflow code
	// reads it; the fetch and release workflows retry failed URIs up to their
	// own FetchRetries constant.
	Retries int
}

// RecoveryProfile returns the recovery ISO download profile: 4 connections,
// 4 MiB part size, 5 s idle timeout. Retries are driven by the recovery
// workflow itself, not the fetcher (a single ISO has no per-URI retry list).
func RecoveryProfile() Profile {
	return Profile{
		Concurrency: 4,
		Connections: 4,
		PartSize:    4 << 20,
		IdleTimeout: 5 * time.Second,
	}
}

// PackageProfile returns the package-fetcher profile: 2 concurrent files, 1
// connection each, 15 s idle timeout, 3 retries (spec.md §9's named retry
// budget).
func PackageProfile() Profile {
	return Profile{
		Concurrency: 2,
		Connections: 1,
		IdleTimeout: 15 * time.Second,
		Retries:     3,
	}
}
