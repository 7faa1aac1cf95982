// Package fetch implements the fetch workflow of spec.md §4.5: enumerate
// URIs, download in parallel to the package cache, and optionally run the
// package upgrade. Built on phase.Run, the same sequential-step executor
// the recovery workflow uses, grounded on the teacher's ProcessChain.
package fetch

import (
	"context"
	"fmt"

	"github.com/pop-os/upgrade-daemon/aptutil"
	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/events"
	"github.com/pop-os/upgrade-daemon/fetcher"
	"github.com/pop-os/upgrade-daemon/observability"
	"github.com/pop-os/upgrade-daemon/phase"
	"github.com/pop-os/upgrade-daemon/repair"
	"github.com/pop-os/upgrade-daemon/status"
	"github.com/pop-os/upgrade-daemon/upgradeerrors"
)

// FetchRetries is the named retry-budget constant of spec.md §9 ("Fetch
// (3) ... are hard constants").
const FetchRetries = 3

// Input is the WorkflowRequest payload for FetchUpdates (spec.md §3).
type Input struct {
	Additional   []string
	DownloadOnly bool
}

// Deps are the process-wide collaborators the workflow reads and mutates.
// Passed explicitly rather than reached via singletons, per spec.md §9's
// "reject any design in which state is reached via module-level
// singletons."
type Deps struct {
	Bus        *events.Bus
	Register   *status.Register
	Token      *cancel.Token
	HTTPClient fetcher.Client
	Observer   observability.Observer
	Release    string // current release codename, for repair's Packaging step
}

type state struct {
	Input
	uris    []fetcher.URI
	failed  []fetcher.URI
	outcome events.Result
}

// Run executes the fetch workflow to completion and returns its outcome.
// Every failure is reported via the FetchResult bus event and the returned
// events.Result per spec.md §7's propagation policy; Run has no error
// return.
func Run(ctx context.Context, d Deps, in Input) events.Result {
	steps := []phase.Step[state]{
		{Name: "lock_wait", Run: func(ctx context.Context, s state) (state, error) {
			return s, aptutil.LockWait(ctx, d.Token)
		}},
		{Name: "compute_uris", Run: func(ctx context.Context, s state) (state, error) {
			return computeURIs(ctx, d, s)
		}},
		{Name: "init_counters", Run: func(ctx context.Context, s state) (state, error) {
			d.Register.StoreFetch(0, uint32(len(s.uris)))
			s.failed = s.uris
			return s, nil
		}},
		{Name: "fetch_with_retries", Run: func(ctx context.Context, s state) (state, error) {
			return fetchWithRetries(ctx, d, s)
		}},
		{Name: "upgrade", Run: func(ctx context.Context, s state) (state, error) {
			if s.DownloadOnly {
				return s, nil
			}
			return s, upgradeWithRepair(ctx, d)
		}},
	}

	final, err := phase.Run(ctx, d.Token, d.Observer, "fetch", steps, state{Input: in})
	d.Register.StoreFetch(0, 0)

	if err == nil {
		final.outcome = events.Result{Ok: true}
	} else {
		final.outcome = events.Result{Ok: false, Why: causeMessage(err)}
	}
	d.Bus.Send(ctx, events.FetchResult(final.outcome))
	return final.outcome
}

func computeURIs(ctx context.Context, d Deps, s state) (state, error) {
	uris, err := aptutil.PrintURIs(ctx, d.Token, "full-upgrade")
	if err != nil {
		return s, fmt.Errorf("%w: %v", upgradeerrors.ErrConnection, err)
	}

	if len(s.Additional) > 0 {
		verb := "download"
		if !s.DownloadOnly {
			verb = "install"
		}
		extra, err := aptutil.PrintURIs(ctx, d.Token, verb, s.Additional...)
		if err != nil {
			return s, fmt.Errorf("%w: %v", upgradeerrors.ErrConnection, err)
		}
		uris = dedupe(append(uris, extra...))
	}

	s.uris = uris
	return s, nil
}

func dedupe(uris []fetcher.URI) []fetcher.URI {
	seen := make(map[string]bool, len(uris))
	out := uris[:0]
	for _, u := range uris {
		if seen[u.Dest] {
			continue
		}
		seen[u.Dest] = true
		out = append(out, u)
	}
	return out
}

// fetchWithRetries retries only the URIs that failed in the previous
// attempt, per spec.md §4.5 step 4. The completed counter advances only
// after FetchAll returns for an attempt, walking its results in URI-list
// order; it does not follow the order in which downloads finish.
func fetchWithRetries(ctx context.Context, d Deps, s state) (state, error) {
	pending := s.uris
	for attempt := 0; attempt < FetchRetries && len(pending) > 0; attempt++ {
		if d.Token != nil && d.Token.IsTriggered() {
			return s, upgradeerrors.ErrCancelled
		}

		results, _ := fetcher.FetchAll(ctx, d.Token, d.HTTPClient, fetcher.PackageProfile(), pending,
			func(u fetcher.URI) {
				d.Bus.Send(ctx, events.Fetching(u.Name))
			},
			nil,
		)

		var stillFailed []fetcher.URI
		for _, r := range results {
			if r.Err != nil {
				stillFailed = append(stillFailed, r.URI)
				continue
			}
			completed := d.Register.IncrementCompleted()
			d.Bus.Send(ctx, events.Fetched(r.URI.Name, completed, d.Register.LoadFetch().Total))
		}
		pending = stillFailed
	}

	if len(pending) > 0 {
		d.Bus.Send(ctx, events.NoConnection())
		return s, fmt.Errorf("%w: %d package(s) failed after %d attempts", upgradeerrors.ErrConnection, len(pending), FetchRetries)
	}
	return s, nil
}

// upgradeWithRepair streams the package upgrade; on failure it runs repair
// once and retries the upgrade once more (spec.md §4.5 step 5).
func upgradeWithRepair(ctx context.Context, d Deps) error {
	attempt := func() error {
		versions := make(map[string]string)
		err := aptutil.Upgrade(ctx, d.Token, func(pkg, ver string) {
			versions[pkg] = ver
		})
		if len(versions) > 0 {
			d.Bus.Send(ctx, events.AptUpgrade(versions))
		}
		return err
	}

	if err := attempt(); err != nil {
		if repairErr := repair.Run(ctx, d.Token, d.Release); repairErr != nil {
			return fmt.Errorf("upgrade failed (%v) and repair also failed: %w", err, repairErr)
		}
		return attempt()
	}
	return nil
}

func causeMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
