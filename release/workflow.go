package release

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
	"github.com/pop-os/upgrade-daemon/sources"
	"github.com/pop-os/upgrade-daemon/status"
	"github.com/pop-os/upgrade-daemon/upgradeerrors"
)

// Input is the WorkflowRequest payload for ReleaseUpgrade (spec.md §3).
type Input struct {
	Method uint8
	From   string
	To     string
}

// CommitState is the ReleaseUpgradeCommitState of spec.md §4.1: set by the
// worker once Run reports success, consumed by ReleaseUpgradeFinalize. At
// most one instance should exist at a time; that single-instance rule is
// the worker's responsibility, not this package's.
type CommitState struct {
	Method uint8
	From   string
	To     string
}

// Deps are the process-wide collaborators the workflow reads and mutates,
// passed explicitly rather than reached via singletons (spec.md §9).
type Deps struct {
	Bus        *events.Bus
	Register   *status.Register
	Token      *cancel.Token
	HTTPClient fetcher.Client
	Observer   observability.Observer
	Began      *Began
}

type state struct {
	Input
}

// Run executes the release workflow to completion and reports its outcome
// via the ReleaseResult bus event, never returning a non-nil error for a
// recoverable workflow failure (spec.md §7's propagation policy). On
// success, the second return value is the CommitState the caller should
// record; it is the zero value on failure.
//
// Cancellation is honoured through step 10. Entering step 11 latches
// d.Began and every following step runs with a nil cancellation token, so a
// concurrent Trigger can no longer interrupt it (spec.md §4.7
// "Cancellation").
func Run(ctx context.Context, d Deps, in Input) (events.Result, CommitState) {
	cancellableSteps := []phase.Step[state]{
		{Name: "preflight", Run: func(ctx context.Context, s state) (state, error) {
			return s, Preflight(ctx, d.Token)
		}},
		{Name: "hold_self", Run: func(ctx context.Context, s state) (state, error) {
			return s, aptutil.Hold(ctx, d.Token, SelfPackages)
		}},
		{Name: "repair", Run: func(ctx context.Context, s state) (state, error) {
			return s, repair.Run(ctx, d.Token, s.From)
		}},
		{Name: "backup_sources", Run: func(ctx context.Context, s state) (state, error) {
			return s, sources.Backup(s.From)
		}},
		{Name: "disable_third_party", Run: func(ctx context.Context, s state) (state, error) {
			return s, sources.DisableThirdParty(s.From)
		}},
		{Name: "update_current", Run: func(ctx context.Context, s state) (state, error) {
			return s, updateCurrentRelease(ctx, d, s.From)
		}},
		{Name: "downgrade_drift", Run: func(ctx context.Context, s state) (state, error) {
			return s, DowngradeDrift(ctx, d.Token)
		}},
		{Name: "remove_conflicts", Run: func(ctx context.Context, s state) (state, error) {
			setPhase(ctx, d, events.ReleaseRemovingConflicts)
			return s, RemoveConflicts(ctx, d.Token)
		}},
		{Name: "install_core", Run: func(ctx context.Context, s state) (state, error) {
			setPhase(ctx, d, events.ReleaseInstallingPackages)
			return s, aptutil.Install(ctx, d.Token, CorePackages())
		}},
		{Name: "pre_upgrade_fixes", Run: func(ctx context.Context, s state) (state, error) {
			if err := repair.PreUpgradeFixes(); err != nil {
				return s, err
			}
			_ = aptutil.Unhold(ctx, d.Token, SelfPackages)
			return s, nil
		}},
	}

	final, err := phase.Run(ctx, d.Token, d.Observer, "release", cancellableSteps, state{Input: in})
	if err != nil {
		return finish(ctx, d, in, err)
	}

	// Crossing into step 11: cancellation can no longer be honoured safely.
	d.Began.Trigger()

	irrevocableSteps := []phase.Step[state]{
		{Name: "rewrite_sources", Run: func(ctx context.Context, s state) (state, error) {
			setPhase(ctx, d, events.ReleaseUpdatingSourceLists)
			return s, rewriteSources(ctx, s.From, s.To)
		}},
		{Name: "fetch_new_release", Run: func(ctx context.Context, s state) (state, error) {
			if err := fetchNewRelease(ctx, d, s.To); err != nil {
				rollbackSources(s.From)
				return s, err
			}
			return s, nil
		}},
		{Name: "simulate", Run: func(ctx context.Context, s state) (state, error) {
			setPhase(ctx, d, events.ReleaseSimulating)
			if err := aptutil.Simulate(ctx, nil); err != nil {
				rollbackSources(s.From)
				return s, err
			}
			return s, nil
		}},
		{Name: "success", Run: func(ctx context.Context, s state) (state, error) {
			DisableDesktopExtensions(ctx)
			setPhase(ctx, d, events.ReleaseSuccess)
			return s, nil
		}},
	}

	final, err = phase.Run(ctx, nil, d.Observer, "release", irrevocableSteps, final)
	return finish(ctx, d, in, err)
}

func finish(ctx context.Context, d Deps, in Input, err error) (events.Result, CommitState) {
	var result events.Result
	var commit CommitState
	if err == nil {
		result = events.Result{Ok: true}
		commit = CommitState{Method: in.Method, From: in.From, To: in.To}
	} else {
		setPhase(ctx, d, events.ReleaseFailure)
		result = events.Result{Ok: false, Why: err.Error()}
	}
	d.Bus.Send(ctx, events.ReleaseResult(result))
	return result, commit
}

func setPhase(ctx context.Context, d Deps, ev events.ReleaseEvent) {
	d.Register.StoreSub(status.SubPhase(ev))
	d.Bus.Send(ctx, events.ReleasePhaseEvent(ev))
}

// updateCurrentRelease performs spec.md §4.7 step 6: bring the
// currently-installed release fully up to date before touching anything
// release-specific. Event names follow the original implementation's
// ordering exactly — UpgradingPackages is emitted before the fetch, and
// FetchingPackages before the upgrade itself runs.
func updateCurrentRelease(ctx context.Context, d Deps, from string) error {
	if sources.IsOldRelease(ctx, nil, from) {
		if err := sources.SwitchToOldReleases(); err != nil {
			return err
		}
	}

	setPhase(ctx, d, events.ReleaseUpdatingPackageLists)
	if err := aptutil.Update(ctx, d.Token, nil); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrUpdateFailed, err)
	}

	setPhase(ctx, d, events.ReleaseUpgradingPackages)
	if err := fetchFull(ctx, d, d.Token); err != nil {
		return err
	}

	setPhase(ctx, d, events.ReleaseFetchingPackages)
	versions := make(map[string]string)
	if err := aptutil.Upgrade(ctx, d.Token, func(pkg, ver string) { versions[pkg] = ver }); err != nil {
		return err
	}
	if len(versions) > 0 {
		d.Bus.Send(ctx, events.AptUpgrade(versions))
	}
	return nil
}

// rewriteSources performs spec.md §4.7 step 11. Runs with no cancellation
// token: once started it always runs to completion or failure.
func rewriteSources(ctx context.Context, from, to string) error {
	if err := sources.RewriteCodename(from, to); err != nil {
		return err
	}
	if err := sources.EnsureDefaults(to); err != nil {
		return err
	}
	if sources.IsOldRelease(ctx, nil, to) {
		if err := sources.SwitchToOldReleases(); err != nil {
			return err
		}
	}
	return nil
}

// fetchNewRelease performs spec.md §4.7 step 12.
func fetchNewRelease(ctx context.Context, d Deps, to string) error {
	setPhase(ctx, d, events.ReleaseFetchingPackagesForNewRelease)

	if err := aptutil.Update(ctx, nil, nil); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrUpdateFailed, err)
	}

	var extra []string
	if to == TwentyFourOhFour {
		extra = []string{"gnome-online-accounts-gtk"}
	}
	if err := fetchFull(ctx, d, nil, extra...); err != nil {
		return err
	}

	return HoldTransitionalSnaps(ctx, nil)
}

// rollbackSources restores the .save snapshots taken at step 4, per spec.md
// §4.7's rollback rule for a failure in steps 11-13. Best-effort: a
// rollback failure is swallowed in favour of surfacing the original error
// that triggered it.
func rollbackSources(from string) {
	_ = sources.Restore(from)
}

// fetchFull computes and downloads the URIs for a full-upgrade, optionally
// alongside extra packages, retrying only the URIs that failed each
// attempt (spec.md §4.5's retry shape, reused here since step 6 and step 12
// are both full-package fetches). token is passed through to every
// suspension point it gates; callers in the irrevocable window pass nil.
func fetchFull(ctx context.Context, d Deps, token *cancel.Token, extra ...string) error {
	uris, err := aptutil.PrintURIs(ctx, token, "full-upgrade")
	if err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrConnection, err)
	}
	if len(extra) > 0 {
		more, err := aptutil.PrintURIs(ctx, token, "install", extra...)
		if err != nil {
			return fmt.Errorf("%w: %v", upgradeerrors.ErrConnection, err)
		}
		uris = dedupeURIs(append(uris, more...))
	}

	d.Register.StoreFetch(0, uint32(len(uris)))
	defer d.Register.StoreFetch(0, 0)

	pending := uris
	for attempt := 0; attempt < FetchRetries && len(pending) > 0; attempt++ {
		if token != nil && token.IsTriggered() {
			return upgradeerrors.ErrCancelled
		}

		results, _ := fetcher.FetchAll(ctx, token, d.HTTPClient, fetcher.PackageProfile(), pending,
			func(u fetcher.URI) { d.Bus.Send(ctx, events.Fetching(u.Name)) },
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
		return fmt.Errorf("%w: %d package(s) failed after %d attempts", upgradeerrors.ErrConnection, len(pending), FetchRetries)
	}
	return nil
}

func dedupeURIs(uris []fetcher.URI) []fetcher.URI {
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
