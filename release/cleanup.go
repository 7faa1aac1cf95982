package release

import (
	"context"
	"os"

	"github.com/pop-os/upgrade-daemon/aptutil"
	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/sources"
)

// RestartScheduledFile marks that a daemon restart was requested while a
// workflow was in flight; Cleanup clears it unconditionally at startup since
// the restart has, by definition, already happened.
var RestartScheduledFile = "/var/lib/pop-upgrade/restarting"

// Cleanup detects and undoes a release upgrade that was interrupted before
// the previous process exited, per spec.md §4.7's startup-recovery rule.
// currentRelease is the codename presently installed, supplied by the
// caller rather than detected here (the same shape recovery.Deps.
// CurrentRelease uses), since resolving it is an OS-detection concern that
// belongs to the worker wiring this package, not to release itself.
func Cleanup(ctx context.Context, token *cancel.Token, currentRelease string) {
	_ = os.Remove(RestartScheduledFile)
	_ = aptutil.Unhold(ctx, token, SelfPackages)

	for _, sentinel := range []string{ReleaseFetchFile, StartupUpgradeFile} {
		if _, err := os.Stat(sentinel); err != nil {
			continue
		}

		_ = sources.Restore(currentRelease)
		_ = os.Remove(sentinel)
		_ = aptutil.LockWait(ctx, token)
		_ = aptutil.Update(ctx, token, nil)
		break
	}

	_ = os.Remove(SystemUpdateSymlink)
	_ = ReleaseTransitionalSnaps(ctx, token)
}
