package release

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pop-os/upgrade-daemon/aptutil"
	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/upgradeerrors"
)

// incompatibleForegroundApps lists executables known to fight the upgrade
// daemon for the dpkg lock and pop up interfering notifications.
var incompatibleForegroundApps = []string{"io.elementary.appcenter"}

// TerminateIncompatibleApps sends SIGKILL to every running process whose
// executable matches incompatibleForegroundApps, per spec.md §4.7 step 1.
// Best-effort: a process enumeration failure or an individual kill failure
// is swallowed, mirroring the original's fire-and-forget behaviour. Reads
// /proc directly since none of the available third-party libraries offer a
// process-enumeration API (see DESIGN.md).
func TerminateIncompatibleApps() {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		exe, err := os.Readlink(filepath.Join("/proc", e.Name(), "exe"))
		if err != nil {
			continue
		}
		name := filepath.Base(strings.TrimSuffix(exe, " (deleted)"))
		for _, incompatible := range incompatibleForegroundApps {
			if name == incompatible {
				_ = syscall.Kill(pid, syscall.SIGKILL)
			}
		}
	}
}

// Preflight performs spec.md §4.7 step 1: terminate incompatible foreground
// applications, release every package hold, and verify the offline-upgrade
// method's boot-staging files exist.
func Preflight(ctx context.Context, token *cancel.Token) error {
	TerminateIncompatibleApps()

	held, err := aptutil.ListHeld(ctx, token)
	if err != nil {
		return fmt.Errorf("release: listing held packages: %w", err)
	}
	if err := aptutil.Unhold(ctx, token, held); err != nil {
		return fmt.Errorf("release: releasing package holds: %w", err)
	}

	var missing []string
	for _, path := range RequiredUpgradeFiles {
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", upgradeerrors.ErrSystemdUpgradeFilesMissing, strings.Join(missing, ", "))
	}
	return nil
}
