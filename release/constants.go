// Package release implements the release workflow of spec.md §4.7: drive
// the transition from the currently-installed release codename to the
// next, staged for an offline upgrade at the next boot. Grounded on
// original_source/daemon/src/release/mod.rs's upgrade() orchestration, built
// the same way fetch.Run and recovery.Run are — a sequential phase.Run state
// machine over process-wide Deps, never a package-level singleton.
package release

import "runtime"

// RemovePackages are known-conflicting packages removed unconditionally
// before the new release's packages are installed (spec.md §4.7 step 8).
var RemovePackages = []string{
	"irqbalance",
	"ureadahead",
	"backport-iwlwifi-dkms",
	"update-notifier-common",
	"nodejs",
	"ttf-mscorefonts-installer",
}

// RemotelessAllowlist exempts packages apt-cache reports as remoteless from
// removal even though step 8 would otherwise remove them — preserved
// verbatim from the original's hard-coded exemption (an Open Question
// decision: see DESIGN.md).
var RemotelessAllowlist = map[string]bool{
	"sentinelagent": true,
}

// CorePackages are the minimum packages required by the new release,
// architecture-dependent (spec.md §4.7 step 9).
func CorePackages() []string {
	if runtime.GOARCH == "arm64" {
		return []string{"pop-desktop-raspi"}
	}
	return []string{"linux-generic", "pop-desktop", "sessioninstaller"}
}

// SelfPackages are held before the upgrade begins so the in-flight upgrade
// cannot uninstall the daemon that is driving it (spec.md §4.7 step 2).
var SelfPackages = []string{"pop-upgrade", "pop-system-updater"}

// StartupUpgradeFile is the sentinel systemd checks for at boot to run the
// offline upgrade. A var, not a const, so tests can redirect it away from
// the real root filesystem.
var StartupUpgradeFile = "/pop-upgrade"

// ReleaseFetchFile marks "packages were being fetched for a new release" so
// Cleanup can detect and undo a half-finished attempt.
var ReleaseFetchFile = "/pop_preparing_release_upgrade"

// SystemUpdateSymlink triggers systemd's offline-upgrade unit.
var SystemUpdateSymlink = "/system-update"

// AptArchives is the symlink target: apt's package cache.
const AptArchives = "/var/cache/apt/archives"

// RequiredUpgradeFiles are the boot-staging files the offline upgrade
// method depends on; step 1 fails fast if any are missing (spec.md §4.7
// step 1).
var RequiredUpgradeFiles = []string{
	"/usr/lib/pop-upgrade/upgrade.sh",
	"/usr/lib/systemd/system/pop-upgrade-init.service",
	"/usr/lib/systemd/system/system-update.target.wants/pop-upgrade-init.service",
}

// FetchRetries mirrors fetch.FetchRetries: spec.md §9 names 3 retries as a
// hard constant shared across every fetch-shaped suspension point, not only
// the fetch workflow's own.
const FetchRetries = 3

// TwentyFourOhFour is the one release codename-adjacent version string the
// workflow compares `to` against (spec.md §4.7 step 12's
// gnome-online-accounts-gtk special case). Spec.md treats from/to as
// codenames throughout; this single comparison is against the release
// version number the original source keyed this special case on, not a
// codename, so it is kept as a version string rather than translated.
const TwentyFourOhFour = "24.04"
