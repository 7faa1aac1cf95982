package config

import (
	"github.com/pop-os/upgrade-daemon/ipc"
	"github.com/pop-os/upgrade-daemon/release"
)

// applySentinels points every already-built package's redirectable sentinel
// vars at the paths carried in s, so daemon wiring has one place to apply
// configuration instead of reaching into each subsystem package directly.
func applySentinels(s SentinelConfig) {
	if s.RestartScheduledFile != "" {
		release.RestartScheduledFile = s.RestartScheduledFile
	}
	if s.TransitionalSnapsFile != "" {
		release.TransitionalSnapsFile = s.TransitionalSnapsFile
	}
	if s.StartupUpgradeFile != "" {
		release.StartupUpgradeFile = s.StartupUpgradeFile
	}
	if s.ReleaseFetchFile != "" {
		release.ReleaseFetchFile = s.ReleaseFetchFile
	}
	if s.SystemUpdateSymlink != "" {
		release.SystemUpdateSymlink = s.SystemUpdateSymlink
	}
	if s.DismissedFile != "" {
		ipc.DismissedFile = s.DismissedFile
	}
	if s.InstallDateFile != "" {
		ipc.InstallDateFile = s.InstallDateFile
	}
	if s.RecoveryVersionFile != "" {
		ipc.RecoveryVersionFile = s.RecoveryVersionFile
	}
}
