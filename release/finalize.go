package release

import (
	"fmt"
	"os"
	"os/exec"
)

// kernelstubPath is the splash-option helper invoked, when present, to make
// sure the Plymouth splash survives into the staged boot. Best-effort: its
// absence (most non-systemd-boot installs) is not an error.
const kernelstubPath = "/usr/bin/kernelstub"

// Finalize stages the offline upgrade for the next boot, per spec.md §4.7's
// closing step and the commit half of ReleaseUpgradeFinalize: it re-enables
// the splash kernel option if kernelstub is present, writes
// StartupUpgradeFile with "<from> <to>", and symlinks SystemUpdateSymlink to
// AptArchives so systemd's offline-upgrade unit fires at next boot. Called
// once with the CommitState a successful Run produced.
func Finalize(commit CommitState) error {
	if _, err := os.Stat(kernelstubPath); err == nil {
		_ = exec.Command(kernelstubPath, "-a", "splash").Run()
	}

	contents := fmt.Sprintf("%s %s", commit.From, commit.To)
	if err := os.WriteFile(StartupUpgradeFile, []byte(contents), 0o644); err != nil {
		return err
	}

	_ = os.Remove(SystemUpdateSymlink)
	return os.Symlink(AptArchives, SystemUpdateSymlink)
}
