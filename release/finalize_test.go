package release_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pop-os/upgrade-daemon/release"
)

func TestFinalize_WritesStartupFileAndSymlink(t *testing.T) {
	dir := t.TempDir()

	origStartup, origSymlink := release.StartupUpgradeFile, release.SystemUpdateSymlink
	release.StartupUpgradeFile = filepath.Join(dir, "pop-upgrade")
	release.SystemUpdateSymlink = filepath.Join(dir, "system-update")
	t.Cleanup(func() {
		release.StartupUpgradeFile = origStartup
		release.SystemUpdateSymlink = origSymlink
	})

	commit := release.CommitState{Method: 1, From: "jammy", To: "noble"}
	if err := release.Finalize(commit); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	contents, err := os.ReadFile(release.StartupUpgradeFile)
	if err != nil {
		t.Fatalf("ReadFile(StartupUpgradeFile): %v", err)
	}
	if string(contents) != "jammy noble" {
		t.Errorf("StartupUpgradeFile contents = %q, want %q", contents, "jammy noble")
	}

	target, err := os.Readlink(release.SystemUpdateSymlink)
	if err != nil {
		t.Fatalf("Readlink(SystemUpdateSymlink): %v", err)
	}
	if target != release.AptArchives {
		t.Errorf("symlink target = %q, want %q", target, release.AptArchives)
	}
}

func TestFinalize_OverwritesExistingSymlink(t *testing.T) {
	dir := t.TempDir()

	origStartup, origSymlink := release.StartupUpgradeFile, release.SystemUpdateSymlink
	release.StartupUpgradeFile = filepath.Join(dir, "pop-upgrade")
	symlinkPath := filepath.Join(dir, "system-update")
	release.SystemUpdateSymlink = symlinkPath
	t.Cleanup(func() {
		release.StartupUpgradeFile = origStartup
		release.SystemUpdateSymlink = origSymlink
	})

	if err := os.Symlink("/some/stale/target", symlinkPath); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	commit := release.CommitState{Method: 0, From: "focal", To: "jammy"}
	if err := release.Finalize(commit); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	target, err := os.Readlink(symlinkPath)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != release.AptArchives {
		t.Errorf("symlink target = %q, want %q", target, release.AptArchives)
	}
}
