package release_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pop-os/upgrade-daemon/events"
	"github.com/pop-os/upgrade-daemon/release"
	"github.com/pop-os/upgrade-daemon/repair"
	"github.com/pop-os/upgrade-daemon/sources"
	"github.com/pop-os/upgrade-daemon/status"
)

// TestRun_NoNetworkAtNewReleaseFetchFailsAndRollsBackSources drives release.Run
// end to end through preflight, repair, and the current-release update, then
// fails exactly where a real no-network upgrade would: the second apt-get
// update, issued while fetching the new release's package lists (spec.md §4.7
// step 12) — the same shape as spec.md §8 property S5, a release upgrade with
// no network producing a failing ReleaseResult with sources restored.
func TestRun_NoNetworkAtNewReleaseFetchFailsAndRollsBackSources(t *testing.T) {
	ppaDir := t.TempDir()
	sourcesList := filepath.Join(t.TempDir(), "sources.list")
	preferences := filepath.Join(t.TempDir(), "pop-default-settings")

	origSourcesList, origPPADir, origPreferences := sources.SourcesList, sources.PPADir, sources.PreferencesFile
	sources.SourcesList, sources.PPADir, sources.PreferencesFile = sourcesList, ppaDir, preferences
	t.Cleanup(func() { sources.SourcesList, sources.PPADir, sources.PreferencesFile = origSourcesList, origPPADir, origPreferences })

	oldReleases := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer oldReleases.Close()
	origOldReleasesBase := sources.OldReleasesBase
	sources.OldReleasesBase = oldReleases.URL
	t.Cleanup(func() { sources.OldReleasesBase = origOldReleasesBase })

	origRequired := release.RequiredUpgradeFiles
	release.RequiredUpgradeFiles = nil
	t.Cleanup(func() { release.RequiredUpgradeFiles = origRequired })

	origCrypttab := repair.CrypttabPath
	repair.CrypttabPath = filepath.Join(t.TempDir(), "crypttab")
	t.Cleanup(func() { repair.CrypttabPath = origCrypttab })

	origModulesDirs := repair.ModulesDirs
	repair.ModulesDirs = []string{filepath.Join(t.TempDir(), "does-not-exist")}
	t.Cleanup(func() { repair.ModulesDirs = origModulesDirs })

	updateCalls := filepath.Join(t.TempDir(), "update-calls")
	writeStub(t, "findmnt", "exit 0\n")
	writeStub(t, "apt-mark", "[ \"$1\" = showhold ] && exit 0\nexit 0\n")
	writeStub(t, "apt-cache", "exit 0\n")
	writeStub(t, "dpkg", "exit 0\n")
	writeStub(t, "dpkg-query", "exit 0\n")
	// The 1st "update" comes from repair.Packaging's best-effort call, the
	// 2nd from updating the currently-installed release; only the 3rd -
	// fetching the new release's package lists - is made to fail.
	writeStub(t, "apt-get", `
for arg in "$@"; do
  if [ "$arg" = "update" ]; then
    n=0
    [ -f "`+updateCalls+`" ] && n=$(cat "`+updateCalls+`")
    n=$((n + 1))
    echo "$n" > "`+updateCalls+`"
    if [ "$n" -ge 3 ]; then
      echo "Could not connect to archive.ubuntu.com" >&2
      exit 100
    fi
    exit 0
  fi
done
exit 0
`)

	d := release.Deps{Bus: events.NewBus(), Register: status.NewRegister(), Began: release.NewBegan()}
	in := release.Input{Method: 1, From: "jammy", To: "noble"}

	result, commit := release.Run(context.Background(), d, in)
	if result.Ok {
		t.Fatalf("Run() result.Ok = true, want false when the new release's package update fails")
	}
	if !strings.Contains(result.Why, "update failed") {
		t.Errorf("Run() result.Why = %q, want it to mention the failed update", result.Why)
	}
	if commit != (release.CommitState{}) {
		t.Errorf("Run() commit = %+v, want zero value on failure", commit)
	}

	if !d.Began.IsTriggered() {
		t.Error("Began.IsTriggered() = false, want true: the irrevocable window was entered before the failure")
	}

	got, err := os.ReadFile(sourcesList)
	if err != nil {
		t.Fatalf("ReadFile(sourcesList) error = %v", err)
	}
	if len(got) == 0 {
		t.Error("sources.list is empty after rollback, want the pre-rewrite contents restored")
	}
}
