package recovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pop-os/upgrade-daemon/cmdrunner"
	"github.com/pop-os/upgrade-daemon/events"
	"github.com/pop-os/upgrade-daemon/releaseapi"
	"github.com/pop-os/upgrade-daemon/repair"
	"github.com/pop-os/upgrade-daemon/sources"
	"github.com/pop-os/upgrade-daemon/status"
	"github.com/pop-os/upgrade-daemon/sysutil"
)

func writeScriptStub(t *testing.T, name, body string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cmdrunner.Register(name, path)
}

// TestRun_TargetAlreadyCurrentSkipsDownloadAndSync drives recovery.Run end to
// end for a target whose version/build already match /recovery/version,
// reproducing spec.md §8 S4: the workflow still reports RecoveryFetching and
// a successful RecoveryResult, but never reaches RecoverySyncing/Complete or
// any RecoveryProgress event.
func TestRun_TargetAlreadyCurrentSkipsDownloadAndSync(t *testing.T) {
	origEFI := sysutil.EFIFirmwarePath
	sysutil.EFIFirmwarePath = t.TempDir()
	t.Cleanup(func() { sysutil.EFIFirmwarePath = origEFI })

	origSourcesList, origPPADir, origPreferences := sources.SourcesList, sources.PPADir, sources.PreferencesFile
	sources.SourcesList = filepath.Join(t.TempDir(), "sources.list")
	sources.PPADir = t.TempDir()
	sources.PreferencesFile = filepath.Join(t.TempDir(), "pop-default-settings")
	t.Cleanup(func() { sources.SourcesList, sources.PPADir, sources.PreferencesFile = origSourcesList, origPPADir, origPreferences })

	origCrypttab := repair.CrypttabPath
	repair.CrypttabPath = filepath.Join(t.TempDir(), "crypttab")
	t.Cleanup(func() { repair.CrypttabPath = origCrypttab })

	const fsUUID = "11111111-2222-3333-4444-555555555555"
	writeScriptStub(t, "findmnt", `
for arg in "$@"; do
  if [ "$arg" = "--output" ]; then
    echo "`+fsUUID+`"
    exit 0
  fi
done
exit 0
`)
	writeScriptStub(t, "mount", "exit 0\n")
	writeScriptStub(t, "umount", "exit 0\n")
	writeScriptStub(t, "apt-get", `
for arg in "$@"; do
  [ "$arg" = "check" ] && exit 0
  [ "$arg" = "update" ] && exit 0
done
exit 0
`)
	writeScriptStub(t, "apt-cache", "exit 0\n")
	writeScriptStub(t, "apt-mark", "exit 0\n")
	writeScriptStub(t, "dpkg", "exit 0\n")
	writeScriptStub(t, "dpkg-query", "exit 0\n")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"22.04","url":"http://example.invalid/iso","size":10,"sha_sum":"abc","channel":"intel","build":"9","urgent":"false"}`))
	}))
	defer server.Close()

	recoveryMount := t.TempDir()
	efiBase := t.TempDir()
	if err := WriteVersionFile(filepath.Join(recoveryMount, "version"), CurrentVersion{Version: "22.04", Build: 9}); err != nil {
		t.Fatalf("WriteVersionFile: %v", err)
	}

	bus := events.NewBus()
	d := Deps{
		Bus:            bus,
		Register:       status.NewRegister(),
		API:            releaseapi.New(server.URL+"/", server.Client()),
		CurrentRelease: "22.04",
		RecoveryMount:  recoveryMount,
		EFIBase:        efiBase,
	}

	result := Run(context.Background(), d, Source{Release: &Target{}})
	if !result.Ok {
		t.Fatalf("Run() result = %+v, want Ok=true", result)
	}

	var sawFetching, sawComplete, sawProgress bool
	for _, e := range bus.Drain() {
		switch e.Kind {
		case events.KindRecoveryPhase:
			switch e.RecoveryPhase {
			case events.RecoveryFetching:
				sawFetching = true
			case events.RecoveryComplete:
				sawComplete = true
			}
		case events.KindRecoveryProgress:
			sawProgress = true
		}
	}
	if !sawFetching {
		t.Error("Run() never emitted RecoveryFetching, want it even on the already-current path")
	}
	if sawComplete {
		t.Error("Run() emitted RecoveryComplete, want it suppressed when the target was already current")
	}
	if sawProgress {
		t.Error("Run() emitted RecoveryProgress, want no download on the already-current path")
	}
}
