package recovery_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pop-os/upgrade-daemon/recovery"
)

func TestVersionFile_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version")
	want := recovery.CurrentVersion{Version: "22.04", Build: 7}

	if err := recovery.WriteVersionFile(path, want); err != nil {
		t.Fatalf("WriteVersionFile() error = %v", err)
	}

	got, ok, err := recovery.ReadVersionFile(path)
	if err != nil {
		t.Fatalf("ReadVersionFile() error = %v", err)
	}
	if !ok {
		t.Fatal("ReadVersionFile() ok = false, want true")
	}
	if got != want {
		t.Errorf("ReadVersionFile() = %+v, want %+v", got, want)
	}
}

func TestReadVersionFile_MissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version")

	_, ok, err := recovery.ReadVersionFile(path)
	if err != nil {
		t.Fatalf("ReadVersionFile() error = %v, want nil for missing file", err)
	}
	if ok {
		t.Error("ReadVersionFile() ok = true, want false for missing file")
	}
}

func TestReadVersionFile_MalformedContentsIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, _, err := recovery.ReadVersionFile(path); err == nil {
		t.Error("ReadVersionFile() error = nil, want error for malformed contents")
	}
}
