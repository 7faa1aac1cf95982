package release_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pop-os/upgrade-daemon/release"
)

func TestHoldTransitionalSnaps_HoldsAndRecordsPreDependentPackages(t *testing.T) {
	writeStub(t, "apt-cache", `
if [ "$2" = "snapd" ]; then
  echo "snapd"
  echo "Reverse Depends:"
  echo "  snap-store"
  exit 0
fi
if [ "$2" = "snap-store" ]; then
  echo "snap-store"
  echo "  PreDepends: snapd"
  exit 0
fi
exit 0
`)
	held := filepath.Join(t.TempDir(), "apt-mark-held")
	writeStub(t, "apt-mark", `echo "$@" >> `+held+"\n")

	sentinel := filepath.Join(t.TempDir(), "transitional_snaps")
	orig := release.TransitionalSnapsFile
	release.TransitionalSnapsFile = sentinel
	t.Cleanup(func() { release.TransitionalSnapsFile = orig })

	if err := release.HoldTransitionalSnaps(context.Background(), nil); err != nil {
		t.Fatalf("HoldTransitionalSnaps() error = %v", err)
	}

	recorded, err := os.ReadFile(sentinel)
	if err != nil {
		t.Fatalf("ReadFile(sentinel): %v", err)
	}
	if strings.TrimSpace(string(recorded)) != "snap-store" {
		t.Errorf("sentinel contents = %q, want snap-store", recorded)
	}

	heldArgs, err := os.ReadFile(held)
	if err != nil {
		t.Fatalf("ReadFile(held): %v", err)
	}
	if !strings.Contains(string(heldArgs), "hold snap-store") {
		t.Errorf("apt-mark invocation = %q, want a hold of snap-store", heldArgs)
	}
}

func TestHoldTransitionalSnaps_NoopWhenNoneDependOnSnapd(t *testing.T) {
	writeStub(t, "apt-cache", `
if [ "$2" = "snapd" ]; then
  echo "snapd"
  echo "Reverse Depends:"
  echo "  unrelated-pkg"
  exit 0
fi
echo "unrelated-pkg"
echo "  PreDepends: something-else"
exit 0
`)
	sentinel := filepath.Join(t.TempDir(), "transitional_snaps")
	orig := release.TransitionalSnapsFile
	release.TransitionalSnapsFile = sentinel
	t.Cleanup(func() { release.TransitionalSnapsFile = orig })

	if err := release.HoldTransitionalSnaps(context.Background(), nil); err != nil {
		t.Fatalf("HoldTransitionalSnaps() error = %v", err)
	}
	if _, err := os.Stat(sentinel); !os.IsNotExist(err) {
		t.Errorf("sentinel file was written, want none since nothing depends on snapd")
	}
}

func TestReleaseTransitionalSnaps_UnholdsAndRemovesSentinel(t *testing.T) {
	sentinel := filepath.Join(t.TempDir(), "transitional_snaps")
	if err := os.WriteFile(sentinel, []byte("snap-store\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	orig := release.TransitionalSnapsFile
	release.TransitionalSnapsFile = sentinel
	t.Cleanup(func() { release.TransitionalSnapsFile = orig })

	unheld := filepath.Join(t.TempDir(), "apt-mark-unheld")
	writeStub(t, "apt-mark", `echo "$@" >> `+unheld+"\n")

	if err := release.ReleaseTransitionalSnaps(context.Background(), nil); err != nil {
		t.Fatalf("ReleaseTransitionalSnaps() error = %v", err)
	}
	if _, err := os.Stat(sentinel); !os.IsNotExist(err) {
		t.Error("sentinel file still exists after ReleaseTransitionalSnaps")
	}
	args, err := os.ReadFile(unheld)
	if err != nil {
		t.Fatalf("ReadFile(unheld): %v", err)
	}
	if !strings.Contains(string(args), "unhold snap-store") {
		t.Errorf("apt-mark invocation = %q, want an unhold of snap-store", args)
	}
}
