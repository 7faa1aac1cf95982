package sysutil_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pop-os/upgrade-daemon/sysutil"
)

func TestRsyncMirror_PassesSourcesDestAndFlags(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	writeStub(t, "rsync", "echo \"$@\" > "+argsFile+"\n")

	if err := sysutil.RsyncMirror(context.Background(), nil, []string{"/a", "/b"}, "/dest/"); err != nil {
		t.Fatalf("RsyncMirror() error = %v", err)
	}

	got, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	line := strings.TrimSpace(string(got))
	for _, want := range []string{"/a", "/b", "/dest/", "-KLavc", "--inplace", "--delete"} {
		if !strings.Contains(line, want) {
			t.Errorf("rsync args = %q, want it to contain %q", line, want)
		}
	}
}

func TestRsyncMirror_PropagatesCommandFailure(t *testing.T) {
	writeStub(t, "rsync", "exit 23\n")

	if err := sysutil.RsyncMirror(context.Background(), nil, []string{"/a"}, "/dest/"); err == nil {
		t.Fatal("RsyncMirror() error = nil, want non-nil on non-zero exit")
	}
}
