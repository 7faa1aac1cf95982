package recovery_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pop-os/upgrade-daemon/cmdrunner"
	"github.com/pop-os/upgrade-daemon/recovery"
)

func writeStub(t *testing.T, name, body string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cmdrunner.Register(name, path)
}

func TestResolvePartitionNames_DerivesFromFilesystemUUID(t *testing.T) {
	writeStub(t, "findmnt", "echo 'ed9e7007-b02b-48a6-b4ce-2207ee5fefd6'\n")

	names, err := recovery.ResolvePartitionNames(context.Background(), nil, "/recovery")
	if err != nil {
		t.Fatalf("ResolvePartitionNames() error = %v", err)
	}
	if names.Casper != "casper-ed9e7007-b02b-48a6-b4ce-2207ee5fefd6" {
		t.Errorf("Casper = %q", names.Casper)
	}
	if names.Recovery != "Recovery-ed9e7007-b02b-48a6-b4ce-2207ee5fefd6" {
		t.Errorf("Recovery = %q", names.Recovery)
	}
}

func TestResolvePartitionNames_RejectsMalformedUUID(t *testing.T) {
	writeStub(t, "findmnt", "echo 'not-a-uuid'\n")

	if _, err := recovery.ResolvePartitionNames(context.Background(), nil, "/recovery"); err == nil {
		t.Error("ResolvePartitionNames() error = nil, want error for malformed uuid")
	}
}
