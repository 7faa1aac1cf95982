package sysutil_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pop-os/upgrade-daemon/cmdrunner"
	"github.com/pop-os/upgrade-daemon/sysutil"
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

func TestIsMount_TrueOnZeroExit(t *testing.T) {
	writeStub(t, "findmnt", "exit 0\n")
	ok, err := sysutil.IsMount(context.Background(), nil, "/recovery")
	if err != nil {
		t.Fatalf("IsMount() error = %v", err)
	}
	if !ok {
		t.Error("IsMount() = false, want true")
	}
}

func TestIsMount_FalseOnExitOne(t *testing.T) {
	writeStub(t, "findmnt", "exit 1\n")
	ok, err := sysutil.IsMount(context.Background(), nil, "/recovery")
	if err != nil {
		t.Fatalf("IsMount() error = %v", err)
	}
	if ok {
		t.Error("IsMount() = true, want false")
	}
}

func TestMount_ToleratesAlreadyMountedExitCode(t *testing.T) {
	writeStub(t, "mount", "exit 32\n")
	if err := sysutil.Mount(context.Background(), nil, "/boot/efi"); err != nil {
		t.Errorf("Mount() error = %v, want nil (exit 32 tolerated)", err)
	}
}

func TestFilesystemUUID_ReturnsTrimmedOutput(t *testing.T) {
	writeStub(t, "findmnt", "echo ' abcd-1234 '\n")
	uuid, err := sysutil.FilesystemUUID(context.Background(), nil, "/recovery")
	if err != nil {
		t.Fatalf("FilesystemUUID() error = %v", err)
	}
	if uuid != "abcd-1234" {
		t.Errorf("FilesystemUUID() = %q, want %q", uuid, "abcd-1234")
	}
}
