// Package sysutil wraps the filesystem-facing external collaborators named
// in spec.md §9 (`mount`, `findmnt`) behind narrow Go functions, so the
// recovery and repair packages never build a mount command line themselves.
// Grounded on cmdrunner's Run for process invocation and on
// original_source/daemon/src/recovery/mod.rs for the mount/unmount/uuid
// sequencing this spec distils.
package sysutil

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/cmdrunner"
)

// IsMount reports whether path is currently a mount point, using findmnt's
// exit code (0 = is a mount, 1 = is not).
func IsMount(ctx context.Context, token *cancel.Token, path string) (bool, error) {
	_, err := cmdrunner.Run(ctx, token, "findmnt", path)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("sysutil: checking mount of %s: %w", path, err)
}

// Mount mounts path, tolerating exit codes 0 (mounted) and 32 (mount(8)'s
// "already mounted" code) per spec.md §4.8's repair sub-routine.
func Mount(ctx context.Context, token *cancel.Token, path string) error {
	_, err := cmdrunner.Run(ctx, token, "mount", path)
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 32 {
		return nil
	}
	return fmt.Errorf("sysutil: mounting %s: %w", path, err)
}

// MountReadOnly loop-mounts an image file read-only at target, used by the
// recovery workflow to mount the downloaded ISO before syncing (spec.md
// §4.6 step 6).
func MountReadOnly(ctx context.Context, token *cancel.Token, image, target string) error {
	_, err := cmdrunner.Run(ctx, token, "mount", "-o", "loop,ro", image, target)
	if err != nil {
		return fmt.Errorf("sysutil: mounting %s at %s: %w", image, target, err)
	}
	return nil
}

// Unmount unmounts target. Called on every exit path of a scoped mount,
// including failure (spec.md §5's shared-resource policy).
func Unmount(ctx context.Context, target string) error {
	// Deliberately uses a background token: an unmount performed as part of
	// cleanup after cancellation must not itself be skipped because the
	// token is already triggered.
	_, err := cmdrunner.Run(ctx, nil, "umount", target)
	if err != nil {
		return fmt.Errorf("sysutil: unmounting %s: %w", target, err)
	}
	return nil
}

// FilesystemUUID queries the filesystem identifier of the device mounted at
// path, used to name casper-<uuid> and Recovery-<uuid> (spec.md §4.6).
func FilesystemUUID(ctx context.Context, token *cancel.Token, path string) (string, error) {
	out, err := cmdrunner.Run(ctx, token, "findmnt", "--noheadings", "--output", "UUID", path)
	if err != nil {
		return "", fmt.Errorf("sysutil: resolving filesystem uuid of %s: %w", path, err)
	}
	uuid := strings.TrimSpace(string(out))
	if uuid == "" {
		return "", fmt.Errorf("sysutil: %s reported no filesystem uuid", path)
	}
	return uuid, nil
}
