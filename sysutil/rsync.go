package sysutil

import (
	"context"

	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/cmdrunner"
)

// rsyncFlags mirrors original_source/daemon/src/recovery/mod.rs's rsync
// invocation: archive mode with checksums, following symlinks, writing
// changed blocks in place, and removing destination files with no
// counterpart at the source.
var rsyncFlags = []string{"-KLavc", "--inplace", "--delete"}

// RsyncMirror copies sources onto dest, deleting anything at dest with no
// counterpart among sources (spec.md §4.6 step 6).
func RsyncMirror(ctx context.Context, token *cancel.Token, sources []string, dest string) error {
	args := make([]string, 0, len(sources)+len(rsyncFlags)+1)
	args = append(args, sources...)
	args = append(args, dest)
	args = append(args, rsyncFlags...)

	_, err := cmdrunner.Run(ctx, token, "rsync", args...)
	return err
}
