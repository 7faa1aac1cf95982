package repair

import (
	"context"
	"fmt"

	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/sysutil"
)

// RequiredMounts are the mount points spec.md §4.6's preconditions and
// §4.8's repair sub-routine both depend on.
var RequiredMounts = []string{"/", "/boot/efi"}

// Fstab ensures every entry in RequiredMounts is mounted, tolerating
// mount(8)'s "already mounted" exit code (spec.md §4.8).
func Fstab(ctx context.Context, token *cancel.Token) error {
	for _, mountPoint := range RequiredMounts {
		mounted, err := sysutil.IsMount(ctx, token, mountPoint)
		if err != nil {
			return fmt.Errorf("repair: checking %s: %w", mountPoint, err)
		}
		if mounted {
			continue
		}
		if err := sysutil.Mount(ctx, token, mountPoint); err != nil {
			return fmt.Errorf("repair: mounting %s: %w", mountPoint, err)
		}
	}
	return nil
}
