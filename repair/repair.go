package repair

import (
	"context"
	"fmt"

	"github.com/pop-os/upgrade-daemon/cancel"
)

// Run performs the full repair sub-routine in order — crypttab, fstab,
// packaging — and is idempotent: running it twice produces the same
// filesystem state as running it once (spec.md §8, property 7). Called by
// the recovery and release workflows, and synchronously by the
// ReleaseRepair IPC method.
func Run(ctx context.Context, token *cancel.Token, release string) error {
	if err := Crypttab(); err != nil {
		return fmt.Errorf("repair: crypttab: %w", err)
	}
	if err := Fstab(ctx, token); err != nil {
		return fmt.Errorf("repair: fstab: %w", err)
	}
	if err := Packaging(ctx, token, release); err != nil {
		return fmt.Errorf("repair: packaging: %w", err)
	}
	return nil
}

// PreUpgradeFixes applies the one-off fixes spec.md §4.7 step 10 calls for
// before rewriting sources to the new release: the DKMS GCC9 Makefile fix.
func PreUpgradeFixes() error {
	return DKMSMakefileFix()
}
