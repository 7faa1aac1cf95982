package recovery

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/sysutil"
)

// PartitionNames is the pair of directory names derived from the recovery
// partition's filesystem UUID (spec.md §4.6: "The UUID used to name
// casper-<uuid> and Recovery-<uuid> comes from querying the mount's
// filesystem identifier via an external utility").
type PartitionNames struct {
	Casper   string
	Recovery string
}

// ResolvePartitionNames queries mountPoint's filesystem UUID via findmnt
// (sysutil.FilesystemUUID) and derives the two directory names from it.
// uuid.Parse both validates the external utility's output looks like a
// real UUID and normalises its canonical string form before it is baked
// into a directory name.
func ResolvePartitionNames(ctx context.Context, token *cancel.Token, mountPoint string) (PartitionNames, error) {
	raw, err := sysutil.FilesystemUUID(ctx, token, mountPoint)
	if err != nil {
		return PartitionNames{}, err
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return PartitionNames{}, fmt.Errorf("recovery: %s reported a malformed filesystem uuid %q: %w", mountPoint, raw, err)
	}

	return PartitionNames{
		Casper:   "casper-" + id.String(),
		Recovery: "Recovery-" + id.String(),
	}, nil
}
