package recovery

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/pop-os/upgrade-daemon/upgradeerrors"
)

// checksumChunkSize is the read buffer size for VerifyChecksum (spec.md
// §4.6 step 5: "in 16 KiB chunks").
const checksumChunkSize = 16 * 1024

// VerifyChecksum computes the SHA-256 digest of the file at path in
// checksumChunkSize chunks and compares it to expectedHex (lowercase hex,
// as published by the release API). On any mismatch or read failure it
// deletes path, per spec.md §4.6 step 5's "on mismatch, delete the file and
// fail with Checksum".
func VerifyChecksum(path, expectedHex string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", upgradeerrors.ErrChecksumInvalid, path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, checksumChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: reading %s: %v", upgradeerrors.ErrChecksumInvalid, path, err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if got != expectedHex {
		os.Remove(path)
		return fmt.Errorf("%w: %s: expected %s, got %s", upgradeerrors.ErrChecksumMismatch, path, expectedHex, got)
	}
	return nil
}
