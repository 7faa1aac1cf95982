package recovery

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// VersionFile is the path spec.md §6.2 names: "/recovery/version — two
// whitespace-separated tokens '<version> <build>'".
const VersionFile = "/recovery/version"

// CurrentVersion is the decoded contents of the recovery partition's
// version file.
type CurrentVersion struct {
	Version string
	Build   int16
}

// ReadVersionFile reads and parses path. A missing file is not an error: it
// reports a zero CurrentVersion, matching the IPC method RecoveryVersion's
// "build = -1 when unknown" contract at the caller.
func ReadVersionFile(path string) (CurrentVersion, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return CurrentVersion{}, false, nil
		}
		return CurrentVersion{}, false, fmt.Errorf("recovery: reading %s: %w", path, err)
	}

	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return CurrentVersion{}, false, fmt.Errorf("recovery: %s: malformed contents %q", path, string(data))
	}

	build, err := strconv.ParseInt(fields[1], 10, 16)
	if err != nil {
		return CurrentVersion{}, false, fmt.Errorf("recovery: %s: build %q is not a number", path, fields[1])
	}

	return CurrentVersion{Version: fields[0], Build: int16(build)}, true, nil
}

// WriteVersionFile writes version's canonical "<version> <build>" form to
// path (spec.md §4.6 step 7).
func WriteVersionFile(path string, version CurrentVersion) error {
	data := fmt.Sprintf("%s %d", version.Version, version.Build)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("recovery: writing %s: %w", path, err)
	}
	return nil
}
