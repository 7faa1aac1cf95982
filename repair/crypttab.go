// Package repair implements the idempotent repair sub-routine of spec.md
// §4.8: crypttab sanitation, fstab validation, and packaging repair.
// Grounded on original_source/src/repair/crypttab.rs,
// daemon/src/repair/{fstab,packaging,misc}.rs.
package repair

import (
	"os"
	"strings"
)

// CrypttabPath is a package-level variable so tests can redirect it.
var CrypttabPath = "/etc/crypttab"

// Crypttab adds a `plain` option to any crypttab line whose options field
// has `swap` but not `plain`, matching a known cryptsetup warning. Returns
// without error if crypttab does not exist.
func Crypttab() error {
	contents, err := os.ReadFile(CrypttabPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	fixed, changed := cryptswapPlainFix(string(contents))
	if !changed {
		return nil
	}

	tmp := CrypttabPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(fixed), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, CrypttabPath)
}

func cryptswapPlainFix(input string) (string, bool) {
	var out strings.Builder
	changed := false

	lines := strings.Split(input, "\n")
	// strings.Split on a trailing-newline string yields one empty trailing
	// element; drop it so the rebuilt output doesn't gain a blank line.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}

		fields := strings.Fields(line)
		if len(fields) >= 4 {
			options := strings.Split(fields[3], ",")
			hasSwap, hasPlain := false, false
			for _, o := range options {
				switch o {
				case "swap":
					hasSwap = true
				case "plain":
					hasPlain = true
				}
			}
			if hasSwap && !hasPlain {
				rebuilt := make([]string, 0, len(options)+1)
				for _, o := range options {
					rebuilt = append(rebuilt, o)
					if o == "swap" {
						rebuilt = append(rebuilt, "plain")
					}
				}
				out.WriteString(strings.Replace(line, fields[3], strings.Join(rebuilt, ","), 1))
				out.WriteByte('\n')
				changed = true
				continue
			}
		}

		out.WriteString(line)
		out.WriteByte('\n')
	}

	return out.String(), changed
}
