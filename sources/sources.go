// Package sources rewrites /etc/apt/sources.list and sources.list.d per
// spec.md §4.7 steps 4, 5, 6, and 11: backup-before-mutate, comment out
// third-party entries, swap a release codename, and switch to the
// old-releases mirror. Grounded on
// original_source/daemon/src/release/repos.rs, reimplemented with plain
// os/file I/O since the Rust original's path-bytes handling
// (os_str_bytes) has no Go analogue worth reaching for.
package sources

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pop-os/upgrade-daemon/upgradeerrors"
)

// SourcesList and PPADir are package-level variables, not constants, so
// tests can redirect them at a temporary directory instead of mutating the
// real system configuration.
var (
	SourcesList = "/etc/apt/sources.list"
	PPADir      = "/etc/apt/sources.list.d"
)

// popSourceFiles are the default source files this distribution ships;
// anything else under PPADir with a .sources extension is a third party
// and is removed outright by DisableThirdParty.
var popSourceFiles = map[string]bool{
	"system.sources":          true,
	"pop-os-apps.sources":     true,
	"pop-os-ppa.sources":      true,
	"pop-os-release.sources": true,
}

// Backup snapshots sources.list and every *.list/*.sources under PPADir to
// a `.save` sibling, removing any pre-existing `.save` first (spec.md §4.7
// step 4). If sources.list does not exist at all, the default source lists
// for release are written before backing anything up.
func Backup(release string) error {
	var toBackup []string

	sourcesMissing := false
	if _, err := os.Stat(SourcesList); err == nil {
		toBackup = append(toBackup, SourcesList)
	} else {
		sourcesMissing = true
	}

	entries, err := os.ReadDir(PPADir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: reading %s: %v", upgradeerrors.ErrSourcesBackupFailed, PPADir, err)
	}
	for _, e := range entries {
		name := e.Name()
		ext := filepath.Ext(name)
		if ext == ".save" {
			if err := os.Remove(filepath.Join(PPADir, name)); err != nil {
				return fmt.Errorf("%w: removing stale backup %s: %v", upgradeerrors.ErrSourcesBackupFailed, name, err)
			}
			continue
		}
		if ext == ".list" || ext == ".sources" {
			toBackup = append(toBackup, filepath.Join(PPADir, name))
		}
	}

	for _, path := range toBackup {
		if err := copyFile(path, path+".save"); err != nil {
			return fmt.Errorf("%w: backing up %s: %v", upgradeerrors.ErrSourcesBackupFailed, path, err)
		}
	}

	if sourcesMissing {
		if err := EnsureDefaults(release); err != nil {
			return fmt.Errorf("%w: %v", upgradeerrors.ErrSourcesBackupFailed, err)
		}
	}
	return nil
}

// Restore copies every `.save` sibling back over its original file,
// verbatim, per spec.md §4.7's rollback requirement for steps 11-13, then
// re-ensures the default source lists are in place for release.
func Restore(release string) error {
	restore := func(path string) error {
		save := path + ".save"
		if _, err := os.Stat(save); err != nil {
			return nil
		}
		return copyFile(save, path)
	}

	if err := restore(SourcesList); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrSourcesRestoreFailed, err)
	}

	entries, err := os.ReadDir(PPADir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: reading %s: %v", upgradeerrors.ErrSourcesRestoreFailed, PPADir, err)
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if ext != ".list" && ext != ".sources" {
			continue
		}
		path := filepath.Join(PPADir, e.Name())
		if err := restore(path); err != nil {
			return fmt.Errorf("%w: restoring %s: %v", upgradeerrors.ErrSourcesRestoreFailed, path, err)
		}
	}

	if err := EnsureDefaults(release); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrSourcesRestoreFailed, err)
	}
	return nil
}

var debLinePattern = regexp.MustCompile(`^\s*deb(-src)?\s`)

// DisableThirdParty comments out every `deb` line in every *.list file
// under PPADir and deletes non-Pop *.sources files (spec.md §4.7 step 5),
// then re-ensures the default source lists are in place for release.
func DisableThirdParty(release string) error {
	if err := deleteLegacyPPAList(); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrSourcesRewriteFailed, err)
	}

	entries, err := os.ReadDir(PPADir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", upgradeerrors.ErrSourcesRewriteFailed, err)
	}

	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(PPADir, name)
		ext := filepath.Ext(name)

		switch {
		case ext == ".list":
			if err := commentDebLines(path); err != nil {
				return fmt.Errorf("%w: %v", upgradeerrors.ErrSourcesRewriteFailed, err)
			}
		case ext == ".sources" && !popSourceFiles[name]:
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("%w: removing third-party %s: %v", upgradeerrors.ErrSourcesRewriteFailed, path, err)
			}
		}
	}

	if err := EnsureDefaults(release); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrSourcesRewriteFailed, err)
	}
	return nil
}

func commentDebLines(path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var out strings.Builder
	for _, line := range strings.Split(string(contents), "\n") {
		if debLinePattern.MatchString(line) {
			out.WriteByte('#')
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(strings.TrimSuffix(out.String(), "\n")), 0o644)
}

// RewriteCodename swaps every occurrence of the from codename for to across
// sources.list and PPADir's *.list/*.sources files (spec.md §4.7 step 11).
func RewriteCodename(from, to string) error {
	rewrite := func(path string) error {
		contents, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		rewritten := strings.ReplaceAll(string(contents), from, to)
		if rewritten == string(contents) {
			return nil
		}
		return os.WriteFile(path, []byte(rewritten), 0o644)
	}

	if err := rewrite(SourcesList); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrSourcesRewriteFailed, err)
	}

	entries, err := os.ReadDir(PPADir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", upgradeerrors.ErrSourcesRewriteFailed, err)
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if ext != ".list" && ext != ".sources" {
			continue
		}
		if err := rewrite(filepath.Join(PPADir, e.Name())); err != nil {
			return fmt.Errorf("%w: %v", upgradeerrors.ErrSourcesRewriteFailed, err)
		}
	}
	return nil
}

var ubuntuArchivePattern = regexp.MustCompile(`[a-z.]*archive\.ubuntu\.com`)

// SwitchToOldReleases rewrites every `*.archive.ubuntu.com` occurrence in
// sources.list to `old-releases.ubuntu.com`, used when a release's archive
// has gone EOL (spec.md §4.7 steps 6 and 12).
func SwitchToOldReleases() error {
	contents, err := os.ReadFile(SourcesList)
	if err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrOldReleasesSwitchFailed, err)
	}
	rewritten := ubuntuArchivePattern.ReplaceAllString(string(contents), "old-releases.ubuntu.com")
	if err := os.WriteFile(SourcesList, []byte(rewritten), 0o644); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrOldReleasesSwitchFailed, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	contents, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, contents, 0o644)
}
