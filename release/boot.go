package release

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pop-os/upgrade-daemon/upgradeerrors"
)

// LoaderEntry names which systemd-boot entry a BootConfigurator should
// select as default.
type LoaderEntry int

const (
	LoaderEntryCurrent LoaderEntry = iota
	LoaderEntryRecovery
)

// BootConfigurator is the systemd-boot configuration collaborator spec.md
// §9 names as out of scope to reimplement in full: this daemon only ever
// needs to read and rewrite the single "default" line of loader.conf and
// enumerate entry IDs, never the whole boot-entry grammar.
type BootConfigurator interface {
	DefaultEntry() (string, error)
	Entries() ([]string, error)
	SetDefaultEntry(id string) error
}

// SystemdBootConfigurator is the real, file-backed BootConfigurator,
// grounded on original_source/daemon/src/release/systemd.rs's BootConf
// (itself a thin wrapper over the systemd_boot_conf crate this module has
// no equivalent library for).
type SystemdBootConfigurator struct {
	LoaderDir string
}

// NewSystemdBootConfigurator returns a configurator rooted at the standard
// ESP mount point.
func NewSystemdBootConfigurator() *SystemdBootConfigurator {
	return &SystemdBootConfigurator{LoaderDir: "/boot/efi/loader"}
}

func (c *SystemdBootConfigurator) loaderConf() string { return filepath.Join(c.LoaderDir, "loader.conf") }
func (c *SystemdBootConfigurator) entriesDir() string { return filepath.Join(c.LoaderDir, "entries") }

// DefaultEntry returns the current `default` line of loader.conf, or
// DefaultBootID if none is set.
func (c *SystemdBootConfigurator) DefaultEntry() (string, error) {
	f, err := os.Open(c.loaderConf())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultBootID, nil
		}
		return "", fmt.Errorf("%w: reading loader.conf: %v", upgradeerrors.ErrBootConfigMissing, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if id, ok := strings.CutPrefix(line, "default"); ok {
			id = strings.TrimSpace(id)
			if id != "" {
				return id, nil
			}
		}
	}
	return DefaultBootID, nil
}

// Entries lists the boot-entry IDs under entries/*.conf.
func (c *SystemdBootConfigurator) Entries() ([]string, error) {
	dirEntries, err := os.ReadDir(c.entriesDir())
	if err != nil {
		return nil, fmt.Errorf("%w: reading entries: %v", upgradeerrors.ErrBootConfigMissing, err)
	}
	var ids []string
	for _, e := range dirEntries {
		name := e.Name()
		if filepath.Ext(name) == ".conf" {
			ids = append(ids, strings.TrimSuffix(name, ".conf"))
		}
	}
	return ids, nil
}

// SetDefaultEntry rewrites loader.conf's `default` line to id, preserving
// every other line verbatim.
func (c *SystemdBootConfigurator) SetDefaultEntry(id string) error {
	path := c.loaderConf()
	contents, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrBootConfigMissing, err)
	}

	var out strings.Builder
	replaced := false
	for _, line := range strings.Split(string(contents), "\n") {
		if _, ok := strings.CutPrefix(strings.TrimSpace(line), "default"); ok {
			out.WriteString("default " + id + "\n")
			replaced = true
			continue
		}
		if line == "" {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if !replaced {
		out.WriteString("default " + id + "\n")
	}

	return os.WriteFile(path, []byte(out.String()), 0o644)
}

// DefaultBootID is the conventional entry ID this distribution's installer
// assigns to its primary boot entry, used when loader.conf has no explicit
// default line yet.
const DefaultBootID = "Pop_OS-current"

// PreviousDefaultFile records the entry that was default before RefreshOS
// last changed it, so it can be restored.
var PreviousDefaultFile = "/var/lib/pop-upgrade/previous_default"

// findEntry returns the first entry ID matching variant's naming
// convention: "*current" for LoaderEntryCurrent, "recovery*" for
// LoaderEntryRecovery (case-insensitive), mirroring BootConf's comparison
// closures.
func findEntry(entries []string, variant LoaderEntry) (string, error) {
	for _, id := range entries {
		lower := strings.ToLower(id)
		switch variant {
		case LoaderEntryCurrent:
			if strings.HasSuffix(lower, "current") {
				return id, nil
			}
		case LoaderEntryRecovery:
			if strings.HasPrefix(lower, "recovery") {
				return id, nil
			}
		}
	}
	return "", upgradeerrors.ErrRecoveryEntryMissing
}

// SetDefaultVariant resolves variant to a concrete entry ID among entries
// and makes it the default, recording the previous default to
// PreviousDefaultFile first (spec.md's RefreshOS collaborator).
func SetDefaultVariant(conf BootConfigurator, variant LoaderEntry) error {
	entries, err := conf.Entries()
	if err != nil {
		return err
	}
	id, err := findEntry(entries, variant)
	if err != nil {
		return err
	}

	previous, err := conf.DefaultEntry()
	if err != nil {
		return err
	}
	if strings.HasPrefix(previous, "Recovery") {
		previous = DefaultBootID
	}
	_ = os.MkdirAll(filepath.Dir(PreviousDefaultFile), 0o755)
	_ = os.WriteFile(PreviousDefaultFile, []byte(previous), 0o644)

	return conf.SetDefaultEntry(id)
}

// RestoreDefaultVariant restores the boot entry recorded by a prior
// SetDefaultVariant call, if any was recorded.
func RestoreDefaultVariant(conf BootConfigurator) error {
	contents, err := os.ReadFile(PreviousDefaultFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := conf.SetDefaultEntry(strings.TrimSpace(string(contents))); err != nil {
		return err
	}
	return os.Remove(PreviousDefaultFile)
}
