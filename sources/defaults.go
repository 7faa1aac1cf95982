package sources

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pop-os/upgrade-daemon/upgradeerrors"
)

// PreferencesFile pins this distribution's own archive above Ubuntu's,
// mirrored below per codename family (spec.md §4.7 steps 5, 6, 11, 12 all
// depend on a correctly pinned, correctly populated set of source files
// existing before apt is invoked).
var PreferencesFile = "/etc/apt/preferences.d/pop-default-settings"

const preferencesLegacy = `Package: *
Pin: release o=LP-PPA-system76-pop
Pin-Priority: 1001

Package: *
Pin: release o=LP-PPA-system76-proposed
Pin-Priority: 1001
`

const preferencesModern = `Package: *
Pin: release o=pop-os-release
Pin-Priority: 1001
`

// legacyCodenames get the pre-deb822 sources.list layout; every other
// codename gets system.sources and pop-os-apps.sources, plus
// pop-os-ppa.list (groovy, hirsute) or pop-os-release.sources (the rest).
var legacyCodenames = map[string]bool{"bionic": true, "focal": true}
var legacyPreferences = map[string]bool{"bionic": true, "focal": true, "hirsute": true}

// EnsureDefaults (re)writes sources.list / system.sources / pop-os-apps.sources
// / pop-os-release.sources for the given codename and refreshes the apt
// pinning-preferences file, matching whichever source-list generation that
// codename shipped with. Called whenever sources.list is found missing
// during backup, after third-party sources are disabled, and after a
// restore, per spec.md §4.7.
func EnsureDefaults(release string) error {
	var err error
	switch {
	case legacyCodenames[release]:
		err = os.WriteFile(SourcesList, []byte(sourcesListLegacy(release)), 0o644)
	default:
		err = writeDeb822Defaults(release)
	}
	if err != nil {
		return fmt.Errorf("%w: writing default sources for %s: %v", upgradeerrors.ErrSourcesRewriteFailed, release, err)
	}

	if err := os.WriteFile(PreferencesFile, []byte(preferencesFor(release)), 0o644); err != nil {
		return fmt.Errorf("%w: writing apt preferences: %v", upgradeerrors.ErrSourcesRewriteFailed, err)
	}
	return nil
}

func writeDeb822Defaults(release string) error {
	systemSources := filepathJoinPPA("system.sources")
	proprietarySources := filepathJoinPPA("pop-os-apps.sources")

	if err := os.WriteFile(SourcesList, []byte(sourcesListPlaceholder), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(systemSources, []byte(systemSourcesTemplate(release)), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(proprietarySources, []byte(proprietarySourcesTemplate(release)), 0o644); err != nil {
		return err
	}

	groovyPPA := filepathJoinPPA("pop-os-ppa.list")
	releaseSources := filepathJoinPPA("pop-os-release.sources")

	if release == "groovy" || release == "hirsute" {
		if err := os.WriteFile(groovyPPA, []byte(groovyPPATemplate(release)), 0o644); err != nil {
			return err
		}
		os.Remove(releaseSources)
	} else {
		if err := os.WriteFile(releaseSources, []byte(releaseSourcesTemplate(release)), 0o644); err != nil {
			return err
		}
		os.Remove(groovyPPA)
		os.Remove(filepathJoinPPA("pop-os-ppa.sources"))
	}

	return deleteLegacyPPAList()
}

func preferencesFor(release string) string {
	if legacyPreferences[release] {
		return preferencesLegacy
	}
	return preferencesModern
}

// OldReleasesBase is the archive this distribution's upstream retires EOL
// releases to; a package-level variable so tests can point it at a local
// server instead of the real internet.
var OldReleasesBase = "http://old-releases.ubuntu.com/ubuntu/dists"

// IsOldRelease reports whether codename still has a Release file on
// Ubuntu's old-releases archive, meaning its primary archive mirrors have
// gone EOL and sources.list should point there instead (spec.md §4.7 steps
// 6, 12).
func IsOldRelease(ctx context.Context, httpClient *http.Client, codename string) bool {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	url := OldReleasesBase + "/" + codename + "/Release"
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func ubuntuURI() string {
	if runtime.GOARCH == "arm64" {
		return "ports.ubuntu.com/ubuntu-ports"
	}
	return "us.archive.ubuntu.com/ubuntu"
}

const sourcesListPlaceholder = "## This file is deprecated in Pop!_OS.\n## See `man deb822` and /etc/apt/sources.list.d/system.sources.\n"

func systemSourcesTemplate(release string) string {
	uri := "apt.pop-os.org/ubuntu"
	if runtime.GOARCH == "arm64" {
		uri = ubuntuURI()
	}
	return fmt.Sprintf(`X-Repolib-Name: Pop_OS System Sources
Enabled: yes
Types: deb deb-src
URIs: http://%[2]s
Suites: %[1]s %[1]s-security %[1]s-updates %[1]s-backports
Components: main restricted universe multiverse
X-Repolib-Default-Mirror: http://%[2]s
`, release, uri)
}

func proprietarySourcesTemplate(release string) string {
	return fmt.Sprintf(`X-Repolib-Name: Pop_OS Apps
Enabled: yes
Types: deb
URIs: http://apt.pop-os.org/proprietary
Suites: %s
Components: main
`, release)
}

func releaseSourcesTemplate(release string) string {
	return fmt.Sprintf(`X-Repolib-Name: Pop_OS Release Sources
Enabled: yes
Types: deb deb-src
URIs: http://apt.pop-os.org/release
Suites: %s
Components: main
`, release)
}

func groovyPPATemplate(release string) string {
	return fmt.Sprintf(`## This file was generated by pop-upgrade
#
## X-Repolib-Name: Pop_OS PPA
deb http://ppa.launchpad.net/system76/pop/ubuntu %[1]s main
deb-src http://ppa.launchpad.net/system76/pop/ubuntu %[1]s main
`, release)
}

func sourcesListLegacy(release string) string {
	uri := ubuntuURI()
	return fmt.Sprintf(`# Ubuntu Repositories

deb http://%[2]s %[1]s restricted multiverse universe main
deb-src http://%[2]s %[1]s restricted multiverse universe main

deb http://%[2]s %[1]s-updates restricted multiverse universe main
deb-src http://%[2]s %[1]s-updates restricted multiverse universe main

deb http://%[2]s %[1]s-security restricted multiverse universe main
deb-src http://%[2]s %[1]s-security restricted multiverse universe main

deb http://%[2]s %[1]s-backports restricted multiverse universe main
deb-src http://%[2]s %[1]s-backports restricted multiverse universe main

# Pop!_OS Repositories
deb http://apt.pop-os.org/%[1]s %[1]s main
deb-src http://apt.pop-os.org/%[1]s %[1]s main
`, release, uri)
}

func filepathJoinPPA(name string) string {
	return filepath.Join(PPADir, name)
}

func deleteLegacyPPAList() error {
	entries, err := os.ReadDir(PPADir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".list" && strings.Contains(name, "system76-ubuntu-pop") {
			os.Remove(filepath.Join(PPADir, name))
		}
	}
	return nil
}
