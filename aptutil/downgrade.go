package aptutil

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/cmdrunner"
)

// InstalledPackage is one line of `dpkg-query -W`.
type InstalledPackage struct {
	Name    string
	Version string
}

// Installed lists every currently-installed package and its version.
func Installed(ctx context.Context, token *cancel.Token) ([]InstalledPackage, error) {
	out, err := cmdrunner.Run(ctx, token, "dpkg-query", "-W", "-f", "${Package}\t${Version}\n")
	if err != nil {
		return nil, fmt.Errorf("dpkg-query -W: %w", err)
	}

	var packages []InstalledPackage
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), "\t", 2)
		if len(fields) != 2 {
			continue
		}
		packages = append(packages, InstalledPackage{Name: fields[0], Version: fields[1]})
	}
	return packages, nil
}

// VersionGreater reports whether dpkg considers a strictly newer than b,
// via `dpkg --compare-versions a gt b`.
func VersionGreater(ctx context.Context, token *cancel.Token, a, b string) (bool, error) {
	_, err := cmdrunner.Run(ctx, token, "dpkg", "--compare-versions", a, "gt", b)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

// PackageVersion names a package and a version to install, used both for
// the downgrade plan (candidate to downgrade to) and for fetch plans.
type PackageVersion struct {
	Package string
	Version string
}

// Downgradable returns every installed package whose version is strictly
// newer than the repositories' current candidate — packages that drifted
// ahead of the target release and must be pulled back down before the
// upgrade can proceed cleanly (spec.md §4.7 step 7).
func Downgradable(ctx context.Context, token *cancel.Token) ([]PackageVersion, error) {
	installed, err := Installed(ctx, token)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(installed))
	for i, pkg := range installed {
		names[i] = pkg.Name
	}
	policies, err := Policy(ctx, token, names)
	if err != nil {
		return nil, err
	}
	candidateByName := make(map[string]string, len(policies))
	for _, p := range policies {
		if !p.HasNoCandidate {
			candidateByName[p.Package] = p.Candidate
		}
	}

	var drifted []PackageVersion
	for _, pkg := range installed {
		candidate, ok := candidateByName[pkg.Name]
		if !ok || candidate == "" || candidate == pkg.Version {
			continue
		}
		greater, err := VersionGreater(ctx, token, pkg.Version, candidate)
		if err != nil {
			continue
		}
		if greater {
			drifted = append(drifted, PackageVersion{Package: pkg.Name, Version: candidate})
		}
	}
	return drifted, nil
}

// Remoteless returns every installed package apt-cache reports as having no
// candidate in any configured repository — packages the previous release
// shipped that will no longer exist in the next one, the positive case
// remove_conflicting_packages adds to REMOVE_PACKAGES before removal.
func Remoteless(ctx context.Context, token *cancel.Token) ([]string, error) {
	installed, err := Installed(ctx, token)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(installed))
	for i, pkg := range installed {
		names[i] = pkg.Name
	}
	policies, err := Policy(ctx, token, names)
	if err != nil {
		return nil, err
	}

	var remoteless []string
	for _, p := range policies {
		if p.HasNoCandidate {
			remoteless = append(remoteless, p.Package)
		}
	}
	return remoteless, nil
}
