package release

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pop-os/upgrade-daemon/aptutil"
	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/cmdrunner"
)

// TransitionalSnapsFile records which packages HoldTransitionalSnaps held,
// so Cleanup can unhold them again if the upgrade is abandoned mid-flight.
var TransitionalSnapsFile = "/var/lib/pop-upgrade/transitional_snaps"

// HoldTransitionalSnaps holds every package with a pre-dependency on snapd
// so fetching the new release's packages does not pull snapd in as a side
// effect, per spec.md §4.7 step 12. The release workflow runs it after the
// source lists are rewritten and the new release's packages are fetched.
func HoldTransitionalSnaps(ctx context.Context, token *cancel.Token) error {
	packages, err := transitionalSnapPackages(ctx, token)
	if err != nil {
		return fmt.Errorf("release: finding transitional snap packages: %w", err)
	}
	if len(packages) == 0 {
		return nil
	}

	if err := os.WriteFile(TransitionalSnapsFile, []byte(strings.Join(packages, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("release: recording transitional snap packages: %w", err)
	}
	return aptutil.Hold(ctx, token, packages)
}

// ReleaseTransitionalSnaps unholds every package recorded by a prior
// HoldTransitionalSnaps call and removes the sentinel file (part of
// Cleanup's startup recovery).
func ReleaseTransitionalSnaps(ctx context.Context, token *cancel.Token) error {
	contents, err := os.ReadFile(TransitionalSnapsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var packages []string
	for _, line := range strings.Split(string(contents), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			packages = append(packages, line)
		}
	}
	if err := aptutil.Unhold(ctx, token, packages); err != nil {
		return err
	}
	return os.Remove(TransitionalSnapsFile)
}

func transitionalSnapPackages(ctx context.Context, token *cancel.Token) ([]string, error) {
	out, err := cmdrunner.Run(ctx, token, "apt-cache", "rdepends", "snapd")
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(out), "\n")
	if len(lines) > 2 {
		lines = lines[2:]
	} else {
		lines = nil
	}

	var transitional []string
	for _, rdepend := range lines {
		rdepend = strings.TrimSpace(rdepend)
		if rdepend == "" {
			continue
		}
		has, err := hasPreDepend(ctx, token, rdepend, "snapd")
		if err != nil {
			continue
		}
		if has {
			transitional = append(transitional, rdepend)
		}
	}
	return transitional, nil
}

func hasPreDepend(ctx context.Context, token *cancel.Token, pkg, predepend string) (bool, error) {
	out, err := cmdrunner.Run(ctx, token, "apt-cache", "depends", pkg)
	if err != nil {
		return false, err
	}

	lines := strings.Split(string(out), "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	} else {
		lines = nil
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(line, "PreDepends: ")
		if !ok {
			break
		}
		if rest == predepend {
			return true, nil
		}
	}
	return false, nil
}
