package repair

import (
	"context"
	"fmt"

	"github.com/pop-os/upgrade-daemon/aptutil"
	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/sources"
)

// PriorCodenames are release codenames that may still be referenced in a
// stale PPA file; Packaging rewrites any it finds to the current release.
// Grounded on original_source/src/repair/crypttab.rs's sibling packaging
// repair, which replaces a fixed list of prior Codename values.
var PriorCodenames = []string{"focal", "groovy", "hirsute", "impish", "jammy", "noble"}

// ProblematicPackages are base packages repair ensures are at their
// candidate version, per original_source/daemon/src/repair/packaging.rs.
var ProblematicPackages = []string{
	"zlib1g", "libc6", "libc6:i386", "ppp", "libnm0", "libc++1", "libc++1:i386", "libmount1:i386",
}

// Packaging rewrites stale PPA codename references to release, refreshes
// package lists, then retries `apt-get install -f` + `dpkg --configure -a`
// + base-requirements up to three times until both succeed (spec.md §4.8).
func Packaging(ctx context.Context, token *cancel.Token, release string) error {
	for _, prior := range PriorCodenames {
		if prior == release {
			continue
		}
		if err := sources.RewriteCodename(prior, release); err != nil {
			return fmt.Errorf("repair: rewriting stale codename %s: %w", prior, err)
		}
	}

	if err := aptutil.LockWait(ctx, token); err != nil {
		return err
	}
	// Best-effort: a failed `apt-get update` here does not abort repair,
	// matching the Rust original's `let _ = AptGet::new().update()`.
	_ = aptutil.Update(ctx, token, nil)

	var lastErr error
	for attempt := 0; attempt < repairRetries; attempt++ {
		if err := aptutil.LockWait(ctx, token); err != nil {
			return err
		}
		if err := aptutil.FixBroken(ctx, token); err != nil {
			lastErr = err
			continue
		}
		if err := aptutil.DpkgConfigure(ctx, token); err != nil {
			lastErr = err
			continue
		}
		if err := baseRequirements(ctx, token); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("repair: packaging repair did not converge after %d attempts: %w", repairRetries, lastErr)
}

// repairRetries is the named retry-budget constant spec.md §9 calls for
// ("repair loops (3) are hard constants").
const repairRetries = 3

func baseRequirements(ctx context.Context, token *cancel.Token) error {
	policies, err := aptutil.Policy(ctx, token, ProblematicPackages)
	if err != nil {
		return err
	}

	toInstall := make(map[string]string)
	for _, p := range policies {
		if p.Installed != "(none)" && p.Installed != p.Candidate && !p.HasNoCandidate {
			toInstall[p.Package] = p.Candidate
		}
	}
	if len(toInstall) == 0 {
		return nil
	}

	packages := make([]string, 0, len(toInstall))
	for pkg, ver := range toInstall {
		packages = append(packages, pkg+"="+ver)
	}
	return aptutil.Install(ctx, token, packages)
}
