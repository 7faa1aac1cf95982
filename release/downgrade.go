package release

import (
	"context"
	"fmt"
	"strings"

	"github.com/pop-os/upgrade-daemon/aptutil"
	"github.com/pop-os/upgrade-daemon/cancel"
)

// DowngradeDrift pulls back any installed package whose version has drifted
// ahead of the repositories' candidate, per spec.md §4.7 step 7. Two
// hard-coded policies adjust the plan before it is applied:
//
//   - papirus-icon-theme downgrading requires first removing its elementary
//     variant, epapirus-icon-theme, or the downgrade conflicts.
//   - ansible-core 2.12 conflicts with ansible; if both are in the drift
//     set, ansible-core is removed instead of downgraded.
func DowngradeDrift(ctx context.Context, token *cancel.Token) error {
	drifted, err := aptutil.Downgradable(ctx, token)
	if err != nil {
		return err
	}
	if len(drifted) == 0 {
		return nil
	}

	hasAnsible := false
	for _, pv := range drifted {
		if pv.Package == "ansible" {
			hasAnsible = true
			break
		}
	}

	toDowngrade := make(map[string]string, len(drifted))
	for _, pv := range drifted {
		if strings.Contains(pv.Package, "pop-upgrade") || strings.Contains(pv.Package, "pop-system-updater") {
			continue
		}

		if strings.Contains(pv.Package, "papirus-icon-theme") {
			_ = aptutil.Remove(ctx, token, []string{"epapirus-icon-theme"})
		}

		if strings.Contains(pv.Package, "ansible-core") && strings.Contains(pv.Version, "2.12") && hasAnsible {
			_ = aptutil.Remove(ctx, token, []string{"ansible-core"})
			continue
		}

		toDowngrade[pv.Package] = pv.Version
	}

	if len(toDowngrade) == 0 {
		return nil
	}
	if err := aptutil.Downgrade(ctx, token, toDowngrade); err != nil {
		return err
	}
	return nil
}

// RemoveConflicts removes RemovePackages (the fixed list) plus any
// installed package with no remote candidate, excluding
// RemotelessAllowlist, per spec.md §4.7 step 8.
func RemoveConflicts(ctx context.Context, token *cancel.Token) error {
	policies, err := aptutil.Policy(ctx, token, RemovePackages)
	if err != nil {
		return err
	}

	conflicting := make(map[string]bool)
	for _, p := range policies {
		if p.Installed != "" && p.Installed != "(none)" {
			conflicting[p.Package] = true
		}
	}

	remoteless, err := aptutil.Remoteless(ctx, token)
	if err != nil {
		return fmt.Errorf("release: checking for remoteless packages: %w", err)
	}
	for _, name := range remoteless {
		if RemotelessAllowlist[name] {
			continue
		}
		conflicting[name] = true
	}

	if len(conflicting) == 0 {
		return nil
	}
	packages := make([]string, 0, len(conflicting))
	for name := range conflicting {
		packages = append(packages, name)
	}
	if err := aptutil.Remove(ctx, token, packages); err != nil {
		return err
	}
	return nil
}
