// Package aptutil wraps apt-get, apt-cache, apt-mark, and dpkg behind
// narrow Go functions, per spec.md §9's "abstract each behind a narrow
// command builder; do not let command-line strings travel through the
// workflow code." Grounded on original_source/daemon/src/fetch/apt.rs (URI
// fetch plan) and daemon/src/repair/packaging.rs (fix-broken/configure
// retry loop), reimplemented over cmdrunner instead of the Rust apt_cmd
// crate.
package aptutil

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/cmdrunner"
	"github.com/pop-os/upgrade-daemon/fetcher"
	"github.com/pop-os/upgrade-daemon/upgradeerrors"
)

// Environ exports DEBIAN_FRONTEND=noninteractive for the current process,
// as spec.md §6.3 requires "before any package-manager invocation." Called
// once at daemon startup.
func Environ() {
	os.Setenv("DEBIAN_FRONTEND", "noninteractive")
}

// aptGet runs apt-get with the -o Dpkg::Use-Pty=0 / --yes flags this
// daemon always wants, honouring the cancellation token first.
func aptGet(ctx context.Context, token *cancel.Token, args ...string) ([]byte, error) {
	full := append([]string{"-o", "Dpkg::Use-Pty=0", "-y"}, args...)
	return cmdrunner.Run(ctx, token, "apt-get", full...)
}

// LockWait blocks until the dpkg/apt lock files are free, or the token is
// triggered. apt-get itself retries internally on a held lock, so this
// simply invokes `apt-get` with a lock-probing no-op and treats "resource
// temporarily unavailable" as "still held, try again" — the suspension
// point spec.md §5 calls "the apt lock wait"; cancellation is the only way
// out, matching apt_lock_wait in original_source/daemon/src/fetch/apt.rs.
func LockWait(ctx context.Context, token *cancel.Token) error {
	for {
		if token != nil && token.IsTriggered() {
			return upgradeerrors.ErrCancelled
		}
		_, err := cmdrunner.Run(ctx, token, "apt-get", "-o", "Dpkg::Use-Pty=0", "check")
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "Unable to lock") && !strings.Contains(err.Error(), "temporarily unavailable") {
			return fmt.Errorf("%w: %v", upgradeerrors.ErrLockHeld, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Update runs `apt-get update`, streaming output line by line so the
// release and fetch workflows can surface failures verbatim.
func Update(ctx context.Context, token *cancel.Token, onLine cmdrunner.LineFunc) error {
	if err := cmdrunner.RunStreaming(ctx, token, "apt-get", onLine, "-o", "Dpkg::Use-Pty=0", "update"); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrUpdateFailed, err)
	}
	return nil
}

// printURI is one line of `apt-get --print-uris` output.
type printURI struct {
	url, dest string
	size      int64
}

// PrintURIs runs `apt-get <verb> --print-uris <args...>` and parses the
// quoted-URI output format into fetcher.URIs ready to hand to FetchAll.
// verb is "full-upgrade", "install", or "download" per spec.md §4.5 step 2.
func PrintURIs(ctx context.Context, token *cancel.Token, verb string, args ...string) ([]fetcher.URI, error) {
	cmdArgs := append([]string{"-o", "Dpkg::Use-Pty=0", "--print-uris", verb}, args...)
	out, err := cmdrunner.Run(ctx, token, "apt-get", cmdArgs...)
	if err != nil {
		return nil, fmt.Errorf("apt-get --print-uris %s: %w", verb, err)
	}
	return parsePrintURIs(out)
}

// parsePrintURIs reads apt-get's `'URL' dest size hash` lines, e.g.:
//
//	'http://archive.ubuntu.com/pop-desktop_1.0_amd64.deb' pop-desktop_1.0_amd64.deb 123456 SHA256:abcd...
func parsePrintURIs(out []byte) ([]fetcher.URI, error) {
	var uris []fetcher.URI
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "'") {
			continue
		}
		end := strings.Index(line[1:], "'")
		if end < 0 {
			continue
		}
		url := line[1 : end+1]
		rest := strings.Fields(line[end+2:])
		if len(rest) < 2 {
			continue
		}
		dest := rest[0]
		size, _ := strconv.ParseInt(rest[1], 10, 64)

		if seen[dest] {
			continue
		}
		seen[dest] = true

		uris = append(uris, fetcher.URI{
			Name:    dest,
			Sources: []string{url},
			Dest:    "/var/cache/apt/archives/" + dest,
			Size:    size,
		})
	}
	return uris, nil
}

// Upgrade streams `apt-get full-upgrade`, invoking onVersion for every
// "Setting up <pkg> (<version>) ..." line observed, so the caller can
// assemble the AptUpgrade bus event's {package: version} map.
func Upgrade(ctx context.Context, token *cancel.Token, onVersion func(pkg, version string)) error {
	err := cmdrunner.RunStreaming(ctx, token, "apt-get", func(line string) {
		if pkg, ver, ok := parseSettingUp(line); ok && onVersion != nil {
			onVersion(pkg, ver)
		}
	}, "-o", "Dpkg::Use-Pty=0", "full-upgrade")
	if err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrUpgradeFailed, err)
	}
	return nil
}

func parseSettingUp(line string) (pkg, version string, ok bool) {
	const prefix = "Setting up "
	if !strings.HasPrefix(line, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(line, prefix)
	open := strings.Index(rest, " (")
	shut := strings.Index(rest, ")")
	if open < 0 || shut < open {
		return "", "", false
	}
	return rest[:open], rest[open+2 : shut], true
}

// Install runs `apt-get install` for the given packages.
func Install(ctx context.Context, token *cancel.Token, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{"install"}, packages...)
	if _, err := aptGet(ctx, token, args...); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrInstallFailed, err)
	}
	return nil
}

// Remove runs `apt-get remove --auto-remove` for the given packages.
func Remove(ctx context.Context, token *cancel.Token, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{"remove", "--auto-remove"}, packages...)
	if _, err := aptGet(ctx, token, args...); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrConflictRemovalFailed, err)
	}
	return nil
}

// Downgrade installs the candidate version of each package explicitly
// (`pkg=version`), per spec.md §4.7 step 7.
func Downgrade(ctx context.Context, token *cancel.Token, packageVersions map[string]string) error {
	if len(packageVersions) == 0 {
		return nil
	}
	args := []string{"install"}
	for pkg, ver := range packageVersions {
		args = append(args, pkg+"="+ver)
	}
	if _, err := aptGet(ctx, token, args...); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrDowngradeFailed, err)
	}
	return nil
}

// FixBroken runs `apt-get install -f`.
func FixBroken(ctx context.Context, token *cancel.Token) error {
	if _, err := aptGet(ctx, token, "install", "-f"); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrFixBrokenFailed, err)
	}
	return nil
}

// DpkgConfigure runs `dpkg --configure -a`.
func DpkgConfigure(ctx context.Context, token *cancel.Token) error {
	if _, err := cmdrunner.Run(ctx, token, "dpkg", "--configure", "-a"); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrDpkgConfigureFailed, err)
	}
	return nil
}

// Simulate runs `apt-get --simulate full-upgrade`; any non-zero exit is a
// simulation failure (spec.md §4.7 step 13).
func Simulate(ctx context.Context, token *cancel.Token) error {
	if _, err := aptGet(ctx, token, "--simulate", "full-upgrade"); err != nil {
		return fmt.Errorf("%w: %v", upgradeerrors.ErrSimulationFailed, err)
	}
	return nil
}

// Hold runs `apt-mark hold` for the given packages.
func Hold(ctx context.Context, token *cancel.Token, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{"hold"}, packages...)
	_, err := cmdrunner.Run(ctx, token, "apt-mark", args...)
	return err
}

// Unhold runs `apt-mark unhold` for the given packages.
func Unhold(ctx context.Context, token *cancel.Token, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{"unhold"}, packages...)
	_, err := cmdrunner.Run(ctx, token, "apt-mark", args...)
	return err
}

// ListHeld returns every currently-held package via `apt-mark showhold`.
func ListHeld(ctx context.Context, token *cancel.Token) ([]string, error) {
	out, err := cmdrunner.Run(ctx, token, "apt-mark", "showhold")
	if err != nil {
		return nil, err
	}
	var held []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			held = append(held, line)
		}
	}
	return held, nil
}

// CandidatePolicy is one package's `apt-cache policy` block.
type CandidatePolicy struct {
	Package        string
	Installed      string
	Candidate      string
	HasNoCandidate bool
}

// Policy runs `apt-cache policy` for the given packages and parses the
// Installed:/Candidate: lines of each block.
func Policy(ctx context.Context, token *cancel.Token, packages []string) ([]CandidatePolicy, error) {
	if len(packages) == 0 {
		return nil, nil
	}
	out, err := cmdrunner.Run(ctx, token, "apt-cache", append([]string{"policy"}, packages...)...)
	if err != nil {
		return nil, fmt.Errorf("apt-cache policy: %w", err)
	}
	return parsePolicy(string(out)), nil
}

func parsePolicy(out string) []CandidatePolicy {
	var result []CandidatePolicy
	var cur *CandidatePolicy

	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case line != "" && !strings.HasPrefix(line, " ") && strings.HasSuffix(trimmed, ":"):
			result = append(result, CandidatePolicy{Package: strings.TrimSuffix(trimmed, ":")})
			cur = &result[len(result)-1]
		case cur == nil:
			continue
		case strings.HasPrefix(trimmed, "Installed:"):
			cur.Installed = strings.TrimSpace(strings.TrimPrefix(trimmed, "Installed:"))
		case strings.HasPrefix(trimmed, "Candidate:"):
			cur.Candidate = strings.TrimSpace(strings.TrimPrefix(trimmed, "Candidate:"))
			cur.HasNoCandidate = cur.Candidate == "(none)"
		}
	}
	return result
}
