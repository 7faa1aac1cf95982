// Package recovery implements the recovery workflow of spec.md §4.6:
// verify the environment, resolve the target build, download and verify
// the recovery ISO, and synchronise it onto the recovery partition. Built
// on phase.Run, the same sequential-step executor the fetch workflow uses.
// Grounded on original_source/daemon/src/recovery/mod.rs's fetch_iso.
package recovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/events"
	"github.com/pop-os/upgrade-daemon/fetcher"
	"github.com/pop-os/upgrade-daemon/observability"
	"github.com/pop-os/upgrade-daemon/phase"
	"github.com/pop-os/upgrade-daemon/releaseapi"
	"github.com/pop-os/upgrade-daemon/repair"
	"github.com/pop-os/upgrade-daemon/status"
	"github.com/pop-os/upgrade-daemon/sysutil"
	"github.com/pop-os/upgrade-daemon/upgradeerrors"
)

// Target names a release build to recover to. A zero Version asks the
// release API for the build matching the currently installed release.
type Target struct {
	Version string
	Arch    string // "intel" or "nvidia"; sysutil.DetectArch() if empty
	Next    bool   // RecoveryUpgradeRelease flag bit 1: target the next release rather than current
}

// Source selects where the recovery ISO comes from: exactly one of FilePath
// or Release should be set, matching the two RecoveryUpgrade* IPC methods.
type Source struct {
	FilePath string
	Release  *Target
}

// Deps are the process-wide collaborators the workflow reads and mutates,
// passed explicitly rather than reached via singletons (spec.md §9).
type Deps struct {
	Bus        *events.Bus
	Register   *status.Register
	Token      *cancel.Token
	HTTPClient fetcher.Client
	Observer   observability.Observer
	API        *releaseapi.Client

	// CurrentRelease is the presently installed release version, used to
	// resolve a Target with an empty Version and passed through to the
	// repair sub-routine's Packaging step.
	CurrentRelease string

	// RecoveryMount, EFIBase and CachePath default to the real system
	// paths below; tests override them to a temp directory.
	RecoveryMount string
	EFIBase       string
	CachePath     string
}

const (
	defaultRecoveryMount = "/recovery"
	defaultEFIBase       = "/boot/efi/EFI"
	defaultCachePath     = "/var/cache/pop-upgrade"
)

func (d Deps) recoveryMount() string {
	if d.RecoveryMount != "" {
		return d.RecoveryMount
	}
	return defaultRecoveryMount
}

func (d Deps) efiBase() string {
	if d.EFIBase != "" {
		return d.EFIBase
	}
	return defaultEFIBase
}

func (d Deps) cachePath() string {
	if d.CachePath != "" {
		return d.CachePath
	}
	return defaultCachePath
}

type state struct {
	Source
	names       PartitionNames
	efiRecovery string
	resolved    releaseapi.Release
	isoPath     string
	skip        bool // target already current: nothing left to do
}

// Run executes the recovery workflow to completion and reports its outcome
// via the RecoveryResult bus event, never returning a non-nil error for a
// recoverable workflow failure (spec.md §7's propagation policy).
func Run(ctx context.Context, d Deps, src Source) events.Result {
	steps := []phase.Step[state]{
		{Name: "preconditions", Run: func(ctx context.Context, s state) (state, error) {
			return s, checkPreconditions(d)
		}},
		{Name: "repair", Run: func(ctx context.Context, s state) (state, error) {
			return s, repair.Run(ctx, d.Token, d.CurrentRelease)
		}},
		{Name: "resolve_partition_names", Run: func(ctx context.Context, s state) (state, error) {
			names, err := ResolvePartitionNames(ctx, d.Token, d.recoveryMount())
			if err != nil {
				return s, err
			}
			s.names = names
			s.efiRecovery = filepath.Join(d.efiBase(), names.Recovery)
			return s, os.MkdirAll(s.efiRecovery, 0o755)
		}},
		{Name: "resolve_target", Run: func(ctx context.Context, s state) (state, error) {
			return resolveTarget(ctx, d, s)
		}},
		{Name: "check_current", Run: func(ctx context.Context, s state) (state, error) {
			return checkAlreadyCurrent(d, s)
		}},
		{Name: "fetch", Run: func(ctx context.Context, s state) (state, error) {
			if s.skip {
				// Spec.md §8 S4: a target already current still emits
				// RecoveryUpgradeEvent(Fetching) before the result, it just
				// never reaches fetchISO's actual download.
				setSub(d, events.RecoveryFetching)
				return s, nil
			}
			return fetchISO(ctx, d, s)
		}},
		{Name: "verify", Run: func(ctx context.Context, s state) (state, error) {
			if s.skip || s.FilePath != "" {
				return s, nil
			}
			setSub(d, events.RecoveryVerifying)
			return s, VerifyChecksum(s.isoPath, s.resolved.Checksum)
		}},
		{Name: "sync", Run: func(ctx context.Context, s state) (state, error) {
			if s.skip {
				return s, nil
			}
			return s, syncToRecoveryPartition(ctx, d, s)
		}},
		{Name: "write_version", Run: func(ctx context.Context, s state) (state, error) {
			if s.skip || s.FilePath != "" {
				return s, nil
			}
			versionPath := filepath.Join(d.recoveryMount(), "version")
			return s, WriteVersionFile(versionPath, CurrentVersion{Version: s.resolved.Version, Build: s.resolved.Build})
		}},
	}

	final, err := phase.Run(ctx, d.Token, d.Observer, "recovery", steps, state{Source: src})
	if err == nil && !final.skip {
		setSub(d, events.RecoveryComplete)
	}

	var result events.Result
	if err == nil {
		result = events.Result{Ok: true}
	} else {
		result = events.Result{Ok: false, Why: err.Error()}
	}
	d.Bus.Send(ctx, events.RecoveryResult(result))
	return result
}

func setSub(d Deps, ev events.RecoveryEvent) {
	d.Register.StoreSub(status.SubPhase(ev))
	d.Bus.Send(context.Background(), events.RecoveryPhaseEvent(ev))
}

func checkPreconditions(d Deps) error {
	if !sysutil.IsEFI() {
		return upgradeerrors.ErrNotEFI
	}
	if isMount, err := sysutil.IsMount(context.Background(), d.Token, d.recoveryMount()); err != nil || !isMount {
		return upgradeerrors.ErrRecoveryNotFound
	}
	if _, err := os.Stat(d.efiBase()); err != nil {
		return upgradeerrors.ErrEfiNotFound
	}
	return nil
}

func resolveTarget(ctx context.Context, d Deps, s state) (state, error) {
	if s.FilePath != "" {
		return s, nil
	}
	target := s.Release
	if target == nil {
		return s, fmt.Errorf("recovery: no source specified")
	}

	version := target.Version
	if version == "" {
		version = d.CurrentRelease
	}
	arch := target.Arch
	if arch == "" {
		arch = sysutil.DetectArch()
	}

	release, err := d.API.GetRelease(ctx, version, arch)
	if err != nil {
		return s, fmt.Errorf("%w: resolving build for %s/%s: %v", upgradeerrors.ErrConnection, version, arch, err)
	}
	s.resolved = release
	return s, nil
}

func checkAlreadyCurrent(d Deps, s state) (state, error) {
	if s.FilePath != "" {
		return s, nil
	}

	versionPath := filepath.Join(d.recoveryMount(), "version")
	current, ok, err := ReadVersionFile(versionPath)
	if err != nil {
		return s, nil // a malformed version file must not block a fresh upgrade
	}
	if ok && current.Version == s.resolved.Version && current.Build == s.resolved.Build {
		s.skip = true
	}
	return s, nil
}

func fetchISO(ctx context.Context, d Deps, s state) (state, error) {
	setSub(d, events.RecoveryFetching)

	if s.FilePath != "" {
		s.isoPath = s.FilePath
		return s, nil
	}

	dest := filepath.Join(d.cachePath(), fmt.Sprintf("%s-%s.iso", s.resolved.Version, s.resolved.Channel))
	uri := fetcher.URI{
		Name:    fmt.Sprintf("pop-os_%s_%s.iso", s.resolved.Version, s.resolved.Channel),
		Sources: []string{s.resolved.URL},
		Dest:    dest,
		Size:    s.resolved.Size,
	}

	var lastEmit time.Time
	onProgress := func(u fetcher.URI, written int64) {
		now := time.Now()
		if now.Sub(lastEmit) < time.Second {
			return
		}
		lastEmit = now
		d.Bus.Send(ctx, events.RecoveryProgressEvent(uint64(written)/1024, uint64(u.Size)/1024))
	}

	results, err := fetcher.FetchAll(ctx, d.Token, d.HTTPClient, fetcher.RecoveryProfile(), []fetcher.URI{uri}, nil, onProgress)
	if err != nil {
		return s, err
	}
	if results[0].Err != nil {
		return s, results[0].Err
	}

	s.isoPath = dest
	return s, nil
}

// syncToRecoveryPartition mounts the ISO read-only, rsyncs its contents
// onto the recovery partition, and copies the kernel/initrd into the EFI
// recovery entry, unmounting the ISO on every exit path (spec.md §4.6 step
// 6, §5's shared-resource policy).
func syncToRecoveryPartition(ctx context.Context, d Deps, s state) error {
	setSub(d, events.RecoverySyncing)

	mountPoint, err := os.MkdirTemp("", "pop-upgrade-iso-")
	if err != nil {
		return fmt.Errorf("recovery: creating ISO mount point: %w", err)
	}
	defer os.RemoveAll(mountPoint)

	if err := sysutil.MountReadOnly(ctx, d.Token, s.isoPath, mountPoint); err != nil {
		return err
	}
	defer sysutil.Unmount(context.Background(), mountPoint)

	recoveryPath := d.recoveryMount()
	sources := []string{
		filepath.Join(mountPoint, ".disk"),
		filepath.Join(mountPoint, "dists"),
		filepath.Join(mountPoint, "pool"),
	}
	if err := sysutil.RsyncMirror(ctx, d.Token, sources, recoveryPath+"/"); err != nil {
		return fmt.Errorf("recovery: syncing iso trees: %w", err)
	}

	casperDest := filepath.Join(recoveryPath, s.names.Casper) + "/"
	if err := sysutil.RsyncMirror(ctx, d.Token, []string{filepath.Join(mountPoint, "casper") + "/"}, casperDest); err != nil {
		return fmt.Errorf("recovery: syncing casper tree: %w", err)
	}

	casperInitrd := filepath.Join(recoveryPath, s.names.Casper, "initrd.gz")
	casperVmlinuz := filepath.Join(recoveryPath, s.names.Casper, "vmlinuz.efi")
	if err := copyFile(casperInitrd, filepath.Join(s.efiRecovery, "initrd.gz")); err != nil {
		return fmt.Errorf("recovery: copying kernel artefacts: %w", err)
	}
	if err := copyFile(casperVmlinuz, filepath.Join(s.efiRecovery, "vmlinuz.efi")); err != nil {
		return fmt.Errorf("recovery: copying kernel artefacts: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
