package ipc

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/events"
	"github.com/pop-os/upgrade-daemon/fetch"
	"github.com/pop-os/upgrade-daemon/recovery"
	"github.com/pop-os/upgrade-daemon/release"
	"github.com/pop-os/upgrade-daemon/releaseapi"
	"github.com/pop-os/upgrade-daemon/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// mailboxCapacity bounds the many-producer-single-consumer mailbox between
// the dispatcher and the workflow worker. IPC methods that fail to enqueue
// because the mailbox is full report the same "busy" outcome as an
// already-claimed phase, since both mean the worker cannot accept more work
// right now.
const mailboxCapacity = 8

// OSReleaseFile, DismissedFile, InstallDateFile and RecoveryVersionFile are
// redirectable so tests never touch the real root filesystem.
var (
	OSReleaseFile       = "/etc/os-release"
	DismissedFile       = "/usr/lib/pop-upgrade/dismissed"
	InstallDateFile     = "/usr/lib/pop-upgrade/install_date"
	RecoveryVersionFile = "/recovery/version"
)

// ForegroundResult is one completed workflow's outcome, produced by the
// worker and drained by the dispatcher's tick loop (spec.md §4.9 step 1).
type ForegroundResult struct {
	Kind RequestKind

	Fetch    events.Result
	Recovery events.Result
	Release  events.Result

	// ReleaseCommit is only meaningful when Kind is RequestReleaseUpgrade
	// and Release.Ok is true: the CommitState ReleaseUpgradeFinalize later
	// consumes.
	ReleaseCommit release.CommitState
}

// RecoveryPartitionProbe reports whether a recovery partition exists on
// this machine, used by ReleaseUpgrade to decide whether to also enqueue a
// recovery refresh (spec.md §6.1's ReleaseUpgrade row). A func field rather
// than a fixed path check so tests can substitute it.
type RecoveryPartitionProbe func() bool

// Dispatcher is the single long-lived object of spec.md §4.9: it owns the
// method table of §6.1, feeds the worker's mailbox, and republishes the
// event bus and foreground-result channel as bus signals. Grounded on
// orchestrate/hub/channel.go's MessageChannel for the mailbox shape and on
// kernel's single-owner wiring style for holding every collaborator as a
// plain field rather than a singleton (spec.md §9).
type Dispatcher struct {
	mailbox    chan WorkflowRequest
	foreground chan ForegroundResult

	bus      *events.Bus
	subs     *Subscribers
	register *status.Register
	began    *release.Began
	api      *releaseapi.Client
	boot     release.BootConfigurator

	recoveryPartitionExists RecoveryPartitionProbe

	mu              sync.Mutex
	token           *cancel.Token
	last            LastKnown
	commit          *release.CommitState
	awaitRecovery   bool
	updateScheduled bool
}

// NewDispatcher returns a Dispatcher with a fresh cancellation token and
// empty status history.
func NewDispatcher(bus *events.Bus, register *status.Register, began *release.Began, api *releaseapi.Client, boot release.BootConfigurator, probe RecoveryPartitionProbe) *Dispatcher {
	return &Dispatcher{
		mailbox:                 make(chan WorkflowRequest, mailboxCapacity),
		foreground:              make(chan ForegroundResult, mailboxCapacity),
		bus:                     bus,
		subs:                    NewSubscribers(),
		register:                register,
		began:                   began,
		api:                     api,
		boot:                    boot,
		recoveryPartitionExists: probe,
		token:                   cancel.New(),
	}
}

// Mailbox is the channel the workflow worker consumes WorkflowRequests
// from.
func (d *Dispatcher) Mailbox() <-chan WorkflowRequest { return d.mailbox }

// Foreground is the channel the workflow worker reports completed
// workflows on.
func (d *Dispatcher) Foreground() chan<- ForegroundResult { return d.foreground }

// Subscribe registers a new signal listener and returns its feed and an
// unregister function, for the Subscribe RPC handler to use per connection.
func (d *Dispatcher) Subscribe() (<-chan *structpb.Struct, func()) {
	return d.subs.Register()
}

// CurrentToken returns the cancellation token in force right now, for the
// worker to read when starting a new workflow run. Cancel swaps in a fresh
// token once a cancellation drains, so the worker must call this at the
// start of each request rather than caching the result.
func (d *Dispatcher) CurrentToken() *cancel.Token {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token
}

// Tick drains the foreground-result channel and the event bus once, per
// spec.md §4.9 steps 1-2. Call this on every dispatcher loop iteration
// (≤500ms per spec.md §4.1).
func (d *Dispatcher) Tick(ctx context.Context) {
	for {
		select {
		case r := <-d.foreground:
			d.applyForegroundResult(r)
			continue
		default:
		}
		break
	}

	for _, e := range d.bus.Drain() {
		d.subs.Publish(e)
	}
}

func (d *Dispatcher) applyForegroundResult(r ForegroundResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch r.Kind {
	case RequestFetchUpdates, RequestUpgradePackages:
		d.last.Fetch = statusFromResult(r.Fetch.Ok, r.Fetch.Why)
		d.register.SwapPhase(status.Inactive)
	case RequestRecoveryUpgradeFile, RequestRecoveryUpgradeRelease:
		d.last.Recovery = statusFromResult(r.Recovery.Ok, r.Recovery.Why)
		if !d.awaitRecovery {
			d.register.SwapPhase(status.Inactive)
		}
		d.awaitRecovery = false
	case RequestReleaseUpgrade:
		d.last.Release = statusFromResult(r.Release.Ok, r.Release.Why)
		if r.Release.Ok {
			commit := r.ReleaseCommit
			d.commit = &commit
		}
		d.register.SwapPhase(status.Inactive)
	case RequestReleaseRepair:
		d.last.Release = statusFromResult(r.Release.Ok, r.Release.Why)
	}
}

// Cancel implements spec.md §6.1's Cancel method. A no-op while a release
// upgrade has latched Began (spec.md §4.7 "Cancellation").
func (d *Dispatcher) Cancel() {
	if d.began.IsTriggered() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.token.Trigger()
	d.token.WaitDrained()
	d.token = cancel.New()
}

// DismissNotification implements spec.md §6.1's DismissNotification.
// event must be 1 (by-timestamp), 2 (by-user) or 3 (unset); anything else
// is rejected.
func (d *Dispatcher) DismissNotification(event uint8, nextVersion string) (bool, error) {
	switch event {
	case 1, 2:
		if err := os.WriteFile(DismissedFile, []byte(nextVersion), 0o644); err != nil {
			return false, fmt.Errorf("ipc: writing dismissal sentinel: %w", err)
		}
		return true, nil
	case 3:
		_ = os.Remove(DismissedFile)
		return true, nil
	default:
		return false, fmt.Errorf("ipc: invalid DismissNotification event %d", event)
	}
}

// FetchUpdates implements spec.md §6.1's FetchUpdates. If the fetch phase
// is already claimed, returns the in-flight counters instead of enqueuing a
// second request.
func (d *Dispatcher) FetchUpdates(packages []string, downloadOnly bool) (active bool, completed, total uint32) {
	if !d.register.CompareAndSwapPhase(status.Inactive, status.FetchingPackages) {
		state := d.register.LoadFetch()
		return true, state.Completed, state.Total
	}

	req := WorkflowRequest{
		Kind:       RequestFetchUpdates,
		FetchInput: fetch.Input{Additional: packages, DownloadOnly: downloadOnly},
	}
	if !d.enqueue(req) {
		d.register.SwapPhase(status.Inactive)
		return true, 0, 0
	}
	return false, 0, 0
}

// FetchUpdatesStatus implements spec.md §6.1's FetchUpdatesStatus.
func (d *Dispatcher) FetchUpdatesStatus() (uint8, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last.Fetch.Status, d.last.Fetch.Why
}

// UpgradePackages implements spec.md §6.1's UpgradePackages.
func (d *Dispatcher) UpgradePackages() bool {
	if !d.register.CompareAndSwapPhase(status.Inactive, status.PackageUpgrade) {
		return true
	}
	if !d.enqueue(WorkflowRequest{Kind: RequestUpgradePackages}) {
		d.register.SwapPhase(status.Inactive)
	}
	return false
}

// RecoveryUpgradeFile implements spec.md §6.1's RecoveryUpgradeFile.
func (d *Dispatcher) RecoveryUpgradeFile(path string) bool {
	return d.enqueueRecovery(RequestRecoveryUpgradeFile, recovery.Source{FilePath: path})
}

// RecoveryUpgradeRelease implements spec.md §6.1's RecoveryUpgradeRelease.
// flags bit 1 (value 2) selects the next release rather than the current
// one.
func (d *Dispatcher) RecoveryUpgradeRelease(version, arch string, flags uint8) bool {
	target := recovery.Target{Version: version, Arch: arch, Next: flags&2 != 0}
	return d.enqueueRecovery(RequestRecoveryUpgradeRelease, recovery.Source{Release: &target})
}

func (d *Dispatcher) enqueueRecovery(kind RequestKind, src recovery.Source) bool {
	if !d.register.CompareAndSwapPhase(status.Inactive, status.RecoveryUpgrade) {
		return true
	}
	if !d.enqueue(WorkflowRequest{Kind: kind, RecoverySource: src}) {
		d.register.SwapPhase(status.Inactive)
	}
	return false
}

// RecoveryUpgradeReleaseStatus implements spec.md §6.1's
// RecoveryUpgradeReleaseStatus.
func (d *Dispatcher) RecoveryUpgradeReleaseStatus() (uint8, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last.Recovery.Status, d.last.Recovery.Why
}

// RecoveryVersionRead implements spec.md §6.1's RecoveryVersion: reads
// RecoveryVersionFile's "<version> <build>" pair, reporting build -1 when
// the file is missing or malformed.
func RecoveryVersionRead() (string, int16) {
	data, err := os.ReadFile(RecoveryVersionFile)
	if err != nil {
		return "", -1
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return "", -1
	}
	build, err := strconv.ParseInt(fields[1], 10, 16)
	if err != nil {
		return fields[0], -1
	}
	return fields[0], int16(build)
}

// RefreshOS implements spec.md §6.1's RefreshOS: op 0 reports whether the
// recovery boot target is the current default, 1 sets it as default, 2
// restores the ordinary default.
func (d *Dispatcher) RefreshOS(op uint8) (bool, error) {
	if d.boot == nil {
		return false, fmt.Errorf("ipc: no boot configurator wired")
	}

	switch op {
	case 0:
		entry, err := d.boot.DefaultEntry()
		if err != nil {
			return false, err
		}
		return strings.Contains(strings.ToLower(entry), "recovery"), nil
	case 1:
		return true, release.SetDefaultVariant(d.boot, release.LoaderEntryRecovery)
	case 2:
		return false, release.RestoreDefaultVariant(d.boot)
	default:
		return false, fmt.Errorf("ipc: invalid RefreshOS op %d", op)
	}
}

// ReleaseCheck implements spec.md §6.1's ReleaseCheck. Rejected while any
// workflow phase is claimed.
func (d *Dispatcher) ReleaseCheck(ctx context.Context, development bool, currentVersion, arch string, nextVersion string) (current, next string, build, urgent int16, isLTS bool, err error) {
	if d.register.LoadPhase() != status.Inactive {
		return "", "", 0, 0, false, fmt.Errorf("ipc: daemon is busy")
	}
	if d.api == nil {
		return "", "", 0, 0, false, fmt.Errorf("ipc: no release API client wired")
	}

	channel := arch
	if development {
		channel += "-development"
	}

	currentRelease, err := d.api.GetRelease(ctx, currentVersion, channel)
	if err != nil {
		return "", "", 0, 0, false, err
	}
	nextRelease, err := d.api.GetRelease(ctx, nextVersion, channel)
	if err != nil {
		return currentVersion, "", currentRelease.Build, 0, false, nil
	}
	return currentVersion, nextVersion, nextRelease.Build, boolToInt16(nextRelease.Urgent), false, nil
}

// ReleaseUpgrade implements spec.md §6.1's ReleaseUpgrade. When a recovery
// partition is present, also enqueues a recovery refresh to the target
// release and latches awaitRecovery so the phase is not released until both
// complete.
func (d *Dispatcher) ReleaseUpgrade(how uint8, from, to string) bool {
	if !d.register.CompareAndSwapPhase(status.Inactive, status.ReleaseUpgrade) {
		return false
	}

	req := WorkflowRequest{Kind: RequestReleaseUpgrade, ReleaseInput: release.Input{Method: how, From: from, To: to}}
	if !d.enqueue(req) {
		d.register.SwapPhase(status.Inactive)
		return false
	}

	if d.recoveryPartitionExists != nil && d.recoveryPartitionExists() {
		d.mu.Lock()
		d.awaitRecovery = true
		d.mu.Unlock()

		recoveryReq := WorkflowRequest{
			Kind:           RequestRecoveryUpgradeRelease,
			RecoverySource: recovery.Source{Release: &recovery.Target{Version: to}},
		}
		_ = d.enqueue(recoveryReq)
	}
	return true
}

// ReleaseUpgradeFinalize implements spec.md §6.1's ReleaseUpgradeFinalize:
// consumes the commit state left by a successful release workflow.
func (d *Dispatcher) ReleaseUpgradeFinalize() error {
	d.mu.Lock()
	commit := d.commit
	d.commit = nil
	d.mu.Unlock()

	if commit == nil {
		return fmt.Errorf("ipc: no release upgrade commit state pending")
	}
	return release.Finalize(*commit)
}

// ReleaseUpgradeStatus implements spec.md §6.1's ReleaseUpgradeStatus.
func (d *Dispatcher) ReleaseUpgradeStatus() (uint8, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last.Release.Status, d.last.Release.Why
}

// ReleaseRepair implements spec.md §6.1's ReleaseRepair: runs synchronously
// rather than through the mailbox, since the repair sub-routine is
// idempotent and safe to invoke inline (spec.md §4.8).
func (d *Dispatcher) ReleaseRepair(ctx context.Context, run func(ctx context.Context, token *cancel.Token) error) error {
	return run(ctx, d.CurrentToken())
}

// Reset implements spec.md §6.1's Reset: clears status, sub-status, fetch
// counters and commit state, and invokes cleanup.
func (d *Dispatcher) Reset(ctx context.Context, cleanup func(ctx context.Context, token *cancel.Token)) {
	d.register.Reset()

	d.mu.Lock()
	d.commit = nil
	d.last = LastKnown{}
	d.mu.Unlock()

	cleanup(ctx, d.CurrentToken())
}

// Status implements spec.md §6.1's Status. Non-blocking.
func (d *Dispatcher) Status() (uint8, uint8) {
	return uint8(d.register.LoadPhase()), uint8(d.register.LoadSub())
}

// UpdateCheck implements spec.md §6.1's UpdateCheck: returns 1 if a
// self-upgrade was scheduled (the daemon's own packages are out of date),
// 0 otherwise. ScheduleSelfUpgrade is a caller-supplied predicate+side
// effect since resolving "is a newer pop-upgrade package available" is a
// package-manager concern the dispatcher delegates rather than owns.
func (d *Dispatcher) UpdateCheck(scheduleSelfUpgrade func() (bool, error)) (uint8, error) {
	scheduled, err := scheduleSelfUpgrade()
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	d.updateScheduled = scheduled
	d.mu.Unlock()

	if scheduled {
		return 1, nil
	}
	return 0, nil
}

// UpdateScheduled reports whether the most recent UpdateCheck scheduled a
// self-upgrade; the daemon's main loop uses this to decide whether to exit
// 1 for a supervisor restart (spec.md §4.9 step 4).
func (d *Dispatcher) UpdateScheduled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updateScheduled
}

func (d *Dispatcher) enqueue(req WorkflowRequest) bool {
	select {
	case d.mailbox <- req:
		return true
	default:
		return false
	}
}

func boolToInt16(b bool) int16 {
	if b {
		return 1
	}
	return 0
}

// InstallDate reads InstallDateFile, the OS install timestamp of spec.md
// §6.2, returning the zero time if it is missing or malformed.
func InstallDate() time.Time {
	data, err := os.ReadFile(InstallDateFile)
	if err != nil {
		return time.Time{}
	}
	seconds, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(seconds, 0)
}

// CurrentRelease reads VERSION_CODENAME (falling back to VERSION_ID) out of
// OSReleaseFile, per spec.md §6.3.
func CurrentRelease() (string, error) {
	f, err := os.Open(OSReleaseFile)
	if err != nil {
		return "", fmt.Errorf("ipc: reading %s: %w", OSReleaseFile, err)
	}
	defer f.Close()

	var codename, versionID string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "VERSION_CODENAME":
			codename = value
		case "VERSION_ID":
			versionID = value
		}
	}

	if codename != "" {
		return codename, nil
	}
	if versionID != "" {
		return versionID, nil
	}
	return "", fmt.Errorf("ipc: %s has no VERSION_CODENAME or VERSION_ID", OSReleaseFile)
}
