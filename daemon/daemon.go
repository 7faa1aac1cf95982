// Package daemon wires the dispatcher, the workflow worker, and every
// subsystem collaborator into the single service object spec.md §9 demands
// in place of module-level singletons: "model them as fields of a single
// service object constructed once and passed explicitly into the worker and
// the dispatcher." Grounded on kernel.New's cold-start wiring (construct
// every subsystem from Config, then let functional options override any of
// them for tests).
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pop-os/upgrade-daemon/cmdrunner"
	"github.com/pop-os/upgrade-daemon/config"
	"github.com/pop-os/upgrade-daemon/events"
	"github.com/pop-os/upgrade-daemon/ipc"
	"github.com/pop-os/upgrade-daemon/observability"
	"github.com/pop-os/upgrade-daemon/release"
	"github.com/pop-os/upgrade-daemon/releaseapi"
	"github.com/pop-os/upgrade-daemon/status"
	"github.com/pop-os/upgrade-daemon/sysutil"
	"github.com/pop-os/upgrade-daemon/worker"
)

// selfUpgradePackage is reinstalled as a side process when UpdateCheck has
// scheduled a newer build of the daemon itself, per spec.md §4.9 step 4.
const selfUpgradePackage = "pop-upgrade"

// EventSelfUpgradeFailed is emitted when the self-upgrade side process
// could not be launched during shutdown.
const EventSelfUpgradeFailed observability.EventType = "daemon.selfupgrade.failed"

// recoveryMount is the directory whose presence marks a machine as having a
// dedicated recovery partition (spec.md §6.2). Redirectable for tests.
var recoveryMount = "/recovery"

// Option configures a Daemon after config-driven initialization. Applied by
// New after cold start — overrides replace config-created defaults, the
// same convention kernel.Option follows.
type Option func(*Daemon)

// WithObserver overrides the config-selected observer.
func WithObserver(o observability.Observer) Option {
	return func(d *Daemon) { d.observer = o }
}

// WithHTTPClient overrides the default *http.Client used for package
// fetches, recovery ISO downloads, and release-api lookups.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Daemon) { d.httpClient = c }
}

// WithBootConfigurator overrides the config-created BootConfigurator.
func WithBootConfigurator(b release.BootConfigurator) Option {
	return func(d *Daemon) { d.boot = b }
}

// WithRecoveryPartitionProbe overrides the default /recovery-directory
// probe ReleaseUpgrade uses to decide whether to also refresh the recovery
// partition.
func WithRecoveryPartitionProbe(p ipc.RecoveryPartitionProbe) Option {
	return func(d *Daemon) { d.recoveryProbe = p }
}

// Daemon is the top-level service object: every piece of process-wide
// mutable state spec.md §9 names (status register, cancellation token via
// the dispatcher, event bus, LastKnown) lives here as a field, constructed
// once by New and passed explicitly into the dispatcher and worker it owns.
type Daemon struct {
	cfg *config.Config

	observer   observability.Observer
	httpClient *http.Client
	boot       release.BootConfigurator
	api        *releaseapi.Client

	bus      *events.Bus
	register *status.Register
	began    *release.Began

	recoveryProbe ipc.RecoveryPartitionProbe

	dispatcher *ipc.Dispatcher
	worker     *worker.Worker
}

// New constructs a Daemon from cfg, building every subsystem from its
// config section the way kernel.New builds agent/session/memory from
// cfg.Agent/cfg.Session/cfg.Memory. Functional options applied afterward can
// override any collaborator for testing.
func New(cfg *config.Config, opts ...Option) (*Daemon, error) {
	cfg.Sentinels.Apply()

	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("daemon: resolving observer %q: %w", cfg.Observer, err)
	}

	currentRelease, err := ipc.CurrentRelease()
	if err != nil {
		return nil, fmt.Errorf("daemon: detecting current release: %w", err)
	}

	d := &Daemon{
		cfg:           cfg,
		observer:      observer,
		httpClient:    http.DefaultClient,
		boot:          release.NewSystemdBootConfigurator(),
		bus:           events.NewBus(),
		register:      status.NewRegister(),
		began:         release.NewBegan(),
		recoveryProbe: defaultRecoveryPartitionProbe,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.api = releaseapi.New(releaseapi.DefaultBase, d.httpClient)

	d.dispatcher = ipc.NewDispatcher(d.bus, d.register, d.began, d.api, d.boot, d.recoveryProbe)
	d.worker = worker.New(worker.Deps{
		Dispatcher:     d.dispatcher,
		Bus:            d.bus,
		Register:       d.register,
		Began:          d.began,
		HTTPClient:     d.httpClient,
		API:            d.api,
		Observer:       d.observer,
		CurrentRelease: currentRelease,
	})

	return d, nil
}

func defaultRecoveryPartitionProbe() bool {
	info, err := os.Stat(recoveryMount)
	return err == nil && info.IsDir()
}

// Dispatcher returns the dispatcher an RPC transport dispatches calls
// against.
func (d *Daemon) Dispatcher() *ipc.Dispatcher { return d.dispatcher }

// Run drives the worker and the dispatcher's tick loop until ctx is
// cancelled or a SIGTERM/SIGTSTP arrives, implementing spec.md §4.9's tick
// loop steps 3-4: a pending termination signal cancels the active workflow
// and the loop exits after the tick that follows; if that tick's
// UpdateCheck had scheduled a self-upgrade, Run installs the replacement
// package as a detached side process and returns exit code 1 so the caller
// can os.Exit(1) for a supervisor restart. Spec.md §6.3 requires exiting
// immediately, performing no workflow, when running from live installer
// media; callers should check sysutil.IsLiveEnvironment (via
// LiveEnvironmentShortCircuit) before calling Run.
func (d *Daemon) Run(ctx context.Context) int {
	go d.worker.Run(ctx)

	interval := d.cfg.TickInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGTSTP)
	defer signal.Stop(sigCh)

	shuttingDown := false
	for {
		select {
		case <-ctx.Done():
			return 0
		case <-sigCh:
			d.dispatcher.Cancel()
			shuttingDown = true
		case <-ticker.C:
			d.dispatcher.Tick(ctx)
			if shuttingDown {
				return d.shutdownExitCode()
			}
		}
	}
}

// shutdownExitCode installs the self-upgrade package as a detached side
// process and returns 1 when the most recent UpdateCheck scheduled one;
// otherwise returns 0. The install runs against context.Background() since
// it must outlive this process's own shutdown.
func (d *Daemon) shutdownExitCode() int {
	if !d.dispatcher.UpdateScheduled() {
		return 0
	}

	cmd, err := cmdrunner.Command(context.Background(), "apt-get", "install", "-y", selfUpgradePackage)
	if err != nil {
		d.observer.OnEvent(context.Background(), observability.Event{
			Type:      EventSelfUpgradeFailed,
			Level:     observability.LevelError,
			Timestamp: time.Now(),
			Source:    "daemon",
			Data:      map[string]any{"error": err.Error()},
		})
		return 1
	}
	if err := cmd.Start(); err != nil {
		d.observer.OnEvent(context.Background(), observability.Event{
			Type:      EventSelfUpgradeFailed,
			Level:     observability.LevelError,
			Timestamp: time.Now(),
			Source:    "daemon",
			Data:      map[string]any{"error": err.Error()},
		})
	}
	return 1
}

// LiveEnvironmentShortCircuit reports whether the daemon must exit
// immediately rather than start, per spec.md §6.3's live-installer-media
// rule. Kept as its own function (rather than folded into New or Run) so
// cmd/pop-upgrade-daemon can exit 0 before constructing any subsystem.
func LiveEnvironmentShortCircuit() bool {
	return sysutil.IsLiveEnvironment()
}
