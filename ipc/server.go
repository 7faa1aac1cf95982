package ipc

import (
	"context"
	"fmt"

	"github.com/pop-os/upgrade-daemon/cancel"
	"github.com/pop-os/upgrade-daemon/repair"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServerDeps are the collaborators a Server needs beyond Dispatcher itself:
// environment facts the §6.1 wire methods leave implicit (current release,
// architecture) and side effects the dispatcher delegates rather than owns
// (repair, self-upgrade scheduling).
type ServerDeps struct {
	Dispatcher *Dispatcher

	// CurrentRelease resolves the running release's codename, used to fill
	// in ReleaseCheck's currentVersion argument.
	CurrentRelease func() (string, error)
	// Arch resolves the running architecture, used to fill in
	// ReleaseCheck's channel and RecoveryUpgradeRelease's arch when the
	// caller leaves it blank.
	Arch func() string

	// ScheduleSelfUpgrade backs UpdateCheck; see Dispatcher.UpdateCheck.
	ScheduleSelfUpgrade func() (bool, error)
	// Cleanup backs Reset; see Dispatcher.Reset.
	Cleanup func(ctx context.Context, token *cancel.Token)
}

// Server adapts ServerDeps into a CallHandlerFunc, routing each §6.1 method
// name to the matching Dispatcher call and translating between Go types and
// structpb.Struct — the method-name-keyed envelope's companion half,
// grounded on the single-shared-RPC rationale in rpc.go.
type Server struct {
	deps ServerDeps
}

// NewServer returns a Server ready to mount via NewCallHandler(s.Handle).
func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

// Handle implements CallHandlerFunc, dispatching by the §6.1 method name.
func (s *Server) Handle(ctx context.Context, method string, args *structpb.Struct) (*structpb.Struct, error) {
	d := s.deps.Dispatcher
	fields := args.GetFields()

	switch method {
	case "Cancel":
		d.Cancel()
		return empty()

	case "DismissNotification":
		event := uint8(fields["event"].GetNumberValue())
		nextVersion := fields["next_version"].GetStringValue()
		dismissed, err := d.DismissNotification(event, nextVersion)
		if err != nil {
			return nil, err
		}
		return structpb.NewStruct(map[string]any{"dismissed": dismissed})

	case "FetchUpdates":
		packages := stringList(fields["packages"])
		downloadOnly := fields["download_only"].GetBoolValue()
		active, completed, total := d.FetchUpdates(packages, downloadOnly)
		return structpb.NewStruct(map[string]any{
			"available": active,
			"completed": float64(completed),
			"total":     float64(total),
		})

	case "FetchUpdatesStatus":
		status, why := d.FetchUpdatesStatus()
		return statusStruct(status, why)

	case "UpgradePackages":
		d.UpgradePackages()
		return empty()

	case "RecoveryUpgradeFile":
		d.RecoveryUpgradeFile(fields["path"].GetStringValue())
		return empty()

	case "RecoveryUpgradeRelease":
		arch := fields["arch"].GetStringValue()
		if arch == "" && s.deps.Arch != nil {
			arch = s.deps.Arch()
		}
		d.RecoveryUpgradeRelease(fields["version"].GetStringValue(), arch, uint8(fields["flags"].GetNumberValue()))
		return empty()

	case "RecoveryUpgradeReleaseStatus":
		status, why := d.RecoveryUpgradeReleaseStatus()
		return statusStruct(status, why)

	case "RecoveryVersion":
		version, build := RecoveryVersionRead()
		return structpb.NewStruct(map[string]any{"version": version, "build": float64(build)})

	case "RefreshOS":
		enabled, err := d.RefreshOS(uint8(fields["op"].GetNumberValue()))
		if err != nil {
			return nil, err
		}
		return structpb.NewStruct(map[string]any{"enabled": enabled})

	case "ReleaseCheck":
		return s.releaseCheck(ctx, fields)

	case "ReleaseUpgrade":
		ok := d.ReleaseUpgrade(uint8(fields["how"].GetNumberValue()), fields["from"].GetStringValue(), fields["to"].GetStringValue())
		return structpb.NewStruct(map[string]any{"accepted": ok})

	case "ReleaseUpgradeFinalize":
		if err := d.ReleaseUpgradeFinalize(); err != nil {
			return nil, err
		}
		return empty()

	case "ReleaseUpgradeStatus":
		status, why := d.ReleaseUpgradeStatus()
		return statusStruct(status, why)

	case "ReleaseRepair":
		release := fields["release"].GetStringValue()
		if release == "" && s.deps.CurrentRelease != nil {
			var err error
			release, err = s.deps.CurrentRelease()
			if err != nil {
				return nil, err
			}
		}
		err := d.ReleaseRepair(ctx, func(ctx context.Context, token *cancel.Token) error {
			return repair.Run(ctx, token, release)
		})
		if err != nil {
			return nil, err
		}
		return empty()

	case "Reset":
		cleanup := s.deps.Cleanup
		if cleanup == nil {
			cleanup = func(context.Context, *cancel.Token) {}
		}
		d.Reset(ctx, cleanup)
		return empty()

	case "Status":
		phase, sub := d.Status()
		return structpb.NewStruct(map[string]any{"phase": float64(phase), "sub": float64(sub)})

	case "UpdateCheck":
		scheduleSelfUpgrade := s.deps.ScheduleSelfUpgrade
		if scheduleSelfUpgrade == nil {
			scheduleSelfUpgrade = func() (bool, error) { return false, nil }
		}
		result, err := d.UpdateCheck(scheduleSelfUpgrade)
		if err != nil {
			return nil, err
		}
		return structpb.NewStruct(map[string]any{"result": float64(result)})

	default:
		return nil, fmt.Errorf("ipc: unknown method %q", method)
	}
}

func (s *Server) releaseCheck(ctx context.Context, fields map[string]*structpb.Value) (*structpb.Struct, error) {
	d := s.deps.Dispatcher
	development := fields["development"].GetBoolValue()

	currentVersion := fields["current"].GetStringValue()
	if currentVersion == "" && s.deps.CurrentRelease != nil {
		var err error
		currentVersion, err = s.deps.CurrentRelease()
		if err != nil {
			return nil, err
		}
	}

	arch := fields["arch"].GetStringValue()
	if arch == "" && s.deps.Arch != nil {
		arch = s.deps.Arch()
	}

	nextVersion := fields["next"].GetStringValue()

	current, next, build, urgent, isLTS, err := d.ReleaseCheck(ctx, development, currentVersion, arch, nextVersion)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"current": current,
		"next":    next,
		"build":   float64(build),
		"urgent":  float64(urgent),
		"is_lts":  isLTS,
	})
}

func empty() (*structpb.Struct, error) { return &structpb.Struct{}, nil }

func statusStruct(status uint8, why string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": float64(status), "why": why})
}

func stringList(v *structpb.Value) []string {
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.Values))
	for _, val := range list.Values {
		out = append(out, val.GetStringValue())
	}
	return out
}
