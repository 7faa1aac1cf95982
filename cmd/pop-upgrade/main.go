// Command pop-upgrade is the CLI collaborator of spec.md §6.4: a thin
// client over the daemon's IPC surface. The CLI's own behaviour is out of
// scope for this repository's tests, but the interfaces it consumes are
// not, so it is kept here as a real caller of ipc.NewCallClient /
// ipc.NewSubscribeClient rather than left unexercised.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/pop-os/upgrade-daemon/ipc"
	"google.golang.org/protobuf/types/known/structpb"
)

func main() {
	socketPath := flag.String("socket", "/run/pop-upgrade.sock", "Unix socket the daemon listens on")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: pop-upgrade [-socket path] <cancel|status|release ...|recovery ...>")
		os.Exit(1)
	}

	httpClient := unixSocketClient(*socketPath)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, httpClient, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func unixSocketClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

func run(ctx context.Context, httpClient *http.Client, args []string) error {
	switch args[0] {
	case "cancel":
		_, err := call(ctx, httpClient, "Cancel", nil)
		return err

	case "status":
		res, err := call(ctx, httpClient, "Status", nil)
		if err != nil {
			return err
		}
		fmt.Printf("phase=%v sub=%v\n", res.Fields["phase"].GetNumberValue(), res.Fields["sub"].GetNumberValue())
		return nil

	case "release":
		return release(ctx, httpClient, args[1:])

	case "recovery":
		return recovery(ctx, httpClient, args[1:])

	case "daemon":
		return fmt.Errorf("pop-upgrade: run the pop-upgrade-daemon binary directly, not this subcommand")

	default:
		return fmt.Errorf("pop-upgrade: unknown command %q", args[0])
	}
}

func release(ctx context.Context, httpClient *http.Client, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("pop-upgrade: release requires a sub-command")
	}

	switch args[0] {
	case "check":
		res, err := call(ctx, httpClient, "ReleaseCheck", map[string]any{"development": false})
		if err != nil {
			return err
		}
		fmt.Printf("current=%v next=%v build=%v urgent=%v is_lts=%v\n",
			res.Fields["current"].GetStringValue(), res.Fields["next"].GetStringValue(),
			res.Fields["build"].GetNumberValue(), res.Fields["urgent"].GetNumberValue(), res.Fields["is_lts"].GetBoolValue())
		return nil

	case "dismiss":
		_, err := call(ctx, httpClient, "DismissNotification", map[string]any{"event": float64(2)})
		return err

	case "update":
		downloadOnly := flag.NewFlagSet("update", flag.ExitOnError)
		download := downloadOnly.Bool("download-only", false, "fetch packages without installing")
		_ = downloadOnly.Parse(args[1:])
		if *download {
			_, err := call(ctx, httpClient, "FetchUpdates", map[string]any{"download_only": true})
			return err
		}
		_, err := call(ctx, httpClient, "UpgradePackages", nil)
		return err

	case "refresh":
		if len(args) < 2 {
			return fmt.Errorf("pop-upgrade: release refresh requires enable|disable")
		}
		op := float64(1)
		if args[1] == "disable" {
			op = 2
		}
		_, err := call(ctx, httpClient, "RefreshOS", map[string]any{"op": op})
		return err

	case "repair":
		_, err := call(ctx, httpClient, "ReleaseRepair", nil)
		return err

	case "upgrade":
		upgrade := flag.NewFlagSet("upgrade", flag.ExitOnError)
		forceNext := upgrade.Bool("force-next", false, "force upgrading to the next release even if not recommended")
		_ = upgrade.Parse(args[1:])
		how := float64(0)
		if *forceNext {
			how = 1
		}
		_, err := call(ctx, httpClient, "ReleaseUpgrade", map[string]any{"how": how})
		return err

	default:
		return fmt.Errorf("pop-upgrade: unknown release sub-command %q", args[0])
	}
}

func recovery(ctx context.Context, httpClient *http.Client, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("pop-upgrade: recovery requires a sub-command")
	}

	switch args[0] {
	case "default-boot":
		res, err := call(ctx, httpClient, "RefreshOS", map[string]any{"op": float64(0)})
		if err != nil {
			return err
		}
		fmt.Printf("recovery-default=%v\n", res.Fields["enabled"].GetBoolValue())
		return nil

	case "upgrade":
		if len(args) < 4 || args[1] != "from-release" {
			return fmt.Errorf("pop-upgrade: usage: recovery upgrade from-release <version> <arch> [--next]")
		}
		upgrade := flag.NewFlagSet("upgrade", flag.ExitOnError)
		next := upgrade.Bool("next", false, "target the next release instead of the current one")
		_ = upgrade.Parse(args[4:])
		flags := float64(0)
		if *next {
			flags = 2
		}
		_, err := call(ctx, httpClient, "RecoveryUpgradeRelease", map[string]any{
			"version": args[2], "arch": args[3], "flags": flags,
		})
		return err

	case "check":
		res, err := call(ctx, httpClient, "RecoveryVersion", nil)
		if err != nil {
			return err
		}
		fmt.Printf("version=%v build=%v\n", res.Fields["version"].GetStringValue(), res.Fields["build"].GetNumberValue())
		return nil

	default:
		return fmt.Errorf("pop-upgrade: unknown recovery sub-command %q", args[0])
	}
}

func call(ctx context.Context, httpClient *http.Client, method string, args map[string]any) (*structpb.Struct, error) {
	var argsStruct *structpb.Struct
	if args != nil {
		var err error
		argsStruct, err = structpb.NewStruct(args)
		if err != nil {
			return nil, fmt.Errorf("pop-upgrade: encoding %s arguments: %w", method, err)
		}
	}

	env, err := ipc.EncodeCall(method, argsStruct)
	if err != nil {
		return nil, fmt.Errorf("pop-upgrade: encoding %s call: %w", method, err)
	}

	client := ipc.NewCallClient(httpClient, "http://pop-upgrade.sock")
	res, err := client.CallUnary(ctx, connect.NewRequest(env))
	if err != nil {
		return nil, fmt.Errorf("%s aborted: %w", method, err)
	}
	return res.Msg, nil
}
