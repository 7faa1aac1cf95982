package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/pop-os/upgrade-daemon/config"
	"github.com/pop-os/upgrade-daemon/daemon"
	"github.com/pop-os/upgrade-daemon/ipc"
	"github.com/pop-os/upgrade-daemon/observability"
	"github.com/pop-os/upgrade-daemon/sysutil"
	"google.golang.org/protobuf/types/known/structpb"
)

// httpShutdownTimeout bounds how long the IPC server waits for in-flight
// requests to finish once the daemon's own run loop returns.
const httpShutdownTimeout = 5 * time.Second

func main() {
	var (
		configFile = flag.String("config", "", "Path to daemon config JSON file (overrides built-in defaults)")
		socketPath = flag.String("socket", "/run/pop-upgrade.sock", "Unix socket the IPC server listens on")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	if daemon.LiveEnvironmentShortCircuit() {
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}

	d, err := daemon.New(&cfg, daemon.WithObserver(observability.NewSlogObserver(logger)))
	if err != nil {
		log.Fatalf("Failed to create daemon: %v", err)
	}

	server := ipc.NewServer(ipc.ServerDeps{
		Dispatcher:     d.Dispatcher(),
		CurrentRelease: ipc.CurrentRelease,
		Arch:           sysutil.DetectArch,
	})

	mux := http.NewServeMux()
	mux.Handle(ipc.NewCallHandler(server.Handle))
	mux.Handle(ipc.NewSubscribeHandler(func(ctx context.Context, send func(*structpb.Struct) error) error {
		feed, unregister := d.Dispatcher().Subscribe()
		defer unregister()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case event, ok := <-feed:
				if !ok {
					return nil
				}
				if err := send(event); err != nil {
					return err
				}
			}
		}
	}))

	httpServer := &http.Server{Handler: mux}

	_ = os.Remove(*socketPath)
	listener, err := net.Listen("unix", *socketPath)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", *socketPath, err)
	}

	// SIGTERM/SIGTSTP are handled inside Daemon.Run itself (spec.md §4.9
	// steps 3-4: cancel the active workflow, finish the next tick, then
	// exit), so only os.Interrupt short-circuits through this context for
	// an immediate interactive stop.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("IPC server stopped: %v", err)
		}
	}()

	fmt.Fprintf(os.Stderr, "pop-upgrade-daemon listening on %s\n", *socketPath)

	exitCode := d.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	os.Remove(*socketPath)
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
