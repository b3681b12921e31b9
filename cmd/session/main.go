// Command session wraps a single agent process in a PTY and serves it over
// HTTP+WebSocket to remote browser clients, registering itself with a hub
// daemon (spawning one if none is reachable) so it shows up in the unified
// dashboard.
//
// Grounded on the teacher's sandbox/cmd/server/main.go top-level shape:
// a flag-parsed main(), structured startup logging, and a deferred
// best-effort cleanup path running on SIGINT/SIGTERM alongside the
// wrapped process's own exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/shrijayan/itwillsync/internal/applog"
	"github.com/shrijayan/itwillsync/internal/config"
	"github.com/shrijayan/itwillsync/internal/hubclient"
	"github.com/shrijayan/itwillsync/internal/id"
	"github.com/shrijayan/itwillsync/internal/pty"
	"github.com/shrijayan/itwillsync/internal/sessionsrv"
	"github.com/shrijayan/itwillsync/internal/webassets"
)

// sessionOptions mirrors the CLI surface table in the external interfaces
// section: the flags an external argument-parsing/wizard layer would
// eventually populate. This main demonstrates the wiring directly.
type sessionOptions struct {
	command     string
	name        string
	port        int
	localhost   bool
	tailscale   bool
	local       bool
	hubBinary   string
	internalHub int
}

func main() {
	opts := parseFlags()

	log := applog.New()
	defer log.Sync()

	code, err := run(opts, log.Named("session"))
	if err != nil {
		log.Errorw("session exited with error", "error", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func parseFlags() sessionOptions {
	var opts sessionOptions
	flag.StringVar(&opts.command, "command", "", "command line to run inside the PTY (defaults to $SHELL)")
	flag.StringVar(&opts.name, "name", "", "display name for this session (defaults to the command)")
	flag.IntVar(&opts.port, "port", config.DefaultSessionPort, "first port to try binding; scans upward on conflict")
	flag.BoolVar(&opts.localhost, "localhost", false, "bind the session server to 127.0.0.1 only")
	flag.BoolVar(&opts.tailscale, "tailscale", false, "advertise this session over the host's tailscale address")
	flag.BoolVar(&opts.local, "local", false, "force local-only networking for this invocation, ignoring config.json")
	flag.StringVar(&opts.hubBinary, "hub-binary", "", "path to the hub binary to spawn if none is reachable")
	flag.IntVar(&opts.internalHub, "hub-internal-port", hubclient.DefaultInternalPort(), "hub internal control API port")
	flag.Parse()
	return opts
}

func run(opts sessionOptions, log *zap.SugaredLogger) (exitCode int, err error) {
	mode := config.LoadNetworkingMode()
	if opts.local {
		mode = config.NetworkingLocal
	}
	if opts.tailscale {
		mode = config.NetworkingTailscale
	}

	// --localhost is an explicit override; absent it, bind address follows
	// the resolved networking mode (local sessions default to loopback
	// only, tailscale sessions bind every interface for the tailnet peer).
	if !opts.localhost && mode == config.NetworkingLocal {
		opts.localhost = true
	}
	if opts.tailscale {
		opts.localhost = false
	}

	cols, rows := uint16(80), uint16(24)
	proc, err := pty.New(opts.command, cols, rows, "")
	if err != nil {
		return 0, fmt.Errorf("starting pty: %w", err)
	}
	defer proc.Kill()

	token, err := id.NewToken()
	if err != nil {
		return 0, fmt.Errorf("generating session token: %w", err)
	}

	name := opts.name
	if name == "" {
		name = opts.command
	}
	if name == "" {
		name = pty.DefaultShell()
	}

	srv := sessionsrv.New(sessionsrv.Config{
		LocalhostOnly: opts.localhost,
		StartPort:     opts.port,
		Token:         token,
		Assets:        webassets.Session(),
		PTY:           proc,
		Log:           log.Named("server"),
	})

	port, err := srv.Listen()
	if err != nil {
		return 0, fmt.Errorf("binding session server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := hubclient.DiscoverOrSpawn(ctx, opts.internalHub, opts.hubBinary, log.Named("hubclient"))
	if hub.Standalone() {
		log.Infow("no hub reachable, running standalone")
		printDirectURL(opts.localhost, port, token)
	} else {
		if err := hub.Register(hubclient.Registration{
			Name:  name,
			Port:  port,
			Token: token,
			Agent: opts.command,
			Cwd:   mustGetwd(),
			PID:   proc.PID(),
		}); err != nil {
			log.Warnw("hub registration failed, continuing standalone", "error", err)
			printDirectURL(opts.localhost, port, token)
		} else {
			go hub.RunHeartbeatLoop(ctx)
			defer hub.Unregister()
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-proc.Done():
		result := proc.Wait()
		log.Infow("wrapped process exited", "code", result.Code)
		return result.Code, nil
	case sig := <-sigCh:
		log.Infow("shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			log.Warnw("session server stopped", "error", err)
		}
	}

	return 0, nil
}

func mustGetwd() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return dir
}

func printDirectURL(localhostOnly bool, port int, token string) {
	host := "localhost"
	if !localhostOnly {
		host = "0.0.0.0"
	}
	fmt.Printf("session ready: http://%s:%d/?token=%s\n", host, port, token)
}
