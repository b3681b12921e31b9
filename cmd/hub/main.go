// Command hub is the itwillsync singleton daemon: it aggregates sessions
// registered by session processes on this host and serves the unified
// dashboard. Only one hub should run per host; singleton election happens
// by port probe (see internal/hubclient.DiscoverOrSpawn on the session
// side) rather than a file lock.
//
// Grounded on the teacher's sandbox/cmd/server/main.go top-level shape:
// flag-parsed main(), structured startup logging, SIGINT/SIGTERM/SIGQUIT
// handling with a goroutine-dump on SIGQUIT, and best-effort cleanup in a
// deferred shutdown path.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shrijayan/itwillsync/internal/applog"
	"github.com/shrijayan/itwillsync/internal/config"
	"github.com/shrijayan/itwillsync/internal/dashboard"
	"github.com/shrijayan/itwillsync/internal/hubapi"
	"github.com/shrijayan/itwillsync/internal/hubclient"
	"github.com/shrijayan/itwillsync/internal/id"
	"github.com/shrijayan/itwillsync/internal/preview"
	"github.com/shrijayan/itwillsync/internal/registry"
	"github.com/shrijayan/itwillsync/internal/webassets"
)

const autoShutdownDelay = 30 * time.Second

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "info", "status":
			runInfo()
			return
		case "stop":
			runStop()
			return
		}
	}

	internalPort := flag.Int("internal-port", config.DefaultInternalPort, "loopback internal control API port")
	externalPort := flag.Int("external-port", config.DefaultDashboardPort, "externally reachable dashboard port")
	flag.Parse()

	log := applog.New()
	defer log.Sync()

	if err := run(*internalPort, *externalPort, log.Named("hub")); err != nil {
		log.Errorw("hub exited with error", "error", err)
		os.Exit(1)
	}
}

// runInfo implements the `hub info`/`hub status` CLI surface named in
// external interfaces: a thin wrapper over hubclient.QueryHubInfo,
// demonstrating the wiring without the argument-parsing wizard UX that is
// out of scope for this system.
func runInfo() {
	info := hubclient.QueryHubInfo()
	if !info.Running {
		fmt.Println("hub: not running")
		return
	}
	fmt.Printf("hub: running (pid %d, internal port %d, external port %d)\n", info.PID, info.InternalPort, info.ExternalPort)
}

func runStop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := hubclient.StopHub(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "hub stop: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("hub: stopped")
}

func run(internalPort, externalPort int, log *zap.SugaredLogger) error {
	reg := registry.New(id.New)

	masterToken, err := id.NewToken()
	if err != nil {
		return fmt.Errorf("generating master token: %w", err)
	}

	internalLn, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", internalPort))
	if err != nil {
		return fmt.Errorf("binding internal API port: %w", err)
	}
	externalLn, err := net.Listen("tcp", fmt.Sprintf(":%d", externalPort))
	if err != nil {
		return fmt.Errorf("binding dashboard port: %w", err)
	}

	collector := preview.New(reg, reg, nil, log.Named("preview"))

	dash := dashboard.New(dashboard.Config{
		Registry:    reg,
		Preview:     collector,
		MasterToken: masterToken,
		Assets:      http.FileServer(http.FS(webassets.Dashboard())),
		Log:         log.Named("dashboard"),
	})
	collector.SetSink(dash)

	api := hubapi.New(reg, log.Named("api"))

	health := registry.NewHealthChecker(reg, nil, log.Named("healthcheck"))

	go collector.Run()

	if err := config.WriteHubState(config.HubState{
		MasterToken:  masterToken,
		ExternalPort: externalPort,
		InternalPort: internalPort,
		PID:          os.Getpid(),
		StartedAt:    time.Now(),
	}); err != nil {
		log.Warnw("failed writing hub state files", "error", err)
	}
	defer config.RemoveHubState()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		http.Serve(internalLn, api.Handler())
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		http.Serve(externalLn, dash.Handler())
	}()

	go health.Run()
	defer health.Stop()

	shutdown := newAutoShutdown(reg, autoShutdownDelay, log.Named("autoshutdown"))
	go shutdown.run()
	defer shutdown.stop()

	fmt.Printf("hub:ready:%d\n", internalPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGQUIT {
				buf := make([]byte, 1<<20)
				n := runtime.Stack(buf, true)
				log.Infow("SIGQUIT goroutine dump", "stack", string(buf[:n]))
				continue
			}
			log.Infow("shutting down", "signal", sig.String())
			internalLn.Close()
			externalLn.Close()
			return nil
		case <-shutdown.exited:
			log.Infow("auto-shutdown: no sessions registered within the grace period")
			internalLn.Close()
			externalLn.Close()
			return nil
		}
	}
}

// autoShutdown implements the "hub exits 30s after the registry empties,
// unless a session re-registers first" rule from spec.md §5, owned by a
// single goroutine per the concurrency model's no-shared-timer-mutation
// rule.
type autoShutdown struct {
	reg    *registry.Registry
	delay  time.Duration
	log    *zap.SugaredLogger
	exited chan struct{}
	done   chan struct{}
}

func newAutoShutdown(reg *registry.Registry, delay time.Duration, log *zap.SugaredLogger) *autoShutdown {
	return &autoShutdown{reg: reg, delay: delay, log: log, exited: make(chan struct{}), done: make(chan struct{})}
}

func (a *autoShutdown) run() {
	sub := a.reg.Subscribe()
	defer a.reg.Unsubscribe(sub)

	var timer *time.Timer
	var timerCh <-chan time.Time

	arm := func() {
		if timer != nil {
			return
		}
		timer = time.NewTimer(a.delay)
		timerCh = timer.C
	}
	disarm := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerCh = nil
		}
	}

	if a.reg.Size() == 0 {
		arm()
	}

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			switch ev.Type {
			case registry.EventAdded:
				disarm()
			case registry.EventRemoved:
				if a.reg.Size() == 0 {
					arm()
				}
			}
		case <-timerCh:
			close(a.exited)
			return
		case <-a.done:
			disarm()
			return
		}
	}
}

func (a *autoShutdown) stop() {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
}
