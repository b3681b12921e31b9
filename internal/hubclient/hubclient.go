// Package hubclient is the session-side half of the hub protocol: probing
// for a running hub, spawning one if absent, registering the session, and
// maintaining its heartbeat for the lifetime of the wrapped process.
//
// Grounded on the teacher's sandbox/cmd/server/main.go startup sequence
// (spawn-and-watch-stdout pattern for its own subprocess orchestration)
// and on its consistent use of explicit per-call http.Client timeouts
// throughout browser.go/mcp_browser.go's outbound requests.
package hubclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shrijayan/itwillsync/internal/config"
)

const (
	healthTimeout     = 2 * time.Second
	registerTimeout   = 5 * time.Second
	unregisterTimeout = 3 * time.Second
	heartbeatTimeout  = 2 * time.Second
	spawnWaitTimeout  = 10 * time.Second
	heartbeatPeriod   = 10 * time.Second
)

// Registration mirrors hubapi's register request body.
type Registration struct {
	Name  string `json:"name"`
	Port  int    `json:"port"`
	Token string `json:"token"`
	Agent string `json:"agent"`
	Cwd   string `json:"cwd"`
	PID   int    `json:"pid"`
}

// Client talks to the hub's internal control API on behalf of one session.
// If no hub could be reached or spawned, Client operates in standalone
// mode: every method becomes a best-effort no-op returning an error the
// caller is expected to treat as non-fatal.
type Client struct {
	internalPort int
	standalone   bool
	sessionID    string
	http         *http.Client
	log          *zap.SugaredLogger
}

// DiscoverOrSpawn probes for a running hub; if none answers, it spawns
// hubBinary detached and waits for it to print "hub:ready:<port>" on
// stdout. Failure to reach or start a hub is non-fatal: the returned
// Client is marked standalone rather than returning an error, matching
// the spec's "session continues without a hub" fallback.
func DiscoverOrSpawn(ctx context.Context, internalPort int, hubBinary string, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Client{internalPort: internalPort, http: &http.Client{}, log: log}

	if c.probeHealth() {
		return c
	}

	if err := c.spawnAndWait(hubBinary); err != nil {
		log.Infow("hub unavailable, continuing standalone", "error", err)
		c.standalone = true
	}
	return c
}

func (c *Client) baseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.internalPort)
}

func (c *Client) probeHealth() bool {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// spawnAndWait launches hubBinary detached and scans its stdout for the
// ready line within spawnWaitTimeout.
func (c *Client) spawnAndWait(hubBinary string) error {
	cmd := exec.Command(hubBinary)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}

	readyLine := make(chan bool, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if strings.HasPrefix(scanner.Text(), "hub:ready:") {
				readyLine <- true
				return
			}
		}
		readyLine <- false
	}()

	select {
	case ok := <-readyLine:
		if !ok {
			return fmt.Errorf("hubclient: hub exited before printing ready line")
		}
		return nil
	case <-time.After(spawnWaitTimeout):
		return fmt.Errorf("hubclient: timed out waiting for hub to become ready")
	}
}

// Standalone reports whether this Client has no working hub connection.
func (c *Client) Standalone() bool { return c.standalone }

// Register posts the session's registration. On success, future
// Heartbeat/Unregister calls target the assigned id.
func (c *Client) Register(reg Registration) error {
	if c.standalone {
		return fmt.Errorf("hubclient: standalone, no hub to register with")
	}

	body, err := json.Marshal(reg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("hubclient: register returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}
	c.sessionID = parsed.Session.ID
	return nil
}

// Heartbeat sends one best-effort heartbeat. Errors are the caller's to
// ignore, per the spec's best-effort propagation policy.
func (c *Client) Heartbeat() error {
	if c.standalone || c.sessionID == "" {
		return fmt.Errorf("hubclient: no active registration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), heartbeatTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL()+"/api/sessions/"+c.sessionID+"/heartbeat", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// RunHeartbeatLoop sends a heartbeat every 10s until ctx is cancelled.
// Failures are logged and swallowed.
func (c *Client) RunHeartbeatLoop(ctx context.Context) {
	if c.standalone {
		return
	}
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Heartbeat(); err != nil {
				c.log.Debugw("heartbeat failed", "error", err)
			}
		}
	}
}

// Unregister best-effort deletes the session from the hub.
func (c *Client) Unregister() {
	if c.standalone || c.sessionID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), unregisterTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL()+"/api/sessions/"+c.sessionID, nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debugw("unregister failed", "error", err)
		return
	}
	resp.Body.Close()
}

// SessionID returns the id assigned at registration, or "" if none.
func (c *Client) SessionID() string { return c.sessionID }

// DefaultInternalPort reads the hub state file to discover the currently
// running hub's internal port, falling back to the configured default.
func DefaultInternalPort() int {
	state, err := config.ReadHubState()
	if err != nil {
		return config.DefaultInternalPort
	}
	return state.InternalPort
}

// HubInfo is the out-of-band "hub info"/"hub status" CLI query: read the
// hub state file and confirm the daemon it describes is actually alive
// (health-probe, not just file presence) before reporting it as running.
type HubInfo struct {
	Running      bool
	InternalPort int
	ExternalPort int
	PID          int
}

// QueryHubInfo reports the running hub's state, consumed by (but not
// implementing) the `hub info`/`hub status` external argument-parsing
// layer named out of scope in the top-level spec.
func QueryHubInfo() HubInfo {
	state, err := config.ReadHubState()
	if err != nil {
		return HubInfo{}
	}

	c := &Client{internalPort: state.InternalPort, http: &http.Client{}, log: zap.NewNop().Sugar()}
	if !c.probeHealth() {
		return HubInfo{}
	}

	return HubInfo{
		Running:      true,
		InternalPort: state.InternalPort,
		ExternalPort: state.ExternalPort,
		PID:          state.PID,
	}
}

// StopHub sends SIGTERM to the hub process named in the state file and
// waits (bounded by ctx) for hub.json to disappear, confirming a clean
// exit rather than just trusting signal delivery.
func StopHub(ctx context.Context) error {
	state, err := config.ReadHubState()
	if err != nil {
		return fmt.Errorf("hubclient: no hub state found: %w", err)
	}

	proc, err := os.FindProcess(state.PID)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("hubclient: signaling hub pid %d: %w", state.PID, err)
	}

	return WaitForHubStateRemoved(ctx)
}

// ParsePort extracts the port suffix from a "hub:ready:<port>" line.
func ParsePort(line string) (int, error) {
	const prefix = "hub:ready:"
	if !strings.HasPrefix(line, prefix) {
		return 0, fmt.Errorf("hubclient: malformed ready line %q", line)
	}
	return strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, prefix)))
}
