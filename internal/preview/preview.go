// Package preview implements the hub's preview collector: for each
// registered session it maintains exactly one outbound read-only
// WebSocket connection, tails the session's own client protocol, and
// distills raw PTY output into a small throttled plain-text summary for
// the dashboard.
//
// Grounded on the other-examples hub.go (joestump-claude-ops) per-session
// circular line buffer and non-blocking fan-out idiom, generalized here
// into a per-session collector state machine, and on internal/ansi for
// the attention scan and control-sequence stripping the spec assigns to
// this component.
package preview

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shrijayan/itwillsync/internal/ansi"
	"github.com/shrijayan/itwillsync/internal/registry"
)

const (
	maxPreviewLines = 5
	maxLineLength   = 80
	throttleDelay   = 500 * time.Millisecond
	initialBackoff  = 1000 * time.Millisecond
	maxBackoff      = 10000 * time.Millisecond
	backoffFactor   = 1.5
)

// Sink receives emitted preview frames. Attention-state changes go to the
// AttentionSetter instead.
type Sink interface {
	EmitPreview(sessionID string, lines []string)
}

// AttentionSetter flags a session's status; satisfied by the registry.
type AttentionSetter interface {
	UpdateStatus(id string, status registry.Status) (registry.SessionInfo, bool)
	GetByID(id string) (registry.SessionInfo, bool)
}

// Collector owns one goroutine per registered session, each maintaining
// an outbound WebSocket subscription to that session's own client
// protocol.
type Collector struct {
	reg  *registry.Registry
	attn AttentionSetter
	sink Sink
	log  *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[string]*sessionCollector
}

// New constructs a Collector. Call Run to start bridging registry
// membership into per-session collectors.
func New(reg *registry.Registry, attn AttentionSetter, sink Sink, log *zap.SugaredLogger) *Collector {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Collector{reg: reg, attn: attn, sink: sink, log: log, sessions: make(map[string]*sessionCollector)}
}

// Run consumes registry events, starting a sessionCollector for each
// session-added and tearing it down on session-removed, until the
// subscription channel is closed.
func (c *Collector) Run() {
	sub := c.reg.Subscribe()
	defer c.reg.Unsubscribe(sub)

	for _, info := range c.reg.GetAll() {
		c.start(info)
	}

	for ev := range sub {
		switch ev.Type {
		case registry.EventAdded:
			c.start(ev.Session)
		case registry.EventRemoved:
			c.stop(ev.ID)
		}
	}
}

func (c *Collector) start(info registry.SessionInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.sessions[info.ID]; exists {
		return
	}
	sc := newSessionCollector(info, c.attn, c, c.log)
	c.sessions[info.ID] = sc
	go sc.run()
}

func (c *Collector) stop(id string) {
	c.mu.Lock()
	sc, ok := c.sessions[id]
	delete(c.sessions, id)
	c.mu.Unlock()
	if ok {
		sc.close()
	}
}

// SetSink sets the destination for emitted preview frames. Exists because
// the hub wires the collector and the dashboard server to each other
// (the dashboard needs the collector as a PreviewSource, the collector
// needs the dashboard as a Sink) and one side must be attached after
// construction to break the cycle.
func (c *Collector) SetSink(sink Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// emit forwards to the currently attached sink, if any.
func (c *Collector) emit(sessionID string, lines []string) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink.EmitPreview(sessionID, lines)
	}
}

// Lines returns the currently buffered preview lines for a session,
// satisfying dashboard.PreviewSource.
func (c *Collector) Lines(sessionID string) ([]string, bool) {
	c.mu.Lock()
	sc, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return sc.snapshotLines(), true
}

// sessionCollector is the per-session state described in spec.md §4.6:
// open socket, preview lines, carry, throttle timer, dirty flag, reconnect
// state. Owned by exactly one goroutine (its own run loop).
type sessionCollector struct {
	info   registry.SessionInfo
	attn   AttentionSetter
	parent *Collector
	log    *zap.SugaredLogger

	mu    sync.Mutex
	lines []string
	carry string

	closed chan struct{}
}

func newSessionCollector(info registry.SessionInfo, attn AttentionSetter, parent *Collector, log *zap.SugaredLogger) *sessionCollector {
	return &sessionCollector{info: info, attn: attn, parent: parent, log: log, closed: make(chan struct{})}
}

func (sc *sessionCollector) close() {
	select {
	case <-sc.closed:
	default:
		close(sc.closed)
	}
}

func (sc *sessionCollector) snapshotLines() []string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	out := make([]string, len(sc.lines))
	copy(out, sc.lines)
	return out
}

// run dials the session's WebSocket, reconnecting with exponential
// backoff until closed.
func (sc *sessionCollector) run() {
	attempt := 0
	for {
		select {
		case <-sc.closed:
			return
		default:
		}

		connected, err := sc.connectAndTail()
		if err != nil {
			sc.log.Debugw("preview collector connection ended", "sessionId", sc.info.ID, "error", err)
		}
		if connected {
			attempt = 0
		}

		select {
		case <-sc.closed:
			return
		default:
		}

		delay := time.Duration(float64(initialBackoff) * pow(backoffFactor, attempt))
		if delay > maxBackoff {
			delay = maxBackoff
		}
		attempt++

		select {
		case <-sc.closed:
			return
		case <-time.After(delay):
		}
	}
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func (sc *sessionCollector) connectAndTail() (connected bool, err error) {
	u := url.URL{
		Scheme:   "ws",
		Host:     "127.0.0.1:" + strconv.Itoa(sc.info.Port),
		Path:     "/ws",
		RawQuery: "token=" + url.QueryEscape(sc.info.Token),
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		select {
		case <-sc.closed:
			conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	var pending *time.Timer
	dirty := false
	var timerMu sync.Mutex

	armThrottle := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if pending != nil {
			return
		}
		pending = time.AfterFunc(throttleDelay, func() {
			timerMu.Lock()
			pending = nil
			shouldEmit := dirty
			dirty = false
			timerMu.Unlock()
			if shouldEmit {
				sc.parent.emit(sc.info.ID, sc.snapshotLines())
			}
		})
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		var frame struct {
			Type string `json:"type"`
			Data string `json:"data"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		if frame.Type != "data" {
			continue
		}

		data := []byte(frame.Data)
		if ansi.HasAttentionSignal(data) {
			sc.attn.UpdateStatus(sc.info.ID, registry.StatusAttention)
		}

		sc.absorb(ansi.Strip(frame.Data))

		timerMu.Lock()
		dirty = true
		timerMu.Unlock()
		armThrottle()
	}
}

// absorb appends clean text to the carry, splits completed lines off, and
// pushes trimmed/truncated lines into the bounded preview list.
func (sc *sessionCollector) absorb(clean string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	combined := sc.carry + clean
	parts := strings.Split(combined, "\n")
	sc.carry = parts[len(parts)-1]

	for _, line := range parts[:len(parts)-1] {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}
		if len(line) > maxLineLength {
			line = line[:maxLineLength] + "..."
		}
		sc.lines = append(sc.lines, line)
	}
	if over := len(sc.lines) - maxPreviewLines; over > 0 {
		sc.lines = sc.lines[over:]
	}
}
