// Package dashboard implements the hub's externally reachable HTTP+WebSocket
// server: master-token authenticated, rate-limited, bridges registry events
// and preview-collector output to every connected dashboard client and
// relays dashboard-issued session operations back into the hub.
//
// Grounded on the teacher's sandbox/internal/ws (router.go's upgrader and
// origin handling, client.go's writer-mailbox ReadPump/WritePump split)
// generalized from single-PTY fan-out to a control-plane protocol, and on
// sandbox/cmd/server/main.go's use of crypto/subtle.ConstantTimeCompare
// for secret comparison (the teacher's own internal/auth uses plain ==,
// which this system's invariant #5 explicitly forbids).
package dashboard

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shrijayan/itwillsync/internal/procinfo"
	"github.com/shrijayan/itwillsync/internal/ratelimit"
	"github.com/shrijayan/itwillsync/internal/registry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PreviewSource supplies the currently buffered preview lines for a
// session, satisfied by the preview collector.
type PreviewSource interface {
	Lines(sessionID string) ([]string, bool)
}

// Server is the hub's dashboard HTTP+WebSocket frontend.
type Server struct {
	reg         *registry.Registry
	preview     PreviewSource
	masterToken string
	limiter     *ratelimit.Limiter
	assets      http.Handler
	log         *zap.SugaredLogger

	mu      sync.Mutex
	clients map[*dashClient]struct{}
}

// Config configures a dashboard Server.
type Config struct {
	Registry    *registry.Registry
	Preview     PreviewSource
	MasterToken string
	Assets      http.Handler
	Log         *zap.SugaredLogger
}

// New constructs a dashboard Server and starts bridging registry events.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		reg:         cfg.Registry,
		preview:     cfg.Preview,
		masterToken: cfg.MasterToken,
		limiter:     ratelimit.New(),
		assets:      cfg.Assets,
		log:         log,
		clients:     make(map[*dashClient]struct{}),
	}
	go s.bridgeRegistryEvents()
	return s
}

func (s *Server) bridgeRegistryEvents() {
	sub := s.reg.Subscribe()
	for ev := range sub {
		switch ev.Type {
		case registry.EventAdded:
			s.broadcast(hubFrame{Type: "session-added", Session: &ev.Session})
		case registry.EventRemoved:
			s.broadcast(hubFrame{Type: "session-removed", SessionID: ev.ID})
		case registry.EventUpdated:
			s.broadcast(hubFrame{Type: "session-updated", Session: &ev.Session})
		}
	}
}

// EmitPreview broadcasts a throttled preview frame; called by the preview
// collector.
func (s *Server) EmitPreview(sessionID string, lines []string) {
	s.broadcast(hubFrame{Type: "preview", SessionID: sessionID, Lines: lines})
}

func (s *Server) broadcast(frame hubFrame) {
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.enqueue(raw)
	}
}

// Handler builds the routed HTTP handler: auth-exempt static assets, and
// the token-gated dashboard page plus WebSocket upgrade.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/assets/", http.StripPrefix("/assets/", s.assets))
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/", s.handlePage)
	return mux
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}

// checkToken applies the rate limiter and constant-time comparison shared
// by both the HTML page and the WebSocket upgrade path. Returns true if
// the request may proceed.
func (s *Server) checkToken(r *http.Request) (ok bool, blocked bool) {
	ip := clientIP(r)
	if s.limiter.Blocked(ip) {
		return false, true
	}

	token := r.URL.Query().Get("token")
	if !tokensEqual(token, s.masterToken) {
		s.limiter.RecordFailure(ip)
		return false, false
	}
	s.limiter.RecordSuccess(ip)
	return true, false
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	ok, blocked := s.checkToken(r)
	if blocked {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.assets.ServeHTTP(w, r)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ok, blocked := s.checkToken(r)
	if blocked {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("dashboard websocket upgrade failed", "error", err)
		return
	}

	c := newDashClient(conn, s)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	c.sendInitialState()
	go c.readPump()
	go c.writePump()
}

func (s *Server) removeClient(c *dashClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// residentMemory is a small indirection so tests can stub it out.
var residentMemory = procinfo.ResidentMemoryBytes
