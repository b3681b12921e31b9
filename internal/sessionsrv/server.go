package sessionsrv

import (
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shrijayan/itwillsync/internal/pty"
	"github.com/shrijayan/itwillsync/internal/scrollback"
)

// Config configures a session Server.
type Config struct {
	// LocalhostOnly binds to 127.0.0.1 instead of all interfaces.
	LocalhostOnly bool
	// StartPort is the first port tried; the server scans upward until a
	// bind succeeds.
	StartPort int
	// Token must be presented as the ?token= query parameter on every
	// WebSocket upgrade.
	Token string
	// Assets is the bundled browser terminal, served at "/".
	Assets fs.FS
	// PTY is the process this session wraps.
	PTY *pty.PTY
	// OnResize, if set, is called whenever a client requests a resize so
	// callers can track current dimensions.
	OnResize func(cols, rows uint16)
	Log      *zap.SugaredLogger
}

// Server is a single session's HTTP+WebSocket frontend: it owns one PTY,
// one scrollback buffer, and the set of currently connected clients.
//
// Grounded on the teacher's sandbox/internal/ws router+client pair,
// collapsed to a single session (this spec has no multi-session routing
// or turn-taking inside one server — each session is its own process).
type Server struct {
	cfg Config
	log *zap.SugaredLogger

	scrollback *scrollback.Buffer
	assets     *assetServer

	mu      sync.Mutex
	clients map[*client]struct{}

	listener net.Listener
	port     int
}

// New constructs a Server. It does not bind a listener; call Listen.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		cfg:        cfg,
		log:        log,
		scrollback: scrollback.New(),
		assets:     newAssetServer(cfg.Assets),
		clients:    make(map[*client]struct{}),
	}
}

// Listen binds a TCP listener, scanning upward from cfg.StartPort until a
// bind succeeds. Returns the bound port.
func (s *Server) Listen() (int, error) {
	host := ""
	if s.cfg.LocalhostOnly {
		host = "127.0.0.1"
	}

	port := s.cfg.StartPort
	for {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
		if err == nil {
			s.listener = ln
			s.port = port
			return port, nil
		}
		port++
		if port-s.cfg.StartPort > 1000 {
			return 0, fmt.Errorf("sessionsrv: no free port found starting at %d: %w", s.cfg.StartPort, err)
		}
	}
}

// Port returns the bound port. Valid only after Listen.
func (s *Server) Port() int { return s.port }

// Handler builds the HTTP handler: asset server plus the WebSocket
// upgrade endpoint. Split out from Serve so tests can drive it with
// httptest without a real listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", http.HandlerFunc(s.handleUpgrade))
	mux.Handle("/", s.assets)
	return mux
}

// Serve runs the HTTP server on the bound listener until it is closed.
// It also starts the PTY forwarder and ping loop.
func (s *Server) Serve() error {
	go s.forwardPTY()
	go s.pingLoop()

	return http.Serve(s.listener, s.Handler())
}

// Close closes the listener and disconnects every client.
func (s *Server) Close() error {
	s.mu.Lock()
	for c := range s.clients {
		c.close()
	}
	s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// forwardPTY reads PTY output, appends it to scrollback, and fans it out
// to every connected client in order. Append and the client fan-out happen
// under the same s.mu critical section that registerClient uses, so a
// newly connecting client can never miss a chunk that lands between "what
// the snapshot captured" and "who is registered to receive broadcasts" —
// it is always one or the other, never neither.
func (s *Server) forwardPTY() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.cfg.PTY.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			s.mu.Lock()
			seq := s.scrollback.Append(chunk)
			frame := dataFrame(string(chunk), seq)
			for c := range s.clients {
				c.enqueue(frame)
			}
			s.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) broadcastResize(cols, rows uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.enqueue(resizeFrame(cols, rows))
	}
}

// pingLoop pings every client every 30s and drops any that haven't
// answered the previous ping.
func (s *Server) pingLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		for c := range s.clients {
			go c.ping()
		}
		s.mu.Unlock()
	}
}

// registerClient adds c to the client set and takes a scrollback snapshot
// in the same critical section forwardPTY uses for append+broadcast. That
// makes registration and the snapshot atomic relative to incoming PTY
// output: any chunk is either already in the returned snapshot or will be
// delivered to c live via the broadcast loop, never dropped in between.
func (s *Server) registerClient(c *client) (snapshot []byte, seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, seq = s.scrollback.Snapshot()
	s.clients[c] = struct{}{}
	return snapshot, seq
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// handleUpgrade authenticates the token query parameter and, on success,
// upgrades to a WebSocket and spins up a client. It does not push the
// scrollback snapshot immediately: a reconnecting client's first message
// is normally resume{lastSeq}, and sending the full snapshot first would
// race it, producing duplicated replay. sendInitialFrame instead waits
// briefly for that first message before deciding what to send.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if !tokensEqual(token, s.cfg.Token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, s)
	snapshot, seq := s.registerClient(c)

	go c.readPump()
	go c.writePump()
	go c.sendInitialFrame(snapshot, seq)
}
