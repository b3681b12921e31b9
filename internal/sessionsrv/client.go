package sessionsrv

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shrijayan/itwillsync/internal/ansi"
	"github.com/shrijayan/itwillsync/internal/connlog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
	// resumeGrace is how long sendInitialFrame waits for a resume{lastSeq}
	// message before falling back to a full scrollback snapshot.
	resumeGrace = 200 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The session server is reached over loopback or a private network by a
	// client holding the session token in the URL; there is no browser-origin
	// trust boundary to enforce the way the teacher's sandbox does for its
	// multi-tenant relay.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is the server->client JSON envelope (data/resize).
type clientFrame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Seq  int    `json:"seq,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// inboundFrame is the client->server JSON envelope (input/resize/resume).
type inboundFrame struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	Cols    uint16 `json:"cols,omitempty"`
	Rows    uint16 `json:"rows,omitempty"`
	LastSeq int    `json:"lastSeq,omitempty"`
}

func dataFrame(data string, seq int) []byte {
	b, _ := json.Marshal(clientFrame{Type: "data", Data: data, Seq: seq})
	return b
}

func resizeFrame(cols, rows uint16) []byte {
	b, _ := json.Marshal(clientFrame{Type: "resize", Cols: cols, Rows: rows})
	return b
}

// client is one WebSocket-connected remote terminal. Grounded on the
// teacher's ws.Client writer-mailbox pattern: a buffered output channel
// decouples a slow reader's socket from the PTY forwarder.
type client struct {
	conn   *websocket.Conn
	server *Server
	send   chan []byte
	log    *zap.SugaredLogger

	closeOnce sync.Once
	done      chan struct{}

	resumeOnce sync.Once
	resumed    chan struct{}
}

func newClient(conn *websocket.Conn, s *Server) *client {
	return &client{
		conn:    conn,
		server:  s,
		send:    make(chan []byte, sendQueueSize),
		log:     connlog.ForConnection(s.log, "connId"),
		done:    make(chan struct{}),
		resumed: make(chan struct{}),
	}
}

// sendInitialFrame waits briefly for the client's first message. If it is
// a resume{lastSeq} request, handle() answers it directly with the
// requested delta and this pre-captured snapshot is discarded so the
// client never sees the same bytes twice. Otherwise — no resume within the
// grace period, the connection closing first, or some other first message
// — the full snapshot captured at registration time is sent.
func (c *client) sendInitialFrame(snapshot []byte, seq int) {
	select {
	case <-c.resumed:
	case <-c.done:
	case <-time.After(resumeGrace):
		c.enqueue(dataFrame(string(ansi.StripTerminalQueries(snapshot)), seq))
	}
}

// enqueue attempts to hand data to the client's writer. If the client's
// queue is full (a stalled reader), the oldest frame is dropped to keep
// the PTY forwarder from blocking, per the drop-oldest-on-overflow policy.
func (c *client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- frame:
		default:
		}
	}
}

func (c *client) ping() {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.close()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.log.Debugw("client disconnected")
		c.server.removeClient(c)
		c.conn.Close()
		close(c.send)
		close(c.done)
	})
}

func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var in inboundFrame
		if err := json.Unmarshal(raw, &in); err != nil {
			continue // malformed frame: silently dropped
		}
		c.handle(in)
	}
}

func (c *client) handle(in inboundFrame) {
	switch in.Type {
	case "input":
		c.server.cfg.PTY.Write([]byte(in.Data))

	case "resize":
		if in.Cols > 0 && in.Rows > 0 {
			c.server.cfg.PTY.Resize(in.Cols, in.Rows)
			if c.server.cfg.OnResize != nil {
				c.server.cfg.OnResize(in.Cols, in.Rows)
			}
			c.server.broadcastResize(in.Cols, in.Rows)
		}

	case "resume":
		c.resumeOnce.Do(func() { close(c.resumed) })
		data, seq := c.server.scrollback.Since(in.LastSeq)
		c.enqueue(dataFrame(string(ansi.StripTerminalQueries(data)), seq))
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}
