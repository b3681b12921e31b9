package dashboard

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shrijayan/itwillsync/internal/connlog"
	"github.com/shrijayan/itwillsync/internal/registry"
)

const sendQueueSize = 64

// dashClient is one connected dashboard WebSocket. Grounded on the
// teacher's ws.Client writer-mailbox pattern.
type dashClient struct {
	conn   *websocket.Conn
	server *Server
	send   chan []byte
	log    *zap.SugaredLogger

	closeOnce sync.Once
}

func newDashClient(conn *websocket.Conn, s *Server) *dashClient {
	return &dashClient{
		conn:   conn,
		server: s,
		send:   make(chan []byte, sendQueueSize),
		log:    connlog.ForConnection(s.log, "dashConnId"),
	}
}

func (c *dashClient) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
	}
}

func (c *dashClient) sendInitialState() {
	sessions := c.server.reg.GetAll()
	raw, _ := json.Marshal(hubFrame{Type: "sessions", Sessions: sessions})
	c.enqueue(raw)

	for _, info := range sessions {
		lines, ok := c.server.preview.Lines(info.ID)
		if !ok || len(lines) == 0 {
			continue
		}
		raw, _ := json.Marshal(hubFrame{Type: "preview", SessionID: info.ID, Lines: lines})
		c.enqueue(raw)
	}
}

func (c *dashClient) close() {
	c.closeOnce.Do(func() {
		c.log.Debugw("dashboard client disconnected")
		c.server.removeClient(c)
		c.conn.Close()
		close(c.send)
	})
}

func (c *dashClient) readPump() {
	defer c.close()

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
		var in dashboardFrame
		if err := json.Unmarshal(raw, &in); err != nil {
			continue
		}
		c.handle(in)
	}
}

func (c *dashClient) handle(in dashboardFrame) {
	switch in.Type {
	case "stop-session":
		c.handleStop(in.SessionID)
	case "rename-session":
		c.handleRename(in.SessionID, in.Name)
	case "get-metadata":
		c.handleMetadata(in.SessionID)
	case "clear-attention":
		c.handleClearAttention(in.SessionID)
	}
}

func (c *dashClient) operationError(op, sessionID, msg string) {
	raw, _ := json.Marshal(hubFrame{Type: "operation-error", Operation: op, SessionID: sessionID, Error: msg})
	c.enqueue(raw)
}

func (c *dashClient) handleStop(sessionID string) {
	info, ok := c.server.reg.GetByID(sessionID)
	if !ok {
		c.operationError("stop-session", sessionID, "session not found")
		return
	}
	if proc, err := os.FindProcess(info.PID); err == nil {
		proc.Signal(syscall.SIGTERM)
	}
	c.server.reg.Unregister(sessionID)
}

func (c *dashClient) handleRename(sessionID, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		c.operationError("rename-session", sessionID, "name must not be empty")
		return
	}
	if _, ok := c.server.reg.Rename(sessionID, name); !ok {
		c.operationError("rename-session", sessionID, "session not found")
	}
}

func (c *dashClient) handleMetadata(sessionID string) {
	info, ok := c.server.reg.GetByID(sessionID)
	if !ok {
		c.operationError("get-metadata", sessionID, "session not found")
		return
	}

	meta := map[string]any{
		"uptimeMs": time.Since(info.CreatedAt).Milliseconds(),
	}
	if rss, ok := residentMemory(info.PID); ok {
		meta["residentMemoryBytes"] = rss
	}

	raw, _ := json.Marshal(hubFrame{Type: "metadata", SessionID: sessionID, Metadata: meta})
	c.enqueue(raw)
}

func (c *dashClient) handleClearAttention(sessionID string) {
	info, ok := c.server.reg.GetByID(sessionID)
	if !ok {
		c.operationError("clear-attention", sessionID, "session not found")
		return
	}
	if info.Status == registry.StatusAttention {
		c.server.reg.UpdateStatus(sessionID, registry.StatusActive)
	}
}

func (c *dashClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
