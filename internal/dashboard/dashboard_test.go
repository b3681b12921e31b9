package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shrijayan/itwillsync/internal/registry"
)

type fakePreview struct{}

func (fakePreview) Lines(sessionID string) ([]string, bool) { return nil, false }

func sequentialIDs() registry.IDGenerator {
	n := 0
	return func() (string, error) {
		n++
		return string(rune('a' + n - 1)), nil
	}
}

func startTestDashboard(t *testing.T) (*Server, *httptest.Server, string) {
	t.Helper()
	reg := registry.New(sequentialIDs())
	s := New(Config{
		Registry:    reg,
		Preview:     fakePreview{},
		MasterToken: "master-secret",
		Assets:      http.NotFoundHandler(),
	})
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	return s, hs, strings.Replace(hs.URL, "http://", "ws://", 1)
}

func TestDashboardRejectsBadToken(t *testing.T) {
	_, hs, _ := startTestDashboard(t)
	resp, err := hs.Client().Get(hs.URL + "/?token=wrong")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestDashboardRateLimitsAfterFiveFailures(t *testing.T) {
	_, hs, _ := startTestDashboard(t)
	for i := 0; i < 5; i++ {
		resp, _ := hs.Client().Get(hs.URL + "/?token=wrong")
		resp.Body.Close()
	}
	resp, err := hs.Client().Get(hs.URL + "/?token=wrong")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
}

func TestDashboardWebSocketSendsInitialSessions(t *testing.T) {
	s, _, wsURL := startTestDashboard(t)
	s.reg.Register(registry.Registration{Name: "shell", Port: 1, Token: "t", PID: 1})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?token=master-secret", nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var frame hubFrame
	json.Unmarshal(raw, &frame)
	if frame.Type != "sessions" || len(frame.Sessions) != 1 {
		t.Errorf("initial frame = %+v, want one session", frame)
	}
}

func TestDashboardBroadcastsRegistryEvents(t *testing.T) {
	s, _, wsURL := startTestDashboard(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?token=master-secret", nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	conn.ReadMessage() // initial "sessions" frame

	s.reg.Register(registry.Registration{Name: "shell", Port: 1, Token: "t", PID: 1})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var frame hubFrame
	json.Unmarshal(raw, &frame)
	if frame.Type != "session-added" {
		t.Errorf("frame type = %q, want session-added", frame.Type)
	}
}

func TestDashboardClearAttention(t *testing.T) {
	s, _, wsURL := startTestDashboard(t)
	info, _ := s.reg.Register(registry.Registration{Name: "shell", Port: 1, Token: "t", PID: 1})
	s.reg.UpdateStatus(info.ID, registry.StatusAttention)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?token=master-secret", nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	conn.ReadMessage() // initial sessions

	clear, _ := json.Marshal(dashboardFrame{Type: "clear-attention", SessionID: info.ID})
	conn.WriteMessage(websocket.TextMessage, clear)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := s.reg.GetByID(info.ID)
		if got.Status == registry.StatusActive {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("status did not clear to active")
}
