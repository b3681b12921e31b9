package sessionsrv

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shrijayan/itwillsync/internal/pty"
)

func startTestServer(t *testing.T) (*Server, *httptest.Server, string) {
	t.Helper()

	p, err := pty.New("/bin/sh", 80, 24, "")
	if err != nil {
		t.Fatalf("pty.New() error = %v", err)
	}
	t.Cleanup(func() { p.Kill() })

	assets := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html></html>")},
	}

	s := New(Config{
		Token:  "test-token",
		Assets: assets,
		PTY:    p,
	})

	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)

	go s.forwardPTY()

	return s, hs, strings.Replace(hs.URL, "http://", "ws://", 1)
}

func TestUpgradeRejectsBadToken(t *testing.T) {
	_, hs, _ := startTestServer(t)

	resp, err := hs.Client().Get(hs.URL + "/ws?token=wrong")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 401 {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestUpgradeAndEcho(t *testing.T) {
	_, _, wsURL := startTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?token=test-token", nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	// First frame is the (empty) scrollback snapshot.
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var first clientFrame
	json.Unmarshal(raw, &first)
	if first.Type != "data" {
		t.Errorf("first frame type = %q, want %q", first.Type, "data")
	}

	input, _ := json.Marshal(inboundFrame{Type: "input", Data: "echo hi\n"})
	conn.WriteMessage(websocket.TextMessage, input)

	deadline := time.Now().Add(3 * time.Second)
	var seen strings.Builder
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			continue
		}
		var f clientFrame
		json.Unmarshal(raw, &f)
		seen.WriteString(f.Data)
		if strings.Contains(seen.String(), "hi") {
			return
		}
	}
	t.Fatalf("never observed echoed output, got %q", seen.String())
}

func TestReconnectResumeSendsOnlyDelta(t *testing.T) {
	_, _, wsURL := startTestServer(t)

	conn1, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?token=test-token", nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}

	input, _ := json.Marshal(inboundFrame{Type: "input", Data: "echo resumetest\n"})
	conn1.WriteMessage(websocket.TextMessage, input)

	var lastSeq int
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn1.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		_, raw, err := conn1.ReadMessage()
		if err != nil {
			continue
		}
		var f clientFrame
		json.Unmarshal(raw, &f)
		if strings.Contains(f.Data, "resumetest") {
			lastSeq = f.Seq
			break
		}
	}
	if lastSeq == 0 {
		t.Fatal("never observed echoed output on first connection")
	}
	// The PTY echoes the typed line before the command's own output, so keep
	// reading until the stream goes quiet: lastSeq then covers everything
	// this connection has seen.
	for {
		conn1.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		_, raw, err := conn1.ReadMessage()
		if err != nil {
			break
		}
		var f clientFrame
		json.Unmarshal(raw, &f)
		if f.Seq > lastSeq {
			lastSeq = f.Seq
		}
	}
	conn1.Close()

	conn2, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?token=test-token", nil)
	if err != nil {
		t.Fatalf("second dial error = %v", err)
	}
	defer conn2.Close()

	resume, _ := json.Marshal(inboundFrame{Type: "resume", LastSeq: lastSeq})
	conn2.WriteMessage(websocket.TextMessage, resume)

	conn2.SetReadDeadline(time.Now().Add(1 * time.Second))
	_, raw, err := conn2.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() after resume error = %v", err)
	}
	var got clientFrame
	json.Unmarshal(raw, &got)
	if got.Type != "data" {
		t.Errorf("resume reply type = %q, want %q", got.Type, "data")
	}
	if strings.Contains(got.Data, "resumetest") {
		t.Errorf("resume delta replayed already-seen data: %q", got.Data)
	}

	// The full-snapshot fallback must not also arrive once a resume has
	// been handled: confirm no second frame shows up within the grace
	// window that follows it.
	conn2.SetReadDeadline(time.Now().Add(400 * time.Millisecond))
	if _, _, err := conn2.ReadMessage(); err == nil {
		t.Error("expected no additional frame after the resume delta, got one")
	}
}

func TestTokensEqual(t *testing.T) {
	if !tokensEqual("abc", "abc") {
		t.Error("expected equal tokens to match")
	}
	if tokensEqual("abc", "abd") {
		t.Error("expected different tokens to not match")
	}
	if tokensEqual("abc", "abcd") {
		t.Error("expected different-length tokens to not match")
	}
}
