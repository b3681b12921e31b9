package hubapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/shrijayan/itwillsync/internal/registry"
)

func sequentialIDs() registry.IDGenerator {
	n := 0
	return func() (string, error) {
		n++
		return string(rune('a' + n - 1)), nil
	}
}

func newTestServer() *Server {
	reg := registry.New(sequentialIDs())
	return New(reg, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer()
	w := doJSON(t, s, "GET", "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("status field = %v, want ok", resp["status"])
	}
}

func TestRegisterMissingFieldReturns400(t *testing.T) {
	s := newTestServer()
	w := doJSON(t, s, "POST", "/api/sessions", registerRequest{Name: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRegisterAndGet(t *testing.T) {
	s := newTestServer()
	w := doJSON(t, s, "POST", "/api/sessions", registerRequest{
		Name: "shell", Port: 7964, Token: "tok", PID: os.Getpid(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}
	var resp map[string]registry.SessionInfo
	json.Unmarshal(w.Body.Bytes(), &resp)
	id := resp["session"].ID
	if id == "" {
		t.Fatal("expected a session id")
	}

	w = doJSON(t, s, "GET", "/api/sessions/"+id, nil)
	if w.Code != http.StatusOK {
		t.Errorf("GET session status = %d, want 200", w.Code)
	}
}

func TestGetUnknownSessionReturns404(t *testing.T) {
	s := newTestServer()
	w := doJSON(t, s, "GET", "/api/sessions/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHeartbeatAndUnregister(t *testing.T) {
	s := newTestServer()
	w := doJSON(t, s, "POST", "/api/sessions", registerRequest{Name: "x", Port: 1, Token: "t", PID: os.Getpid()})
	var resp map[string]registry.SessionInfo
	json.Unmarshal(w.Body.Bytes(), &resp)
	id := resp["session"].ID

	w = doJSON(t, s, "PUT", "/api/sessions/"+id+"/heartbeat", nil)
	if w.Code != http.StatusOK {
		t.Errorf("heartbeat status = %d, want 200", w.Code)
	}

	w = doJSON(t, s, "DELETE", "/api/sessions/"+id, nil)
	if w.Code != http.StatusOK {
		t.Errorf("delete status = %d, want 200", w.Code)
	}

	w = doJSON(t, s, "GET", "/api/sessions/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", w.Code)
	}
}

func TestRenameEmptyNameReturns400(t *testing.T) {
	s := newTestServer()
	w := doJSON(t, s, "POST", "/api/sessions", registerRequest{Name: "x", Port: 1, Token: "t", PID: os.Getpid()})
	var resp map[string]registry.SessionInfo
	json.Unmarshal(w.Body.Bytes(), &resp)
	id := resp["session"].ID

	w = doJSON(t, s, "PUT", "/api/sessions/"+id+"/rename", renameRequest{Name: ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
