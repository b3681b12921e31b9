// Package hubapi implements the hub's internal control API: a loopback-only,
// unauthenticated HTTP service that the CLI uses to register, heartbeat,
// and unregister sessions.
//
// Grounded on the teacher's cmd/server/main.go Server/Handler() pair:
// http.ServeMux with Go 1.22+ method+pattern routes and r.PathValue,
// JSON request/response bodies, 404/400 mapped via http.Error.
package hubapi

import (
	"encoding/json"
	"net/http"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shrijayan/itwillsync/internal/procinfo"
	"github.com/shrijayan/itwillsync/internal/registry"
)

// Server is the hub's internal control API.
type Server struct {
	reg       *registry.Registry
	startedAt time.Time
	log       *zap.SugaredLogger
}

// New constructs a Server bound to reg.
func New(reg *registry.Registry, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{reg: reg, startedAt: time.Now(), log: log}
}

// Handler builds the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleRegister)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleUnregister)
	mux.HandleFunc("PUT /api/sessions/{id}/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("POST /api/sessions/{id}/stop", s.handleStop)
	mux.HandleFunc("PUT /api/sessions/{id}/rename", s.handleRename)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.reg.Size(),
		"uptime":   int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.reg.GetAll()})
}

type registerRequest struct {
	Name  string `json:"name"`
	Port  int    `json:"port"`
	Token string `json:"token"`
	Agent string `json:"agent"`
	Cwd   string `json:"cwd"`
	PID   int    `json:"pid"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Port == 0 || req.Token == "" || req.PID == 0 {
		writeError(w, http.StatusBadRequest, "missing required field")
		return
	}

	info, err := s.reg.Register(registry.Registration{
		Name:  req.Name,
		Port:  req.Port,
		Token: req.Token,
		Agent: req.Agent,
		Cwd:   req.Cwd,
		PID:   req.PID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": info})
}

// sessionMetadata is the GET /api/sessions/:id response shape: the
// registry entry plus best-effort process metadata.
type sessionMetadata struct {
	registry.SessionInfo
	UptimeMs       int64   `json:"uptimeMs"`
	ResidentMemory *uint64 `json:"residentMemoryBytes,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, ok := s.reg.GetByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	meta := sessionMetadata{
		SessionInfo: info,
		UptimeMs:    time.Since(info.CreatedAt).Milliseconds(),
	}
	if rss, ok := procinfo.ResidentMemoryBytes(info.PID); ok {
		meta.ResidentMemory = &rss
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.reg.Unregister(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.reg.UpdateLastSeen(id); !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, ok := s.reg.GetByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	if err := terminateProcess(info.PID); err != nil {
		s.log.Debugw("terminate failed, unregistering anyway", "id", id, "pid", info.PID, "error", err)
	}
	s.reg.Unregister(id)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}

	info, ok := s.reg.Rename(id, req.Name)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session": info})
}

// terminateProcess sends SIGTERM; callers unregister regardless of outcome.
func terminateProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}
