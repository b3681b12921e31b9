package dashboard

import "github.com/shrijayan/itwillsync/internal/registry"

// hubFrame is the hub->dashboard JSON envelope.
type hubFrame struct {
	Type      string                  `json:"type"`
	Sessions  []registry.SessionInfo  `json:"sessions,omitempty"`
	Session   *registry.SessionInfo   `json:"session,omitempty"`
	SessionID string                  `json:"sessionId,omitempty"`
	Lines     []string                `json:"lines,omitempty"`
	Metadata  map[string]any          `json:"metadata,omitempty"`
	Operation string                  `json:"operation,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// dashboardFrame is the dashboard->hub JSON envelope.
type dashboardFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Name      string `json:"name,omitempty"`
}
