// Package config resolves the on-disk configuration directory and reads
// the user's networking-mode preference, plus the hub's state files that
// let a freshly started CLI discover a running hub without a registry
// service.
//
// Grounded on the teacher's convention of resolving a dotfile directory
// under the user's home (sandbox/internal/sessions workspace roots use
// the same os.UserHomeDir + join pattern) and its defer/best-effort JSON
// read/write style throughout cmd/server/main.go.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const envConfigDir = "ITWILLSYNC_CONFIG_DIR"

// NetworkingMode selects how a session's address is advertised.
type NetworkingMode string

const (
	NetworkingLocal     NetworkingMode = "local"
	NetworkingTailscale NetworkingMode = "tailscale"
)

// Dir returns the configuration directory: $ITWILLSYNC_CONFIG_DIR if set,
// else $HOME/.itwillsync. It does not create the directory.
func Dir() (string, error) {
	if dir := os.Getenv(envConfigDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".itwillsync"), nil
}

// ensureDir creates the configuration directory if it does not exist.
func ensureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// appConfig is the on-disk shape of config.json.
type appConfig struct {
	NetworkingMode NetworkingMode `json:"networkingMode"`
}

// LoadNetworkingMode reads config.json and returns its networkingMode
// field. A missing file or invalid JSON yields NetworkingLocal, never an
// error: this setting is advisory and must not block session startup.
func LoadNetworkingMode() NetworkingMode {
	dir, err := Dir()
	if err != nil {
		return NetworkingLocal
	}
	raw, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return NetworkingLocal
	}
	var cfg appConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return NetworkingLocal
	}
	if cfg.NetworkingMode != NetworkingTailscale {
		return NetworkingLocal
	}
	return cfg.NetworkingMode
}

// HubState is the contents of hub.json: everything a CLI process needs to
// talk to an already-running hub.
type HubState struct {
	MasterToken  string    `json:"masterToken"`
	ExternalPort int       `json:"externalPort"`
	InternalPort int       `json:"internalPort"`
	PID          int       `json:"pid"`
	StartedAt    time.Time `json:"startedAt"`
}

// WriteHubState writes hub.pid and hub.json, creating the config
// directory if necessary.
func WriteHubState(state HubState) error {
	dir, err := ensureDir()
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, "hub.pid"), []byte(strconv.Itoa(state.PID)), 0o600); err != nil {
		return err
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "hub.json"), raw, 0o600)
}

// ReadHubState reads hub.json. Returns an error if absent or malformed;
// callers treat that as "no hub running".
func ReadHubState() (HubState, error) {
	dir, err := Dir()
	if err != nil {
		return HubState{}, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, "hub.json"))
	if err != nil {
		return HubState{}, err
	}
	var state HubState
	if err := json.Unmarshal(raw, &state); err != nil {
		return HubState{}, err
	}
	return state, nil
}

// RemoveHubState deletes hub.pid and hub.json. Best-effort: missing files
// are not an error.
func RemoveHubState() {
	dir, err := Dir()
	if err != nil {
		return
	}
	os.Remove(filepath.Join(dir, "hub.pid"))
	os.Remove(filepath.Join(dir, "hub.json"))
}

// ReadHubPID reads hub.pid as a plain decimal integer.
func ReadHubPID() (int, error) {
	dir, err := Dir()
	if err != nil {
		return 0, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, "hub.pid"))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(raw)))
}

// Fixed default ports, per the external interface contract.
const (
	DefaultDashboardPort = 7962
	DefaultInternalPort  = 7963
	DefaultSessionPort   = 7964
)
