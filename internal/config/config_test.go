package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDirHonorsEnvOverride(t *testing.T) {
	t.Setenv(envConfigDir, "/tmp/itwillsync-test-dir")
	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}
	if dir != "/tmp/itwillsync-test-dir" {
		t.Errorf("Dir() = %q, want override", dir)
	}
}

func TestLoadNetworkingModeMissingFileIsLocal(t *testing.T) {
	t.Setenv(envConfigDir, t.TempDir())
	if mode := LoadNetworkingMode(); mode != NetworkingLocal {
		t.Errorf("LoadNetworkingMode() = %q, want local", mode)
	}
}

func TestLoadNetworkingModeInvalidJSONIsLocal(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigDir, dir)
	os.WriteFile(filepath.Join(dir, "config.json"), []byte("not json"), 0o600)
	if mode := LoadNetworkingMode(); mode != NetworkingLocal {
		t.Errorf("LoadNetworkingMode() = %q, want local", mode)
	}
}

func TestLoadNetworkingModeTailscale(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigDir, dir)
	os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"networkingMode":"tailscale"}`), 0o600)
	if mode := LoadNetworkingMode(); mode != NetworkingTailscale {
		t.Errorf("LoadNetworkingMode() = %q, want tailscale", mode)
	}
}

func TestWriteAndReadHubState(t *testing.T) {
	t.Setenv(envConfigDir, t.TempDir())

	state := HubState{
		MasterToken:  "abc123",
		ExternalPort: 7962,
		InternalPort: 7963,
		PID:          4242,
		StartedAt:    time.Now().Truncate(time.Second),
	}
	if err := WriteHubState(state); err != nil {
		t.Fatalf("WriteHubState() error = %v", err)
	}

	got, err := ReadHubState()
	if err != nil {
		t.Fatalf("ReadHubState() error = %v", err)
	}
	if got.MasterToken != state.MasterToken || got.PID != state.PID {
		t.Errorf("ReadHubState() = %+v, want %+v", got, state)
	}

	pid, err := ReadHubPID()
	if err != nil {
		t.Fatalf("ReadHubPID() error = %v", err)
	}
	if pid != state.PID {
		t.Errorf("ReadHubPID() = %d, want %d", pid, state.PID)
	}
}

func TestRemoveHubState(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigDir, dir)

	WriteHubState(HubState{PID: 1})
	RemoveHubState()

	if _, err := os.Stat(filepath.Join(dir, "hub.json")); !os.IsNotExist(err) {
		t.Error("hub.json should be removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "hub.pid")); !os.IsNotExist(err) {
		t.Error("hub.pid should be removed")
	}
}

func TestReadHubStateMissingIsError(t *testing.T) {
	t.Setenv(envConfigDir, t.TempDir())
	if _, err := ReadHubState(); err == nil {
		t.Error("ReadHubState() on empty dir should return an error")
	}
}
