package registry

import (
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	healthCheckInterval  = 15 * time.Second
	heartbeatTrustWindow = 20 * time.Second
	idleThreshold        = 30 * time.Second
)

// ProcessExists reports whether pid refers to a live process via a
// null-signal probe. Swappable for tests.
type ProcessExists func(pid int) bool

// DefaultProcessExists sends signal 0, which performs permission and
// existence checks without actually signaling the process.
func DefaultProcessExists(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// HealthChecker periodically sweeps the registry: a session with a recent
// heartbeat is trusted alive outright; otherwise its process is
// null-signal probed, and a dead process is removed while a slow-but-alive
// one (elapsed > 30s) transitions active→idle.
type HealthChecker struct {
	reg           *Registry
	processExists ProcessExists
	log           *zap.SugaredLogger

	stop chan struct{}
}

// NewHealthChecker constructs a checker. processExists defaults to
// DefaultProcessExists if nil.
func NewHealthChecker(reg *Registry, processExists ProcessExists, log *zap.SugaredLogger) *HealthChecker {
	if processExists == nil {
		processExists = DefaultProcessExists
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &HealthChecker{reg: reg, processExists: processExists, log: log, stop: make(chan struct{})}
}

// Run blocks, sweeping every 15s until Stop is called.
func (h *HealthChecker) Run() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.sweep()
		case <-h.stop:
			return
		}
	}
}

// Stop ends the Run loop.
func (h *HealthChecker) Stop() {
	close(h.stop)
}

func (h *HealthChecker) sweep() {
	now := time.Now()
	for _, info := range h.reg.GetAll() {
		elapsed := now.Sub(info.LastSeen)

		if elapsed <= heartbeatTrustWindow {
			continue
		}

		if h.processExists(info.PID) {
			if elapsed > idleThreshold && info.Status == StatusActive {
				h.reg.UpdateStatus(info.ID, StatusIdle)
			}
			continue
		}

		h.log.Infow("removing session with dead process", "id", info.ID, "pid", info.PID)
		h.reg.Unregister(info.ID)
	}
}
