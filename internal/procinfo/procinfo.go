// Package procinfo looks up best-effort resident-memory figures for a
// session's wrapped process, for the hub's per-session metadata endpoint.
//
// Grounded on the teranos-QNTX pack's use of github.com/shirou/gopsutil/v3
// (pulse/async/system_metrics_linux.go uses the sibling mem package for
// host-wide stats); this extends the same dependency to its process
// subpackage for a single pid's RSS, since no pack repo performs a
// per-process memory lookup to copy directly.
package procinfo

import (
	"github.com/shirou/gopsutil/v3/process"
)

// ResidentMemoryBytes returns pid's resident set size. ok is false if the
// process cannot be inspected (already exited, permission denied, or the
// platform does not support the query) — callers treat this as
// best-effort and omit the field rather than fail the request.
func ResidentMemoryBytes(pid int) (bytes uint64, ok bool) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, false
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0, false
	}
	return info.RSS, true
}
