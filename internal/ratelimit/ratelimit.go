// Package ratelimit implements the dashboard's per-IP auth rate limiter:
// five failed token comparisons within a window trigger a fixed block,
// cleared by the next successful comparison.
//
// This is deliberately not a token-bucket limiter: streamspace-dev's
// golang.org/x/time/rate-based middleware (api/internal/middleware/ratelimit.go)
// was considered and rejected, since the access pattern here is "N
// consecutive failures trip a block" rather than a steady request rate —
// a counter-plus-block-until timestamp models that directly. Structured
// as a single mutex-guarded map, matching the registry's single-writer
// discipline.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// MaxFailures is the number of failed comparisons that trips a block.
	MaxFailures = 5
	// BlockDuration is how long a tripped IP is blocked.
	BlockDuration = 60 * time.Second
)

// entry tracks one IP's failure count and, once tripped, the time the
// block expires.
type entry struct {
	failures   int
	blockUntil time.Time
}

// Limiter is a mutex-protected per-IP failure tracker.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// New constructs an empty Limiter.
func New() *Limiter {
	return &Limiter{entries: make(map[string]*entry), now: time.Now}
}

// Blocked reports whether ip is currently within its block window.
// Expired blocks are garbage-collected on this check.
func (l *Limiter) Blocked(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[ip]
	if !ok {
		return false
	}
	if e.blockUntil.IsZero() {
		return false
	}
	if l.now().After(e.blockUntil) {
		delete(l.entries, ip)
		return false
	}
	return true
}

// RecordFailure registers a failed token comparison from ip, tripping a
// block once MaxFailures is reached.
func (l *Limiter) RecordFailure(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[ip]
	if !ok {
		e = &entry{}
		l.entries[ip] = e
	}
	e.failures++
	if e.failures >= MaxFailures {
		e.blockUntil = l.now().Add(BlockDuration)
	}
}

// RecordSuccess clears ip's failure counter entirely.
func (l *Limiter) RecordSuccess(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, ip)
}
