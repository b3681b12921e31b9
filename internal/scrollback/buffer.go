// Package scrollback implements the bounded, sequence-numbered output
// buffer that lets a reconnecting session client resynchronize without
// replaying the whole PTY history.
//
// Grounded on the teacher's ring buffer in sandbox/internal/pty/hub.go
// (appendScrollback/Scrollback/ScrollbackRaw), generalized with the
// explicit running seq counter spec.md §3 requires for resume/delta-sync.
package scrollback

import "sync"

// MaxBytes is the scrollback cap: the buffer is trimmed from the front
// whenever it would exceed this many characters.
const MaxBytes = 50_000

// Buffer is a growable byte buffer trimmed from the front at MaxBytes,
// with a monotonically increasing seq counter that survives trimming.
type Buffer struct {
	mu   sync.Mutex
	data []byte
	// head is the number of bytes trimmed off the front; data[0] was the
	// (head+1)-th byte ever written, so its seq is head+1. tail (the running total written) is head+len(data).
	head int
	tail int
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Append adds data to the buffer, trimming from the front if the buffer
// would exceed MaxBytes, and returns the seq of the last byte appended
// (equivalently, the new tail).
func (b *Buffer) Append(data []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, data...)
	b.tail += len(data)
	if over := len(b.data) - MaxBytes; over > 0 {
		b.data = b.data[over:]
		b.head += over
	}
	return b.tail
}

// Tail returns the current running seq (cumulative character count).
func (b *Buffer) Tail() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tail
}

// Snapshot returns a copy of the entire buffered content and the seq of its
// last byte. Safe to hand to a newly connected client.
func (b *Buffer) Snapshot() (data []byte, seq int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, b.tail
}

// Since returns everything buffered with seq strictly greater than lastSeq.
// If lastSeq is older than the buffer's head (the client has fallen behind
// trimming), the entire remaining buffer is returned instead of an error:
// the client observes a gap, not a failure, per spec.md §9.
func (b *Buffer) Since(lastSeq int) (data []byte, seq int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if lastSeq >= b.tail {
		return nil, b.tail
	}
	start := lastSeq - b.head
	if start < 0 {
		start = 0
	}
	out := make([]byte, len(b.data)-start)
	copy(out, b.data[start:])
	return out, b.tail
}
