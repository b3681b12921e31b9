// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package pty wraps a single agent process in a pseudo-terminal. It is the
// only platform-specific dependency in the system: everything above it
// (the session server) talks to a PTY purely in terms of byte streams,
// resize calls, and exit notifications.
package pty

import (
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// Signal identifies a signal that can be sent to the wrapped process.
type Signal int

const (
	SIGINT  Signal = Signal(syscall.SIGINT)
	SIGTERM Signal = Signal(syscall.SIGTERM)
	SIGKILL Signal = Signal(syscall.SIGKILL)
)

// PTY wraps a single child process attached to a pseudo-terminal.
type PTY struct {
	file *os.File
	cmd  *exec.Cmd
	pid  int

	mu     sync.Mutex
	closed bool

	doneOnce sync.Once
	doneChan chan struct{}
}

// DefaultShell returns the preferred shell for PTY sessions: $SHELL if set,
// otherwise /bin/bash if present, otherwise /bin/sh.
func DefaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	if _, err := os.Stat("/bin/bash"); err == nil {
		return "/bin/bash"
	}
	return "/bin/sh"
}

// New starts command (a whitespace-split command line; DefaultShell() if
// empty) inside a new PTY of the given size, in the given working
// directory (the caller's cwd if empty).
func New(command string, cols, rows uint16, dir string) (*PTY, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		parts = []string{DefaultShell()}
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	if dir != "" {
		cmd.Dir = dir
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, err
	}

	return &PTY{
		file: ptmx,
		cmd:  cmd,
		pid:  cmd.Process.Pid,
	}, nil
}

// PID returns the OS process id of the wrapped process. Immutable after
// construction.
func (p *PTY) PID() int {
	return p.pid
}

// Read reads PTY output.
func (p *PTY) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, os.ErrClosed
	}
	file := p.file
	p.mu.Unlock()

	return file.Read(buf)
}

// Write sends input to the PTY. Unbuffered: the caller controls framing.
func (p *PTY) Write(data []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, os.ErrClosed
	}
	file := p.file
	p.mu.Unlock()

	return file.Write(data)
}

// Resize changes the PTY window size. Non-fatal if the child has already
// exited: the resize is simply dropped.
func (p *PTY) Resize(cols, rows uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	return pty.Setsize(p.file, &pty.Winsize{Cols: cols, Rows: rows})
}

// Signal sends a signal to the wrapped process.
func (p *PTY) Signal(sig Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.cmd.Process == nil {
		return os.ErrProcessDone
	}
	return p.cmd.Process.Signal(syscall.Signal(sig))
}

// Kill terminates the PTY and its process. Idempotent.
func (p *PTY) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	return p.file.Close()
}

// Done returns a channel that closes when the wrapped process exits. Safe
// to call from multiple goroutines; the underlying cmd.Wait() only runs
// once.
func (p *PTY) Done() <-chan struct{} {
	p.doneOnce.Do(func() {
		p.doneChan = make(chan struct{})
		go func() {
			p.cmd.Wait()
			close(p.doneChan)
		}()
	})
	return p.doneChan
}

// ExitResult describes how the wrapped process terminated, returned once
// Done() has fired.
type ExitResult struct {
	Code   int
	Signal os.Signal
}

// Wait blocks until Done() fires and returns the exit result. Must be
// called at most once concurrently with Done() consumers that also call
// cmd.Wait indirectly; PTY serializes this through doneOnce.
func (p *PTY) Wait() ExitResult {
	<-p.Done()
	state := p.cmd.ProcessState
	if state == nil {
		return ExitResult{Code: -1}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitResult{Code: -1, Signal: ws.Signal()}
	}
	return ExitResult{Code: state.ExitCode()}
}
