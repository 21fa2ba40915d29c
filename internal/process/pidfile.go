// Package process manages the pidfile used to start, stop and inspect a
// background monitor.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNotRunning means no live process owns the pidfile.
var ErrNotRunning = errors.New("monitor is not running")

// ErrAlreadyRunning reports the pid of the live owner.
type ErrAlreadyRunning struct {
	PID  int
	Path string
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("monitor already running (PID %d); remove %s if it is stale", e.PID, e.Path)
}

// PIDFile records the pid of the running monitor.
type PIDFile struct {
	path string
	held bool
}

// NewPIDFile returns a handle for path. Nothing is written yet.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the file location.
func (p *PIDFile) Path() string {
	return p.path
}

// Acquire writes the current pid. A pidfile left by a dead process is
// replaced; one owned by a live process is an error.
func (p *PIDFile) Acquire() error {
	if p.held {
		return nil
	}
	if pid, err := p.Read(); err == nil && pid != os.Getpid() && Alive(pid) {
		return &ErrAlreadyRunning{PID: pid, Path: p.path}
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	content := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(p.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}
	p.held = true
	return nil
}

// Release removes the pidfile if this process wrote it.
func (p *PIDFile) Release() error {
	if !p.held {
		return nil
	}
	p.held = false
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pidfile: %w", err)
	}
	return nil
}

// Read returns the recorded pid.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed pidfile %s", p.path)
	}
	return pid, nil
}

// Running returns the pid of the live owner, or ErrNotRunning.
func (p *PIDFile) Running() (int, error) {
	pid, err := p.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotRunning
		}
		return 0, err
	}
	if !Alive(pid) {
		return 0, ErrNotRunning
	}
	return pid, nil
}

// Stop asks the owner to shut down and waits until it exits or ctx ends.
// A stale pidfile is removed.
func (p *PIDFile) Stop(ctx context.Context) (int, error) {
	pid, err := p.Running()
	if errors.Is(err, ErrNotRunning) {
		_ = os.Remove(p.path)
		return 0, err
	}
	if err != nil {
		return 0, err
	}

	if err := Terminate(pid); err != nil {
		return pid, fmt.Errorf("signal %d: %w", pid, err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for Alive(pid) {
		select {
		case <-ctx.Done():
			return pid, fmt.Errorf("waiting for %d to exit: %w", pid, ctx.Err())
		case <-ticker.C:
		}
	}
	return pid, nil
}
