//go:build !unix

package process

import "os"

// Alive reports whether pid names a running process. Without signal 0 the
// best available check is whether the process handle can be opened.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

// Terminate kills pid; graceful termination signals are unavailable.
func Terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
