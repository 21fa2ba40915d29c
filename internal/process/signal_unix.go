//go:build unix

package process

import (
	"errors"
	"syscall"
)

// Alive reports whether pid names a running process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Terminate sends SIGTERM to pid.
func Terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
