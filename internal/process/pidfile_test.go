package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run", "monitor.pid")
	pf := NewPIDFile(path)
	require.NoError(t, pf.Acquire())

	pid, err := pf.Running()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, pf.Release())
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = pf.Running()
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestAcquireReplacesStalePidfile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "monitor.pid")
	// PIDs near the kernel maximum are practically never in use.
	require.NoError(t, os.WriteFile(path, []byte("4194300\n"), 0o644))

	pf := NewPIDFile(path)
	require.NoError(t, pf.Acquire())

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireRefusesLiveOwner(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "monitor.pid")
	parent := os.Getppid()
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(parent)), 0o644))

	err := NewPIDFile(path).Acquire()
	var running *ErrAlreadyRunning
	require.ErrorAs(t, err, &running)
	assert.Equal(t, parent, running.PID)
}

func TestReadMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "monitor.pid")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	_, err := NewPIDFile(path).Read()
	assert.Error(t, err)
}

func TestStopWithoutOwnerRemovesStaleFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "monitor.pid")
	require.NoError(t, os.WriteFile(path, []byte("4194301"), 0o644))

	_, err := NewPIDFile(path).Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}
