//go:build !windows

package util

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownSignalsIncludeHangup(t *testing.T) {
	signals := ShutdownSignals()
	assert.Contains(t, signals, syscall.SIGINT)
	assert.Contains(t, signals, syscall.SIGTERM)
	assert.Contains(t, signals, syscall.SIGHUP)
}

func TestStopCaptureInterrupts(t *testing.T) {
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	cmd := exec.Command(path, "30")
	require.NoError(t, cmd.Start())

	require.NoError(t, StopCapture(cmd.Process))

	var exitErr *exec.ExitError
	require.True(t, errors.As(cmd.Wait(), &exitErr))
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.Equal(t, syscall.SIGINT, status.Signal())
}
