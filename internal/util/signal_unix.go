//go:build !windows

package util

import (
	"os"
	"syscall"
)

// ShutdownSignals returns the signals that end a recording session.
// SIGHUP is included so a session started from a dropped SSH login still finalizes its WAV file.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}
}

// StopCapture asks an external capture process to flush and exit.
// arecord and ffmpeg both close their output cleanly on SIGINT.
func StopCapture(p *os.Process) error {
	return p.Signal(syscall.SIGINT)
}
