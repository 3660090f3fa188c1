//go:build windows

package util

import "os"

// ShutdownSignals returns the signals that end a recording session.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// StopCapture stops an external capture process.
// Windows cannot deliver SIGINT to a child, so the process is killed and its
// stdout pipe closes.
func StopCapture(p *os.Process) error {
	return p.Kill()
}
