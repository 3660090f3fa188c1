//go:build !cgo

package signalchain

import (
	"context"
	"errors"
	"io"

	"github.com/oszuidwest/zwfm-voicegate/internal/audio"
)

// MiniaudioAvailable reports whether this build can capture through miniaudio.
const MiniaudioAvailable = false

var errNoCgo = errors.New("miniaudio backend requires a cgo build")

// MiniaudioSource is unavailable without cgo.
type MiniaudioSource struct {
	Device string
	Format audio.CaptureFormat
}

// Run always fails in builds without cgo.
func (s *MiniaudioSource) Run(context.Context, io.Writer) error {
	return errNoCgo
}

// MiniaudioDevices always fails in builds without cgo.
func MiniaudioDevices() ([]audio.Device, error) {
	return nil, errNoCgo
}
