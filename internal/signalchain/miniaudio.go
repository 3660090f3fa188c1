//go:build cgo

package signalchain

import (
	"context"
	"io"
	"log/slog"

	"github.com/gen2brain/malgo"

	"github.com/oszuidwest/zwfm-voicegate/internal/audio"
	"github.com/oszuidwest/zwfm-voicegate/internal/util"
)

// MiniaudioAvailable reports whether this build can capture through miniaudio.
const MiniaudioAvailable = true

// MiniaudioSource captures from a device through the bundled miniaudio library.
// An empty Device selects the system default; otherwise Device matches a device name.
type MiniaudioSource struct {
	Device string
	Format audio.CaptureFormat
}

// Run opens the capture device and forwards every callback buffer to w.
func (s *MiniaudioSource) Run(ctx context.Context, w io.Writer) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("miniaudio", "message", msg)
	})
	if err != nil {
		return util.WrapError("initialize miniaudio", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(s.Format.Channels)
	cfg.SampleRate = uint32(s.Format.SampleRate)
	cfg.Alsa.NoMMap = 1

	if s.Device != "" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			return util.WrapError("enumerate capture devices", err)
		}
		found := false
		for i := range infos {
			if infos[i].Name() == s.Device {
				cfg.Capture.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			return audio.ErrNoAudioDevice
		}
	}

	errCh := make(chan error, 1)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if _, err := w.Write(input); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		},
		Stop: func() {
			select {
			case errCh <- io.ErrUnexpectedEOF:
			default:
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		return util.WrapError("initialize capture device", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return util.WrapError("start capture device", err)
	}
	slog.Info("starting audio capture", "backend", "miniaudio", "device", s.Device, "sample_rate", s.Format.SampleRate)

	select {
	case <-ctx.Done():
		_ = device.Stop()
		return nil
	case err := <-errCh:
		_ = device.Stop()
		return err
	}
}

// MiniaudioDevices lists capture devices known to miniaudio.
func MiniaudioDevices() ([]audio.Device, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, util.WrapError("initialize miniaudio", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, util.WrapError("enumerate capture devices", err)
	}
	devices := make([]audio.Device, 0, len(infos))
	for i := range infos {
		devices = append(devices, audio.Device{ID: infos[i].Name(), Name: infos[i].Name()})
	}
	return devices, nil
}
