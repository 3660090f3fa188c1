package audio

import (
	"errors"
	"strconv"
)

// ErrNoAudioDevice is returned when no audio input device is available.
var ErrNoAudioDevice = errors.New("no audio input device found")

// CaptureFormat is the raw PCM layout requested from a capture process.
// Samples are always signed 16-bit little-endian.
type CaptureFormat struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the PCM data rate of the format.
func (f CaptureFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

func (f CaptureFormat) rate() string     { return strconv.Itoa(f.SampleRate) }
func (f CaptureFormat) channels() string { return strconv.Itoa(f.Channels) }

// CaptureConfig defines platform-specific audio capture configuration.
type CaptureConfig struct {
	// Command is the executable name (e.g., "arecord", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// UsesFFmpeg indicates if this platform captures through FFmpeg.
	UsesFFmpeg bool

	// BuildArgs returns the command arguments for capturing from device in format.
	BuildArgs func(device string, format CaptureFormat) []string
}

// BuildCaptureCommand returns the command and arguments for audio capture.
// An empty device falls back to the platform default, then to the first detected device.
func BuildCaptureCommand(device, ffmpegPath string, format CaptureFormat) (cmd string, args []string, err error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultDevice
	}

	// Windows has no safe default.
	if device == "" {
		devices := cfg.Devices()
		if len(devices) == 0 {
			return "", nil, ErrNoAudioDevice
		}
		device = devices[0].ID
	}

	command := cfg.Command
	if cfg.UsesFFmpeg && ffmpegPath != "" {
		command = ffmpegPath
	}

	return command, cfg.BuildArgs(device, format), nil
}
