// Package recording runs voice-gated recording sessions: it polls the signal
// chain, drives voice detection, gain and noise profiling, and streams voiced
// frames into a WAV container until the duration limit.
package recording

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-voicegate/internal/audio"
	"github.com/oszuidwest/zwfm-voicegate/internal/storage"
	"github.com/oszuidwest/zwfm-voicegate/internal/types"
	"github.com/oszuidwest/zwfm-voicegate/internal/wav"
)

// Session defaults.
const (
	DefaultDuration     = 30000 * time.Millisecond
	DefaultPollInterval = 1 * time.Millisecond
	DefaultFilename     = "recording.wav"
)

// timestampLayout is inserted before the extension of timestamped filenames.
const timestampLayout = "2006-01-02-15-04-05"

// SignalChain is the polled audio front end a session consumes.
type SignalChain interface {
	PeakAvailable() bool
	ReadPeak() float64
	SpectrumAvailable() bool
	ReadBin(i int) float64
	PCMAvailable() int
	ReadFrame() []byte
	ReleaseFrame()
	// Err reports why the capture source ended; io.EOF for a clean end.
	Err() error
}

// Config holds the fixed parameters of one session.
type Config struct {
	Path         string
	Format       wav.Format
	Duration     time.Duration
	PollInterval time.Duration
	VADThreshold float64
	VADHangover  int
	Gain         audio.GainConfig
	SpectrumBins int
	NoiseDecay   float64
}

// DefaultConfig returns the stock parameters writing to path.
func DefaultConfig(path string) Config {
	return Config{
		Path: path,
		Format: wav.Format{
			SampleRate:    types.DefaultSampleRate,
			BitsPerSample: types.DefaultBitsPerSample,
			Channels:      types.DefaultChannels,
		},
		Duration:     DefaultDuration,
		PollInterval: DefaultPollInterval,
		VADThreshold: audio.DefaultVADThreshold,
		Gain: audio.GainConfig{
			Floor:        audio.DefaultGainFloor,
			Ceiling:      audio.DefaultGainCeiling,
			GrowthFactor: audio.DefaultGrowthFactor,
		},
		SpectrumBins: types.DefaultSpectrumBins,
		NoiseDecay:   audio.DefaultNoiseDecayRate,
	}
}

func (c *Config) validate() error {
	switch {
	case c.Path == "":
		return fmt.Errorf("%w: output path is required", types.ErrProtocolMisuse)
	case c.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", types.ErrProtocolMisuse)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval must be positive", types.ErrProtocolMisuse)
	}
	return nil
}

// Env carries the collaborators of a session.
type Env struct {
	Chain  SignalChain
	Gain   audio.GainSink
	Open   storage.Opener
	Now    func() time.Time
	Logger *slog.Logger
}

func (e *Env) withDefaults() Env {
	env := *e
	if env.Open == nil {
		env.Open = storage.Open
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	return env
}

// OutputPath returns where a session started at now writes its file.
// Timestamped names carry the local start time before the extension.
func OutputPath(dir, filename string, timestamped bool, now time.Time) string {
	if filename == "" {
		filename = DefaultFilename
	}
	if timestamped {
		ext := filepath.Ext(filename)
		filename = strings.TrimSuffix(filename, ext) + "-" + now.Format(timestampLayout) + ext
	}
	return filepath.Join(dir, filename)
}
