package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-voicegate/internal/audio"
	"github.com/oszuidwest/zwfm-voicegate/internal/storage"
	"github.com/oszuidwest/zwfm-voicegate/internal/types"
	"github.com/oszuidwest/zwfm-voicegate/internal/util"
	"github.com/oszuidwest/zwfm-voicegate/internal/wav"
)

// Session is one bounded recording. Start, Step and Stop must be called from
// a single goroutine; Status may be called from anywhere.
type Session struct {
	cfg Config
	env Env
	log *slog.Logger

	vad    *audio.VoiceActivityDetector
	gain   *audio.GainController
	noise  *audio.NoiseProfiler
	peaks  *audio.PeakHolder
	bins   []float64
	file   storage.File
	writer *wav.Writer
	frames *FrameWriter

	state      types.SessionState
	start      time.Time
	last       time.Time
	peak       float64
	noiseFloor float64
	err        error

	status atomic.Pointer[types.SessionStatus]
}

// New builds an idle session.
func New(cfg Config, env Env) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if env.Chain == nil {
		return nil, fmt.Errorf("%w: signal chain is required", types.ErrProtocolMisuse)
	}
	env = env.withDefaults()

	gain, err := audio.NewGainController(cfg.Gain, env.Gain)
	if err != nil {
		return nil, err
	}
	noise, err := audio.NewNoiseProfiler(cfg.SpectrumBins, cfg.NoiseDecay)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:   cfg,
		env:   env,
		log:   env.Logger.With("path", cfg.Path),
		vad:   audio.NewVoiceActivityDetector(cfg.VADThreshold, cfg.VADHangover),
		gain:  gain,
		noise: noise,
		peaks: audio.NewPeakHolder(),
		bins:  make([]float64, cfg.SpectrumBins),
		state: types.SessionIdle,
	}
	s.publish()
	return s, nil
}

// Start opens the container and begins recording at now.
func (s *Session) Start(now time.Time) error {
	if s.state != types.SessionIdle {
		return fmt.Errorf("%w: cannot start a %s session", types.ErrProtocolMisuse, s.state)
	}

	file, err := s.env.Open(s.cfg.Path)
	if err != nil {
		if !errors.Is(err, types.ErrStorageUnavailable) {
			err = util.WrapKind(types.ErrStorageUnavailable, "open recording", err)
		}
		return s.fail(err)
	}
	s.file = file

	writer, err := wav.Create(file, s.cfg.Format)
	if err != nil {
		return s.fail(err)
	}
	s.writer = writer
	s.frames = NewFrameWriter(writer)

	if err := s.gain.Apply(); err != nil {
		return s.fail(err)
	}

	s.start = now
	s.last = now
	s.state = types.SessionRecording
	s.log.Info("session started",
		"duration", s.cfg.Duration,
		"sample_rate", s.cfg.Format.SampleRate,
		"vad_threshold", s.cfg.VADThreshold)
	s.publish()
	return nil
}

// Step runs one polling interval at now. It reports done once the session
// has stopped, either because the duration elapsed or the source ended.
// A non-nil error is fatal and leaves the session failed.
func (s *Session) Step(now time.Time) (done bool, err error) {
	if s.state != types.SessionRecording {
		return true, fmt.Errorf("%w: step in %s state", types.ErrProtocolMisuse, s.state)
	}
	s.last = now

	if now.Sub(s.start) >= s.cfg.Duration {
		return true, s.finish("duration reached")
	}

	chain := s.env.Chain
	if err := chain.Err(); err != nil {
		if !errors.Is(err, io.EOF) {
			if !errors.Is(err, types.ErrHardwareUnavailable) {
				err = util.WrapKind(types.ErrHardwareUnavailable, "capture audio", err)
			}
			return true, s.fail(err)
		}
		if chain.PCMAvailable() == 0 && !chain.PeakAvailable() {
			return true, s.finish("audio source ended")
		}
	}

	if chain.PeakAvailable() {
		peak := audio.ClampPeak(chain.ReadPeak())
		prev := s.vad.State()
		voiced := s.vad.Decide(peak)
		if voiced != prev {
			s.log.Debug("voice activity changed", "state", voiced, "peak", peak)
		}
		if _, err := s.gain.Update(peak, voiced); err != nil {
			return true, s.fail(err)
		}
		s.peak = peak
		s.peaks.Update(peak, now)
	}

	if chain.SpectrumAvailable() {
		for i := range s.bins {
			s.bins[i] = chain.ReadBin(i)
		}
		if err := s.noise.Update(s.bins); err != nil {
			return true, s.fail(err)
		}
		s.noiseFloor = s.noise.Mean()
	}

	voiced := s.vad.State()
	for chain.PCMAvailable() > 0 {
		frame := chain.ReadFrame()
		if frame == nil {
			break
		}
		_, err := s.frames.Handle(frame, voiced)
		chain.ReleaseFrame()
		if err != nil {
			return true, s.fail(err)
		}
	}

	s.publish()
	return false, nil
}

// Stop ends a recording session early and finalizes the file.
// Stopping a stopped session is a no-op.
func (s *Session) Stop() error {
	switch s.state {
	case types.SessionRecording:
		return s.finish("stopped")
	case types.SessionStopped:
		return nil
	case types.SessionFailed:
		return s.err
	default:
		return fmt.Errorf("%w: stop in %s state", types.ErrProtocolMisuse, s.state)
	}
}

// Run starts the session if needed and steps it every poll interval until the
// duration elapses, the source ends, ctx is cancelled or a fatal error occurs.
// Cancelling ctx is an explicit stop: the file is finalized.
func (s *Session) Run(ctx context.Context) error {
	if s.state == types.SessionIdle {
		if err := s.Start(s.env.Now()); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.Stop()
		case <-ticker.C:
			done, err := s.Step(s.env.Now())
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

func (s *Session) finish(reason string) error {
	if err := s.writer.Finalize(); err != nil {
		return s.fail(err)
	}
	if err := s.file.Close(); err != nil {
		s.file = nil
		return s.fail(util.WrapKind(types.ErrStorageUnavailable, "close recording", err))
	}
	s.file = nil

	s.state = types.SessionStopped
	s.log.Info("session stopped",
		"reason", reason,
		"elapsed", s.last.Sub(s.start),
		"bytes", s.frames.Bytes(),
		"frames_written", s.frames.Written(),
		"frames_dropped", s.frames.Dropped())
	s.publish()
	return nil
}

// fail ends the session without finalizing; the header keeps its provisional sizes.
func (s *Session) fail(err error) error {
	s.err = err
	s.state = types.SessionFailed
	if s.file != nil {
		if cerr := s.file.Close(); cerr != nil {
			s.log.Warn("failed to close recording after error", "error", cerr)
		}
		s.file = nil
	}
	s.log.Error("session failed", "error", err)
	s.publish()
	return err
}

func (s *Session) publish() {
	st := &types.SessionStatus{
		State:      s.state,
		Path:       s.cfg.Path,
		DurationMs: s.cfg.Duration.Milliseconds(),
		Voiced:     bool(s.vad.State()),
		Peak:       s.peak,
		PeakHeld:   s.peaks.Held(),
		Gain:       s.gain.Gain(),
		NoiseFloor: s.noiseFloor,
	}
	if !s.start.IsZero() {
		st.ElapsedMs = s.last.Sub(s.start).Milliseconds()
	}
	if s.frames != nil {
		st.BytesWritten = s.frames.Bytes()
		st.FramesWritten = s.frames.Written()
		st.FramesDropped = s.frames.Dropped()
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	s.status.Store(st)
}

// Status returns the latest snapshot.
func (s *Session) Status() types.SessionStatus {
	return *s.status.Load()
}

// State returns the lifecycle state.
func (s *Session) State() types.SessionState {
	return s.state
}

// Err returns the fatal error of a failed session.
func (s *Session) Err() error {
	return s.err
}

// Path returns the output file path.
func (s *Session) Path() string {
	return s.cfg.Path
}

// NoiseProfile returns a copy of the per-bin noise estimate.
func (s *Session) NoiseProfile() []float64 {
	return s.noise.Profile()
}
