package recording

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-voicegate/internal/storage"
	"github.com/oszuidwest/zwfm-voicegate/internal/types"
	"github.com/oszuidwest/zwfm-voicegate/internal/wav"
)

const frameSize = types.DefaultFrameSize

// frameInterval is the audio time covered by one 256-byte mono 16-bit frame.
var frameSeconds = float64(frameSize/2) / types.DefaultSampleRate

var frameInterval = time.Duration(frameSeconds * float64(time.Second))

type fakeChain struct {
	peak     float64
	peakNew  bool
	spectrum []float64
	specNew  bool
	frames   [][]byte
	released int
	err      error
}

func (c *fakeChain) PeakAvailable() bool { return c.peakNew }
func (c *fakeChain) ReadPeak() float64 {
	c.peakNew = false
	return c.peak
}
func (c *fakeChain) SpectrumAvailable() bool {
	ready := c.specNew
	c.specNew = false
	return ready
}
func (c *fakeChain) ReadBin(i int) float64 { return c.spectrum[i] }
func (c *fakeChain) PCMAvailable() int     { return len(c.frames) }
func (c *fakeChain) ReadFrame() []byte {
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[0]
}
func (c *fakeChain) ReleaseFrame() {
	c.frames = c.frames[1:]
	c.released++
}
func (c *fakeChain) Err() error { return c.err }

// push queues one interval of signal: a peak reading and one PCM frame.
func (c *fakeChain) push(peak float64) {
	c.peak = peak
	c.peakNew = true
	frame := make([]byte, frameSize)
	for i := range frame {
		frame[i] = byte(i)
	}
	c.frames = append(c.frames, frame)
}

type fakeSink struct {
	gains []float64
	err   error
}

func (s *fakeSink) SetGain(g float64) error {
	if s.err != nil {
		return s.err
	}
	s.gains = append(s.gains, g)
	return nil
}

type harness struct {
	session *Session
	chain   *fakeChain
	sink    *fakeSink
	file    *storage.MemFile
	now     time.Time
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		chain: &fakeChain{},
		sink:  &fakeSink{},
		file:  storage.NewMemFile(),
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg := DefaultConfig("recording.wav")
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg, Env{
		Chain: h.chain,
		Gain:  h.sink,
		Open:  func(string) (storage.File, error) { return h.file, nil },
		Now:   func() time.Time { return h.now },
	})
	require.NoError(t, err)
	h.session = s
	return h
}

// runFor steps once per frame interval, pushing a frame with peakAt(step) each time.
func (h *harness) runUntilDone(t *testing.T, peakAt func(step int) float64) (int, error) {
	t.Helper()
	require.NoError(t, h.session.Start(h.now))
	for step := 1; ; step++ {
		h.chain.push(peakAt(step))
		h.now = h.now.Add(frameInterval)
		done, err := h.session.Step(h.now)
		if done || err != nil {
			return step, err
		}
		require.Less(t, step, 1_000_000, "session never finished")
	}
}

func (h *harness) header(t *testing.T) wav.Header {
	t.Helper()
	hdr, err := wav.ReadHeader(h.file)
	require.NoError(t, err)
	return hdr
}

func TestThirtySecondsOfSpeech(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.runUntilDone(t, func(int) float64 { return 0.6 })
	require.NoError(t, err)
	assert.Equal(t, types.SessionStopped, h.session.State())
	assert.True(t, h.file.Closed())

	// 30 s of 44.1 kHz mono 16-bit is 2,646,000 bytes, within one frame.
	hdr := h.header(t)
	assert.InDelta(t, 2_646_000, float64(hdr.DataSize), frameSize)
	assert.Equal(t, uint32(len(h.file.Bytes())-8), hdr.RIFFSize)
	assert.Equal(t, int(hdr.DataSize), len(h.file.Bytes())-wav.HeaderSize)

	st := h.session.Status()
	assert.Equal(t, types.SessionStopped, st.State)
	assert.Equal(t, int64(hdr.DataSize), st.BytesWritten)
	assert.Zero(t, st.FramesDropped)
	assert.Equal(t, int(st.FramesWritten), h.chain.released)
}

func TestAllSilenceWritesEmptyPayload(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Duration = time.Second })

	steps, err := h.runUntilDone(t, func(int) float64 { return 0.01 })
	require.NoError(t, err)

	hdr := h.header(t)
	assert.Zero(t, hdr.DataSize)
	assert.Equal(t, uint32(36), hdr.RIFFSize)
	assert.Len(t, h.file.Bytes(), wav.HeaderSize)
	assert.Equal(t, int64(steps-1), h.session.Status().FramesDropped)
}

func TestOnlyVoicedFramesAreKept(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Duration = 100 * frameInterval })

	_, err := h.runUntilDone(t, func(step int) float64 {
		if step%2 == 0 {
			return 0.5
		}
		return 0
	})
	require.NoError(t, err)

	st := h.session.Status()
	assert.Equal(t, st.FramesWritten*frameSize, int64(h.header(t).DataSize))
	assert.Equal(t, st.FramesWritten+st.FramesDropped, int64(h.chain.released))
	assert.InDelta(t, st.FramesWritten, st.FramesDropped, 1)
}

func TestGainFollowsVoiceActivity(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Duration = 10 * frameInterval })

	_, err := h.runUntilDone(t, func(step int) float64 {
		if step <= 3 {
			return 0.9
		}
		return 0
	})
	require.NoError(t, err)

	require.NotEmpty(t, h.sink.gains)
	assert.Equal(t, 1.0, h.sink.gains[0], "amplifier is primed at the ceiling")
	for _, g := range h.sink.gains {
		assert.GreaterOrEqual(t, g, 0.5)
		assert.LessOrEqual(t, g, 1.0)
	}
}

func TestHangoverKeepsTrailingFrames(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Duration = 11 * frameInterval
		c.VADHangover = 3
	})

	_, err := h.runUntilDone(t, func(step int) float64 {
		if step == 1 {
			return 0.5
		}
		return 0
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), h.session.Status().FramesWritten)
}

func TestNoiseProfileIsFed(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Duration = 5 * frameInterval
		c.SpectrumBins = 4
	})
	h.chain.spectrum = []float64{0.1, 0.2, 0.3, 0.4}
	h.chain.specNew = true

	_, err := h.runUntilDone(t, func(int) float64 { return 0 })
	require.NoError(t, err)

	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4}, h.session.NoiseProfile())
	assert.InDelta(t, 0.25, h.session.Status().NoiseFloor, 1e-12)
}

func TestStorageFailureFailsWithoutFinalize(t *testing.T) {
	full := errors.New("no space left on device")
	h := newHarness(t, nil)
	h.file.FailAfter(wav.HeaderSize+3*frameSize, full)

	_, err := h.runUntilDone(t, func(int) float64 { return 0.7 })
	require.ErrorIs(t, err, types.ErrStorageUnavailable)
	require.ErrorIs(t, err, full)

	assert.Equal(t, types.SessionFailed, h.session.State())
	assert.True(t, h.file.Closed())
	assert.Zero(t, h.header(t).DataSize, "failed sessions keep the provisional header")
	assert.Contains(t, h.session.Status().Error, "no space left")
	assert.ErrorIs(t, h.session.Stop(), types.ErrStorageUnavailable)
}

func TestGainSinkFailureIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start(h.now))

	h.sink.err = errors.New("codec not responding")
	h.chain.push(0.4)
	_, err := h.session.Step(h.now.Add(frameInterval))

	require.ErrorIs(t, err, types.ErrHardwareUnavailable)
	assert.Equal(t, types.SessionFailed, h.session.State())
	assert.Equal(t, 1, h.chain.PCMAvailable(), "frames are not consumed after a fatal error")
}

func TestPrimingFailureFailsStart(t *testing.T) {
	h := newHarness(t, nil)
	h.sink.err = errors.New("codec not responding")

	err := h.session.Start(h.now)
	require.ErrorIs(t, err, types.ErrHardwareUnavailable)
	assert.Equal(t, types.SessionFailed, h.session.State())
	assert.True(t, h.file.Closed())
}

func TestChainFailureIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start(h.now))

	h.chain.err = errors.New("arecord exited")
	_, err := h.session.Step(h.now.Add(time.Millisecond))
	require.ErrorIs(t, err, types.ErrHardwareUnavailable)
	assert.Equal(t, types.SessionFailed, h.session.State())
}

func TestSourceEndDrainsThenStops(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start(h.now))

	h.chain.push(0.5)
	h.chain.push(0.5)
	h.chain.err = io.EOF

	done, err := h.session.Step(h.now.Add(frameInterval))
	require.NoError(t, err)
	assert.False(t, done)

	done, err = h.session.Step(h.now.Add(2 * frameInterval))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, types.SessionStopped, h.session.State())
	assert.Equal(t, uint32(2*frameSize), h.header(t).DataSize)
}

func TestOpenFailureFailsStart(t *testing.T) {
	s, err := New(DefaultConfig("recording.wav"), Env{
		Chain: &fakeChain{},
		Open: func(string) (storage.File, error) {
			return nil, errors.New("card not inserted")
		},
	})
	require.NoError(t, err)

	err = s.Start(time.Now())
	require.ErrorIs(t, err, types.ErrStorageUnavailable)
	assert.Equal(t, types.SessionFailed, s.State())
}

func TestExplicitStopFinalizes(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Start(h.now))

	for i := 1; i <= 4; i++ {
		h.chain.push(0.3)
		_, err := h.session.Step(h.now.Add(time.Duration(i) * frameInterval))
		require.NoError(t, err)
	}

	require.NoError(t, h.session.Stop())
	require.NoError(t, h.session.Stop())
	assert.Equal(t, types.SessionStopped, h.session.State())
	assert.Equal(t, uint32(4*frameSize), h.header(t).DataSize)

	_, err := h.session.Step(h.now.Add(time.Second))
	assert.ErrorIs(t, err, types.ErrProtocolMisuse)
	assert.ErrorIs(t, h.session.Start(h.now), types.ErrProtocolMisuse)
}

func TestDeadlineIsCheckedBeforeProcessing(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Duration = time.Second })
	require.NoError(t, h.session.Start(h.now))

	h.chain.push(0.9)
	done, err := h.session.Step(h.now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Zero(t, h.header(t).DataSize)
	assert.Equal(t, 1, h.chain.PCMAvailable())
}

func TestStopBeforeStartIsMisuse(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.session.Stop(), types.ErrProtocolMisuse)
	assert.Equal(t, types.SessionIdle, h.session.Status().State)
}

func TestNewValidates(t *testing.T) {
	_, err := New(DefaultConfig("x.wav"), Env{})
	assert.ErrorIs(t, err, types.ErrProtocolMisuse)

	cfg := DefaultConfig("")
	_, err = New(cfg, Env{Chain: &fakeChain{}})
	assert.ErrorIs(t, err, types.ErrProtocolMisuse)

	cfg = DefaultConfig("x.wav")
	cfg.Gain.Floor = 2
	_, err = New(cfg, Env{Chain: &fakeChain{}})
	assert.ErrorIs(t, err, types.ErrProtocolMisuse)
}

func TestRunStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recording.wav")
	cfg := DefaultConfig(path)
	cfg.Duration = time.Hour

	s, err := New(cfg, Env{Chain: &fakeChain{}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, types.SessionStopped, s.State())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	hdr, err := wav.ReadHeader(f)
	require.NoError(t, err)
	assert.Zero(t, hdr.DataSize)
}

func TestRunStopsAtDeadline(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "recording.wav"))
	cfg.Duration = 10 * time.Millisecond

	s, err := New(cfg, Env{Chain: &fakeChain{}})
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, types.SessionStopped, s.State())
}
