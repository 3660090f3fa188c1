// Package signalchain is the software audio signal chain: an amplifier
// stage driven by the pushed gain, a peak analyzer, a spectral analyzer and
// a queue of fixed-size PCM frames.
//
// A capture source writes raw S16LE mono PCM into a Pipeline from its own
// goroutine. The recording loop polls the analyzers and drains the queue
// without blocking.
package signalchain

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/oszuidwest/zwfm-voicegate/internal/audio"
	"github.com/oszuidwest/zwfm-voicegate/internal/types"
)

// DefaultMaxQueuedFrames bounds the PCM queue; roughly three seconds at 44.1 kHz.
const DefaultMaxQueuedFrames = 1024

// minQueuedFrames leaves room for one unread frame next to the one being consumed.
const minQueuedFrames = 2

// Config describes the frame layout of a Pipeline.
type Config struct {
	FrameSize       int // bytes per PCM frame, even
	SpectrumBins    int // magnitude bins per spectral frame, power of two
	MaxQueuedFrames int // oldest frames are dropped beyond this
}

// Stats are cumulative counters of a Pipeline.
type Stats struct {
	Frames   int64 // frames produced
	Overruns int64 // frames dropped because the queue was full
	Clipped  int64 // samples saturated by the amplifier
}

// Pipeline is the polled signal chain. It is safe for one producer and one
// consumer goroutine.
type Pipeline struct {
	frameSize int
	maxQueued int
	analyzer  *audio.SpectrumAnalyzer

	mu       sync.Mutex
	gain     float64
	partial  []byte
	queue    [][]byte
	free     [][]byte
	samples  []float64
	peak     float64
	peakNew  bool
	spectrum []float64
	specNew  bool
	held     bool
	meter    audio.LevelData
	levels   audio.Levels
	stats    Stats
	err      error
}

// New returns a pipeline at unity gain.
func New(cfg Config) (*Pipeline, error) {
	if cfg.FrameSize <= 0 || cfg.FrameSize%2 != 0 {
		return nil, fmt.Errorf("frame size must be a positive even byte count, got %d", cfg.FrameSize)
	}
	analyzer, err := audio.NewSpectrumAnalyzer(cfg.SpectrumBins)
	if err != nil {
		return nil, err
	}
	if cfg.MaxQueuedFrames <= 0 {
		cfg.MaxQueuedFrames = DefaultMaxQueuedFrames
	}
	cfg.MaxQueuedFrames = max(cfg.MaxQueuedFrames, minQueuedFrames)
	return &Pipeline{
		frameSize: cfg.FrameSize,
		maxQueued: cfg.MaxQueuedFrames,
		analyzer:  analyzer,
		gain:      1,
		spectrum:  make([]float64, cfg.SpectrumBins),
	}, nil
}

// Write feeds raw PCM from the capture source. Incomplete trailing bytes are
// kept until the next write completes a frame.
func (p *Pipeline) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return 0, p.err
	}

	p.partial = append(p.partial, b...)
	off := 0
	for len(p.partial)-off >= p.frameSize {
		frame := p.buffer()
		copy(frame, p.partial[off:off+p.frameSize])
		off += p.frameSize
		p.process(frame)
	}
	p.partial = append(p.partial[:0], p.partial[off:]...)
	return len(b), nil
}

// process runs one frame through amplifier, analyzers and queue. Caller holds mu.
func (p *Pipeline) process(frame []byte) {
	p.stats.Clipped += int64(audio.ApplyGain(frame, p.gain))
	p.stats.Frames++

	p.meter.Reset()
	audio.ProcessSamples(frame, &p.meter)
	p.levels = audio.CalculateLevels(&p.meter)

	level := audio.PeakLevel(frame)
	if !p.peakNew || level > p.peak {
		p.peak = level
	}
	p.peakNew = true

	p.samples = audio.Samples(p.samples[:0], frame)
	p.analyzer.Write(p.samples, func(mags []float64) {
		p.spectrum = mags
		p.specNew = true
	})

	if len(p.queue) >= p.maxQueued {
		// The head may be in the consumer's hands; drop the next one instead.
		idx := 0
		if p.held && len(p.queue) > 1 {
			idx = 1
		}
		p.queue = append(p.queue[:idx], p.queue[idx+1:]...)
		p.stats.Overruns++
	}
	p.queue = append(p.queue, frame)
}

func (p *Pipeline) buffer() []byte {
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		return b
	}
	return make([]byte, p.frameSize)
}

func (p *Pipeline) recycle(b []byte) {
	if len(p.free) < p.maxQueued {
		p.free = append(p.free, b)
	}
}

// SetGain sets the amplifier gain applied to subsequent frames.
func (p *Pipeline) SetGain(gain float64) error {
	if math.IsNaN(gain) || gain < 0 {
		return fmt.Errorf("invalid amplifier gain %g", gain)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil && !errors.Is(p.err, io.EOF) {
		return p.err
	}
	p.gain = gain
	return nil
}

// Gain returns the current amplifier gain.
func (p *Pipeline) Gain() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gain
}

// PeakAvailable reports whether a peak was measured since the last ReadPeak.
func (p *Pipeline) PeakAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peakNew
}

// ReadPeak returns the highest peak since the previous read and restarts the measurement.
func (p *Pipeline) ReadPeak() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	peak := p.peak
	p.peak = 0
	p.peakNew = false
	return peak
}

// SpectrumAvailable reports, once, that a new spectral frame is ready for ReadBin.
func (p *Pipeline) SpectrumAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ready := p.specNew
	p.specNew = false
	return ready
}

// ReadBin returns the magnitude of bin i of the latest spectral frame.
func (p *Pipeline) ReadBin(i int) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.spectrum) {
		return 0
	}
	return p.spectrum[i]
}

// Bins returns the number of spectral bins.
func (p *Pipeline) Bins() int {
	return p.analyzer.Bins()
}

// PCMAvailable returns the number of queued frames.
func (p *Pipeline) PCMAvailable() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// ReadFrame returns the oldest queued frame without removing it, or nil.
// The slice stays valid until ReleaseFrame.
func (p *Pipeline) ReadFrame() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	p.held = true
	return p.queue[0]
}

// ReleaseFrame removes the oldest frame and returns its buffer to the pool.
func (p *Pipeline) ReleaseFrame() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held = false
	if len(p.queue) == 0 {
		return
	}
	p.recycle(p.queue[0])
	p.queue[0] = nil
	p.queue = p.queue[1:]
}

// Err returns the error that ended the capture source. io.EOF means the
// source ended cleanly; anything else is a hardware failure.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Fail records the end of the capture source. The first error wins.
func (p *Pipeline) Fail(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, types.ErrHardwareUnavailable) {
		err = fmt.Errorf("%w: %w", types.ErrHardwareUnavailable, err)
	}
	p.err = err
}

// Stats returns the cumulative counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Levels returns the dBFS levels of the most recent amplified frame.
func (p *Pipeline) Levels() audio.Levels {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stats.Frames == 0 {
		return audio.Levels{RMS: audio.MinDB, Peak: audio.MinDB}
	}
	return p.levels
}
