package audio

import (
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"
)

// SpectrumAnalyzer turns a stream of samples into magnitude frames with a
// Hann-windowed radix-2 FFT. Frames overlap by half a window, so a 1024-point
// analyzer emits 512 bins every 512 samples.
type SpectrumAnalyzer struct {
	size    int
	hop     int
	window  []float64
	scale   float64
	pending []float64
	work    []complex128
	twiddle []complex128
}

// NewSpectrumAnalyzer returns an analyzer producing bins magnitude values per frame.
// bins must be a power of two; the FFT size is twice the bin count.
func NewSpectrumAnalyzer(bins int) (*SpectrumAnalyzer, error) {
	if bins <= 0 || bits.OnesCount(uint(bins)) != 1 {
		return nil, fmt.Errorf("spectrum bins must be a power of two, got %d", bins)
	}
	size := bins * 2

	window := make([]float64, size)
	var sum float64
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size))
		sum += window[i]
	}

	twiddle := make([]complex128, size/2)
	for k := range twiddle {
		twiddle[k] = cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(size)))
	}

	return &SpectrumAnalyzer{
		size:    size,
		hop:     bins,
		window:  window,
		scale:   2 / sum,
		work:    make([]complex128, size),
		twiddle: twiddle,
	}, nil
}

// Bins returns the number of magnitude bins per frame.
func (a *SpectrumAnalyzer) Bins() int {
	return a.size / 2
}

// Write feeds samples and calls emit for every completed frame.
// The slice passed to emit is freshly allocated and owned by the callee.
func (a *SpectrumAnalyzer) Write(samples []float64, emit func([]float64)) {
	a.pending = append(a.pending, samples...)
	for len(a.pending) >= a.size {
		emit(a.frame(a.pending[:a.size]))
		a.pending = append(a.pending[:0], a.pending[a.hop:]...)
	}
}

// Reset drops buffered samples.
func (a *SpectrumAnalyzer) Reset() {
	a.pending = a.pending[:0]
}

func (a *SpectrumAnalyzer) frame(samples []float64) []float64 {
	for i, s := range samples {
		a.work[i] = complex(s*a.window[i], 0)
	}
	a.fft(a.work)

	mags := make([]float64, a.size/2)
	for k := range mags {
		mags[k] = cmplx.Abs(a.work[k]) * a.scale
	}
	return mags
}

// fft is an in-place iterative radix-2 Cooley-Tukey transform.
func (a *SpectrumAnalyzer) fft(x []complex128) {
	n := len(x)
	shift := 64 - bits.Len(uint(n-1))
	for i := range n {
		j := int(bits.Reverse64(uint64(i)) >> shift)
		if j > i {
			x[i], x[j] = x[j], x[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		step := n / size
		for start := 0; start < n; start += size {
			for k := range half {
				t := a.twiddle[k*step] * x[start+k+half]
				x[start+k+half] = x[start+k] - t
				x[start+k] += t
			}
		}
	}
}
