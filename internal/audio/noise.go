package audio

import (
	"fmt"
	"math"
	"slices"

	"github.com/oszuidwest/zwfm-voicegate/internal/types"
)

// DefaultNoiseDecayRate is the per-frame decay of the noise profile.
const DefaultNoiseDecayRate = 0.995

// NoiseProfiler tracks a leaky maximum of the magnitude in each spectral bin.
//
// Each update decays every bin by the decay rate and snaps it up to the new
// magnitude when that is larger, so the profile upper-bounds recent energy
// per bin. Profiles start at zero and never go below it.
type NoiseProfiler struct {
	decay   float64
	profile []float64
	frames  int64
}

// NewNoiseProfiler returns a profiler for the given number of bins.
func NewNoiseProfiler(bins int, decay float64) (*NoiseProfiler, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("%w: bin count must be positive, got %d", types.ErrProtocolMisuse, bins)
	}
	if decay < 0 || decay > 1 {
		return nil, fmt.Errorf("%w: decay rate must be within [0,1], got %g", types.ErrProtocolMisuse, decay)
	}
	return &NoiseProfiler{
		decay:   decay,
		profile: make([]float64, bins),
	}, nil
}

// Update folds one spectral frame into the profile.
func (p *NoiseProfiler) Update(frame []float64) error {
	if len(frame) != len(p.profile) {
		return fmt.Errorf("%w: spectral frame has %d bins, profile has %d", types.ErrProtocolMisuse, len(frame), len(p.profile))
	}
	for i, m := range frame {
		if math.IsNaN(m) || m < 0 {
			m = 0
		}
		p.profile[i] = max(p.profile[i]*p.decay, m)
	}
	p.frames++
	return nil
}

// Profile returns a copy of the current per-bin estimate.
func (p *NoiseProfiler) Profile() []float64 {
	return slices.Clone(p.profile)
}

// Mean returns the average magnitude across all bins without copying the profile.
func (p *NoiseProfiler) Mean() float64 {
	if len(p.profile) == 0 {
		return 0
	}
	var sum float64
	for _, m := range p.profile {
		sum += m
	}
	return sum / float64(len(p.profile))
}

// Bins returns the number of bins tracked.
func (p *NoiseProfiler) Bins() int {
	return len(p.profile)
}

// Frames returns how many spectral frames were folded in.
func (p *NoiseProfiler) Frames() int64 {
	return p.frames
}
