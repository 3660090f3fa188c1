package audio

import "math"

// DefaultVADThreshold is the peak level above which an interval counts as voiced.
const DefaultVADThreshold = 0.05

// VoiceState is the most recent voice activity decision.
type VoiceState bool

const (
	// Unvoiced marks an interval without speech.
	Unvoiced VoiceState = false
	// Voiced marks an interval with speech.
	Voiced VoiceState = true
)

// String implements fmt.Stringer.
func (v VoiceState) String() string {
	if v {
		return "voiced"
	}
	return "unvoiced"
}

// VoiceActivityDetector classifies sampling intervals from their peak level.
//
// The decision is a single-sample threshold crossing. With a non-zero
// hangover, a voiced decision is held for that many following unvoiced
// intervals, which trades a little trailing silence for less frame flicker.
// It is not safe for concurrent use; the session loop owns it.
type VoiceActivityDetector struct {
	threshold float64
	hangover  int
	remaining int
	state     VoiceState
}

// NewVoiceActivityDetector returns a detector with the given threshold and hangover.
// A hangover of 0 gives the plain single-sample decision.
func NewVoiceActivityDetector(threshold float64, hangover int) *VoiceActivityDetector {
	return &VoiceActivityDetector{
		threshold: threshold,
		hangover:  max(hangover, 0),
	}
}

// Decide classifies one interval. It reports Voiced iff peak > threshold,
// or while a hangover from an earlier voiced interval is still running.
func (d *VoiceActivityDetector) Decide(peak float64) VoiceState {
	if ClampPeak(peak) > d.threshold {
		d.remaining = d.hangover
		d.state = Voiced
		return d.state
	}
	if d.remaining > 0 {
		d.remaining--
		d.state = Voiced
		return d.state
	}
	d.state = Unvoiced
	return d.state
}

// State returns the most recent decision.
func (d *VoiceActivityDetector) State() VoiceState {
	return d.state
}

// Threshold returns the configured threshold.
func (d *VoiceActivityDetector) Threshold() float64 {
	return d.threshold
}

// Reset clears the decision and any running hangover.
func (d *VoiceActivityDetector) Reset() {
	d.remaining = 0
	d.state = Unvoiced
}

// ClampPeak maps a peak reading into [0,1]. NaN reads as silence.
func ClampPeak(peak float64) float64 {
	if math.IsNaN(peak) || peak < 0 {
		return 0
	}
	return min(peak, 1)
}
