package audio

import (
	"fmt"
	"math"

	"github.com/oszuidwest/zwfm-voicegate/internal/types"
	"github.com/oszuidwest/zwfm-voicegate/internal/util"
)

// Gain controller defaults.
const (
	DefaultGainFloor    = 0.5
	DefaultGainCeiling  = 1.0
	DefaultGrowthFactor = 1.05
)

// GainSink receives the gain to apply on the amplification stage.
type GainSink interface {
	SetGain(gain float64) error
}

// GainConfig holds the bounds and recovery rate of the gain loop.
type GainConfig struct {
	Floor        float64 // lowest gain ever applied
	Ceiling      float64 // highest gain ever applied, in both branches
	GrowthFactor float64 // per-interval multiplier during silence
}

// GainController computes the amplifier gain from the peak level and the
// voice decision, and pushes every new value to its sink.
//
// While voiced, the gain normalizes the peak toward full scale (1/peak),
// bounded to [Floor, Ceiling]. While unvoiced, it recovers slowly toward
// the ceiling by GrowthFactor per interval. It is not safe for concurrent use.
type GainController struct {
	cfg  GainConfig
	gain float64
	sink GainSink
}

// NewGainController returns a controller starting at the ceiling gain.
func NewGainController(cfg GainConfig, sink GainSink) (*GainController, error) {
	if cfg.Floor <= 0 || cfg.Ceiling < cfg.Floor {
		return nil, fmt.Errorf("%w: gain bounds [%g, %g] are invalid", types.ErrProtocolMisuse, cfg.Floor, cfg.Ceiling)
	}
	if cfg.GrowthFactor < 1 {
		return nil, fmt.Errorf("%w: growth factor %g is below 1", types.ErrProtocolMisuse, cfg.GrowthFactor)
	}
	return &GainController{cfg: cfg, gain: cfg.Ceiling, sink: sink}, nil
}

// Next returns the gain that follows previous for this interval. It has no side effects.
func (c *GainController) Next(peak float64, voiced VoiceState, previous float64) float64 {
	var next float64
	if voiced {
		p := ClampPeak(peak)
		if p == 0 {
			next = c.cfg.Ceiling
		} else {
			next = max(c.cfg.Floor, 1.0/p)
		}
	} else {
		next = min(c.cfg.Ceiling, previous*c.cfg.GrowthFactor)
	}
	if math.IsNaN(next) {
		next = c.cfg.Ceiling
	}
	return min(max(next, c.cfg.Floor), c.cfg.Ceiling)
}

// Update advances the gain for one interval and pushes it to the sink.
// A sink failure is returned as types.ErrHardwareUnavailable.
func (c *GainController) Update(peak float64, voiced VoiceState) (float64, error) {
	c.gain = c.Next(peak, voiced, c.gain)
	if c.sink != nil {
		if err := c.sink.SetGain(c.gain); err != nil {
			return c.gain, util.WrapKind(types.ErrHardwareUnavailable, "set amplifier gain", err)
		}
	}
	return c.gain, nil
}

// Apply pushes the current gain without changing it, used to prime the amplifier.
func (c *GainController) Apply() error {
	if c.sink == nil {
		return nil
	}
	if err := c.sink.SetGain(c.gain); err != nil {
		return util.WrapKind(types.ErrHardwareUnavailable, "set amplifier gain", err)
	}
	return nil
}

// Gain returns the current gain.
func (c *GainController) Gain() float64 {
	return c.gain
}

// Config returns the controller bounds.
func (c *GainController) Config() GainConfig {
	return c.cfg
}
