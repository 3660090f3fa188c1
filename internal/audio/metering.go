// Package audio provides the voice-gated capture primitives: voice activity
// detection, the adaptive gain loop, noise profiling, level metering and the
// platform capture command.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// MinDB is the minimum dB level (silence).
	MinDB = -60.0
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
	// ClipThreshold is slightly below max to catch near-clips.
	ClipThreshold int16 = 32760
)

// PeakLevel returns the normalized absolute peak in [0,1] of S16LE mono PCM.
func PeakLevel(pcm []byte) float64 {
	var peak float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := math.Abs(float64(int16(binary.LittleEndian.Uint16(pcm[i:]))))
		if s > peak {
			peak = s
		}
	}
	return min(peak/MaxSampleValue, 1)
}

// ApplyGain scales S16LE mono PCM in place, saturating at the int16 range.
// It returns the number of samples that clipped.
func ApplyGain(pcm []byte, gain float64) int {
	if gain == 1 {
		return 0
	}
	clipped := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) * gain
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
			clipped++
		case v < math.MinInt16:
			v = math.MinInt16
			clipped++
		}
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(v)))
	}
	return clipped
}

// Samples decodes S16LE mono PCM into normalized float samples, appending to dst.
func Samples(dst []float64, pcm []byte) []float64 {
	for i := 0; i+1 < len(pcm); i += 2 {
		dst = append(dst, float64(int16(binary.LittleEndian.Uint16(pcm[i:])))/MaxSampleValue)
	}
	return dst
}

// LevelData holds raw sample accumulator data for level calculation.
type LevelData struct {
	SumSquares  float64
	Peak        float64
	ClipCount   int
	SampleCount int
}

// ProcessSamples accumulates level data from S16LE mono PCM.
func ProcessSamples(buf []byte, data *LevelData) {
	for i := 0; i+1 < len(buf); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(buf[i:]))
		v := float64(sample)
		data.SumSquares += v * v
		if a := math.Abs(v); a > data.Peak {
			data.Peak = a
		}
		if sample >= ClipThreshold || sample <= -ClipThreshold {
			data.ClipCount++
		}
		data.SampleCount++
	}
}

// Levels contains calculated audio levels in dB.
type Levels struct {
	RMS  float64
	Peak float64
	Clip int
}

// CalculateLevels computes RMS and peak levels from accumulated sample data.
func CalculateLevels(data *LevelData) Levels {
	if data.SampleCount == 0 {
		return Levels{RMS: MinDB, Peak: MinDB}
	}

	rms := math.Sqrt(data.SumSquares / float64(data.SampleCount))

	return Levels{
		RMS:  max(20*math.Log10(rms/MaxSampleValue), MinDB),
		Peak: max(20*math.Log10(data.Peak/MaxSampleValue), MinDB),
		Clip: data.ClipCount,
	}
}

// Reset resets accumulators for the next measurement period.
func (d *LevelData) Reset() {
	*d = LevelData{}
}
