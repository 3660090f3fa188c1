package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func pcm(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestPeakLevel(t *testing.T) {
	assert.Equal(t, 0.0, PeakLevel(nil))
	assert.Equal(t, 0.5, PeakLevel(pcm(100, -16384, 2000)))
	assert.Equal(t, 1.0, PeakLevel(pcm(-32768)))
}

func TestApplyGainSaturates(t *testing.T) {
	buf := pcm(1000, -1000, 20000, -20000)
	clipped := ApplyGain(buf, 2)

	assert.Equal(t, 2, clipped)
	assert.Equal(t, pcm(2000, -2000, 32767, -32768), buf)
}

func TestApplyGainUnityLeavesSamples(t *testing.T) {
	buf := pcm(1, 2, 3)
	assert.Equal(t, 0, ApplyGain(buf, 1))
	assert.Equal(t, pcm(1, 2, 3), buf)
}

func TestSamples(t *testing.T) {
	got := Samples(nil, pcm(0, 16384, -32768))
	assert.Equal(t, []float64{0, 0.5, -1}, got)
}

func TestCalculateLevels(t *testing.T) {
	var data LevelData
	assert.Equal(t, Levels{RMS: MinDB, Peak: MinDB}, CalculateLevels(&data))

	ProcessSamples(pcm(32767, -32767, 0, 0), &data)
	levels := CalculateLevels(&data)
	assert.InDelta(t, 0, levels.Peak, 0.01)
	assert.InDelta(t, -3.01, levels.RMS, 0.02)
	assert.Equal(t, 2, levels.Clip)

	data.Reset()
	assert.Equal(t, 0, data.SampleCount)
}

func TestPeakHolder(t *testing.T) {
	p := NewPeakHolder()
	p.SetHoldDuration(time.Second)
	start := time.Unix(0, 0)

	assert.Equal(t, 0.8, p.Update(0.8, start))
	assert.Equal(t, 0.8, p.Update(0.2, start.Add(500*time.Millisecond)))
	assert.Equal(t, 0.3, p.Update(0.3, start.Add(2*time.Second)))
	assert.Equal(t, 0.3, p.Held())

	p.Reset()
	assert.Equal(t, 0.0, p.Held())
}
