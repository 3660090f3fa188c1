// Package wav writes canonical PCM WAV files in a single streaming pass.
//
// The header is written up front with a zero data size and patched in place
// once the payload length is known, so the writer never buffers audio.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the length of the canonical RIFF/WAVE header.
const HeaderSize = 44

// Byte offsets of the size fields patched on finalize.
const (
	riffSizeOffset = 4
	dataSizeOffset = 40
)

const pcmFormatTag = 1

// ErrInvalidHeader is returned when a file does not start with a canonical PCM header.
var ErrInvalidHeader = errors.New("invalid WAV header")

// Format describes the PCM layout of the payload.
type Format struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
}

// BlockAlign returns the size in bytes of one sample across all channels.
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// ByteRate returns the payload bytes per second.
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// Validate reports whether the format can be written to a canonical header.
func (f Format) Validate() error {
	switch {
	case f.SampleRate <= 0:
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	case f.Channels <= 0:
		return fmt.Errorf("channel count must be positive, got %d", f.Channels)
	case f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0:
		return fmt.Errorf("bits per sample must be a positive multiple of 8, got %d", f.BitsPerSample)
	}
	return nil
}

// rawHeader mirrors the on-disk layout field by field.
type rawHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // payload bytes
}

// Header is a decoded canonical WAV header.
type Header struct {
	Format
	RIFFSize uint32
	DataSize uint32
}

// Duration returns the payload length in seconds.
func (h Header) Duration() float64 {
	if h.ByteRate() == 0 {
		return 0
	}
	return float64(h.DataSize) / float64(h.ByteRate())
}

// EncodeHeader returns the 44-byte header for a payload of dataSize bytes.
func EncodeHeader(f Format, dataSize uint32) []byte {
	raw := rawHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     HeaderSize - 8 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   pcmFormatTag,
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.ByteRate()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: uint16(f.BitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	// Writes to a bytes.Buffer of a fixed-size struct cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, raw)
	return buf.Bytes()
}

// ReadHeader decodes and checks the canonical header at the start of r.
func ReadHeader(r io.ReaderAt) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	var raw rawHeader
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &raw); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	switch {
	case string(raw.ChunkID[:]) != "RIFF":
		return Header{}, fmt.Errorf("%w: missing RIFF tag", ErrInvalidHeader)
	case string(raw.Format[:]) != "WAVE":
		return Header{}, fmt.Errorf("%w: missing WAVE tag", ErrInvalidHeader)
	case string(raw.Subchunk1ID[:]) != "fmt " || raw.Subchunk1Size != 16:
		return Header{}, fmt.Errorf("%w: missing PCM fmt chunk", ErrInvalidHeader)
	case raw.AudioFormat != pcmFormatTag:
		return Header{}, fmt.Errorf("%w: audio format %d is not PCM", ErrInvalidHeader, raw.AudioFormat)
	case string(raw.Subchunk2ID[:]) != "data":
		return Header{}, fmt.Errorf("%w: missing data chunk", ErrInvalidHeader)
	}

	h := Header{
		Format: Format{
			SampleRate:    int(raw.SampleRate),
			BitsPerSample: int(raw.BitsPerSample),
			Channels:      int(raw.NumChannels),
		},
		RIFFSize: raw.ChunkSize,
		DataSize: raw.Subchunk2Size,
	}
	if uint32(h.ByteRate()) != raw.ByteRate || uint16(h.BlockAlign()) != raw.BlockAlign {
		return Header{}, fmt.Errorf("%w: inconsistent byte rate or block align", ErrInvalidHeader)
	}
	return h, nil
}
