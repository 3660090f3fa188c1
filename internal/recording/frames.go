package recording

import "github.com/oszuidwest/zwfm-voicegate/internal/audio"

// Appender receives payload bytes.
type Appender interface {
	Append(p []byte) (int, error)
}

// FrameWriter forwards voiced PCM frames to the container and drops the rest.
// Nothing marks the gaps; retained speech is concatenated.
type FrameWriter struct {
	out     Appender
	written int64
	dropped int64
	bytes   int64
}

// NewFrameWriter returns a writer appending to out.
func NewFrameWriter(out Appender) *FrameWriter {
	return &FrameWriter{out: out}
}

// Handle appends frame when voiced and returns the bytes written.
func (f *FrameWriter) Handle(frame []byte, voiced audio.VoiceState) (int, error) {
	if !voiced {
		f.dropped++
		return 0, nil
	}
	n, err := f.out.Append(frame)
	f.bytes += int64(n)
	if err != nil {
		return n, err
	}
	f.written++
	return n, nil
}

// Written returns the number of frames appended.
func (f *FrameWriter) Written() int64 { return f.written }

// Dropped returns the number of unvoiced frames discarded.
func (f *FrameWriter) Dropped() int64 { return f.dropped }

// Bytes returns the number of payload bytes appended.
func (f *FrameWriter) Bytes() int64 { return f.bytes }
