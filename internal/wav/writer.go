package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/oszuidwest/zwfm-voicegate/internal/storage"
	"github.com/oszuidwest/zwfm-voicegate/internal/types"
	"github.com/oszuidwest/zwfm-voicegate/internal/util"
)

// State is the lifecycle position of a Writer.
type State int

const (
	// Opened means the header has not been written yet.
	Opened State = iota
	// Streaming means payload bytes may be appended.
	Streaming
	// Finalized means the size fields are patched. This state is terminal.
	Finalized
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Opened:
		return "opened"
	case Streaming:
		return "streaming"
	case Finalized:
		return "finalized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Writer streams PCM payload into a WAV container on a storage file.
// It is not safe for concurrent use.
type Writer struct {
	file   storage.File
	format Format
	state  State
	bytes  int64
}

// NewWriter returns a writer in the Opened state. Call Start to write the header.
func NewWriter(file storage.File, format Format) (*Writer, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrProtocolMisuse, err)
	}
	return &Writer{file: file, format: format}, nil
}

// Create wraps file in a writer and writes the provisional header.
func Create(file storage.File, format Format) (*Writer, error) {
	w, err := NewWriter(file, format)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

// Start writes the header with a zero data size and moves to Streaming.
func (w *Writer) Start() error {
	if w.state != Opened {
		return fmt.Errorf("%w: header already written", types.ErrProtocolMisuse)
	}
	if _, err := w.file.Write(EncodeHeader(w.format, 0)); err != nil {
		return util.WrapKind(types.ErrStorageUnavailable, "write WAV header", err)
	}
	w.state = Streaming
	return nil
}

// Append writes payload bytes at the end of the container.
func (w *Writer) Append(p []byte) (int, error) {
	if w.state != Streaming {
		return 0, fmt.Errorf("%w: append in %s state", types.ErrProtocolMisuse, w.state)
	}
	n, err := w.file.Write(p)
	w.bytes += int64(n)
	if err != nil {
		return n, util.WrapKind(types.ErrStorageUnavailable, "append WAV payload", err)
	}
	return n, nil
}

// Finalize patches the RIFF and data sizes from the actual file size.
// The file is left open; the caller closes it.
func (w *Writer) Finalize() error {
	if w.state != Streaming {
		return fmt.Errorf("%w: finalize in %s state", types.ErrProtocolMisuse, w.state)
	}

	size, err := w.file.Size()
	if err != nil {
		return util.WrapKind(types.ErrStorageUnavailable, "read WAV size", err)
	}
	if size < HeaderSize || size-8 > math.MaxUint32 {
		return fmt.Errorf("%w: file size %d cannot be described by a WAV header", types.ErrStorageUnavailable, size)
	}

	if err := w.patch(riffSizeOffset, uint32(size-8)); err != nil {
		return err
	}
	if err := w.patch(dataSizeOffset, uint32(size-HeaderSize)); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return util.WrapKind(types.ErrStorageUnavailable, "seek to WAV end", err)
	}

	w.state = Finalized
	return nil
}

func (w *Writer) patch(offset int64, value uint32) error {
	if _, err := w.file.Seek(offset, io.SeekStart); err != nil {
		return util.WrapKind(types.ErrStorageUnavailable, "seek WAV header", err)
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], value)
	if _, err := w.file.Write(b[:]); err != nil {
		return util.WrapKind(types.ErrStorageUnavailable, "patch WAV header", err)
	}
	return nil
}

// State returns the current lifecycle state.
func (w *Writer) State() State {
	return w.state
}

// BytesWritten returns the number of payload bytes appended.
func (w *Writer) BytesWritten() int64 {
	return w.bytes
}

// Format returns the payload format.
func (w *Writer) Format() Format {
	return w.format
}
