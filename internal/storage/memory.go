package storage

import (
	"errors"
	"io"
	"slices"
	"sync"
)

// ErrClosed is returned by MemFile operations after Close.
var ErrClosed = errors.New("file already closed")

// MemFile is an in-memory File. It can be told to fail after a number of
// written bytes, which simulates a medium filling up or being pulled.
type MemFile struct {
	mu        sync.Mutex
	data      []byte
	pos       int64
	closed    bool
	failAfter int64
	failErr   error
}

// NewMemFile returns an empty in-memory file.
func NewMemFile() *MemFile {
	return &MemFile{failAfter: -1}
}

// FailAfter makes every write fail with err once n bytes have been written in total.
func (m *MemFile) FailAfter(n int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.failErr = err
}

func (m *MemFile) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	end := m.pos + int64(len(p))
	if m.failAfter >= 0 && end > m.failAfter {
		return 0, m.failErr
	}
	if end > int64(len(m.data)) {
		m.data = append(m.data, make([]byte, end-int64(len(m.data)))...)
	}
	copy(m.data[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *MemFile) Seek(offset int64, whence int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = abs
	return abs, nil
}

// Size returns the length of the written content.
func (m *MemFile) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return int64(len(m.data)), nil
}

// Close marks the file closed. The content stays readable through Bytes.
func (m *MemFile) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MemFile) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Bytes returns a copy of the file content.
func (m *MemFile) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.data)
}

// ReadAt implements io.ReaderAt over the content.
func (m *MemFile) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
