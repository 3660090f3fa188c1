package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-voicegate/internal/types"
)

func TestOpenWriteSeekSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "recording.wav")

	f, err := Open(path)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello world"))
	require.NoError(t, err)
	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = f.Write([]byte("J"))
	require.NoError(t, err)

	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Jello world", string(data))
}

func TestOpenTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recording.wav")
	require.NoError(t, os.WriteFile(path, []byte("old content"), 0o644))

	f, err := Open(path)
	require.NoError(t, err)
	size, err := f.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
	require.NoError(t, f.Close())
}

func TestOpenUnavailableMedium(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := Open(filepath.Join(blocker, "recording.wav"))
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
}

func TestMemFile(t *testing.T) {
	m := NewMemFile()

	_, err := m.Write([]byte("abcdef"))
	require.NoError(t, err)
	pos, err := m.Seek(2, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)
	_, err = m.Write([]byte("XY"))
	require.NoError(t, err)
	_, err = m.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	_, err = m.Write([]byte("g"))
	require.NoError(t, err)

	assert.Equal(t, "abXYefg", string(m.Bytes()))
	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(7), size)

	buf := make([]byte, 3)
	n, err := m.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "efg", string(buf[:n]))

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
	assert.ErrorIs(t, m.Close(), ErrClosed)
	_, err = m.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemFileFailAfter(t *testing.T) {
	full := errors.New("no space left on device")
	m := NewMemFile()
	m.FailAfter(4, full)

	_, err := m.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = m.Write([]byte("de"))
	assert.ErrorIs(t, err, full)

	_, err = m.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = m.Write([]byte("A"))
	assert.NoError(t, err)
}
