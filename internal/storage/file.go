// Package storage provides the removable-media file abstraction used by the
// container writer, and the upload of finished recordings to S3.
package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/oszuidwest/zwfm-voicegate/internal/types"
	"github.com/oszuidwest/zwfm-voicegate/internal/util"
)

// File is a writable, seekable file on the recording medium.
type File interface {
	io.Writer
	io.Seeker
	// Size returns the current size of the file in bytes.
	Size() (int64, error)
	Close() error
}

// Opener creates a file for writing, truncating any existing content.
type Opener func(path string) (File, error)

// Open creates path for writing on the local filesystem.
// Failures are reported as types.ErrStorageUnavailable.
func Open(path string) (File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, util.WrapKind(types.ErrStorageUnavailable, "create recording directory", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, util.WrapKind(types.ErrStorageUnavailable, "open recording file", err)
	}
	return &osFile{f: f}, nil
}

type osFile struct {
	f *os.File
}

func (o *osFile) Write(p []byte) (int, error) {
	return o.f.Write(p)
}

func (o *osFile) Seek(offset int64, whence int) (int64, error) {
	return o.f.Seek(offset, whence)
}

func (o *osFile) Size() (int64, error) {
	info, err := o.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Close flushes the file to the medium before closing it.
func (o *osFile) Close() error {
	syncErr := o.f.Sync()
	if err := o.f.Close(); err != nil {
		return err
	}
	return syncErr
}
