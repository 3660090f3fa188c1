package signalchain

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Source produces raw S16LE PCM into w until ctx ends or capture fails.
type Source interface {
	Run(ctx context.Context, w io.Writer) error
}

// Run drives src into the pipeline and blocks until it ends. The outcome is
// recorded with Fail so the polling side sees it: a clean end or a cancelled
// ctx reads as io.EOF, anything else as a hardware failure.
func (p *Pipeline) Run(ctx context.Context, src Source) error {
	err := src.Run(ctx, p)
	switch {
	case err == nil, errors.Is(err, io.EOF), ctx.Err() != nil:
		p.Fail(io.EOF)
		return nil
	default:
		slog.Error("audio capture failed", "error", err)
		p.Fail(err)
		return err
	}
}

// ReaderSource reads PCM from an io.Reader, typically stdin.
type ReaderSource struct {
	R       io.Reader
	BufSize int
}

// Run copies from the reader until EOF or until ctx ends between reads.
func (s *ReaderSource) Run(ctx context.Context, w io.Writer) error {
	size := s.BufSize
	if size <= 0 {
		size = 4096
	}
	buf := make([]byte, size)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := s.R.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
