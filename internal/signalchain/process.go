package signalchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/oszuidwest/zwfm-voicegate/internal/audio"
	"github.com/oszuidwest/zwfm-voicegate/internal/types"
	"github.com/oszuidwest/zwfm-voicegate/internal/util"
)

// ProcessSource captures through an external process (arecord or ffmpeg)
// that writes raw PCM to stdout.
type ProcessSource struct {
	Command string
	Args    []string
}

// NewProcessSource builds the platform capture command for device.
func NewProcessSource(device, ffmpegPath string, format audio.CaptureFormat) (*ProcessSource, error) {
	cmd, args, err := audio.BuildCaptureCommand(device, ffmpegPath, format)
	if err != nil {
		return nil, err
	}
	return &ProcessSource{Command: cmd, Args: args}, nil
}

// Run starts the process and streams its stdout into w until it exits.
// Cancelling ctx stops the process with a graceful signal first.
func (s *ProcessSource) Run(ctx context.Context, w io.Writer) error {
	slog.Info("starting audio capture", "command", s.Command, "args", s.Args)

	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Cancel = func() error {
		return util.StopCapture(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return util.WrapError("open capture stdout", err)
	}

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return util.WrapError("start "+s.Command, err)
	}

	_, copyErr := io.Copy(w, stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		slog.Info("audio capture stopped")
		return nil
	}
	if copyErr != nil && !errors.Is(copyErr, io.EOF) {
		return util.WrapError("read capture output", copyErr)
	}
	if waitErr != nil {
		if msg := util.ExtractLastError(stderrBuf.String()); msg != "" {
			return fmt.Errorf("%s exited: %s: %w", s.Command, msg, waitErr)
		}
		return fmt.Errorf("%s exited: %w", s.Command, waitErr)
	}
	return nil
}
