// Package main provides a voice-gated field recorder. It writes only the voiced
// parts of the microphone signal to a WAV file, adapting gain as it goes, and
// stops after a fixed duration.
//
// Usage:
//
//	voicegate [record] [--config path/to/config.json]
//	voicegate devices
//	voicegate inspect recording.wav
//	voicegate notify
//	voicegate version
//
// If --config is not specified, the recorder looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/oszuidwest/zwfm-voicegate/internal/audio"
	"github.com/oszuidwest/zwfm-voicegate/internal/config"
	"github.com/oszuidwest/zwfm-voicegate/internal/notify"
	"github.com/oszuidwest/zwfm-voicegate/internal/signalchain"
	"github.com/oszuidwest/zwfm-voicegate/internal/util"
	"github.com/oszuidwest/zwfm-voicegate/internal/wav"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config string `short:"c" type:"path" help:"Path to config file (default: config.json next to binary)"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Record  RecordCmd  `cmd:"" default:"1" help:"Record one voice-gated session (default)"`
	Devices DevicesCmd `cmd:"" help:"List capture devices"`
	Inspect InspectCmd `cmd:"" help:"Print the header of a WAV file"`
	Notify  NotifyCmd  `cmd:"" help:"Send a test notification on every configured channel"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// DevicesCmd lists capture devices for the configured backend.
type DevicesCmd struct {
	Backend string `help:"Capture backend to query" enum:"process,miniaudio" default:"process"`
}

// Run prints one device per line.
func (d *DevicesCmd) Run() error {
	var devices []audio.Device
	if d.Backend == config.BackendMiniaudio {
		var err error
		if devices, err = signalchain.MiniaudioDevices(); err != nil {
			return err
		}
	} else {
		devices = audio.Devices()
	}

	if len(devices) == 0 {
		fmt.Println("no capture devices found")
		return nil
	}
	for _, dev := range devices {
		fmt.Printf("%-32s %s\n", dev.ID, dev.Name)
	}
	return nil
}

// InspectCmd prints the canonical header of a recording.
type InspectCmd struct {
	File string `arg:"" type:"existingfile" help:"WAV file to inspect"`
}

// Run reads and validates the header, then compares it against the file size.
func (i *InspectCmd) Run() error {
	f, err := os.Open(i.File)
	if err != nil {
		return util.WrapError("open recording", err)
	}
	defer f.Close() //nolint:errcheck // Read-only operation, close error not critical

	h, err := wav.ReadHeader(f)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		return util.WrapError("stat recording", err)
	}

	fmt.Printf("file:            %s\n", i.File)
	fmt.Printf("sample rate:     %d Hz\n", h.SampleRate)
	fmt.Printf("bits per sample: %d\n", h.BitsPerSample)
	fmt.Printf("channels:        %d\n", h.Channels)
	fmt.Printf("byte rate:       %d\n", h.ByteRate())
	fmt.Printf("data size:       %s (%d bytes)\n", util.FormatBytes(int64(h.DataSize)), h.DataSize)
	fmt.Printf("duration:        %.3fs\n", h.Duration())

	if want := int64(h.DataSize) + wav.HeaderSize; want != info.Size() {
		fmt.Printf("warning: header describes %d bytes but file is %d bytes (not finalized?)\n", want, info.Size())
	}
	return nil
}

// NotifyCmd sends test notifications.
type NotifyCmd struct{}

// Run loads the configuration and exercises each notification channel.
func (NotifyCmd) Run(g *Globals) error {
	path, err := resolveConfigPath(g.Config)
	if err != nil {
		return err
	}
	cfg := config.New(path)
	if err := cfg.Load(); err != nil {
		return util.WrapError("load config", err)
	}
	setupLogging(cfg.Logging)

	if !cfg.HasWebhook() && !cfg.HasGraph() {
		return errors.New("no notification channel configured")
	}
	station, _ := os.Hostname()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := notify.NewNotifier(station, cfg.Notifications.Webhook.URL, cfg.GraphConfig()).Test(ctx); err != nil {
		return err
	}
	fmt.Println("test notification sent")
	return nil
}

// VersionCmd prints build metadata.
type VersionCmd struct{}

// Run prints the version line.
func (VersionCmd) Run() error {
	fmt.Printf("voicegate %s (commit %s, built %s)\n", Version, Commit, BuildTime)
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("voicegate"),
		kong.Description("Voice-gated field recorder"),
		kong.UsageOnError(),
		kong.Vars{"version": Version},
	)

	if err := ctx.Run(&cli.Globals); err != nil {
		slog.Error("command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}

// resolveConfigPath defaults to config.json next to the executable.
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	execPath, err := os.Executable()
	if err != nil {
		return "", util.WrapError("get executable path", err)
	}
	return filepath.Join(filepath.Dir(execPath), "config.json"), nil
}

// setupLogging installs the default slog handler described by cfg.
func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
