package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oszuidwest/zwfm-voicegate/internal/audio"
	"github.com/oszuidwest/zwfm-voicegate/internal/config"
	"github.com/oszuidwest/zwfm-voicegate/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicegate/internal/metrics"
	"github.com/oszuidwest/zwfm-voicegate/internal/notify"
	"github.com/oszuidwest/zwfm-voicegate/internal/recording"
	"github.com/oszuidwest/zwfm-voicegate/internal/signalchain"
	"github.com/oszuidwest/zwfm-voicegate/internal/storage"
	"github.com/oszuidwest/zwfm-voicegate/internal/types"
	"github.com/oszuidwest/zwfm-voicegate/internal/util"
	"github.com/oszuidwest/zwfm-voicegate/internal/wav"
)

// postSessionTimeout bounds notifications, upload and cleanup after a session ends.
const postSessionTimeout = 5 * time.Minute

// RecordCmd records one session.
type RecordCmd struct {
	Output   string        `short:"o" help:"Override the output file path"`
	Duration time.Duration `short:"d" help:"Override the recording duration"`
}

// recorder holds the collaborators of one record run. Optional parts are nil when unconfigured.
type recorder struct {
	cfg      *config.Config
	events   *eventlog.Logger
	uploader *storage.Uploader
	notifier *notify.Notifier
	metrics  *metrics.Metrics
}

// Run loads the configuration, records one session and handles its aftermath.
func (r *RecordCmd) Run(g *Globals) error {
	path, err := resolveConfigPath(g.Config)
	if err != nil {
		return err
	}

	cfg := config.New(path)
	if err := cfg.Load(); err != nil {
		return util.WrapError("load config", err)
	}
	setupLogging(cfg.Logging)
	slog.Info("using config file", "path", cfg.FilePath())
	slog.Debug("effective configuration", "config", cfg.String())

	if r.Duration > 0 {
		cfg.Recording.DurationMs = r.Duration.Milliseconds()
	}

	rec, err := newRecorder(cfg)
	if err != nil {
		return err
	}
	defer rec.close()

	ctx, stop := signal.NotifyContext(context.Background(), util.ShutdownSignals()...)
	defer stop()

	outPath := r.Output
	if outPath == "" {
		outPath = recording.OutputPath(cfg.Recording.OutputDir, cfg.Recording.Filename, cfg.Recording.Timestamped, time.Now())
	}
	return rec.record(ctx, stop, outPath)
}

func newRecorder(cfg *config.Config) (*recorder, error) {
	rec := &recorder{cfg: cfg}

	if cfg.System.EventLog != "" {
		events, err := eventlog.NewLogger(cfg.System.EventLog)
		if err != nil {
			return nil, util.WrapError("open event log", err)
		}
		rec.events = events
	}

	if cfg.HasUpload() {
		uploader, err := storage.NewUploader(cfg.Upload.S3)
		if err != nil {
			rec.close()
			return nil, util.WrapError("create uploader", err)
		}
		rec.uploader = uploader
	}

	if cfg.HasWebhook() || cfg.HasGraph() {
		station, _ := os.Hostname()
		rec.notifier = notify.NewNotifier(station, cfg.Notifications.Webhook.URL, cfg.GraphConfig())
	}
	return rec, nil
}

func (rec *recorder) close() {
	if rec.events != nil {
		if err := rec.events.Close(); err != nil {
			slog.Warn("failed to close event log", "error", err)
		}
	}
}

// record runs the session and its post-processing. stop releases the signal
// handler once the session ends so a second signal aborts the aftermath.
func (rec *recorder) record(ctx context.Context, stop context.CancelFunc, outPath string) error {
	cfg := rec.cfg

	if err := util.CheckPathWritable(cfg.Recording.OutputDir); err != nil {
		return fmt.Errorf("%w: %s: %w", types.ErrStorageUnavailable, cfg.Recording.OutputDir, err)
	}
	if rec.uploader != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := rec.uploader.TestConnection(checkCtx); err != nil {
			slog.Warn("upload target unreachable, recording anyway", "error", err)
		}
		cancel()
	}

	chain, err := signalchain.New(signalchain.Config{
		FrameSize:       cfg.Audio.FrameSize,
		SpectrumBins:    cfg.Audio.SpectrumBins,
		MaxQueuedFrames: cfg.Audio.QueueFrames,
	})
	if err != nil {
		return err
	}
	src, err := newSource(&cfg.Audio)
	if err != nil {
		return err
	}

	session, err := recording.New(sessionConfig(cfg, outPath), recording.Env{
		Chain:  chain,
		Gain:   chain,
		Logger: slog.Default(),
	})
	if err != nil {
		return err
	}

	rec.metrics = metrics.New(metrics.Sources{Status: session.Status, Chain: chain.Stats, Levels: chain.Levels})
	rec.cleanup(ctx, outPath)

	if cfg.System.StatusPort > 0 {
		var version *VersionChecker
		if cfg.System.CheckUpdates {
			version = NewVersionChecker()
			go version.Run(ctx)
		}
		srv := NewServer(session.Status, version, rec.metrics, cfg.System.EventLog).Start(cfg.System.StatusPort)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), types.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("HTTP server shutdown error", "error", err)
			}
		}()
	}

	captureCtx, cancelCapture := context.WithCancel(ctx)
	defer cancelCapture()

	var g errgroup.Group
	g.Go(func() error { return chain.Run(captureCtx, src) })

	if err := session.Start(time.Now()); err != nil {
		cancelCapture()
		_ = g.Wait()
		st := session.Status()
		rec.sessionEnded(ctx, &st)
		return err
	}
	rec.logEvent(func(l *eventlog.Logger) error {
		st := session.Status()
		return l.LogSession(eventlog.SessionStarted, &st)
	})

	g.Go(func() error {
		defer cancelCapture()
		return session.Run(ctx)
	})
	if err := g.Wait(); err != nil {
		slog.Debug("recording goroutines ended with error", "error", err)
	}
	stop()

	postCtx, cancel := context.WithTimeout(context.Background(), postSessionTimeout)
	defer cancel()

	st := session.Status()
	rec.sessionEnded(postCtx, &st)
	if st.State == types.SessionStopped {
		rec.upload(postCtx, outPath)
	}
	return session.Err()
}

// newSource selects the capture backend.
func newSource(cfg *config.AudioConfig) (signalchain.Source, error) {
	format := audio.CaptureFormat{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	switch cfg.Backend {
	case config.BackendStdin:
		return &signalchain.ReaderSource{R: os.Stdin}, nil
	case config.BackendMiniaudio:
		if !signalchain.MiniaudioAvailable {
			return nil, errors.New("miniaudio backend is not available in this build")
		}
		return &signalchain.MiniaudioSource{Device: cfg.Input, Format: format}, nil
	default:
		ffmpegPath := util.ResolveExecutable(cfg.FFmpegPath, "ffmpeg")
		return signalchain.NewProcessSource(cfg.Input, ffmpegPath, format)
	}
}

// sessionConfig maps the file configuration onto the session parameters.
func sessionConfig(cfg *config.Config, path string) recording.Config {
	return recording.Config{
		Path: path,
		Format: wav.Format{
			SampleRate:    cfg.Audio.SampleRate,
			BitsPerSample: cfg.Audio.BitsPerSample,
			Channels:      cfg.Audio.Channels,
		},
		Duration:     cfg.Duration(),
		PollInterval: cfg.PollInterval(),
		VADThreshold: cfg.VAD.Threshold,
		VADHangover:  cfg.VAD.HangoverIntervals,
		Gain: audio.GainConfig{
			Floor:        cfg.Gain.Floor,
			Ceiling:      cfg.Gain.Ceiling,
			GrowthFactor: cfg.Gain.GrowthFactor,
		},
		SpectrumBins: cfg.Audio.SpectrumBins,
		NoiseDecay:   cfg.Noise.DecayRate,
	}
}

// cleanup applies the retention policy before a new session. Failures are logged.
func (rec *recorder) cleanup(ctx context.Context, keep string) {
	days := rec.cfg.Recording.RetentionDays
	if days <= 0 {
		return
	}

	var remote recording.Pruner
	if rec.uploader != nil {
		remote = rec.uploader
	}
	result, err := recording.Cleanup(ctx, rec.cfg.Recording.OutputDir, days, time.Now(), keep, remote)
	errMsg := ""
	if err != nil {
		slog.Warn("retention cleanup failed", "error", err)
		errMsg = err.Error()
	}
	if rec.metrics != nil {
		rec.metrics.RecordCleanup(result.Local, result.Remote)
	}
	rec.logEvent(func(l *eventlog.Logger) error { return l.LogCleanup(result.Local, result.Remote, errMsg) })
}

// sessionEnded records and announces the final state of a session.
func (rec *recorder) sessionEnded(ctx context.Context, st *types.SessionStatus) {
	eventType := eventlog.SessionStopped
	if st.State == types.SessionFailed {
		eventType = eventlog.SessionFailed
	}
	slog.Info("session summary",
		"state", st.State,
		"path", st.Path,
		"bytes", st.BytesWritten,
		"frames_written", st.FramesWritten,
		"frames_dropped", st.FramesDropped,
		"elapsed", util.FormatDuration(st.ElapsedMs))

	rec.logEvent(func(l *eventlog.Logger) error { return l.LogSession(eventType, st) })
	if rec.metrics != nil {
		rec.metrics.RecordSession(st, rec.cfg.Audio.SampleRate*rec.cfg.Audio.Channels*rec.cfg.Audio.BitsPerSample/8)
	}
	if rec.notifier != nil {
		rec.notifier.SessionEnded(ctx, st)
	}
}

// upload sends a finalized recording to S3 and optionally removes the local copy.
func (rec *recorder) upload(ctx context.Context, path string) {
	if rec.uploader == nil {
		return
	}
	rec.logEvent(func(l *eventlog.Logger) error { return l.LogUpload(eventlog.UploadQueued, path, "", "") })

	start := time.Now()
	key, err := rec.uploader.Upload(ctx, path)
	if rec.metrics != nil {
		rec.metrics.RecordUpload(err == nil, time.Since(start).Seconds())
	}
	if err != nil {
		slog.Error("upload failed", "path", path, "error", err)
		rec.logEvent(func(l *eventlog.Logger) error { return l.LogUpload(eventlog.UploadFailed, path, "", err.Error()) })
		if rec.notifier != nil {
			rec.notifier.UploadFailed(ctx, path, err)
		}
		return
	}

	slog.Info("upload completed", "path", path, "key", key)
	rec.logEvent(func(l *eventlog.Logger) error { return l.LogUpload(eventlog.UploadCompleted, path, key, "") })

	if rec.cfg.Upload.DeleteAfterUpload {
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to delete uploaded recording", "path", path, "error", err)
		}
	}
}

func (rec *recorder) logEvent(fn func(*eventlog.Logger) error) {
	if rec.events == nil {
		return
	}
	if err := fn(rec.events); err != nil {
		slog.Warn("failed to write event log", "error", err)
	}
}
