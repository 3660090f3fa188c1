// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oszuidwest/zwfm-voicegate/internal/storage"
	"github.com/oszuidwest/zwfm-voicegate/internal/types"
	"github.com/oszuidwest/zwfm-voicegate/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultBackend           = BackendProcess
	DefaultVADThreshold      = 0.05
	DefaultGainFloor         = 0.5
	DefaultGainCeiling       = 1.0
	DefaultGrowthFactor      = 1.05
	DefaultNoiseDecayRate    = 0.995
	DefaultOutputDir         = "."
	DefaultFilename          = "recording.wav"
	DefaultDurationMs        = 30000
	DefaultPollIntervalMs    = 1
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultMaxQueuedFrames   = 1024
	defaultFilePermissions   = 0o600
	defaultDirectoryPermBits = 0o755
)

// Capture backends.
const (
	BackendProcess   = "process"
	BackendMiniaudio = "miniaudio"
	BackendStdin     = "stdin"
)

// AudioConfig holds capture format and device settings. An empty Input selects
// the platform default device; an empty FFmpegPath searches PATH.
type AudioConfig struct {
	SampleRate    int    `json:"sample_rate" yaml:"sample_rate" validate:"min=8000,max=192000"`
	BitsPerSample int    `json:"bits_per_sample" yaml:"bits_per_sample" validate:"eq=16"`
	Channels      int    `json:"channels" yaml:"channels" validate:"eq=1"`
	FrameSize     int    `json:"frame_size" yaml:"frame_size" validate:"min=2,max=65536,even"`
	SpectrumBins  int    `json:"spectrum_bins" yaml:"spectrum_bins" validate:"min=16,max=8192,pow2"`
	QueueFrames   int    `json:"queue_frames" yaml:"queue_frames" validate:"min=2"`
	Backend       string `json:"backend" yaml:"backend" validate:"oneof=process miniaudio stdin"`
	Input         string `json:"input" yaml:"input"`
	FFmpegPath    string `json:"ffmpeg_path" yaml:"ffmpeg_path"`
}

// VADConfig holds voice activity detection settings.
type VADConfig struct {
	Threshold         float64 `json:"threshold" yaml:"threshold" validate:"gt=0,lt=1"`
	HangoverIntervals int     `json:"hangover_intervals" yaml:"hangover_intervals" validate:"min=0,max=10000"`
}

// GainConfig holds the adaptive gain bounds.
type GainConfig struct {
	Floor        float64 `json:"floor" yaml:"floor" validate:"gt=0"`
	Ceiling      float64 `json:"ceiling" yaml:"ceiling" validate:"gtefield=Floor,lte=100"`
	GrowthFactor float64 `json:"growth_factor" yaml:"growth_factor" validate:"gte=1,lte=10"`
}

// NoiseConfig holds noise profiling settings.
type NoiseConfig struct {
	DecayRate float64 `json:"decay_rate" yaml:"decay_rate" validate:"gt=0,lte=1"`
}

// RecordingConfig holds output file and session timing settings.
type RecordingConfig struct {
	OutputDir      string `json:"output_dir" yaml:"output_dir" validate:"required"`
	Filename       string `json:"filename" yaml:"filename" validate:"required,endswith=.wav,excludesall=/\\"`
	Timestamped    bool   `json:"timestamped" yaml:"timestamped"`
	DurationMs     int64  `json:"duration_ms" yaml:"duration_ms" validate:"min=1"`
	PollIntervalMs int64  `json:"poll_interval_ms" yaml:"poll_interval_ms" validate:"min=1,max=1000"`
	RetentionDays  int    `json:"retention_days" yaml:"retention_days" validate:"min=0,max=3650"`
}

// UploadConfig holds the optional post-session upload to S3.
type UploadConfig struct {
	S3                storage.S3Config `json:"s3" yaml:"s3"`
	DeleteAfterUpload bool             `json:"delete_after_upload" yaml:"delete_after_upload"`
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url" yaml:"url" validate:"omitempty,url"`
}

// EmailConfig holds Microsoft Graph email notification settings.
// Recipients is a comma-separated address list.
type EmailConfig struct {
	TenantID     string `json:"tenant_id" yaml:"tenant_id"`
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	FromAddress  string `json:"from_address" yaml:"from_address" validate:"omitempty,email"`
	Recipients   string `json:"recipients" yaml:"recipients"`
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook" yaml:"webhook"`
	Email   EmailConfig   `json:"email" yaml:"email"`
}

// SystemConfig holds process-level settings. A zero StatusPort disables the
// status server and an empty EventLog disables the event log.
type SystemConfig struct {
	StatusPort   int    `json:"status_port" yaml:"status_port" validate:"min=0,max=65535"`
	EventLog     string `json:"event_log" yaml:"event_log"`
	CheckUpdates bool   `json:"check_updates" yaml:"check_updates"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"oneof=text json"`
}

// Config holds all application configuration.
type Config struct {
	Audio         AudioConfig         `json:"audio" yaml:"audio"`
	VAD           VADConfig           `json:"vad" yaml:"vad"`
	Gain          GainConfig          `json:"gain" yaml:"gain"`
	Noise         NoiseConfig         `json:"noise" yaml:"noise"`
	Recording     RecordingConfig     `json:"recording" yaml:"recording"`
	Upload        UploadConfig        `json:"upload" yaml:"upload"`
	Notifications NotificationsConfig `json:"notifications" yaml:"notifications"`
	System        SystemConfig        `json:"system" yaml:"system"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`

	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	c := &Config{filePath: filePath}
	c.applyDefaults()
	return c
}

// Load reads config from file, creating a default if none exists.
// Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.save()
	}
	if err != nil {
		return util.WrapError("read config", err)
	}

	if c.isYAML() {
		err = yaml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()
	return c.Validate()
}

// Validate checks all configuration fields. Failures are returned as *types.ValidationError.
func (c *Config) Validate() error {
	err := validateStruct(c)
	if c.System.EventLog == "" {
		return err
	}
	const field = "system.event_log"
	perr := util.ValidatePath(field, c.System.EventLog)
	if perr == nil {
		return err
	}
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		verr = types.NewValidationError()
	}
	verr.Add(field, strings.TrimPrefix(perr.Error(), field+": "), c.System.EventLog)
	return verr
}

// FilePath returns the path the config was loaded from.
func (c *Config) FilePath() string {
	return c.filePath
}

func (c *Config) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(c.filePath))
	return ext == ".yaml" || ext == ".yml"
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	// Audio defaults
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = types.DefaultSampleRate
	}
	if c.Audio.BitsPerSample == 0 {
		c.Audio.BitsPerSample = types.DefaultBitsPerSample
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = types.DefaultChannels
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = types.DefaultFrameSize
	}
	if c.Audio.SpectrumBins == 0 {
		c.Audio.SpectrumBins = types.DefaultSpectrumBins
	}
	if c.Audio.QueueFrames == 0 {
		c.Audio.QueueFrames = DefaultMaxQueuedFrames
	}
	if c.Audio.Backend == "" {
		c.Audio.Backend = DefaultBackend
	}
	// Signal processing defaults
	if c.VAD.Threshold == 0 {
		c.VAD.Threshold = DefaultVADThreshold
	}
	if c.Gain.Floor == 0 {
		c.Gain.Floor = DefaultGainFloor
	}
	if c.Gain.Ceiling == 0 {
		c.Gain.Ceiling = DefaultGainCeiling
	}
	if c.Gain.GrowthFactor == 0 {
		c.Gain.GrowthFactor = DefaultGrowthFactor
	}
	if c.Noise.DecayRate == 0 {
		c.Noise.DecayRate = DefaultNoiseDecayRate
	}
	// Recording defaults
	if c.Recording.OutputDir == "" {
		c.Recording.OutputDir = DefaultOutputDir
	}
	if c.Recording.Filename == "" {
		c.Recording.Filename = DefaultFilename
	}
	if c.Recording.DurationMs == 0 {
		c.Recording.DurationMs = DefaultDurationMs
	}
	if c.Recording.PollIntervalMs == 0 {
		c.Recording.PollIntervalMs = DefaultPollIntervalMs
	}
	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// save persists configuration in the format implied by the file extension.
func (c *Config) save() error {
	var (
		data []byte
		err  error
	)
	if c.isYAML() {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.filePath), defaultDirectoryPermBits); err != nil {
		return util.WrapError("create config directory", err)
	}
	if err := os.WriteFile(c.filePath, data, defaultFilePermissions); err != nil {
		return util.WrapError("write config", err)
	}
	return nil
}

// --- Derived settings ---

// Duration returns the session duration limit.
func (c *Config) Duration() time.Duration {
	return time.Duration(c.Recording.DurationMs) * time.Millisecond
}

// PollInterval returns the session polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Recording.PollIntervalMs) * time.Millisecond
}

// HasUpload reports whether post-session upload is configured.
func (c *Config) HasUpload() bool {
	return c.Upload.S3.IsConfigured()
}

// HasWebhook reports whether a webhook URL is configured.
func (c *Config) HasWebhook() bool {
	return c.Notifications.Webhook.URL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (c *Config) HasGraph() bool {
	e := &c.Notifications.Email
	return util.IsConfigured(e.TenantID, e.ClientID, e.ClientSecret, e.FromAddress, e.Recipients)
}

// GraphConfig returns the Graph email settings.
func (c *Config) GraphConfig() types.GraphConfig {
	e := &c.Notifications.Email
	return types.GraphConfig{
		TenantID:     e.TenantID,
		ClientID:     e.ClientID,
		ClientSecret: e.ClientSecret,
		FromAddress:  e.FromAddress,
		Recipients:   e.Recipients,
	}
}

// String implements fmt.Stringer with secrets redacted.
func (c *Config) String() string {
	return fmt.Sprintf("backend=%s rate=%d frame=%d vad=%.3f gain=[%.2f,%.2f] out=%s",
		c.Audio.Backend, c.Audio.SampleRate, c.Audio.FrameSize, c.VAD.Threshold,
		c.Gain.Floor, c.Gain.Ceiling, filepath.Join(c.Recording.OutputDir, c.Recording.Filename))
}
