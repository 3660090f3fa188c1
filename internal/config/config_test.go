package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-voicegate/internal/types"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.json")
	cfg := New(path)
	require.NoError(t, cfg.Load())

	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 16, cfg.Audio.BitsPerSample)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, 256, cfg.Audio.FrameSize)
	assert.Equal(t, 512, cfg.Audio.SpectrumBins)
	assert.Equal(t, BackendProcess, cfg.Audio.Backend)
	assert.Equal(t, 0.05, cfg.VAD.Threshold)
	assert.Zero(t, cfg.VAD.HangoverIntervals)
	assert.Equal(t, 0.5, cfg.Gain.Floor)
	assert.Equal(t, 1.0, cfg.Gain.Ceiling)
	assert.Equal(t, 1.05, cfg.Gain.GrowthFactor)
	assert.Equal(t, 0.995, cfg.Noise.DecayRate)
	assert.Equal(t, "recording.wav", cfg.Recording.Filename)
	assert.Equal(t, 30*time.Second, cfg.Duration())
	assert.Equal(t, time.Millisecond, cfg.PollInterval())
	require.NoError(t, cfg.Validate())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var saved map[string]any
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Contains(t, saved, "recording")
}

func TestLoadJSONKeepsOverrides(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"audio": {"sample_rate": 16000, "backend": "stdin"},
		"vad": {"threshold": 0.1, "hangover_intervals": 20},
		"recording": {"output_dir": "/media/sd", "duration_ms": 60000, "timestamped": true}
	}`)

	cfg := New(path)
	require.NoError(t, cfg.Load())

	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, BackendStdin, cfg.Audio.Backend)
	assert.Equal(t, 0.1, cfg.VAD.Threshold)
	assert.Equal(t, 20, cfg.VAD.HangoverIntervals)
	assert.Equal(t, "/media/sd", cfg.Recording.OutputDir)
	assert.True(t, cfg.Recording.Timestamped)
	assert.Equal(t, time.Minute, cfg.Duration())
	assert.Equal(t, 256, cfg.Audio.FrameSize, "unset fields get defaults")
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
audio:
  backend: miniaudio
  input: USB Audio CODEC
gain:
  floor: 0.25
  ceiling: 4
upload:
  s3:
    endpoint: https://s3.example.com
    bucket: field
    access_key_id: key
    secret_access_key: secret
    prefix: site-a
  delete_after_upload: true
logging:
  level: debug
  format: json
`)

	cfg := New(path)
	require.NoError(t, cfg.Load())

	assert.Equal(t, BackendMiniaudio, cfg.Audio.Backend)
	assert.Equal(t, "USB Audio CODEC", cfg.Audio.Input)
	assert.Equal(t, 0.25, cfg.Gain.Floor)
	assert.Equal(t, 4.0, cfg.Gain.Ceiling)
	assert.True(t, cfg.HasUpload())
	assert.Equal(t, "site-a", cfg.Upload.S3.Prefix)
	assert.True(t, cfg.Upload.DeleteAfterUpload)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"audio": {"frame_size": 255, "spectrum_bins": 500, "queue_frames": 1, "backend": "alsa", "channels": 2},
		"vad": {"threshold": 1.5},
		"gain": {"floor": 0.8, "ceiling": 0.6},
		"recording": {"filename": "out/recording.mp3"},
		"notifications": {"webhook": {"url": "not a url"}},
		"system": {"event_log": "../events.jsonl"}
	}`)

	err := New(path).Load()
	require.Error(t, err)

	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))

	fields := map[string]string{}
	for _, e := range verr.Errors {
		fields[e.Field] = e.Message
	}
	assert.Equal(t, "must be an even number of bytes", fields["audio.frame_size"])
	assert.Equal(t, "must be a power of two", fields["audio.spectrum_bins"])
	assert.Equal(t, "must be at least 2", fields["audio.queue_frames"])
	assert.Equal(t, "must be one of: process miniaudio stdin", fields["audio.backend"])
	assert.Equal(t, "must be 1", fields["audio.channels"])
	assert.Equal(t, "must be less than 1", fields["vad.threshold"])
	assert.Equal(t, "must be greater than or equal to floor", fields["gain.ceiling"])
	assert.Contains(t, fields, "recording.filename")
	assert.Equal(t, "must be a valid URL", fields["notifications.webhook.url"])
	assert.Equal(t, "path cannot contain '..'", fields["system.event_log"])
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfig(t, "config.json", `{"audio": `)
	err := New(path).Load()
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestNotificationChannels(t *testing.T) {
	cfg := New("unused.json")
	assert.False(t, cfg.HasWebhook())
	assert.False(t, cfg.HasGraph())
	assert.False(t, cfg.HasUpload())

	cfg.Notifications.Webhook.URL = "https://hooks.example.com/x"
	cfg.Notifications.Email = EmailConfig{
		TenantID: "t", ClientID: "c", ClientSecret: "s",
		FromAddress: "rec@example.com", Recipients: "a@example.com",
	}
	assert.True(t, cfg.HasWebhook())
	assert.True(t, cfg.HasGraph())
	assert.Equal(t, "rec@example.com", cfg.GraphConfig().FromAddress)
	assert.NotContains(t, cfg.String(), "s3")
}
