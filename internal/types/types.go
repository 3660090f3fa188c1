package types

import "time"

// SessionState represents the lifecycle state of a recording session.
type SessionState string

const (
	// SessionIdle indicates the session has not been started.
	SessionIdle SessionState = "idle"
	// SessionRecording indicates audio is being captured.
	SessionRecording SessionState = "recording"
	// SessionStopped indicates the file was finalized. This state is terminal.
	SessionStopped SessionState = "stopped"
	// SessionFailed indicates a fatal error ended the session without finalizing.
	SessionFailed SessionState = "failed"
)

// Audio format defaults for the persisted artifact.
const (
	// DefaultSampleRate is the capture sample rate in Hz.
	DefaultSampleRate = 44100
	// DefaultBitsPerSample is the PCM sample width.
	DefaultBitsPerSample = 16
	// DefaultChannels is the number of captured channels (mono).
	DefaultChannels = 1
	// DefaultFrameSize is the size in bytes of one PCM frame handed out by the signal chain.
	DefaultFrameSize = 256
	// DefaultSpectrumBins is the number of magnitude bins in one spectral frame.
	DefaultSpectrumBins = 512
)

const (
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
	// StatusInterval is how often live status is pushed to WebSocket clients.
	StatusInterval = 250 * time.Millisecond
)

// SessionStatus is a point-in-time snapshot of a recording session.
type SessionStatus struct {
	State         SessionState `json:"state"`
	Path          string       `json:"path,omitempty"`
	ElapsedMs     int64        `json:"elapsed_ms"`
	DurationMs    int64        `json:"duration_ms"`
	BytesWritten  int64        `json:"bytes_written"`
	FramesWritten int64        `json:"frames_written"`
	FramesDropped int64        `json:"frames_dropped"`
	Voiced        bool         `json:"voiced"`
	Peak          float64      `json:"peak"`
	PeakHeld      float64      `json:"peak_held"`
	Gain          float64      `json:"gain"`
	NoiseFloor    float64      `json:"noise_floor"`
	Error         string       `json:"error,omitempty"`
}

// VersionInfo contains version information for the status endpoint.
type VersionInfo struct {
	Current     string `json:"current"`
	Latest      string `json:"latest,omitempty"`
	UpdateAvail bool   `json:"update_available"`
	Commit      string `json:"commit,omitempty"`
	BuildTime   string `json:"build_time,omitempty"`
}

// WSStatusResponse is the message pushed to WebSocket clients.
type WSStatusResponse struct {
	Type    string        `json:"type"`
	Session SessionStatus `json:"session"`
	Version VersionInfo   `json:"version"`
}

// GraphConfig holds Microsoft Graph API email settings.
type GraphConfig struct {
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	FromAddress  string `json:"from_address"`
	Recipients   string `json:"recipients"` // Comma-separated
}
