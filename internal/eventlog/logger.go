// Package eventlog records session lifecycle, upload and cleanup events in a
// JSON lines file that survives restarts of the recorder.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-voicegate/internal/types"
)

// EventType represents the type of event.
type EventType string

// Session event types.
const (
	SessionStarted EventType = "session_started"
	SessionStopped EventType = "session_stopped"
	SessionFailed  EventType = "session_failed"
)

// Post-session event types.
const (
	UploadQueued     EventType = "upload_queued"
	UploadCompleted  EventType = "upload_completed"
	UploadFailed     EventType = "upload_failed"
	CleanupCompleted EventType = "cleanup_completed"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time       `json:"ts"`
	Type      EventType       `json:"type"`
	Message   string          `json:"msg,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// SessionDetails contains session-specific event details.
type SessionDetails struct {
	Path          string `json:"path"`
	ElapsedMs     int64  `json:"elapsed_ms"`
	BytesWritten  int64  `json:"bytes_written"`
	FramesWritten int64  `json:"frames_written"`
	FramesDropped int64  `json:"frames_dropped"`
	Error         string `json:"error,omitempty"`
}

// UploadDetails contains upload-specific event details.
type UploadDetails struct {
	Path  string `json:"path"`
	Key   string `json:"key,omitempty"`
	Error string `json:"error,omitempty"`
}

// CleanupDetails contains retention cleanup details.
type CleanupDetails struct {
	LocalDeleted  int    `json:"local_deleted"`
	RemoteDeleted int    `json:"remote_deleted"`
	Error         string `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file. It is safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
	now      func() time.Time
}

// NewLogger opens filePath for appending, creating its directory if needed.
func NewLogger(filePath string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
		now:      time.Now,
	}, nil
}

func (l *Logger) log(eventType EventType, message string, details any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.encoder.Encode(&Event{
		Timestamp: l.now(),
		Type:      eventType,
		Message:   message,
		Details:   raw,
	})
}

// LogSession records a session lifecycle event from a status snapshot.
func (l *Logger) LogSession(eventType EventType, st *types.SessionStatus) error {
	return l.log(eventType, "", &SessionDetails{
		Path:          st.Path,
		ElapsedMs:     st.ElapsedMs,
		BytesWritten:  st.BytesWritten,
		FramesWritten: st.FramesWritten,
		FramesDropped: st.FramesDropped,
		Error:         st.Error,
	})
}

// LogUpload records an upload event.
func (l *Logger) LogUpload(eventType EventType, path, key, errMsg string) error {
	return l.log(eventType, "", &UploadDetails{Path: path, Key: key, Error: errMsg})
}

// LogCleanup records the outcome of a retention pass.
func (l *Logger) LogCleanup(local, remote int, errMsg string) error {
	return l.log(CleanupCompleted, "", &CleanupDetails{LocalDeleted: local, RemoteDeleted: remote, Error: errMsg})
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll     TypeFilter = ""
	FilterSession TypeFilter = "session"
	FilterUpload  TypeFilter = "upload"
)

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast returns up to n events after skipping offset, newest first, and
// whether older matching events remain.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events := make([]Event, 0, n)
	skipped := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		if !filter.matches(event.Type) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) == n {
			return events, true, nil
		}
		events = append(events, event)
	}

	return events, false, nil
}

func (f TypeFilter) matches(t EventType) bool {
	switch f {
	case FilterSession:
		return IsSessionEvent(t)
	case FilterUpload:
		return t == UploadQueued || t == UploadCompleted || t == UploadFailed
	default:
		return true
	}
}

// IsSessionEvent reports whether t is a session lifecycle event.
func IsSessionEvent(t EventType) bool {
	return t == SessionStarted || t == SessionStopped || t == SessionFailed
}
