package notify

import "time"

// AppName is the application name used in notifications.
const AppName = "ZuidWest FM Voicegate"

// Event names shared by the webhook and email channels.
const (
	EventSessionStopped = "session_stopped"
	EventSessionFailed  = "session_failed"
	EventUploadFailed   = "upload_failed"
	EventTest           = "test"
)

// timestampUTC returns the current UTC time in RFC3339 format.
func timestampUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
