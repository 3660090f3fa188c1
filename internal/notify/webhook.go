package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-voicegate/internal/types"
	"github.com/oszuidwest/zwfm-voicegate/internal/util"
)

const webhookTimeout = 10000 * time.Millisecond

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event         string `json:"event"`
	Station       string `json:"station,omitempty"`
	Path          string `json:"path,omitempty"`
	Key           string `json:"key,omitempty"`
	ElapsedMs     int64  `json:"elapsed_ms,omitempty"`
	BytesWritten  int64  `json:"bytes_written,omitempty"`
	FramesWritten int64  `json:"frames_written,omitempty"`
	FramesDropped int64  `json:"frames_dropped,omitempty"`
	Error         string `json:"error,omitempty"`
	Message       string `json:"message,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// sessionPayload builds the payload describing a finished session.
func sessionPayload(station string, st *types.SessionStatus) *WebhookPayload {
	event := EventSessionStopped
	if st.State == types.SessionFailed {
		event = EventSessionFailed
	}
	return &WebhookPayload{
		Event:         event,
		Station:       station,
		Path:          st.Path,
		ElapsedMs:     st.ElapsedMs,
		BytesWritten:  st.BytesWritten,
		FramesWritten: st.FramesWritten,
		FramesDropped: st.FramesDropped,
		Error:         st.Error,
		Timestamp:     timestampUTC(),
	}
}

// SendSessionWebhook notifies the configured webhook that a session ended.
func SendSessionWebhook(ctx context.Context, webhookURL, station string, st *types.SessionStatus) error {
	return sendWebhook(ctx, webhookURL, sessionPayload(station, st))
}

// SendUploadFailedWebhook notifies the configured webhook that an upload was abandoned.
func SendUploadFailedWebhook(ctx context.Context, webhookURL, station, path string, uploadErr error) error {
	return sendWebhook(ctx, webhookURL, &WebhookPayload{
		Event:     EventUploadFailed,
		Station:   station,
		Path:      path,
		Error:     uploadErr.Error(),
		Timestamp: timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(ctx context.Context, webhookURL, station string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(ctx, webhookURL, &WebhookPayload{
		Event:     EventTest,
		Station:   station,
		Message:   "This is a test notification from " + AppName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(ctx context.Context, webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return util.WrapError("create webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
