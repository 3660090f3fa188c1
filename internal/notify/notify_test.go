package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-voicegate/internal/types"
)

func captureWebhook(t *testing.T, status int) (*httptest.Server, <-chan WebhookPayload) {
	t.Helper()
	got := make(chan WebhookPayload, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var p WebhookPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		got <- p
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestSendSessionWebhook(t *testing.T) {
	srv, got := captureWebhook(t, http.StatusNoContent)

	st := &types.SessionStatus{
		State:         types.SessionStopped,
		Path:          "recording.wav",
		ElapsedMs:     30000,
		BytesWritten:  2646000,
		FramesWritten: 10335,
	}
	require.NoError(t, SendSessionWebhook(t.Context(), srv.URL, "studio", st))

	p := <-got
	assert.Equal(t, EventSessionStopped, p.Event)
	assert.Equal(t, "studio", p.Station)
	assert.Equal(t, int64(2646000), p.BytesWritten)
	assert.NotEmpty(t, p.Timestamp)
}

func TestSendSessionWebhookFailedState(t *testing.T) {
	srv, got := captureWebhook(t, http.StatusOK)

	st := &types.SessionStatus{State: types.SessionFailed, Error: "storage unavailable"}
	require.NoError(t, SendSessionWebhook(t.Context(), srv.URL, "studio", st))

	p := <-got
	assert.Equal(t, EventSessionFailed, p.Event)
	assert.Equal(t, "storage unavailable", p.Error)
}

func TestSendWebhookErrors(t *testing.T) {
	srv, _ := captureWebhook(t, http.StatusInternalServerError)

	err := SendTestWebhook(t.Context(), srv.URL, "studio")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	require.Error(t, SendTestWebhook(t.Context(), "", "studio"))
	// Unconfigured channels are skipped silently.
	require.NoError(t, SendSessionWebhook(t.Context(), "", "studio", &types.SessionStatus{}))
}

func TestNotifierDispatchesConfiguredChannels(t *testing.T) {
	srv, got := captureWebhook(t, http.StatusOK)

	n := NewNotifier("", srv.URL, types.GraphConfig{})
	assert.True(t, n.Enabled())

	n.UploadFailed(t.Context(), "recording.wav", errors.New("bucket missing"))
	p := <-got
	assert.Equal(t, EventUploadFailed, p.Event)
	assert.Equal(t, AppName, p.Station)
	assert.Equal(t, "bucket missing", p.Error)

	assert.False(t, NewNotifier("x", "", types.GraphConfig{}).Enabled())
}

func TestGraphClientRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/alerts@example.com/sendMail", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req graphMailRequest
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Len(t, req.Message.ToRecipients, 2)

		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := &GraphClient{
		fromAddress: "alerts@example.com",
		baseURL:     srv.URL,
		httpClient:  srv.Client(),
		retryWait:   time.Millisecond,
	}
	require.NoError(t, c.SendMail(context.Background(), []string{"a@example.com", " b@example.com "}, "s", "b"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGraphClientPermanentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := &GraphClient{fromAddress: "a@example.com", baseURL: srv.URL, httpClient: srv.Client(), retryWait: time.Millisecond}
	err := c.SendMail(t.Context(), []string{"x@example.com"}, "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph API error 400")

	require.Error(t, c.SendMail(t.Context(), []string{" "}, "s", "b"))
}

func TestValidateConfig(t *testing.T) {
	valid := types.GraphConfig{
		TenantID:     "12345678-1234-1234-1234-123456789abc",
		ClientID:     "12345678-1234-1234-1234-123456789abc",
		ClientSecret: "secret",
		FromAddress:  "alerts@example.com",
		Recipients:   "a@example.com",
	}
	require.NoError(t, ValidateConfig(&valid))
	assert.True(t, IsConfigured(&valid))

	bad := valid
	bad.TenantID = "not-a-guid"
	require.Error(t, ValidateConfig(&bad))

	bad = valid
	bad.Recipients = ""
	require.Error(t, ValidateConfig(&bad))
	assert.False(t, IsConfigured(&bad))

	assert.Equal(t, []string{"a@x.nl", "b@x.nl"}, ParseRecipients(" a@x.nl,, b@x.nl "))
}

func TestSessionEmail(t *testing.T) {
	subject, body := sessionEmail("studio", &types.SessionStatus{State: types.SessionFailed, Path: "r.wav", Error: "boom"})
	assert.Contains(t, subject, "Failed")
	assert.Contains(t, body, "boom")

	subject, body = sessionEmail("studio", &types.SessionStatus{State: types.SessionStopped, Path: "r.wav", FramesDropped: 3})
	assert.Contains(t, subject, "Finished")
	assert.Contains(t, body, "Dropped frames: 3")
}

func TestNotifierTest(t *testing.T) {
	srv, got := captureWebhook(t, http.StatusOK)

	require.NoError(t, NewNotifier("studio", srv.URL, types.GraphConfig{}).Test(t.Context()))
	assert.Equal(t, EventTest, (<-got).Event)

	// Malformed GUIDs are reported before anything is sent.
	bad := types.GraphConfig{TenantID: "x", ClientID: "y", ClientSecret: "z", FromAddress: "a@b.nl", Recipients: "c@d.nl"}
	err := NewNotifier("studio", "", bad).Test(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant ID must be a valid GUID")
}
