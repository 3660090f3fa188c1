package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-voicegate/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicegate/internal/types"
)

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "recorder:8080", true},
		{"localhost", "http://localhost:3000", "recorder:8080", true},
		{"same host", "http://recorder", "recorder:8080", true},
		{"private ip", "http://192.168.1.20", "recorder:8080", true},
		{"loopback ip", "http://127.0.0.1:9000", "recorder:8080", true},
		{"public host", "https://evil.example.com", "recorder:8080", false},
		{"malformed", "http://%zz", "recorder:8080", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(r))
		})
	}
}

func TestParseEventQuery(t *testing.T) {
	q, err := ParseEventQuery(httptest.NewRequest(http.MethodGet, "/events", http.NoBody))
	require.NoError(t, err)
	assert.Equal(t, 50, q.Limit)
	assert.Equal(t, eventlog.FilterAll, q.Filter)

	q, err = ParseEventQuery(httptest.NewRequest(http.MethodGet, "/events?limit=5&offset=10&type=upload", http.NoBody))
	require.NoError(t, err)
	assert.Equal(t, EventQuery{Limit: 5, Offset: 10, Filter: eventlog.FilterUpload}, q)

	_, err = ParseEventQuery(httptest.NewRequest(http.MethodGet, "/events?limit=abc", http.NoBody))
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "limit", verr.Errors[0].Field)

	_, err = ParseEventQuery(httptest.NewRequest(http.MethodGet, "/events?limit=501", http.NoBody))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "limit", verr.Errors[0].Field)
	assert.Equal(t, "must be less than or equal to 500", verr.Errors[0].Message)

	_, err = ParseEventQuery(httptest.NewRequest(http.MethodGet, "/events?type=silence", http.NoBody))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Errors[0].Field)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusInternalServerError, errors.New("boom"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"boom"}`, rec.Body.String())

	verr := types.NewValidationError()
	verr.Add("limit", "must be an integer", "x")
	rec = httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, verr)

	var body struct {
		Fields []types.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "limit", body.Fields[0].Field)
}

func TestRunWriterDeliversMessages(t *testing.T) {
	received := make(chan map[string]string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := UpgradeConnection(w, r)
		if !assert.NoError(t, err) {
			return
		}
		send := make(chan any, 2)
		send <- map[string]string{"type": "status"}
		send <- map[string]string{"type": "bye"}
		close(send)
		RunWriter(WithWriteDeadline(conn), send)
	}))
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	for range 2 {
		var msg map[string]string
		require.NoError(t, conn.ReadJSON(&msg))
		received <- msg
	}
	assert.Equal(t, "status", (<-received)["type"])
	assert.Equal(t, "bye", (<-received)["type"])
}
