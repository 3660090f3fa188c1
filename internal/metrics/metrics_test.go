package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-voicegate/internal/audio"
	"github.com/oszuidwest/zwfm-voicegate/internal/signalchain"
	"github.com/oszuidwest/zwfm-voicegate/internal/types"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsSampleStatus(t *testing.T) {
	st := types.SessionStatus{
		State:         types.SessionRecording,
		Voiced:        true,
		Gain:          0.75,
		BytesWritten:  2560,
		FramesWritten: 10,
		FramesDropped: 4,
	}
	m := New(Sources{
		Status: func() types.SessionStatus { return st },
		Chain:  func() signalchain.Stats { return signalchain.Stats{Overruns: 2, Clipped: 9} },
		Levels: func() audio.Levels { return audio.Levels{RMS: -12, Peak: -3} },
	})

	body := scrape(t, m)
	assert.Contains(t, body, "voicegate_recording 1")
	assert.Contains(t, body, "voicegate_voiced 1")
	assert.Contains(t, body, "voicegate_gain 0.75")
	assert.Contains(t, body, "voicegate_bytes_written_total 2560")
	assert.Contains(t, body, "voicegate_frames_dropped_total 4")
	assert.Contains(t, body, "voicegate_chain_overruns_total 2")
	assert.Contains(t, body, "voicegate_chain_clipped_samples_total 9")
	assert.Contains(t, body, "voicegate_input_rms_dbfs -12")
	assert.Contains(t, body, "voicegate_input_peak_dbfs -3")

	st.State = types.SessionStopped
	assert.Contains(t, scrape(t, m), "voicegate_recording 0")
}

func TestMetricsEvents(t *testing.T) {
	m := New(Sources{})

	m.RecordSession(&types.SessionStatus{State: types.SessionFailed, BytesWritten: 88200}, 88200)
	m.RecordUpload(true, 1.5)
	m.RecordUpload(false, 3)
	m.RecordCleanup(2, 1)

	body := scrape(t, m)
	assert.Contains(t, body, `voicegate_sessions_ended_total{state="failed"} 1`)
	assert.Contains(t, body, `voicegate_uploads_total{result="success"} 1`)
	assert.Contains(t, body, `voicegate_uploads_total{result="failure"} 1`)
	assert.Contains(t, body, `voicegate_cleanup_deleted_total{location="local"} 2`)
	assert.Contains(t, body, "voicegate_session_voiced_seconds_sum 1")
	assert.NotContains(t, body, "voicegate_chain_overruns_total")
}
