// Package metrics exposes recorder state as Prometheus metrics on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oszuidwest/zwfm-voicegate/internal/audio"
	"github.com/oszuidwest/zwfm-voicegate/internal/signalchain"
	"github.com/oszuidwest/zwfm-voicegate/internal/types"
)

const namespace = "voicegate"

// Sources are sampled on every scrape. Chain and Levels may be nil.
type Sources struct {
	Status func() types.SessionStatus
	Chain  func() signalchain.Stats
	Levels func() audio.Levels
}

// Metrics contains the Prometheus metrics of the recorder.
type Metrics struct {
	registry *prometheus.Registry

	SessionsEnded   *prometheus.CounterVec
	Uploads         *prometheus.CounterVec
	UploadDuration  prometheus.Histogram
	CleanupDeleted  *prometheus.CounterVec
	RecordedSeconds prometheus.Histogram
}

// New registers all metrics on a fresh registry.
func New(src Sources) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	status := src.Status
	if status == nil {
		status = func() types.SessionStatus { return types.SessionStatus{} }
	}

	statusGauge := func(name, help string, value func(types.SessionStatus) float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
			func() float64 { return value(status()) })
	}
	statusCounter := func(name, help string, value func(types.SessionStatus) float64) {
		factory.NewCounterFunc(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help},
			func() float64 { return value(status()) })
	}

	statusGauge("recording", "Whether a session is currently recording",
		func(s types.SessionStatus) float64 { return boolValue(s.State == types.SessionRecording) })
	statusGauge("voiced", "Whether the most recent interval was voiced",
		func(s types.SessionStatus) float64 { return boolValue(s.Voiced) })
	statusGauge("peak_level", "Most recent peak level in [0,1]",
		func(s types.SessionStatus) float64 { return s.Peak })
	statusGauge("gain", "Gain currently applied by the amplifier",
		func(s types.SessionStatus) float64 { return s.Gain })
	statusGauge("noise_floor", "Mean of the noise profile across bins",
		func(s types.SessionStatus) float64 { return s.NoiseFloor })
	statusGauge("session_elapsed_seconds", "Time since the session started",
		func(s types.SessionStatus) float64 { return float64(s.ElapsedMs) / 1000 })
	statusCounter("bytes_written_total", "PCM bytes appended to the container",
		func(s types.SessionStatus) float64 { return float64(s.BytesWritten) })
	statusCounter("frames_written_total", "Voiced frames appended to the container",
		func(s types.SessionStatus) float64 { return float64(s.FramesWritten) })
	statusCounter("frames_dropped_total", "Unvoiced frames discarded",
		func(s types.SessionStatus) float64 { return float64(s.FramesDropped) })

	if src.Chain != nil {
		chain := src.Chain
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "chain_overruns_total",
			Help: "Frames discarded because the session did not poll in time",
		}, func() float64 { return float64(chain().Overruns) })
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "chain_clipped_samples_total",
			Help: "Samples clipped by the amplifier",
		}, func() float64 { return float64(chain().Clipped) })
	}

	if src.Levels != nil {
		levels := src.Levels
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "input_rms_dbfs",
			Help: "RMS level of the most recent amplified frame",
		}, func() float64 { return levels().RMS })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "input_peak_dbfs",
			Help: "Peak level of the most recent amplified frame",
		}, func() float64 { return levels().Peak })
	}

	return &Metrics{
		registry: reg,
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_ended_total",
			Help: "Sessions that ended, by final state",
		}, []string{"state"}),
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "uploads_total",
			Help: "Upload attempts of finalized recordings, by result",
		}, []string{"result"}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "upload_duration_seconds",
			Help:    "Duration of recording uploads including retries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),
		CleanupDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cleanup_deleted_total",
			Help: "Recordings removed by retention cleanup",
		}, []string{"location"}),
		RecordedSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "session_voiced_seconds",
			Help:    "Voiced audio retained per session",
			Buckets: prometheus.LinearBuckets(0, 5, 13), // 0s to 60s
		}),
	}
}

// RecordSession counts an ended session and the audio it retained.
func (m *Metrics) RecordSession(st *types.SessionStatus, byteRate int) {
	m.SessionsEnded.WithLabelValues(string(st.State)).Inc()
	if byteRate > 0 {
		m.RecordedSeconds.Observe(float64(st.BytesWritten) / float64(byteRate))
	}
}

// RecordUpload counts an upload and its duration.
func (m *Metrics) RecordUpload(ok bool, seconds float64) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.Uploads.WithLabelValues(result).Inc()
	m.UploadDuration.Observe(seconds)
}

// RecordCleanup counts recordings removed by retention.
func (m *Metrics) RecordCleanup(local, remote int) {
	m.CleanupDeleted.WithLabelValues("local").Add(float64(local))
	m.CleanupDeleted.WithLabelValues("remote").Add(float64(remote))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
