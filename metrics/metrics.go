package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Playback outcome label values.
const (
	OutcomePlayed  = "played"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// Metrics holds the Prometheus collectors for the voice chat service.
// Collectors register on the default registry at construction, so
// NewMetrics must be called once per process.
type Metrics struct {
	WSConnectionsActive prometheus.Gauge

	Transcriptions  *prometheus.CounterVec
	ChatCompletions *prometheus.CounterVec
	TTSChunks       *prometheus.CounterVec
	PlaybackChunks  *prometheus.CounterVec

	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		WSConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voicekit_ws_connections_active",
			Help: "Current number of open voice chat WebSocket connections",
		}),
		Transcriptions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicekit_transcriptions_total",
			Help: "Total speech-to-text requests by status",
		}, []string{"status"}),
		ChatCompletions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicekit_chat_completions_total",
			Help: "Total chat completions by status",
		}, []string{"status"}),
		TTSChunks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicekit_tts_chunks_total",
			Help: "Total synthesized audio chunks by status",
		}, []string{"status"}),
		PlaybackChunks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicekit_playback_chunks_total",
			Help: "Total playback chunks by outcome (played, failed, dropped)",
		}, []string{"outcome"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicekit_request_duration_seconds",
			Help:    "Duration of HTTP requests by endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

// ConnectionOpened increments the active connection gauge.
func (m *Metrics) ConnectionOpened() {
	m.WSConnectionsActive.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (m *Metrics) ConnectionClosed() {
	m.WSConnectionsActive.Dec()
}

// RecordTranscription counts one speech-to-text attempt.
func (m *Metrics) RecordTranscription(ok bool) {
	m.Transcriptions.WithLabelValues(statusLabel(ok)).Inc()
}

// RecordChatCompletion counts one chat completion.
func (m *Metrics) RecordChatCompletion(ok bool) {
	m.ChatCompletions.WithLabelValues(statusLabel(ok)).Inc()
}

// RecordTTSChunk counts one synthesis attempt.
func (m *Metrics) RecordTTSChunk(ok bool) {
	m.TTSChunks.WithLabelValues(statusLabel(ok)).Inc()
}

// RecordPlaybackChunk counts one playback chunk with its outcome.
func (m *Metrics) RecordPlaybackChunk(outcome string) {
	m.PlaybackChunks.WithLabelValues(outcome).Inc()
}

// RecordPlaybackDropped counts n chunks discarded before playing.
func (m *Metrics) RecordPlaybackDropped(n int) {
	if n > 0 {
		m.PlaybackChunks.WithLabelValues(OutcomeDropped).Add(float64(n))
	}
}

// ObserveRequest records the duration of one HTTP request.
func (m *Metrics) ObserveRequest(endpoint string, seconds float64) {
	m.RequestDuration.WithLabelValues(endpoint).Observe(seconds)
}

func statusLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
