package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice session service
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsRemoved prometheus.Counter

	// Transcription metrics
	TranscriptionPasses   prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionDuration prometheus.Histogram
	AudioBytesReceived    prometheus.Counter

	// Agent metrics
	AgentInvocations prometheus.Counter
	AgentFailures    prometheus.Counter
	AgentDuration    prometheus.Histogram

	// TTS metrics
	SynthesisRequests prometheus.Counter
	SynthesisFailures prometheus.Counter
	SynthesisDuration prometheus.Histogram

	// WebSocket metrics
	WSConnections       prometheus.Gauge
	WSMessagesReceived  prometheus.Counter
	WSMessagesSent      prometheus.Counter
	WSSessionsRecovered prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voice_active_sessions",
			Help: "Current number of active voice sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_removed_total",
			Help: "Total number of sessions removed by deletion or expiry",
		}),

		// Transcription metrics
		TranscriptionPasses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_passes_total",
			Help: "Total number of transcription passes executed",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_failures_total",
			Help: "Total number of failed transcription passes",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_transcription_duration_seconds",
			Help:    "Duration of transcription passes",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_audio_bytes_received_total",
			Help: "Total number of audio bytes received from clients",
		}),

		// Agent metrics
		AgentInvocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_invocations_total",
			Help: "Total number of agent CLI invocations",
		}),
		AgentFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_failures_total",
			Help: "Total number of agent invocations resolved with a fallback response",
		}),
		AgentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_agent_duration_seconds",
			Help:    "Duration of agent CLI invocations",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~8 minutes
		}),

		// TTS metrics
		SynthesisRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_synthesis_requests_total",
			Help: "Total number of speech synthesis requests",
		}),
		SynthesisFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_synthesis_failures_total",
			Help: "Total number of failed speech synthesis requests",
		}),
		SynthesisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_synthesis_duration_seconds",
			Help:    "Duration of speech synthesis requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// WebSocket metrics
		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voice_ws_connections",
			Help: "Current number of open WebSocket connections",
		}),
		WSMessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_ws_messages_received_total",
			Help: "Total number of WebSocket messages received",
		}),
		WSMessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_ws_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		}),
		WSSessionsRecovered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_ws_sessions_recovered_total",
			Help: "Total number of sessions resumed after reconnect",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SessionCreated increments the sessions created counter
func (m *Metrics) SessionCreated() {
	m.SessionsCreated.Inc()
}

// SessionRemoved increments the sessions removed counter
func (m *Metrics) SessionRemoved() {
	m.SessionsRemoved.Inc()
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordTranscriptionPass records a completed transcription pass
func (m *Metrics) RecordTranscriptionPass(durationSeconds float64) {
	m.TranscriptionPasses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription pass
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordAudioBytes adds to the received audio byte counter
func (m *Metrics) RecordAudioBytes(n int) {
	m.AudioBytesReceived.Add(float64(n))
}

// AgentInvocation increments the agent invocations counter
func (m *Metrics) AgentInvocation() {
	m.AgentInvocations.Inc()
}

// AgentFailure increments the agent failures counter
func (m *Metrics) AgentFailure() {
	m.AgentFailures.Inc()
}

// RecordAgentDuration records the duration of an agent invocation
func (m *Metrics) RecordAgentDuration(durationSeconds float64) {
	m.AgentDuration.Observe(durationSeconds)
}

// RecordSynthesis records a speech synthesis request
func (m *Metrics) RecordSynthesis(durationSeconds float64, failed bool) {
	m.SynthesisRequests.Inc()
	if failed {
		m.SynthesisFailures.Inc()
	}
	m.SynthesisDuration.Observe(durationSeconds)
}

// WSConnectionOpened increments the WebSocket connections gauge
func (m *Metrics) WSConnectionOpened() {
	m.WSConnections.Inc()
}

// WSConnectionClosed decrements the WebSocket connections gauge
func (m *Metrics) WSConnectionClosed() {
	m.WSConnections.Dec()
}

// RecordWSMessageReceived increments the WebSocket messages received counter
func (m *Metrics) RecordWSMessageReceived() {
	m.WSMessagesReceived.Inc()
}

// RecordWSMessageSent increments the WebSocket messages sent counter
func (m *Metrics) RecordWSMessageSent() {
	m.WSMessagesSent.Inc()
}

// RecordSessionRecovered increments the sessions recovered counter
func (m *Metrics) RecordSessionRecovered() {
	m.WSSessionsRecovered.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
