package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	connectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ptt_client_connection_state",
		Help: "Connection state (0=disconnected, 1=connecting, 2=connected, 3=disconnecting)",
	})

	connectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptt_client_connect_attempts_total",
		Help: "Total connect attempts by result",
	}, []string{"result"})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ptt_client_session_duration_seconds",
		Help:    "Time spent connected per session",
		Buckets: []float64{1, 10, 60, 300, 900, 3600, 14400},
	})

	// Stream metrics
	streamTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptt_client_stream_transitions_total",
		Help: "Outbound stream starts and stops by trigger source",
	}, []string{"source", "edge"})

	streamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ptt_client_stream_duration_seconds",
		Help:    "Duration of outbound streams",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	voxDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptt_client_vox_decisions_total",
		Help: "Voice activity gate start and stop decisions",
	}, []string{"decision"})

	// Audio metrics
	audioPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptt_client_audio_packets_total",
		Help: "Audio packets by direction and outcome",
	}, []string{"direction", "outcome"})

	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptt_client_audio_bytes_total",
		Help: "Total encoded audio bytes",
	}, []string{"direction"}) // direction: "in" or "out"

	// STT metrics
	sttTranscripts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptt_client_stt_transcripts_total",
		Help: "Transcripts received from the speech-to-text service",
	}, []string{"final"})

	sttLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ptt_client_stt_latency_seconds",
		Help:    "Time from first streamed audio to final transcript",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptt_client_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	listenerPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ptt_client_listener_panics_total",
		Help: "Listener callbacks that panicked",
	})
)

// Metrics tracks metrics for a single session
type Metrics struct {
	sessionID     string
	connectedAt   time.Time
	streamStartAt time.Time
	mu            sync.Mutex
}

// NewSessionMetrics creates a metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{sessionID: sessionID}
}

// RecordState records the connection state as its numeric value
func (m *Metrics) RecordState(state int) {
	connectionState.Set(float64(state))
}

// RecordConnectResult records the outcome of a connect attempt
func (m *Metrics) RecordConnectResult(success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	connectAttempts.WithLabelValues(result).Inc()

	if success {
		m.mu.Lock()
		m.connectedAt = time.Now()
		m.mu.Unlock()
	}
}

// RecordDisconnected closes the connected period
func (m *Metrics) RecordDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connectedAt.IsZero() {
		sessionDuration.Observe(time.Since(m.connectedAt).Seconds())
		m.connectedAt = time.Time{}
	}
}

// RecordStreamStart records an outbound stream start
func (m *Metrics) RecordStreamStart(source string) {
	streamTransitions.WithLabelValues(source, "start").Inc()
	m.mu.Lock()
	m.streamStartAt = time.Now()
	m.mu.Unlock()
}

// RecordStreamStop records an outbound stream stop
func (m *Metrics) RecordStreamStop(source string) {
	streamTransitions.WithLabelValues(source, "stop").Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.streamStartAt.IsZero() {
		streamDuration.Observe(time.Since(m.streamStartAt).Seconds())
		m.streamStartAt = time.Time{}
	}
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordError records an error outside a session
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioPacket records one audio packet and its encoded size
func RecordAudioPacket(direction, outcome string, bytes int) {
	audioPackets.WithLabelValues(direction, outcome).Inc()
	if bytes > 0 {
		audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
	}
}

// RecordVoxDecision records a gate start or stop decision
func RecordVoxDecision(decision string) {
	voxDecisions.WithLabelValues(decision).Inc()
}

// RecordListenerPanic records a recovered listener panic
func RecordListenerPanic() {
	listenerPanics.Inc()
}

// RecordTranscript records a transcript and, for final ones, its latency
func RecordTranscript(final bool, latency time.Duration) {
	label := "false"
	if final {
		label = "true"
		if latency > 0 {
			sttLatency.Observe(latency.Seconds())
		}
	}
	sttTranscripts.WithLabelValues(label).Inc()
}
