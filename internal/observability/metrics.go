package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Focus timer metrics
	focusTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studypal_focus_ticks_total",
		Help: "Total number of focus timer ticks",
	})

	focusMinutes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studypal_focus_minutes_total",
		Help: "Total study minutes reported by focus timers",
	})

	focusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studypal_focus_transitions_total",
		Help: "Focus timer mode transitions",
	}, []string{"from", "to"})

	// Voice session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studypal_voice_active_sessions",
		Help: "Number of connected voice sessions",
	})

	activeTurns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studypal_voice_active_turns",
		Help: "Number of voice turns between start and idle",
	})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studypal_voice_turns_total",
		Help: "Voice turns by outcome",
	}, []string{"outcome"}) // outcome: "completed", "failed", "cancelled"

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "studypal_voice_turn_duration_seconds",
		Help:    "Duration of voice turns in seconds",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
	})

	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studypal_voice_phase_duration_seconds",
		Help:    "Time spent in each conversation phase",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"phase"})

	// STT metrics
	sttRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studypal_stt_requests_total",
		Help: "Total number of transcription requests",
	}, []string{"status"})

	sttLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "studypal_stt_latency_seconds",
		Help:    "Transcription latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// TTS metrics
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studypal_tts_requests_total",
		Help: "Total number of speech synthesis requests",
	}, []string{"status"})

	ttsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "studypal_tts_latency_seconds",
		Help:    "Speech synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Assistant metrics
	assistantRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studypal_assistant_requests_total",
		Help: "Total number of assistant requests",
	}, []string{"status"})

	assistantLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "studypal_assistant_latency_seconds",
		Help:    "Assistant response latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studypal_errors_total",
		Help: "Total number of errors",
	}, []string{"kind", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "studypal_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studypal_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studypal_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// TurnMetrics tracks metrics for a single voice turn
type TurnMetrics struct {
	turnID             string
	startTime          time.Time
	sttStartTime       time.Time
	ttsStartTime       time.Time
	assistantStartTime time.Time
	mu                 sync.Mutex
}

// NewTurnMetrics creates a new metrics tracker for a turn
func NewTurnMetrics(turnID string) *TurnMetrics {
	return &TurnMetrics{
		turnID:    turnID,
		startTime: time.Now(),
	}
}

// RecordTurnEnd records the outcome and duration of the turn
func (m *TurnMetrics) RecordTurnEnd(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordSTTStart records the start of transcription
func (m *TurnMetrics) RecordSTTStart() {
	m.mu.Lock()
	m.sttStartTime = time.Now()
	m.mu.Unlock()
}

// RecordSTTEnd records the end of transcription
func (m *TurnMetrics) RecordSTTEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sttStartTime.IsZero() {
		sttLatency.Observe(time.Since(m.sttStartTime).Seconds())
	}
	sttRequests.WithLabelValues(statusLabel(success)).Inc()
}

// RecordTTSStart records the start of synthesis
func (m *TurnMetrics) RecordTTSStart() {
	m.mu.Lock()
	m.ttsStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTTSEnd records the end of synthesis
func (m *TurnMetrics) RecordTTSEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ttsStartTime.IsZero() {
		ttsLatency.Observe(time.Since(m.ttsStartTime).Seconds())
	}
	ttsRequests.WithLabelValues(statusLabel(success)).Inc()
}

// RecordAssistantStart records the start of the assistant call
func (m *TurnMetrics) RecordAssistantStart() {
	m.mu.Lock()
	m.assistantStartTime = time.Now()
	m.mu.Unlock()
}

// RecordAssistantEnd records the end of the assistant call
func (m *TurnMetrics) RecordAssistantEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.assistantStartTime.IsZero() {
		assistantLatency.Observe(time.Since(m.assistantStartTime).Seconds())
	}
	assistantRequests.WithLabelValues(statusLabel(success)).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordError records an error by kind
func RecordError(kind, component string) {
	if kind == "" {
		kind = "unclassified"
	}
	errorsTotal.WithLabelValues(kind, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// ObservePhase records how long a conversation stayed in a phase
func ObservePhase(phase string, d time.Duration) {
	phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordSessionStart records a connected voice session
func RecordSessionStart() {
	activeSessions.Inc()
}

// RecordSessionEnd records a disconnected voice session
func RecordSessionEnd() {
	activeSessions.Dec()
}

// RecordTurnStart records a voice turn leaving idle
func RecordTurnStart() {
	activeTurns.Inc()
}

// RecordTurnFinish records a voice turn returning to idle
func RecordTurnFinish() {
	activeTurns.Dec()
}

// RecordFocusTick records one focus timer tick
func RecordFocusTick() {
	focusTicks.Inc()
}

// RecordFocusMinutes records reported study minutes
func RecordFocusMinutes(minutes int) {
	focusMinutes.Add(float64(minutes))
}

// RecordFocusTransition records a focus mode transition
func RecordFocusTransition(from, to string) {
	focusTransitions.WithLabelValues(from, to).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
