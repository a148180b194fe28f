package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_studio_active_sessions",
		Help: "Number of open sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_studio_sessions_total",
		Help: "Total number of sessions created",
	})

	// Generation metrics
	generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_studio_generations_total",
		Help: "Total number of generate calls by outcome",
	}, []string{"status"}) // status: ready, failed, skipped

	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_studio_synthesis_latency_seconds",
		Help:    "Time from request to materialized asset in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
	})

	synthesisBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_studio_synthesis_bytes",
		Help:    "Size of synthesized audio payloads",
		Buckets: prometheus.ExponentialBuckets(4096, 4, 8),
	})

	// Asset metrics
	liveAssets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_studio_live_assets",
		Help: "Number of materialized assets not yet released",
	})

	releasedAssets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_studio_assets_released_total",
		Help: "Total number of released assets",
	})

	// Playback metrics
	plays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_studio_plays_total",
		Help: "Total number of play commands by rate",
	}, []string{"rate"})

	attachedPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_studio_attached_players",
		Help: "Number of websocket players attached to sessions",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_studio_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_studio_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_studio_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// GenerationMetrics tracks a single generate call
type GenerationMetrics struct {
	sessionID string
	startTime time.Time
	mu        sync.Mutex
	done      bool
}

// NewGenerationMetrics starts timing a generation for a session
func NewGenerationMetrics(sessionID string) *GenerationMetrics {
	return &GenerationMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordReady records a generation that produced an asset
func (m *GenerationMetrics) RecordReady(bytes int) {
	if !m.finish() {
		return
	}
	synthesisLatency.Observe(time.Since(m.startTime).Seconds())
	synthesisBytes.Observe(float64(bytes))
	generations.WithLabelValues("ready").Inc()
}

// RecordFailed records a generation that ended in Failed
func (m *GenerationMetrics) RecordFailed(errorType string) {
	if !m.finish() {
		return
	}
	generations.WithLabelValues("failed").Inc()
	errorsTotal.WithLabelValues(errorType, "synthesis").Inc()
}

func (m *GenerationMetrics) finish() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return false
	}
	m.done = true
	return true
}

// RecordGenerationSkipped records a generate call suppressed by an in-flight request
func RecordGenerationSkipped() {
	generations.WithLabelValues("skipped").Inc()
}

// RecordSessionOpened records a new session
func RecordSessionOpened() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionClosed records a destroyed session
func RecordSessionClosed() {
	activeSessions.Dec()
}

// RecordAssetMaterialized records a new live asset
func RecordAssetMaterialized(size, live int) {
	liveAssets.Set(float64(live))
}

// RecordAssetReleased records a revoked asset
func RecordAssetReleased(live int) {
	liveAssets.Set(float64(live))
	releasedAssets.Inc()
}

// RecordPlay records a play command sent at the given rate
func RecordPlay(rate string) {
	plays.WithLabelValues(rate).Inc()
}

// RecordPlayerAttached records a websocket player joining
func RecordPlayerAttached() {
	attachedPlayers.Inc()
}

// RecordPlayerDetached records a websocket player leaving
func RecordPlayerDetached() {
	attachedPlayers.Dec()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
