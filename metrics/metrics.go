// Package metrics records voice client activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "valper"

// Status constants for metric labels.
const (
	statusSuccess = "success"
	statusError   = "error"
)

var (
	// stateTransitionsTotal counts interaction state changes.
	stateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of interaction state transitions",
		},
		[]string{"from", "to"},
	)

	// interactionState is 1 for the current state and 0 for all others.
	interactionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "interaction_state",
			Help:      "Current interaction state (1 for the active state)",
		},
		[]string{"state"},
	)

	// remoteRequestDuration is a histogram of backend call duration.
	remoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_duration_seconds",
			Help:      "Duration of backend calls in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// remoteRequestsTotal counts backend calls.
	remoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Total number of backend calls",
		},
		[]string{"operation", "status"}, // status: success, error
	)

	// remoteErrorsTotal counts failed backend calls by error kind.
	remoteErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_errors_total",
			Help:      "Total number of failed backend calls by error kind",
		},
		[]string{"operation", "kind"},
	)

	// synthesisCacheHitsTotal counts synthesis requests served from the cache.
	synthesisCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_cache_hits_total",
			Help:      "Total number of synthesis requests served from the cache",
		},
	)

	// pipelineFailuresTotal counts failed pipeline stages.
	pipelineFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_failures_total",
			Help:      "Total number of failed pipeline stages",
		},
		[]string{"stage", "kind"},
	)

	// turnsTotal counts turns appended to the conversation.
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns",
		},
		[]string{"role"},
	)

	// playbackTotal counts finished playback attempts.
	playbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_total",
			Help:      "Total number of finished playback attempts",
		},
		[]string{"outcome"}, // outcome: completed, failed, stopped
	)

	// captureBytesTotal counts recorded PCM bytes.
	captureBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_bytes_total",
			Help:      "Total bytes of microphone audio recorded",
		},
	)

	// captureLevel is the RMS level of the latest microphone chunk.
	captureLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_level",
			Help:      "RMS level of the latest microphone chunk (0-1)",
		},
	)

	// backendReady is 1 when the backend reports a service ready.
	backendReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_ready",
			Help:      "Backend service readiness from the last health check",
		},
		[]string{"service"}, // service: overall, stt, tts
	)

	// manualAccuracy is a histogram of verified manual synthesis accuracy.
	manualAccuracy = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "manual_accuracy_ratio",
			Help:      "Word accuracy of verified manual synthesis runs",
			Buckets:   []float64{.1, .25, .5, .75, .9, .95, 1},
		},
	)

	allMetrics = []prometheus.Collector{
		stateTransitionsTotal,
		interactionState,
		remoteRequestDuration,
		remoteRequestsTotal,
		remoteErrorsTotal,
		synthesisCacheHitsTotal,
		pipelineFailuresTotal,
		turnsTotal,
		playbackTotal,
		captureBytesTotal,
		captureLevel,
		backendReady,
		manualAccuracy,
	}
)

// knownStates lists the label values of interaction_state.
var knownStates = []string{
	"idle", "capturing", "transcribing", "awaiting_response", "synthesizing", "playing",
}

// RecordTransition records a state change and updates the state gauge.
func RecordTransition(from, to string) {
	stateTransitionsTotal.WithLabelValues(from, to).Inc()
	for _, s := range knownStates {
		v := 0.0
		if s == to {
			v = 1
		}
		interactionState.WithLabelValues(s).Set(v)
	}
}

// RecordRemoteCall records one backend round trip.
func RecordRemoteCall(operation, status string, durationSeconds float64) {
	remoteRequestDuration.WithLabelValues(operation).Observe(durationSeconds)
	remoteRequestsTotal.WithLabelValues(operation, status).Inc()
}

// RecordRemoteError records the kind of a failed backend call.
func RecordRemoteError(operation, kind string) {
	remoteErrorsTotal.WithLabelValues(operation, kind).Inc()
}

// RecordCacheHit records a synthesis cache hit.
func RecordCacheHit() {
	synthesisCacheHitsTotal.Inc()
}

// RecordPipelineFailure records a failed pipeline stage.
func RecordPipelineFailure(stage, kind string) {
	pipelineFailuresTotal.WithLabelValues(stage, kind).Inc()
}

// RecordTurn records an appended turn.
func RecordTurn(role string) {
	turnsTotal.WithLabelValues(role).Inc()
}

// RecordPlayback records a finished playback attempt.
func RecordPlayback(outcome string) {
	playbackTotal.WithLabelValues(outcome).Inc()
}

// RecordCapture records a microphone chunk.
func RecordCapture(bytes int, level float64) {
	if bytes > 0 {
		captureBytesTotal.Add(float64(bytes))
	}
	captureLevel.Set(level)
}

// RecordHealth records a health report.
func RecordHealth(healthy, sttReady, ttsReady bool) {
	backendReady.WithLabelValues("overall").Set(boolToFloat(healthy))
	backendReady.WithLabelValues("stt").Set(boolToFloat(sttReady))
	backendReady.WithLabelValues("tts").Set(boolToFloat(ttsReady))
}

// RecordManualAccuracy records the accuracy of a verified manual run.
func RecordManualAccuracy(accuracy float64) {
	manualAccuracy.Observe(accuracy)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
