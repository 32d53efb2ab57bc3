// Package metrics holds the Prometheus collectors for visit ingestion, throttling and alerting.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Visit ingestion
	VisitClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_visit_classifications_total",
			Help: "Total number of classified visits",
		},
		[]string{"verdict"}, // "human", "bot", "ai"
	)

	VisitLogDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_visit_log_duration_seconds",
			Help:    "Duration of visit logging including persistence",
			Buckets: prometheus.DefBuckets,
		},
	)

	VisitLogErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_visit_log_errors_total",
			Help: "Total number of visits that failed to persist",
		},
	)

	HotSessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_hot_sessions_total",
			Help: "Total number of sessions that became hot",
		},
	)

	// Throttling
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_rate_limit_decisions_total",
			Help: "Total number of rate limit decisions",
		},
		[]string{"policy", "outcome"}, // outcome: "allowed", "denied"
	)

	CounterStoreFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_counter_store_fallbacks_total",
			Help: "Total number of counter operations served by the local store after a shared store failure",
		},
		[]string{"reason"}, // "timeout", "error", "circuit_open"
	)

	AccountLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_account_lockouts_total",
			Help: "Total number of lockouts triggered",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vigil_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Alerts
	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_alerts_emitted_total",
			Help: "Total number of alerts accepted for delivery",
		},
		[]string{"type"},
	)

	AlertsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_alerts_dropped_total",
			Help: "Total number of alerts dropped because the queue was full",
		},
	)

	AlertsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_alerts_failed_total",
			Help: "Total number of alerts that failed to persist or notify",
		},
		[]string{"stage"}, // "persist", "notify"
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveSince records the seconds elapsed since start.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
