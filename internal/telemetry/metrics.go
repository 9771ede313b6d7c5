package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration records request duration by method/route/status,
// observed by the httpserver Metrics middleware.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "admissiond",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

// LimitRejectionsTotal counts admission rejections by the enforcement
// component that denied them (§4.8): monthly, hourly, concurrency,
// provider, regen_cooldown, full_regen_cap.
var LimitRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "admissiond",
		Subsystem: "limit",
		Name:      "rejections_total",
		Help:      "Total number of admission requests rejected by limit kind.",
	},
	[]string{"kind"},
)

// ProviderCallsTotal counts generator provider calls by provider and outcome
// (success, 429, error) so the 429 rate can be derived as errors/total.
var ProviderCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "admissiond",
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "Total number of generator provider calls by provider and outcome.",
	},
	[]string{"provider", "outcome"},
)

// JobCompletedTotal counts worker job terminal outcomes.
var JobCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "admissiond",
		Subsystem: "job",
		Name:      "completed_total",
		Help:      "Total number of worker jobs reaching a terminal outcome.",
	},
	[]string{"outcome"}, // success | failed
)

// JobLatency buckets enqueue->complete duration per §4.8's {<5s,5-30s,30-60s,>60s}.
var JobLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "admissiond",
		Subsystem: "job",
		Name:      "latency_seconds",
		Help:      "Job enqueue-to-completion latency in seconds.",
		Buckets:   []float64{5, 30, 60},
	},
	[]string{"platform"},
)

// LifecycleEventsTotal counts job lifecycle transitions: queued, started,
// completed, failed.
var LifecycleEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "admissiond",
		Subsystem: "job",
		Name:      "lifecycle_total",
		Help:      "Total number of job lifecycle transitions by stage.",
	},
	[]string{"stage"},
)

// IdempotencyHitsTotal counts admission requests short-circuited by the
// idempotency fast path (§4.5 step 2).
var IdempotencyHitsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "admissiond",
		Subsystem: "admission",
		Name:      "idempotency_hits_total",
		Help:      "Total number of admission requests short-circuited by a reused idempotency key.",
	},
)

// SlackNotificationsTotal counts ops notifications sent by type.
var SlackNotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "admissiond",
		Subsystem: "slack",
		Name:      "notifications_total",
		Help:      "Total number of Slack notifications sent by type.",
	},
	[]string{"type"},
)

// CircuitBreakerStateChangesTotal counts gobreaker state transitions by
// provider and target state.
var CircuitBreakerStateChangesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "admissiond",
		Subsystem: "provider",
		Name:      "circuit_state_changes_total",
		Help:      "Total number of circuit breaker state changes by provider and state.",
	},
	[]string{"provider", "state"},
)

// All returns all admissiond metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		LimitRejectionsTotal,
		ProviderCallsTotal,
		JobCompletedTotal,
		JobLatency,
		LifecycleEventsTotal,
		IdempotencyHitsTotal,
		SlackNotificationsTotal,
		CircuitBreakerStateChangesTotal,
	}
}
