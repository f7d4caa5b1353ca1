package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tabsync"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

// Usage quota metrics
var (
	SearchesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_recorded_total",
			Help:      "Total number of search events appended",
		},
	)

	SearchLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_limit_hits_total",
			Help:      "Total number of responses advising the free-tier limit was reached",
		},
	)
)

// Reconciliation metrics
var (
	ReconcileAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_attempts_total",
			Help:      "Status-poll attempts made by the reconciliation loop",
		},
		[]string{"result"}, // "activated", "pending", "error"
	)

	ReconcileGiveUps = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_give_ups_total",
			Help:      "Reconciliation runs abandoned after the attempt ceiling",
		},
	)

	ProActivations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pro_activations_total",
			Help:      "Entitlement records converged to an active pro subscription",
		},
	)
)

// Observability boundary for absorbed failures. The user-facing behavior
// degrades gracefully; this counter keeps the failures visible to operators.
var SwallowedErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swallowed_errors_total",
		Help:      "Best-effort operations that failed and were absorbed",
	},
	[]string{"op"},
)

// Billing metrics
var WebhookEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Stripe webhook events received by type",
	},
	[]string{"type"},
)
