package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompty_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompty_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	// PromptFetchTotal counts public prompt fetches by outcome
	// (ok, unauthorized, bad_request, not_found, error).
	PromptFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompty_prompt_fetch_total",
			Help: "Total number of public prompt fetches",
		},
		[]string{"outcome"},
	)
	// AuthzDecisions counts permission checks by action and result.
	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompty_authz_decisions_total",
			Help: "Total number of permission decisions",
		},
		[]string{"action", "result"},
	)
	// ConflictRetries counts optimistic-concurrency retries by operation.
	ConflictRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompty_store_conflict_retries_total",
			Help: "Total number of version-conflict retries",
		},
		[]string{"operation"},
	)
	// EventsPublished counts change events by type and status.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompty_events_published_total",
			Help: "Total number of change events published",
		},
		[]string{"event", "status"},
	)
)
