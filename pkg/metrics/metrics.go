// Package metrics provides Prometheus metrics for metadata integration.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IntegrationsTotal counts integrations by outcome.
	// Labels: result (success, partial, failed)
	IntegrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ekaya_dq",
			Subsystem: "integration",
			Name:      "requests_total",
			Help:      "Total number of metadata integrations by outcome",
		},
		[]string{"result"},
	)

	// IntegrationDuration tracks end-to-end integration latency.
	IntegrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ekaya_dq",
			Subsystem: "integration",
			Name:      "duration_seconds",
			Help:      "Duration of metadata integrations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// FetchesTotal counts source fetches.
	// Labels: kind (tables, columns, statistics), result (success, error)
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ekaya_dq",
			Subsystem: "source",
			Name:      "fetches_total",
			Help:      "Total number of metadata fetches by kind and result",
		},
		[]string{"kind", "result"},
	)

	// FetchDuration tracks source fetch latency by kind.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ekaya_dq",
			Subsystem: "source",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of metadata fetches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// EnvelopeVariants counts which response layout matched per kind.
	// An empty variant is recorded as "none".
	EnvelopeVariants = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ekaya_dq",
			Subsystem: "normalize",
			Name:      "envelope_variants_total",
			Help:      "Total number of extracted payloads by entity kind and envelope layout",
		},
		[]string{"kind", "variant"},
	)

	// CacheRequests counts snapshot cache lookups.
	// Labels: result (hit, miss, error)
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ekaya_dq",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Total number of snapshot cache lookups by result",
		},
		[]string{"result"},
	)
)

// RecordIntegration records one integration outcome and its duration.
func RecordIntegration(success bool, errorCount int, elapsed time.Duration) {
	switch {
	case !success:
		IntegrationsTotal.WithLabelValues("failed").Inc()
	case errorCount > 0:
		IntegrationsTotal.WithLabelValues("partial").Inc()
	default:
		IntegrationsTotal.WithLabelValues("success").Inc()
	}
	IntegrationDuration.Observe(elapsed.Seconds())
}

// RecordFetch records one source fetch.
func RecordFetch(kind string, err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	FetchesTotal.WithLabelValues(kind, result).Inc()
	FetchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordVariant records the envelope layout matched for kind.
func RecordVariant(kind, variant string) {
	if variant == "" {
		variant = "none"
	}
	EnvelopeVariants.WithLabelValues(kind, variant).Inc()
}

// RecordCache records a cache lookup result: hit, miss, error or bypass.
func RecordCache(result string) {
	CacheRequests.WithLabelValues(result).Inc()
}
