package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fetchesTotal tracks dispatched fetches by transport.
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caselaw_fetches_total",
		Help: "The total number of document fetches dispatched, by transport.",
	}, []string{"transport"})
	// fetchFailuresTotal tracks fetches that exhausted their retries.
	fetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caselaw_fetch_failures_total",
		Help: "The total number of fetches that failed after all retries, by transport.",
	}, []string{"transport"})
	// RateLimitHits tracks responses recognized as upstream throttling.
	RateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caselaw_rate_limit_hits_total",
		Help: "The total number of rate-limited responses observed.",
	})
	// rotationsTotal tracks completed egress identity rotations.
	rotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caselaw_identity_rotations_total",
		Help: "The total number of successful egress identity rotations.",
	})
	// casesSavedTotal tracks documents extracted and written to disk.
	casesSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caselaw_documents_saved_total",
		Help: "The total number of case documents persisted.",
	})
	// batchRequeuesTotal tracks batches pushed back after a rotation.
	batchRequeuesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caselaw_batch_requeues_total",
		Help: "The total number of batches requeued after an identity rotation.",
	})
)

// CountFetch records one dispatched fetch for the given transport.
func CountFetch(transport TransportKind) {
	fetchesTotal.WithLabelValues(string(transport)).Inc()
}

// CountFetchFailure records one exhausted fetch for the given transport.
func CountFetchFailure(transport TransportKind) {
	fetchFailuresTotal.WithLabelValues(string(transport)).Inc()
}
