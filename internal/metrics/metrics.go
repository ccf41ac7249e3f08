// Package metrics provides Prometheus metrics for the retrieval engine.
// All metrics use the "recall" namespace and are registered with the default
// registry via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "recall"

var (
	// EmbeddingRequestsTotal counts embedder calls by purpose and outcome.
	// purpose: chunk | query | retry. outcome: success | failed
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Total number of embedding requests by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)

	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "duration_seconds",
			Help:      "Embedding request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"purpose"},
	)

	// SearchesTotal counts searches by scope. scope: global | chat
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "total",
			Help:      "Total number of searches by scope.",
		},
		[]string{"scope"},
	)

	// SearchCacheTotal counts global search cache lookups. result: hit | miss | expired
	SearchCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "cache_total",
			Help:      "Global search cache lookups by result.",
		},
		[]string{"result"},
	)

	// SearchCoalescedTotal counts global searches that joined an in-flight search.
	SearchCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "coalesced_total",
			Help:      "Global searches served by an identical in-flight search.",
		},
	)

	// RankerVerdictsTotal counts accepted results by the rule that accepted them.
	RankerVerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranker",
			Name:      "accepted_total",
			Help:      "Accepted search results by acceptance reason.",
		},
		[]string{"reason"},
	)

	// DegenerateEmbeddingsTotal counts queries whose vector collided with a stored chunk.
	DegenerateEmbeddingsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranker",
			Name:      "degenerate_embeddings_total",
			Help:      "Queries whose embedding was bit-identical to a stored chunk of different text.",
		},
	)

	ChunksIndexed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "chunks",
			Help:      "Chunks held in memory by scope.",
		},
		[]string{"scope"},
	)

	// EngineState is 1 for the current readiness state label and 0 for the others.
	EngineState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "state",
			Help:      "Readiness state of the retrieval engine.",
		},
		[]string{"state"},
	)
)

// Outcome maps an error to the outcome label value.
func Outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
