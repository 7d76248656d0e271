package assistant

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/raaihank/fin-sentinel/internal/privacy"
)

var (
	maskedSpans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_masked_spans_total",
			Help: "Total number of PII spans masked, by class and direction",
		},
		[]string{"class", "direction"},
	)

	generationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_generation_failures_total",
			Help: "Total number of failed model calls",
		},
	)

	retrievalDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_retrieval_degraded_total",
			Help: "Total number of requests answered without context after a retrieval failure",
		},
	)
)

func recordFindings(direction string, findings []privacy.Finding) {
	for _, f := range findings {
		maskedSpans.WithLabelValues(string(f.Class), direction).Add(float64(f.Count))
	}
}
