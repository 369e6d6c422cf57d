package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JudgeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "codearena", Name: "judge_requests_total", Help: "Run and submit requests by kind and outcome."},
		[]string{"kind", "outcome"},
	)
	JudgeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "codearena", Name: "judge_request_seconds", Help: "Judge round trip latency.", Buckets: prometheus.ExponentialBuckets(0.05, 2, 10)},
		[]string{"kind"},
	)
	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "codearena", Name: "session_reconciliations_total", Help: "Session reconciliations by outcome."},
		[]string{"outcome"},
	)
	DiscardedResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "codearena", Name: "discarded_results_total", Help: "Results dropped because their owner changed."},
		[]string{"kind"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(JudgeRequests)
	reg.MustRegister(JudgeLatency)
	reg.MustRegister(Reconciliations)
	reg.MustRegister(DiscardedResults)
}
