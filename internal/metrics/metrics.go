// Package metrics holds the ingestion collectors exported on /metrics next to
// the HTTP metrics of fiberprometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lite"

// Record outcomes
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "runs_total",
		Help:      "Ingestion runs by terminal status.",
	}, []string{"status"})

	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "records_total",
		Help:      "Artifact records seen by ingestion, by category and outcome.",
	}, []string{"category", "outcome"})

	Duration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "Wall time of ingestion runs.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
	})

	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "inflight",
		Help:      "Ingestion runs currently executing.",
	})
)

// ObserveRun records the outcome of a finished run
func ObserveRun(status string, seconds float64) {
	RunsTotal.WithLabelValues(status).Inc()
	Duration.Observe(seconds)
}

// ObserveRecords adds per-category record outcomes
func ObserveRecords(category string, accepted, rejected, failed int64) {
	if accepted > 0 {
		RecordsTotal.WithLabelValues(category, OutcomeAccepted).Add(float64(accepted))
	}
	if rejected > 0 {
		RecordsTotal.WithLabelValues(category, OutcomeRejected).Add(float64(rejected))
	}
	if failed > 0 {
		RecordsTotal.WithLabelValues(category, OutcomeFailed).Add(float64(failed))
	}
}
