// Package metrics provides Prometheus observability for the compliance
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline-wide instruments. A nil *Metrics is a valid
// no-op receiver, so components can be wired without observability in tests.
type Metrics struct {
	// Finding outcomes by category
	Findings *prometheus.CounterVec

	// Scoring latency per analyze call
	ScoreLatency prometheus.Histogram

	// Catalog publishes by jurisdiction
	CatalogPublishes *prometheus.CounterVec

	// Drift records by status
	DriftRecords *prometheus.CounterVec

	// Attestation issuance outcomes ("issued" / "refused")
	Attestations *prometheus.CounterVec
}

// New creates a Metrics instance with all pipeline metrics registered.
func New() *Metrics {
	return &Metrics{
		Findings: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gavel_findings_total",
			Help: "Total findings produced by outcome",
		}, []string{"outcome"}), // outcome: "satisfied", "violated", "inconclusive"

		ScoreLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gavel_score_duration_seconds",
			Help:    "Duration of full statement-grid scoring including aggregation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		CatalogPublishes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gavel_catalog_publishes_total",
			Help: "Total regulation versions published by jurisdiction",
		}, []string{"jurisdiction"}),

		DriftRecords: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gavel_drift_records_total",
			Help: "Total drift records created by status",
		}, []string{"status"}),

		Attestations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gavel_attestations_total",
			Help: "Total attestation requests by result",
		}, []string{"result"}), // result: "issued", "refused"
	}
}

// IncrementFinding records one finding outcome.
func (m *Metrics) IncrementFinding(outcome string) {
	if m != nil {
		m.Findings.WithLabelValues(outcome).Inc()
	}
}

// ObserveScoreLatency records the duration of an analyze call.
func (m *Metrics) ObserveScoreLatency(d time.Duration) {
	if m != nil {
		m.ScoreLatency.Observe(d.Seconds())
	}
}

// IncrementPublish records a catalog publish.
func (m *Metrics) IncrementPublish(jurisdictionID string) {
	if m != nil {
		m.CatalogPublishes.WithLabelValues(jurisdictionID).Inc()
	}
}

// IncrementDrift records a drift record by status.
func (m *Metrics) IncrementDrift(status string) {
	if m != nil {
		m.DriftRecords.WithLabelValues(status).Inc()
	}
}

// IncrementAttestation records an attestation request result.
func (m *Metrics) IncrementAttestation(result string) {
	if m != nil {
		m.Attestations.WithLabelValues(result).Inc()
	}
}
