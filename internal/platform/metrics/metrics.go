package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	adjudicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_adjudications_total",
			Help: "Total number of completed automatic adjudications",
		},
		[]string{"recommendation"},
	)

	adjudicationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "claims_adjudication_duration_seconds",
			Help:    "Time to adjudicate one claim, including persistence",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_transitions_total",
			Help: "Total number of persisted claim operations by resulting status",
		},
		[]string{"operation", "to_status"},
	)

	batchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_batch_items_total",
			Help: "Total number of claims processed by batch runs",
		},
		[]string{"outcome"},
	)

	jobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of background jobs processed",
		},
		[]string{"kind", "outcome"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobs_duration_seconds",
			Help:    "Background job handler duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"kind"},
	)

	panicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panics_recovered_total",
			Help: "Panics recovered in ops handlers and job handlers",
		},
		[]string{"source"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAdjudication records one completed adjudication.
func ObserveAdjudication(recommendation string, d time.Duration) {
	adjudicationsTotal.WithLabelValues(recommendation).Inc()
	adjudicationDuration.Observe(d.Seconds())
}

// RecordTransition records a persisted claim operation.
func RecordTransition(operation, toStatus string) {
	transitionsTotal.WithLabelValues(operation, toStatus).Inc()
}

// RecordBatchItem records one batch item outcome ("succeeded" or "failed").
func RecordBatchItem(outcome string) {
	batchItemsTotal.WithLabelValues(outcome).Inc()
}

// RecordJob records a job attempt outcome ("completed", "retried", "failed").
func RecordJob(kind, outcome string, d time.Duration) {
	jobsProcessedTotal.WithLabelValues(kind, outcome).Inc()
	jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordPanic counts a recovered panic. source is "ops:<route>" or
// "job:<kind>".
func RecordPanic(source string) {
	panicsRecovered.WithLabelValues(source).Inc()
}
