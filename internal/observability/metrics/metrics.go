package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formwatch_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "formwatch_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "formwatch_fetch_duration_seconds",
		Help:    "Duration of document fetch attempts by source and result",
		Buckets: prometheus.DefBuckets,
	}, []string{"source", "result"})

	changeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formwatch_change_outcomes_total",
		Help: "Count of change detection outcomes",
	}, []string{"outcome"})

	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formwatch_sweep_runs_total",
		Help: "Count of sweep executions by job class and result",
	}, []string{"class", "result"})

	sweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "formwatch_sweep_duration_seconds",
		Help:    "Duration of full sweeps by job class",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	}, []string{"class"})

	trackedDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "formwatch_tracked_documents",
		Help: "Number of active tracked documents",
	})

	webhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formwatch_webhook_deliveries_total",
		Help: "Count of webhook delivery attempts by final result",
	}, []string{"result"})

	prunedContent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formwatch_pruned_content_total",
		Help: "Count of superseded content blobs removed by retention",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveFetch records one document fetch attempt
func ObserveFetch(source, result string, duration time.Duration) {
	fetchDuration.WithLabelValues(source, result).Observe(duration.Seconds())
}

// ObserveChangeOutcome counts one change detection classification
func ObserveChangeOutcome(outcome string) {
	changeOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveSweep records a finished or skipped sweep
func ObserveSweep(class, result string, duration time.Duration) {
	sweepRuns.WithLabelValues(class, result).Inc()
	if result == "completed" {
		sweepDuration.WithLabelValues(class).Observe(duration.Seconds())
	}
}

// SetTrackedDocuments updates the active document gauge
func SetTrackedDocuments(n int) {
	trackedDocuments.Set(float64(n))
}

// ObserveWebhookDelivery counts a webhook delivery's final result
func ObserveWebhookDelivery(result string) {
	webhookDeliveries.WithLabelValues(result).Inc()
}

// ObservePrunedContent counts content blobs removed by the retention worker
func ObservePrunedContent(n int64) {
	prunedContent.Add(float64(n))
}
