// Package metrics provides Prometheus metrics for the tracker.
// The server exposes them at /metrics; batch commands flush them to a
// node-exporter textfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Collector Metrics
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audtracker_fetch_total",
			Help: "Total number of upstream price fetches",
		},
		[]string{"source", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audtracker_fetch_duration_seconds",
			Help:    "Upstream request latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audtracker_rate_cache_hits_total",
			Help: "Historical rate lookups served from the in-memory cache",
		},
		[]string{"source"},
	)

	// History Table Metrics
	UpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audtracker_history_upserts_total",
			Help: "Total number of history table upserts",
		},
		[]string{"table", "outcome"},
	)

	TableRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audtracker_history_rows",
			Help: "Rows in each history table after the last write",
		},
		[]string{"table"},
	)

	LastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audtracker_last_success_timestamp_seconds",
			Help: "Unix time of the last successful pipeline run",
		},
		[]string{"pipeline"},
	)

	// Report Metrics
	RendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audtracker_renders_total",
			Help: "Report renders by kind and output",
		},
		[]string{"kind", "output", "outcome"},
	)

	// RBA Import Metrics
	RBARecordsImported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audtracker_rba_records_imported_total",
			Help: "RBA exchange rate records inserted into the archive",
		},
	)

	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audtracker_http_requests_total",
			Help: "Total number of dashboard API requests",
		},
		[]string{"method", "path", "status"},
	)
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeEmpty   = "empty"
)

// WriteTextfile writes the default registry to path in the text exposition
// format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
