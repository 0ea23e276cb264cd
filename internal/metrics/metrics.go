// Package metrics exposes Prometheus instrumentation for upstream fetches,
// cache behavior, and reconciliation outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tidycensus_upstream_requests_total",
		Help: "Upstream HTTP requests by source and outcome",
	}, []string{"source", "outcome"})
	UpstreamDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tidycensus_upstream_duration_seconds",
		Help:    "Upstream HTTP request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"source"})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tidycensus_cache_hits_total",
		Help: "Cache hits by source",
	}, []string{"source"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tidycensus_cache_misses_total",
		Help: "Cache misses by source",
	}, []string{"source"})
	AlignRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tidycensus_align_runs_total",
		Help: "Alignment runs by outcome",
	}, []string{"outcome"})
	ConservationWarningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tidycensus_conservation_warnings_total",
		Help: "Conservation warnings emitted across alignment runs",
	})
	DegenerateGeometriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tidycensus_degenerate_geometries_total",
		Help: "Source units skipped during overlay for degenerate geometry",
	})
)

func init() {
	prometheus.MustRegister(
		UpstreamRequestsTotal,
		UpstreamDurationSeconds,
		CacheHitsTotal,
		CacheMissesTotal,
		AlignRunsTotal,
		ConservationWarningsTotal,
		DegenerateGeometriesTotal,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
