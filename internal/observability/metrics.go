// Package observability holds the prometheus collectors for the renderer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tileFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapglyph_tile_fetch_total",
			Help: "Tile fetch attempts by outcome.",
		},
		[]string{"outcome"},
	)

	tileFetchSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapglyph_tile_fetch_duration_seconds",
			Help:    "Latency of tile fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"outcome"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapglyph_cache_results_total",
			Help: "Tile cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	geocodeSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapglyph_geocode_duration_seconds",
			Help:    "Latency of geocoding lookups in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"outcome"},
	)

	renderPassSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapglyph_render_pass_duration_seconds",
			Help:    "Duration of full render passes in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"mode", "outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapglyph_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapglyph_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method", "route", "status"},
	)

	invalidationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapglyph_invalidation_events_total",
			Help: "Cache invalidation events by outcome.",
		},
		[]string{"outcome"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mapglyph_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveTileFetch(outcome string, durationSeconds float64) {
	tileFetchTotal.WithLabelValues(outcome).Inc()
	tileFetchSeconds.WithLabelValues(outcome).Observe(durationSeconds)
}

func IncCacheHit(tier string)  { cacheResults.WithLabelValues(tier, "hit").Inc() }
func IncCacheMiss(tier string) { cacheResults.WithLabelValues(tier, "miss").Inc() }

func ObserveGeocode(outcome string, durationSeconds float64) {
	geocodeSeconds.WithLabelValues(outcome).Observe(durationSeconds)
}

func ObserveRenderPass(mode, outcome string, durationSeconds float64) {
	renderPassSeconds.WithLabelValues(mode, outcome).Observe(durationSeconds)
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := statusText(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func IncInvalidation(outcome string) {
	invalidationTotal.WithLabelValues(outcome).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

func statusText(code int) string {
	switch {
	case code < 100:
		return "0"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
