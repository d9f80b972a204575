// Package metrics holds the Prometheus collectors of the API server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventual_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventual_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	EntriesReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventual_entries_returned",
			Help:    "Number of entries returned per retrieval",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"filtered"},
	)

	EntriesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventual_entries_created_total",
			Help: "Total number of entries created",
		},
		[]string{"kind", "resolved"},
	)

	GeocodeLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventual_geocode_lookups_total",
			Help: "Geocoding lookups by outcome (found, not_found, error, cache_hit)",
		},
		[]string{"outcome"},
	)

	MediaUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventual_media_uploads_total",
			Help: "Media uploads by outcome",
		},
		[]string{"outcome"},
	)
)

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveRetrieval records the size of a retrieval result.
func ObserveRetrieval(filtered bool, n int) {
	EntriesReturned.WithLabelValues(strconv.FormatBool(filtered)).Observe(float64(n))
}

// ObserveCreate records a created entry.
func ObserveCreate(kind string, resolved bool) {
	EntriesCreated.WithLabelValues(kind, strconv.FormatBool(resolved)).Inc()
}

// ObserveGeocode records a geocoding outcome.
func ObserveGeocode(outcome string) {
	GeocodeLookups.WithLabelValues(outcome).Inc()
}

// ObserveMediaUpload records a media upload outcome.
func ObserveMediaUpload(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	MediaUploads.WithLabelValues(outcome).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
