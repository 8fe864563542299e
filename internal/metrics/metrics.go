// Package metrics exposes Prometheus collectors for the metadata resolver.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	providerAttemptsTotal      *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	resolutionsTotal           *prometheus.CounterVec
	resolutionDurationSeconds  *prometheus.HistogramVec
	breakerTripsTotal          *prometheus.CounterVec
	queueDepth                 prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		providerAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkmeta_provider_attempts_total",
				Help: "Total number of provider calls, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkmeta_cache_lookups_total",
				Help: "Total number of cache lookups, labeled by result.",
			},
			[]string{"result"},
		)

		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkmeta_resolutions_total",
				Help: "Total number of resolutions, labeled by the source of the value.",
			},
			[]string{"source"},
		)

		resolutionDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkmeta_resolution_duration_seconds",
				Help:    "Histogram of resolution latencies, labeled by source.",
				Buckets: []float64{0.01, 0.05, 0.25, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		)

		breakerTripsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkmeta_breaker_trips_total",
				Help: "Total number of circuit breaker trips, labeled by provider.",
			},
			[]string{"provider"},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "linkmeta_queue_depth",
				Help: "Number of calls waiting for the guarded provider.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkmeta_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkmeta_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProviderAttempt counts one provider call.
func ObserveProviderAttempt(provider, outcome string) {
	if providerAttemptsTotal == nil {
		return
	}
	providerAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveCacheLookup counts a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if cacheLookupsTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveResolution records a finished resolution.
func ObserveResolution(source string, duration time.Duration) {
	if resolutionsTotal == nil {
		return
	}
	resolutionsTotal.WithLabelValues(source).Inc()
	resolutionDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveBreakerTrip counts a breaker trip for provider.
func ObserveBreakerTrip(provider string) {
	if breakerTripsTotal == nil {
		return
	}
	breakerTripsTotal.WithLabelValues(provider).Inc()
}

// SetQueueDepth reports how many calls wait for the guarded provider.
func SetQueueDepth(depth int) {
	if queueDepth == nil {
		return
	}
	queueDepth.Set(float64(depth))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
