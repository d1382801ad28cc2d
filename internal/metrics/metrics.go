// Package metrics exposes Prometheus collectors for the feed engine.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal                *prometheus.CounterVec
	feedUpdatesTotal           *prometheus.CounterVec
	catalogBooksFetchedTotal   prometheus.Counter
	feedMatchedItemsTotal      prometheus.Counter
	feedNewItemsTotal          prometheus.Counter
	cycleDurationSeconds       prometheus.Histogram
	feedsInFlight              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookfeed_cycles_total",
				Help: "Total number of update cycles, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		feedUpdatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookfeed_feed_updates_total",
				Help: "Total number of per-feed updates, labeled by status.",
			},
			[]string{"status"},
		)

		catalogBooksFetchedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bookfeed_catalog_books_fetched_total",
				Help: "Total number of catalog records fetched.",
			},
		)

		feedMatchedItemsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bookfeed_feed_matched_items_total",
				Help: "Total number of records matched by any feed.",
			},
		)

		feedNewItemsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bookfeed_feed_new_items_total",
				Help: "Total number of matched records not previously delivered.",
			},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bookfeed_cycle_duration_seconds",
				Help:    "Histogram of update cycle durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		feedsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookfeed_feeds_in_flight",
				Help: "Number of feeds currently being updated.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCycle records a finished update cycle.
func ObserveCycle(outcome string, duration time.Duration) {
	cyclesTotal.WithLabelValues(outcome).Inc()
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveFeedUpdate records one per-feed update with its match counts.
func ObserveFeedUpdate(status string, matched, fresh int) {
	feedUpdatesTotal.WithLabelValues(status).Inc()
	if matched > 0 {
		feedMatchedItemsTotal.Add(float64(matched))
	}
	if fresh > 0 {
		feedNewItemsTotal.Add(float64(fresh))
	}
}

// ObserveBooksFetched adds n to the fetched-records counter.
func ObserveBooksFetched(n int) {
	if n > 0 {
		catalogBooksFetchedTotal.Add(float64(n))
	}
}

// IncFeedsInFlight increments the in-flight feeds gauge.
func IncFeedsInFlight() {
	feedsInFlight.Inc()
}

// DecFeedsInFlight decrements the in-flight feeds gauge.
func DecFeedsInFlight() {
	feedsInFlight.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
