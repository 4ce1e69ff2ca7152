// Package metrics exposes Prometheus collectors for the price pipeline.
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
	scrapesTotal               *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	classificationsTotal       *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	runsTotal                  prometheus.Counter
	eventsPublishedTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_scrapes_total",
				Help: "Total number of product scrapes, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricewatch_fetch_duration_seconds",
				Help:    "Histogram of price fetch latencies, labeled by site.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		classificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_classifications_total",
				Help: "Total number of ingested prices, labeled by classification.",
			},
			[]string{"classification"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_notifications_total",
				Help: "Total number of webhook deliveries, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		runsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pricewatch_runs_total",
				Help: "Total number of completed scrape runs.",
			},
		)

		eventsPublishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_events_published_total",
				Help: "Total number of price events published, labeled by outcome.",
			},
			[]string{"outcome"},
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

// ObserveScrape records one price fetch for the product page at rawURL.
func ObserveScrape(rawURL, outcome string, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	scrapesTotal.WithLabelValues(site, outcome).Inc()
	if duration > 0 {
		fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	}
}

// ObserveClassification counts an ingested price.
func ObserveClassification(classification string) {
	Init()
	classificationsTotal.WithLabelValues(classification).Inc()
}

// ObserveNotification counts a webhook delivery attempt.
func ObserveNotification(outcome string) {
	Init()
	notificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun counts a finished scrape run.
func ObserveRun() {
	Init()
	runsTotal.Inc()
}

// ObserveEventPublished counts a price event publish attempt.
func ObserveEventPublished(outcome string) {
	Init()
	eventsPublishedTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
