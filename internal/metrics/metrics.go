// Package metrics exposes Prometheus collectors for the datasheet service.
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

// Webhook delivery outcomes.
const (
	WebhookDelivered = "delivered"
	WebhookRejected  = "rejected"
	WebhookFailed    = "failed"
	WebhookSkipped   = "skipped"
)

var (
	requestsSubmittedTotal     *prometheus.CounterVec
	requestsFinishedTotal      *prometheus.CounterVec
	extractionDurationSeconds  *prometheus.HistogramVec
	webhookDeliveriesTotal     *prometheus.CounterVec
	activeRequests             prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		requestsSubmittedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasheet_requests_submitted_total",
				Help: "Total number of accepted URLs, labeled by caller origin.",
			},
			[]string{"origin"},
		)

		requestsFinishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasheet_requests_finished_total",
				Help: "Total number of requests that reached a terminal state, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		extractionDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datasheet_extraction_duration_seconds",
				Help:    "Histogram of extract plus render latency per site.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
			},
			[]string{"site"},
		)

		webhookDeliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasheet_webhook_deliveries_total",
				Help: "Total number of webhook notifications, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeRequests = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "datasheet_active_requests",
				Help: "Number of workers currently processing a URL.",
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

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datasheet_fetch_rate_limit_delay_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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

// ObserveSubmitted counts one accepted URL.
func ObserveSubmitted(origin string) {
	Init()
	requestsSubmittedTotal.WithLabelValues(origin).Inc()
}

// ObserveFinished counts a terminal request. An empty site is reported as "unsupported".
func ObserveFinished(site, status string, elapsed time.Duration) {
	Init()
	if site == "" {
		site = "unsupported"
	}
	requestsFinishedTotal.WithLabelValues(site, status).Inc()
	if elapsed > 0 {
		extractionDurationSeconds.WithLabelValues(site).Observe(elapsed.Seconds())
	}
}

// ObserveWebhook counts a webhook delivery attempt by outcome.
func ObserveWebhook(outcome string) {
	Init()
	webhookDeliveriesTotal.WithLabelValues(outcome).Inc()
}

// IncActiveRequests increments the in-flight worker gauge.
func IncActiveRequests() {
	Init()
	activeRequests.Inc()
}

// DecActiveRequests decrements the in-flight worker gauge.
func DecActiveRequests() {
	Init()
	activeRequests.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(SanitizeSite(host)).Observe(duration.Seconds())
}
