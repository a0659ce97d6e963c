// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the fetch and extract counters.
const (
	OutcomeSaved     = "saved"
	OutcomeTransport = "transport_error"
	OutcomePermanent = "permanent_failure"
	OutcomeDiscarded = "discarded"
	OutcomeStore     = "store_error"
	OutcomeCrawled   = "crawled"
	OutcomeNoLinks   = "no_links"
	OutcomeParse     = "parse_error"
	OutcomeInserted  = "inserted"
	OutcomeDuplicate = "duplicate"
)

var (
	crawlerFetchTotal             *prometheus.CounterVec
	crawlerFetchBytesTotal        *prometheus.CounterVec
	crawlerFetchDurationSeconds   *prometheus.HistogramVec
	crawlerFetchPass              prometheus.Gauge
	crawlerLinksTotal             *prometheus.CounterVec
	crawlerExtractTotal           *prometheus.CounterVec
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_total",
				Help: "Fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerFetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_bytes_total",
				Help: "Raw bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of HTTP fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"site"},
		)

		crawlerFetchPass = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_fetch_pass",
				Help: "Current fetch pass number of the running crawl.",
			},
		)

		crawlerLinksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_links_total",
				Help: "Links discovered during extraction, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerExtractTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_extract_total",
				Help: "Pages processed for links, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests served, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of served HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
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

// ObserveFetch records one fetch attempt.
func ObserveFetch(site, outcome string, bytesFetched int, duration time.Duration) {
	Init()
	crawlerFetchTotal.WithLabelValues(site, outcome).Inc()
	if bytesFetched > 0 {
		crawlerFetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
	if duration > 0 {
		crawlerFetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	}
}

// SetFetchPass records the pass the orchestrator is running.
func SetFetchPass(pass int) {
	Init()
	crawlerFetchPass.Set(float64(pass))
}

// ObserveLink records one normalized link found during extraction.
func ObserveLink(site, outcome string) {
	Init()
	crawlerLinksTotal.WithLabelValues(site, outcome).Inc()
}

// ObserveExtract records one page processed for links.
func ObserveExtract(site, outcome string) {
	Init()
	crawlerExtractTotal.WithLabelValues(site, outcome).Inc()
}

// ObserveRateLimitDelay records time spent waiting on the politeness limiter.
func ObserveRateLimitDelay(domain string, delay time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(delay.Seconds())
}

// ObserveHTTPRequest records one request served by the metrics server.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
