// Package metrics exposes Prometheus collectors for the job crawler.
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
	crawlRunsTotal             *prometheus.CounterVec
	crawlRunDurationSeconds    prometheus.Histogram
	jobsInsertedTotal          prometheus.Counter
	sitemapEntriesTotal        prometheus.Counter
	statusChecksTotal          *prometheus.CounterVec
	pageFetchDurationSeconds   *prometheus.HistogramVec
	statusPassInFlight         prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Status check results.
const (
	CheckActive   = "active"
	CheckInactive = "inactive"
	CheckError    = "error"
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcrawler_runs_total",
				Help: "Crawl runs finished, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jobcrawler_run_duration_seconds",
				Help:    "Wall time of a crawl run from sitemap fetch to status pass completion.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		)

		jobsInsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "jobcrawler_jobs_inserted_total",
				Help: "Job records created by reconciliation.",
			},
		)

		sitemapEntriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "jobcrawler_sitemap_entries_total",
				Help: "Candidate entries parsed from sitemaps.",
			},
		)

		statusChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcrawler_status_checks_total",
				Help: "Job page status checks, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		pageFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobcrawler_page_fetch_duration_seconds",
				Help:    "Latency of job page fetches, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
		)

		statusPassInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobcrawler_status_pass_in_flight",
				Help: "1 while a status pass is running.",
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
				Name:    "jobcrawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname, or "unknown".
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

// ObserveRun records a finished crawl run.
func ObserveRun(outcome string, duration time.Duration) {
	Init()
	crawlRunsTotal.WithLabelValues(outcome).Inc()
	crawlRunDurationSeconds.Observe(duration.Seconds())
}

// ObserveReconcile records parsed and newly inserted entry counts.
func ObserveReconcile(entries, inserted int) {
	Init()
	sitemapEntriesTotal.Add(float64(entries))
	jobsInsertedTotal.Add(float64(inserted))
}

// ObserveStatusCheck records one page check and its fetch latency.
func ObserveStatusCheck(pageURL, result string, duration time.Duration) {
	Init()
	site := SanitizeSite(pageURL)
	statusChecksTotal.WithLabelValues(site, result).Inc()
	if duration > 0 {
		pageFetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	}
}

// SetStatusPassInFlight flips the in-flight gauge.
func SetStatusPassInFlight(running bool) {
	Init()
	if running {
		statusPassInFlight.Set(1)
		return
	}
	statusPassInFlight.Set(0)
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(site).Observe(duration.Seconds())
}
