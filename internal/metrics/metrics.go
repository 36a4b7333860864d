// Package metrics exposes Prometheus collectors for the crawl service.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal      *prometheus.CounterVec
	crawlerJobsTotal       *prometheus.CounterVec
	crawlerJobSeconds      prometheus.Histogram
	queuePendingJobs       prometheus.Gauge
	queueAvailableCapacity prometheus.Gauge
	storedGraphs           prometheus.Gauge
	sweepRemovalsTotal     prometheus.Counter
	managerBatchesTotal    prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemapper_pages_total",
				Help: "Pages visited by the crawl engine, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemapper_jobs_total",
				Help: "Crawl jobs executed, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerJobSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitemapper_job_duration_seconds",
				Help:    "Histogram of complete crawl job durations.",
				Buckets: []float64{1, 5, 15, 60, 300, 900},
			},
		)

		queuePendingJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitemapper_queue_pending_jobs",
				Help: "Jobs accepted but not yet started.",
			},
		)

		queueAvailableCapacity = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitemapper_queue_available_capacity",
				Help: "Free crawl slots in the admission-controlled queue.",
			},
		)

		storedGraphs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitemapper_stored_graphs",
				Help: "Graph files currently tracked by the metadata index.",
			},
		)

		sweepRemovalsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitemapper_sweep_removals_total",
				Help: "Corrupt graph files removed by the integrity sweeper.",
			},
		)

		managerBatchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitemapper_manager_batches_total",
				Help: "Change batches processed by the graph watcher.",
			},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL for use as a label.
// It returns "unknown" when the URL does not parse.
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

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one visited page with its outcome label.
func ObservePage(site, outcome string) {
	Init()
	crawlerPagesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveJob counts one finished crawl job and records its duration.
func ObserveJob(status string, duration time.Duration) {
	Init()
	crawlerJobsTotal.WithLabelValues(status).Inc()
	crawlerJobSeconds.Observe(duration.Seconds())
}

// SetQueueState publishes the queue's pending count and free capacity.
func SetQueueState(pending, capacity int) {
	Init()
	queuePendingJobs.Set(float64(pending))
	queueAvailableCapacity.Set(float64(capacity))
}

// SetStoredGraphs publishes the number of graphs in the metadata index.
func SetStoredGraphs(n int) {
	Init()
	storedGraphs.Set(float64(n))
}

// ObserveSweepRemoval counts one corrupt file removed by the sweeper.
func ObserveSweepRemoval() {
	Init()
	sweepRemovalsTotal.Inc()
}

// ObserveBatch counts one processed watcher batch.
func ObserveBatch() {
	Init()
	managerBatchesTotal.Inc()
}
