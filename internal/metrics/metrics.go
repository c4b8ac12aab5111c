// Package metrics provides Prometheus metrics for the indexer.
//
// Every Metrics value owns its registry, so tests and multiple services in one
// process never collide. All methods are safe on a nil *Metrics and do nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "grants_indexer"

// Metrics holds all Prometheus metrics for the indexer.
type Metrics struct {
	registry *prometheus.Registry

	// Changeset metrics
	ChangesApplied *prometheus.CounterVec
	ChangesSkipped *prometheus.CounterVec

	// Donation queue metrics
	DonationsFlushed prometheus.Counter
	FlushChunks      prometheus.Counter
	FlushFailures    prometheus.Counter
	QueueDepth       prometheus.Gauge

	// Periodic job metrics
	JobDuration *prometheus.HistogramVec
	JobFailures *prometheus.CounterVec

	// Matching metrics
	Calculations        *prometheus.CounterVec
	CalculationDuration prometheus.Histogram
}

// New creates a metrics set registered on a fresh registry. An empty
// namespace means "grants_indexer".
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ChangesApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "changes_applied_total",
				Help:      "Total number of changes applied, by kind",
			},
			[]string{"kind"},
		),
		ChangesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "changes_skipped_total",
				Help:      "Total number of changes skipped because they were already logged",
			},
			[]string{"kind"},
		),
		DonationsFlushed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "donations_flushed_total",
				Help:      "Total number of donations written by queue flushes",
			},
		),
		FlushChunks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "donation_flush_chunks_total",
				Help:      "Total number of donation chunks written",
			},
		),
		FlushFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "donation_flush_failures_total",
				Help:      "Total number of donation chunks that failed to write",
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "donation_queue_depth",
				Help:      "Donations waiting for the next flush",
			},
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of periodic job runs",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"job"},
		),
		JobFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_failures_total",
				Help:      "Total number of periodic job runs that returned an error",
			},
			[]string{"job"},
		),
		Calculations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calculations_total",
				Help:      "Total number of matching calculations, by outcome",
			},
			[]string{"outcome"},
		),
		CalculationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "calculation_duration_seconds",
				Help:      "Time to compute and augment a round's matches",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler exposing the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterCacheStats exposes a cache's hit and miss counts as counters
// named <name>_cache_hits_total and <name>_cache_misses_total.
func (m *Metrics) RegisterCacheStats(name string, stats func() (hits, misses int64)) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Name:      name + "_cache_hits_total",
			Help:      "Cache lookups served without loading",
		}, func() float64 {
			hits, _ := stats()
			return float64(hits)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Name:      name + "_cache_misses_total",
			Help:      "Cache lookups that called the loader",
		}, func() float64 {
			_, misses := stats()
			return float64(misses)
		}),
	)
}

// IncChangesApplied increments the applied counter for a change kind.
func (m *Metrics) IncChangesApplied(kind string) {
	if m == nil {
		return
	}
	m.ChangesApplied.WithLabelValues(kind).Inc()
}

// IncChangesSkipped increments the skipped counter for a change kind.
func (m *Metrics) IncChangesSkipped(kind string) {
	if m == nil {
		return
	}
	m.ChangesSkipped.WithLabelValues(kind).Inc()
}

// AddDonationsFlushed records one successfully written chunk of n donations.
func (m *Metrics) AddDonationsFlushed(n int) {
	if m == nil {
		return
	}
	m.DonationsFlushed.Add(float64(n))
	m.FlushChunks.Inc()
}

// IncFlushFailures increments the failed chunk counter.
func (m *Metrics) IncFlushFailures() {
	if m == nil {
		return
	}
	m.FlushFailures.Inc()
}

// SetQueueDepth sets the current donation queue depth.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// ObserveJob records one run of a periodic job.
func (m *Metrics) ObserveJob(job string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.JobDuration.WithLabelValues(job).Observe(seconds)
	if err != nil {
		m.JobFailures.WithLabelValues(job).Inc()
	}
}

// ObserveCalculation records one matching calculation.
func (m *Metrics) ObserveCalculation(seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Calculations.WithLabelValues(outcome).Inc()
	m.CalculationDuration.Observe(seconds)
}
