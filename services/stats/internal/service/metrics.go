package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer.
type Metrics struct {
	computations *prometheus.CounterVec
	duration     prometheus.Histogram
	cache        *prometheus.CounterVec
	invalidRows  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamd_stats_computations_total",
			Help: "User statistics requests by outcome",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamd_stats_compute_duration_seconds",
			Help:    "Time spent fetching and aggregating a user's statistics",
			Buckets: prometheus.DefBuckets,
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamd_stats_cache_total",
			Help: "Statistics cache lookups by result",
		}, []string{"result"}),
		invalidRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamd_stats_invalid_rows_total",
			Help: "Watch-list rows skipped during normalization",
		}),
	}
	reg.MustRegister(m.computations, m.duration, m.cache, m.invalidRows)
	return m
}

func (m *Metrics) computed(result string) {
	if m != nil {
		m.computations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) observe(d time.Duration) {
	if m != nil {
		m.duration.Observe(d.Seconds())
	}
}

func (m *Metrics) cacheLookup(result string) {
	if m != nil {
		m.cache.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) invalidRow() {
	if m != nil {
		m.invalidRows.Inc()
	}
}
