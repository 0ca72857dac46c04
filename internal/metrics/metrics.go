// Package metrics provides Prometheus collectors for lint runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leapstack-labs/vaultlint/pkg/core"
)

const namespace = "vaultlint"

// Metrics groups the run collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	FilesProcessed prometheus.Counter
	// IssuesFound is labeled by severity.
	IssuesFound  *prometheus.CounterVec
	FixesApplied prometheus.Counter
	// UnitErrors is labeled by error code.
	UnitErrors   *prometheus.CounterVec
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	BatchSize    prometheus.Gauge
	FileDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg. With a nil reg
// the collectors work but are not exported.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FilesProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Total number of vault files processed",
		}),
		IssuesFound: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_found_total",
			Help:      "Total number of issues found, by severity",
		}, []string{"severity"}),
		FixesApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fixes_applied_total",
			Help:      "Total number of fixes applied or planned in dry runs",
		}),
		UnitErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_errors_total",
			Help:      "Total number of per-file or per-rule errors, by code",
		}, []string{"code"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of rule result cache hits",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of rule result cache misses",
		}),
		BatchSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Size of the most recent processing batch",
		}),
		FileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Time spent linting and fixing a single file",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
}

// ObserveFile records one processed file.
func (m *Metrics) ObserveFile(d time.Duration, issues []core.Issue) {
	if m == nil {
		return
	}
	m.FilesProcessed.Inc()
	m.FileDuration.Observe(d.Seconds())
	for _, is := range issues {
		m.IssuesFound.WithLabelValues(string(is.Severity)).Inc()
	}
}

// ObserveFixes records applied fixes.
func (m *Metrics) ObserveFixes(n int) {
	if m == nil || n == 0 {
		return
	}
	m.FixesApplied.Add(float64(n))
}

// ObserveError records one unit error by its code.
func (m *Metrics) ObserveError(err error) {
	if m == nil || err == nil {
		return
	}
	m.UnitErrors.WithLabelValues(string(core.CodeOf(err))).Inc()
}

// ObserveCache adds the hit and miss deltas of one run.
func (m *Metrics) ObserveCache(hits, misses uint64) {
	if m == nil {
		return
	}
	m.CacheHits.Add(float64(hits))
	m.CacheMisses.Add(float64(misses))
}

// SetBatchSize records the size of the batch about to run.
func (m *Metrics) SetBatchSize(n int) {
	if m == nil {
		return
	}
	m.BatchSize.Set(float64(n))
}

// WriteTextfile writes the gathered metrics in the Prometheus text format,
// for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
