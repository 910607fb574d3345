// Package metrics exposes Prometheus instrumentation for the ingest
// pipeline and processor driver, following the namespace/subsystem
// layout and promauto registration style the rest of the corpus uses.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/archivehq/evm-processor/internal/model"
)

// Metrics holds every Prometheus collector the ingest pipeline and
// processor driver report against. It satisfies both ingest.Metrics and
// processor.Metrics.
type Metrics struct {
	ArchiveHeight      prometheus.Gauge
	BatchesFetched     prometheus.Counter
	BlocksFetched      prometheus.Counter
	FetchDuration      prometheus.Histogram
	HandlerDuration    prometheus.Histogram
	HeightWaitsTotal   prometheus.Counter
	BatchesDelivered   prometheus.Counter
}

// New creates and registers all processor metrics under
// namespace/subsystem; empty strings fall back to sensible defaults.
func New(namespace, subsystem string) *Metrics {
	if namespace == "" {
		namespace = "evm_processor"
	}
	if subsystem == "" {
		subsystem = "ingest"
	}

	return &Metrics{
		ArchiveHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "archive_height",
			Help:      "Last observed archive height",
		}),
		BatchesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batches_fetched_total",
			Help:      "Total number of archive fetches performed",
		}),
		BlocksFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocks_fetched_total",
			Help:      "Total number of blocks decoded from archive responses",
		}),
		FetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_duration_seconds",
			Help:      "Archive fetch round-trip duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		HandlerDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handler_duration_seconds",
			Help:      "User handler invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		HeightWaitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "height_waits_total",
			Help:      "Total number of times the pipeline polled for archive height",
		}),
		BatchesDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batches_delivered_total",
			Help:      "Total number of batches delivered to the processor driver",
		}),
	}
}

// ObserveFetch records one completed archive fetch.
func (m *Metrics) ObserveFetch(_ model.Range, blockCount int, duration time.Duration) {
	m.BatchesFetched.Inc()
	m.BlocksFetched.Add(float64(blockCount))
	m.FetchDuration.Observe(duration.Seconds())
}

// ObserveArchiveHeight updates the last observed archive height gauge.
func (m *Metrics) ObserveArchiveHeight(height int64) {
	m.ArchiveHeight.Set(float64(height))
}

// ObserveHeightWait records one height-polling iteration.
func (m *Metrics) ObserveHeightWait(_ model.Range) {
	m.HeightWaitsTotal.Inc()
}

// ObserveBatch records one batch delivered to the driver's outer loop.
func (m *Metrics) ObserveBatch(_ model.Range, _ int) {
	m.BatchesDelivered.Inc()
}

// ObserveHandlerLatency records one user-handler invocation's duration.
func (m *Metrics) ObserveHandlerLatency(d time.Duration) {
	m.HandlerDuration.Observe(d.Seconds())
}
