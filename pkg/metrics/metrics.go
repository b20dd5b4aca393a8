// Package metrics exposes the engine's Prometheus collectors. One Registry
// is created per engine instance and handed to the components that record
// into it; a nil *Registry is safe everywhere and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the engine's collectors on a private Prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	// Write path
	AppendsTotal       *prometheus.CounterVec
	FlushesTotal       *prometheus.CounterVec
	FlushDuration      prometheus.Histogram
	BufferRecords      prometheus.Gauge
	BufferSizeBytes    prometheus.Gauge
	SegmentSizeBytes   prometheus.Histogram
	WALAppends         prometheus.Gauge
	WALCompressedBytes prometheus.Gauge

	// Read path
	LookupsTotal      *prometheus.CounterVec
	BloomNegatives    prometheus.Counter
	SegmentsOpenTotal prometheus.Gauge
}

// New creates a Registry with all collectors registered.
func New() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.AppendsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hadro_appends_total",
			Help: "Records appended to the write buffer",
		},
		[]string{"status"},
	)

	r.FlushesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hadro_flushes_total",
			Help: "Buffer flushes to immutable segments",
		},
		[]string{"status"},
	)

	r.FlushDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hadro_flush_duration_seconds",
			Help:    "Flush duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	r.BufferRecords = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "hadro_buffer_records",
			Help: "Records currently in the write buffer",
		},
	)

	r.BufferSizeBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "hadro_buffer_size_bytes",
			Help: "Serialized bytes currently in the write buffer",
		},
	)

	r.SegmentSizeBytes = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hadro_segment_size_bytes",
			Help:    "Size of flushed segments in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	r.WALAppends = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "hadro_wal_appends",
			Help: "Entries in the write-ahead log since its last truncation",
		},
	)

	r.WALCompressedBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "hadro_wal_compressed_bytes",
			Help: "Compressed bytes written to the log since its last truncation",
		},
	)

	r.LookupsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hadro_lookups_total",
			Help: "Point lookups against the engine",
		},
		[]string{"source", "result"},
	)

	r.BloomNegatives = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "hadro_bloom_negatives_total",
			Help: "Segment lookups short-circuited by the Bloom filter",
		},
	)

	r.SegmentsOpenTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "hadro_segments_open",
			Help: "Segments currently loaded by the engine",
		},
	)

	return r
}

// Gatherer exposes the underlying registry for scraping or testing.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }

// Nil-safe recording helpers; components hold a *Registry that may be nil.

func (r *Registry) ObserveAppend(status string) {
	if r != nil {
		r.AppendsTotal.WithLabelValues(status).Inc()
	}
}

func (r *Registry) ObserveFlush(status string, seconds float64, segmentBytes int) {
	if r == nil {
		return
	}
	r.FlushesTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		r.FlushDuration.Observe(seconds)
		r.SegmentSizeBytes.Observe(float64(segmentBytes))
	}
}

func (r *Registry) SetBufferState(records, sizeBytes int) {
	if r == nil {
		return
	}
	r.BufferRecords.Set(float64(records))
	r.BufferSizeBytes.Set(float64(sizeBytes))
}

func (r *Registry) ObserveLookup(source, result string) {
	if r != nil {
		r.LookupsTotal.WithLabelValues(source, result).Inc()
	}
}

func (r *Registry) ObserveBloomNegative() {
	if r != nil {
		r.BloomNegatives.Inc()
	}
}

func (r *Registry) SetSegmentsOpen(n int) {
	if r != nil {
		r.SegmentsOpenTotal.Set(float64(n))
	}
}

func (r *Registry) SetWALStats(appends, compressedBytes uint64) {
	if r == nil {
		return
	}
	r.WALAppends.Set(float64(appends))
	r.WALCompressedBytes.Set(float64(compressedBytes))
}
