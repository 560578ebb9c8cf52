// Package metrics exposes Prometheus counters/histograms for the replay
// service, grounded on froz-husain-PairDB's storage-node metrics package.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the replay service records.
type Metrics struct {
	InsertsTotal       prometheus.Counter
	InsertDuration      prometheus.Histogram
	InsertBytes         prometheus.Histogram

	SamplesTotal        prometheus.Counter
	SampleDuration       prometheus.Histogram
	SampleBatchSize      prometheus.Histogram
	SampleRateLimitStalls prometheus.Counter

	ResponseQueueDepth prometheus.GaugeVec
	ReadsInFlight      prometheus.GaugeVec

	ChunkStoreSize      prometheus.Gauge
	TableSize           prometheus.GaugeVec

	CheckpointsTotal    prometheus.Counter
	CheckpointDuration  prometheus.Histogram

	CallbackPanicsTotal prometheus.Counter
}

// New creates and registers every metric.
func New() *Metrics {
	return &Metrics{
		InsertsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "replay",
			Subsystem: "insert",
			Name:      "total",
			Help:      "Total number of items admitted via InsertStream.",
		}),
		InsertDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "replay",
			Subsystem: "insert",
			Name:      "duration_seconds",
			Help:      "Time from InsertOrAssignAsync submission to completion callback.",
			Buckets:   prometheus.DefBuckets,
		}),
		InsertBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "replay",
			Subsystem: "insert",
			Name:      "item_bytes",
			Help:      "Histogram of inserted item sizes in bytes, chunk payload included.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		SamplesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "replay",
			Subsystem: "sample",
			Name:      "total",
			Help:      "Total number of items delivered via SampleStream.",
		}),
		SampleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "replay",
			Subsystem: "sample",
			Name:      "duration_seconds",
			Help:      "Time from EnqueSampleRequest submission to delivered batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		SampleBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "replay",
			Subsystem: "sample",
			Name:      "batch_size",
			Help:      "Histogram of num_samples requested per SampleStream request.",
			Buckets:   prometheus.LinearBuckets(1, 16, 10),
		}),
		SampleRateLimitStalls: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "replay",
			Subsystem: "sample",
			Name:      "rate_limit_stalls_total",
			Help:      "Number of sample batches that had to wait on a table's rate limiter.",
		}),
		ResponseQueueDepth: *promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "replay",
			Subsystem: "reactor",
			Name:      "response_queue_depth",
			Help:      "Current depth of a reactor's outbound response queue.",
		}, []string{"rpc"}),
		ReadsInFlight: *promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "replay",
			Subsystem: "reactor",
			Name:      "reads_in_flight",
			Help:      "Number of streaming RPCs of this kind currently being served.",
		}, []string{"rpc"}),
		ChunkStoreSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "replay",
			Subsystem: "chunkstore",
			Name:      "tracked_chunks",
			Help:      "Current number of chunks tracked by the process-wide chunk store.",
		}),
		TableSize: *promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "replay",
			Subsystem: "table",
			Name:      "current_size",
			Help:      "Current number of items held by a table.",
		}, []string{"table"}),
		CheckpointsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "replay",
			Subsystem: "checkpoint",
			Name:      "total",
			Help:      "Total number of completed Checkpoint RPCs.",
		}),
		CheckpointDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "replay",
			Subsystem: "checkpoint",
			Name:      "duration_seconds",
			Help:      "Time taken to snapshot and persist every table.",
			Buckets:   prometheus.DefBuckets,
		}),
		CallbackPanicsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "replay",
			Subsystem: "callbackexec",
			Name:      "panics_total",
			Help:      "Total number of callback-executor tasks that panicked and were recovered.",
		}),
	}
}

// Handler returns the net/http handler to mount at the configured metrics
// path, alongside the gRPC port.
func Handler() http.Handler {
	return promhttp.Handler()
}
