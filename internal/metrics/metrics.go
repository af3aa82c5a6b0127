package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "psola"

// Batch counters (incremented by the vocode pipeline).
var (
	ItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_total",
		Help:      "Batch items processed, by outcome.",
	}, []string{"outcome"})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Items waiting for a worker.",
	})

	ItemDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "item_duration_seconds",
		Help:      "End-to-end processing time per batch item.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
	})
)

// Engine metrics (incremented by the praat adapter).
var (
	EngineCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_calls_total",
		Help:      "Resynthesis engine invocations, by pass.",
	}, []string{"pass"})

	EngineCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "engine_call_duration_seconds",
		Help:      "Resynthesis engine subprocess duration, by pass.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"pass"})
)

// Watch-mode counters.
var (
	WatchFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "watch_files_total",
		Help:      "Files seen by the directory watcher, by disposition.",
	}, []string{"disposition"})
)

func init() {
	prometheus.MustRegister(
		ItemsTotal,
		QueueDepth,
		ItemDuration,
		EngineCallsTotal,
		EngineCallDuration,
		WatchFilesTotal,
	)
}
