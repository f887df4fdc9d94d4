package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Producer / aligner
	chunksEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsingest_chunks_enqueued_total",
		Help: "Chunk descriptors pushed onto the work queue",
	})

	alignProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tsingest_align_probes_total",
		Help: "Keyframe alignment probes by result",
	}, []string{"result"})

	alignSkewBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tsingest_align_skew_bytes",
		Help:    "Distance between the tentative offset and the aligned keyframe offset",
		Buckets: prometheus.ExponentialBuckets(188, 4, 10), // one packet to ~49MB
	})

	// Fetcher
	fetchAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tsingest_fetch_attempts_total",
		Help: "Range request attempts by result",
	}, []string{"result"})

	fetchBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsingest_fetch_bytes_total",
		Help: "Bytes received from range requests",
	})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tsingest_fetch_duration_seconds",
		Help:    "Range request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
	})

	// Workers
	chunksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tsingest_chunks_processed_total",
		Help: "Chunks handled by workers by result",
	}, []string{"result"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tsingest_queue_depth",
		Help: "Chunk descriptors waiting in the queue",
	})

	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tsingest_workers_active",
		Help: "Workers currently running",
	})

	continuityErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsingest_continuity_errors_total",
		Help: "Continuity counter gaps found in persisted chunks",
	})

	shutdownTriggersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsingest_shutdown_triggers_total",
		Help: "Short reads that requested queue shutdown",
	})
)

// Result label values.
const (
	ResultFound    = "found"
	ResultNotFound = "not_found"
	ResultError    = "error"
	ResultSuccess  = "success"
	ResultFailure  = "failure"
)

// IncrementChunksEnqueued counts one pushed descriptor
func IncrementChunksEnqueued() {
	chunksEnqueuedTotal.Inc()
}

// RecordAlignProbe records an aligner probe outcome and, when found, the
// skew between tentative and aligned offsets.
func RecordAlignProbe(result string, skew int64) {
	alignProbesTotal.WithLabelValues(result).Inc()
	if result == ResultFound && skew >= 0 {
		alignSkewBytes.Observe(float64(skew))
	}
}

// RecordFetchAttempt records one range request attempt
func RecordFetchAttempt(result string, bytes int, seconds float64) {
	fetchAttemptsTotal.WithLabelValues(result).Inc()
	if bytes > 0 {
		fetchBytesTotal.Add(float64(bytes))
	}
	fetchDuration.Observe(seconds)
}

// RecordChunkProcessed counts a worker outcome
func RecordChunkProcessed(result string) {
	chunksProcessedTotal.WithLabelValues(result).Inc()
}

// SetQueueDepth sets the current queue depth
func SetQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}

// WorkerStarted and WorkerStopped track the active worker gauge
func WorkerStarted() {
	activeWorkers.Inc()
}

func WorkerStopped() {
	activeWorkers.Dec()
}

// IncrementShutdownTriggers counts a short read that asked for shutdown
func IncrementShutdownTriggers() {
	shutdownTriggersTotal.Inc()
}

// AddContinuityErrors adds the continuity gaps found in one chunk.
func AddContinuityErrors(n int64) {
	if n > 0 {
		continuityErrorsTotal.Add(float64(n))
	}
}
