package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesync_sync_errors_total",
			Help: "Total number of sync errors by kind",
		},
		[]string{"kind"},
	)

	SyncCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notesync_sync_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	SyncCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notesync_sync_cycle_duration_seconds",
			Help:    "Time taken for a full reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	UploadQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notesync_upload_queue_depth",
			Help: "Current number of paths pending upload",
		},
	)

	UploadRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notesync_upload_retries_total",
			Help: "Total number of upload retry attempts",
		},
	)

	ConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesync_conflicts_total",
			Help: "Total number of conflicts by resolution outcome",
		},
		[]string{"resolution"},
	)
)

func init() {
	prometheus.MustRegister(
		SyncErrorsTotal,
		SyncCyclesTotal,
		SyncCycleDuration,
		UploadQueueDepth,
		UploadRetriesTotal,
		ConflictsTotal,
	)
}

// Handler returns the Prometheus HTTP handler for the watch daemon's
// /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's elapsed time, then records it to a
// histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a plain histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vec with
// labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
