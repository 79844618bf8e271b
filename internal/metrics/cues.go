package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cueEventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cueplex",
		Subsystem: "scte35",
		Name:      "events_dispatched_total",
		Help:      "Total ad-marker events dispatched, by type",
	}, []string{"stream_id", "event_type"})

	cueEventsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cueplex",
		Subsystem: "scte35",
		Name:      "events_completed_total",
		Help:      "Total ad-marker events completed",
	}, []string{"stream_id"})

	cueEventsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cueplex",
		Subsystem: "scte35",
		Name:      "events_active",
		Help:      "Currently active ad-marker events",
	}, []string{"stream_id"})

	manifestWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cueplex",
		Subsystem: "manifest",
		Name:      "writes_total",
		Help:      "Total manifest rewrites",
	}, []string{"stream_id", "format"})

	manifestWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cueplex",
		Subsystem: "manifest",
		Name:      "write_failures_total",
		Help:      "Total manifest writes that exhausted their retries",
	}, []string{"stream_id", "format"})
)

// IncCueDispatched counts a dispatched ad-marker event.
func IncCueDispatched(streamID, eventType string) {
	cueEventsDispatched.WithLabelValues(streamID, eventType).Inc()
}

// IncCueCompleted counts a completed ad-marker event.
func IncCueCompleted(streamID string) {
	cueEventsCompleted.WithLabelValues(streamID).Inc()
}

// SetCueActive sets the number of currently active ad-marker events.
func SetCueActive(streamID string, count float64) {
	cueEventsActive.WithLabelValues(streamID).Set(count)
}

// IncManifestWrite counts a manifest rewrite.
func IncManifestWrite(streamID, format string) {
	manifestWrites.WithLabelValues(streamID, format).Inc()
}

// IncManifestWriteFailure counts a manifest write that exhausted its retries.
func IncManifestWriteFailure(streamID, format string) {
	manifestWriteFailures.WithLabelValues(streamID, format).Inc()
}

// DeleteCueMetrics removes ad-marker metrics for a stream.
func DeleteCueMetrics(streamID string) {
	cueEventsActive.DeleteLabelValues(streamID)
}
