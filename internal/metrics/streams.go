// Package metrics provides Prometheus metrics for stream pipelines.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamBitrate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cueplex",
		Subsystem: "stream",
		Name:      "bitrate_kbps",
		Help:      "Current output bitrate in kbps",
	}, []string{"stream_id"})

	streamFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cueplex",
		Subsystem: "stream",
		Name:      "fps",
		Help:      "Current encoding frames per second",
	}, []string{"stream_id"})

	streamAudioLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cueplex",
		Subsystem: "stream",
		Name:      "audio_level_db",
		Help:      "Current audio level in dBFS",
	}, []string{"stream_id"})

	streamDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cueplex",
		Subsystem: "stream",
		Name:      "dropped_frames_total",
		Help:      "Total dropped frames",
	}, []string{"stream_id"})

	streamSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cueplex",
		Subsystem: "stream",
		Name:      "processing_speed",
		Help:      "Encoder processing speed multiplier",
	}, []string{"stream_id"})

	// Local cache for the SSE exporter and the health monitor.
	streamCache   = make(map[string]*StreamMetrics)
	streamCacheMu sync.RWMutex
)

// StreamMetrics holds current metric values for a stream.
type StreamMetrics struct {
	BitrateKbps   float64
	FPS           float64
	AudioLevelDB  float64
	DroppedFrames float64
	Speed         float64
	LastUpdate    time.Time
}

// SetStreamBitrate sets the current output bitrate for a stream.
func SetStreamBitrate(streamID string, kbps float64) {
	streamBitrate.WithLabelValues(streamID).Set(kbps)
	updateCache(streamID, func(m *StreamMetrics) { m.BitrateKbps = kbps })
}

// SetStreamFPS sets the current FPS for a stream.
func SetStreamFPS(streamID string, fps float64) {
	streamFPS.WithLabelValues(streamID).Set(fps)
	updateCache(streamID, func(m *StreamMetrics) { m.FPS = fps })
}

// SetStreamAudioLevel sets the current audio level for a stream.
func SetStreamAudioLevel(streamID string, db float64) {
	streamAudioLevel.WithLabelValues(streamID).Set(db)
	updateCache(streamID, func(m *StreamMetrics) { m.AudioLevelDB = db })
}

// SetStreamDroppedFrames sets the dropped frames count for a stream.
func SetStreamDroppedFrames(streamID string, count float64) {
	streamDroppedFrames.WithLabelValues(streamID).Set(count)
	updateCache(streamID, func(m *StreamMetrics) { m.DroppedFrames = count })
}

// SetStreamSpeed sets the processing speed for a stream.
func SetStreamSpeed(streamID string, speed float64) {
	streamSpeed.WithLabelValues(streamID).Set(speed)
	updateCache(streamID, func(m *StreamMetrics) { m.Speed = speed })
}

// DeleteStreamMetrics removes all metrics for a stream.
func DeleteStreamMetrics(streamID string) {
	streamBitrate.DeleteLabelValues(streamID)
	streamFPS.DeleteLabelValues(streamID)
	streamAudioLevel.DeleteLabelValues(streamID)
	streamDroppedFrames.DeleteLabelValues(streamID)
	streamSpeed.DeleteLabelValues(streamID)

	streamCacheMu.Lock()
	delete(streamCache, streamID)
	streamCacheMu.Unlock()
}

// GetStreamMetrics returns current metric values for a stream.
func GetStreamMetrics(streamID string) *StreamMetrics {
	streamCacheMu.RLock()
	defer streamCacheMu.RUnlock()
	if m, ok := streamCache[streamID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllStreamMetrics returns metrics for all active streams.
func GetAllStreamMetrics() map[string]*StreamMetrics {
	streamCacheMu.RLock()
	defer streamCacheMu.RUnlock()
	result := make(map[string]*StreamMetrics, len(streamCache))
	for id, m := range streamCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

func updateCache(streamID string, update func(*StreamMetrics)) {
	streamCacheMu.Lock()
	defer streamCacheMu.Unlock()
	m, ok := streamCache[streamID]
	if !ok {
		m = &StreamMetrics{}
		streamCache[streamID] = m
	}
	update(m)
	m.LastUpdate = time.Now()
}
