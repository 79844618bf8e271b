package metrics

import (
	"sync"
	"testing"
)

func TestStreamMetricsCache(t *testing.T) {
	streamID := "test-stream-1"

	// Clean state
	DeleteStreamMetrics(streamID)

	// Initially should return nil
	if m := GetStreamMetrics(streamID); m != nil {
		t.Error("expected nil for non-existent stream")
	}

	// Set metrics
	SetStreamBitrate(streamID, 5000.0)
	SetStreamFPS(streamID, 29.97)
	SetStreamAudioLevel(streamID, -23.0)
	SetStreamDroppedFrames(streamID, 5)
	SetStreamSpeed(streamID, 1.0)

	// Verify cached values
	m := GetStreamMetrics(streamID)
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.BitrateKbps != 5000.0 {
		t.Errorf("BitrateKbps = %v, want 5000.0", m.BitrateKbps)
	}
	if m.FPS != 29.97 {
		t.Errorf("FPS = %v, want 29.97", m.FPS)
	}
	if m.AudioLevelDB != -23.0 {
		t.Errorf("AudioLevelDB = %v, want -23.0", m.AudioLevelDB)
	}
	if m.LastUpdate.IsZero() {
		t.Error("LastUpdate should be set")
	}

	// Returned struct is a copy
	m.FPS = 0
	if got := GetStreamMetrics(streamID); got.FPS != 29.97 {
		t.Error("GetStreamMetrics should return a copy, not a reference")
	}

	// Delete clears the cache
	DeleteStreamMetrics(streamID)
	if m := GetStreamMetrics(streamID); m != nil {
		t.Error("expected nil after delete")
	}
}

func TestGetAllStreamMetrics(t *testing.T) {
	DeleteStreamMetrics("all-a")
	DeleteStreamMetrics("all-b")

	SetStreamBitrate("all-a", 3000)
	SetStreamBitrate("all-b", 6000)

	all := GetAllStreamMetrics()
	if all["all-a"] == nil || all["all-b"] == nil {
		t.Fatal("expected metrics for both streams")
	}
	if all["all-a"].BitrateKbps != 3000 {
		t.Errorf("all-a bitrate = %v, want 3000", all["all-a"].BitrateKbps)
	}

	DeleteStreamMetrics("all-a")
	DeleteStreamMetrics("all-b")
}

func TestStreamMetricsConcurrency(t *testing.T) {
	streamID := "concurrent-stream"
	DeleteStreamMetrics(streamID)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			SetStreamFPS(streamID, float64(n))
		}(i)
		go func() {
			defer wg.Done()
			GetStreamMetrics(streamID)
		}()
	}
	wg.Wait()

	if m := GetStreamMetrics(streamID); m == nil {
		t.Error("expected metrics after concurrent writes")
	}
	DeleteStreamMetrics(streamID)
}
