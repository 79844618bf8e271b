package collectors

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/cueplex/cueplex/internal/metrics"
)

func TestProgressCollectorParsesBlocks(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "progress.sock")
	streamID := "collector-test"

	collector := NewProgressCollector(socketPath, streamID)
	if err := collector.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer collector.Stop()

	// Wait for the listener to come up
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("could not connect to collector socket: %v", err)
	}
	defer conn.Close()

	block := "frame=100\nfps=29.97\nbitrate=5000.5kbits/s\ndrop_frames=2\nspeed=1.01x\nprogress=continue\n"
	if _, err := conn.Write([]byte(block)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Poll until the block is processed
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m := metrics.GetStreamMetrics(streamID); m != nil && m.FPS == 29.97 {
			if m.BitrateKbps != 5000.5 {
				t.Errorf("BitrateKbps = %v, want 5000.5", m.BitrateKbps)
			}
			if m.DroppedFrames != 2 {
				t.Errorf("DroppedFrames = %v, want 2", m.DroppedFrames)
			}
			if m.Speed != 1.01 {
				t.Errorf("Speed = %v, want 1.01", m.Speed)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("metrics were not recorded before deadline")
}

func TestProgressCollectorStopClearsMetrics(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "progress.sock")
	streamID := "collector-stop-test"

	metrics.SetStreamFPS(streamID, 25)

	collector := NewProgressCollector(socketPath, streamID)
	if err := collector.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	collector.Stop()

	if m := metrics.GetStreamMetrics(streamID); m != nil {
		t.Error("expected metrics cleared after Stop")
	}

	// Stop is idempotent
	collector.Stop()
}

func TestParseProgressBlock(t *testing.T) {
	s := parseProgressBlock(map[string]string{
		"bitrate":     "4521.3kbits/s",
		"fps":         "50.00",
		"drop_frames": "0",
		"speed":       "0.998x",
	})
	if s.bitrateKbps == nil || *s.bitrateKbps != 4521.3 {
		t.Errorf("bitrateKbps = %v, want 4521.3", s.bitrateKbps)
	}
	if s.fps == nil || *s.fps != 50.0 {
		t.Errorf("fps = %v, want 50", s.fps)
	}
	if s.droppedFrames == nil || *s.droppedFrames != 0 {
		t.Errorf("droppedFrames = %v, want 0", s.droppedFrames)
	}
	if s.speed == nil || *s.speed != 0.998 {
		t.Errorf("speed = %v, want 0.998", s.speed)
	}
}

func TestParseProgressBlockSkipsUnusableFields(t *testing.T) {
	s := parseProgressBlock(map[string]string{
		"bitrate": "N/A",
		"speed":   "N/A",
		"fps":     "",
	})
	if s.bitrateKbps != nil || s.speed != nil || s.fps != nil || s.droppedFrames != nil {
		t.Errorf("expected all fields nil for unusable input, got %+v", s)
	}
}
