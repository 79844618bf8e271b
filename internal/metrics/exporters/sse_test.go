package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cueplex/cueplex/internal/events"
	"github.com/cueplex/cueplex/internal/metrics"
)

type capturingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturingBus) Publish(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capturingBus) metricsEvents() []events.StreamMetricsEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.StreamMetricsEvent
	for _, ev := range c.events {
		if m, ok := ev.(events.StreamMetricsEvent); ok {
			out = append(out, m)
		}
	}
	return out
}

func TestSSEExporterPublishesMetrics(t *testing.T) {
	streamID := "sse-test-stream"
	metrics.DeleteStreamMetrics(streamID)
	metrics.SetStreamBitrate(streamID, 5000)
	metrics.SetStreamFPS(streamID, 29.97)
	metrics.SetStreamAudioLevel(streamID, -23.0)
	defer metrics.DeleteStreamMetrics(streamID)

	bus := &capturingBus{}
	exporter := NewSSEExporter(bus)
	exporter.interval = 10 * time.Millisecond

	exporter.Start(context.Background())
	defer exporter.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range bus.metricsEvents() {
			if ev.Stream != streamID {
				continue
			}
			if ev.BitrateKbps != "5000.00" {
				t.Errorf("BitrateKbps = %q, want %q", ev.BitrateKbps, "5000.00")
			}
			if ev.FPS != "29.97" {
				t.Errorf("FPS = %q, want %q", ev.FPS, "29.97")
			}
			if ev.AudioLevelDB != "-23.0" {
				t.Errorf("AudioLevelDB = %q, want %q", ev.AudioLevelDB, "-23.0")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no metrics event published before deadline")
}

func TestSSEExporterStopTerminatesLoop(t *testing.T) {
	bus := &capturingBus{}
	exporter := NewSSEExporter(bus)
	exporter.interval = 5 * time.Millisecond

	exporter.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	exporter.Stop()

	count := len(bus.metricsEvents())
	time.Sleep(30 * time.Millisecond)
	if got := len(bus.metricsEvents()); got != count {
		t.Errorf("exporter still publishing after Stop: %d -> %d", count, got)
	}
}
