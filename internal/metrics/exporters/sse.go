package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cueplex/cueplex/internal/events"
	"github.com/cueplex/cueplex/internal/metrics"
)

// EventPublisher is the slice of the event bus the exporter needs.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter snapshots per-stream metrics on a fixed cadence and
// publishes them to the bus, where the API's SSE endpoints pick them up.
type SSEExporter struct {
	bus      EventPublisher
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter returns an exporter publishing once per second.
func NewSSEExporter(bus EventPublisher) *SSEExporter {
	return &SSEExporter{
		bus:      bus,
		interval: time.Second,
	}
}

// Start launches the export loop. Stop must be called to release it.
func (s *SSEExporter) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.publishSnapshot()
			}
		}
	}()
}

// Stop cancels the loop and waits for the final tick to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) publishSnapshot() {
	now := time.Now().UTC().Format(time.RFC3339)
	for streamID, m := range metrics.GetAllStreamMetrics() {
		s.bus.Publish(events.StreamMetricsEvent{
			Stream:       streamID,
			BitrateKbps:  strconv.FormatFloat(m.BitrateKbps, 'f', 2, 64),
			FPS:          strconv.FormatFloat(m.FPS, 'f', 2, 64),
			AudioLevelDB: strconv.FormatFloat(m.AudioLevelDB, 'f', 1, 64),
			Timestamp:    now,
		})
	}
}
