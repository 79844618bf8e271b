package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/cueplex/cueplex/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time event stream for stream lifecycle, ad markers, health and metrics",
		Tags:        []string{"events"},
	}, map[string]any{
		"stream-started":        events.StreamStartedEvent{},
		"stream-stopped":        events.StreamStoppedEvent{},
		"stream-error":          events.StreamErrorEvent{},
		"cue-dispatched":        events.CueDispatchedEvent{},
		"cue-completed":         events.CueCompletedEvent{},
		"health-issue":          events.HealthIssueEvent{},
		"health-resolved":       events.HealthResolvedEvent{},
		"manifest-write-failed": events.ManifestWriteFailedEvent{},
		"stream-metrics":        events.StreamMetricsEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.StreamStartedEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.StreamStoppedEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.StreamErrorEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.CueDispatchedEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.CueCompletedEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.HealthIssueEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.HealthResolvedEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.ManifestWriteFailedEvent](s.bus, eventCh),
			events.SubscribeToChannel[events.StreamMetricsEvent](s.bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
