package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/cueplex/cueplex/internal/events"
	"github.com/cueplex/cueplex/internal/logging"
)

// replayBufferedLogs pushes everything currently held in the ring buffer so
// a fresh SSE client sees recent history before live entries. Returns false
// once the client is gone.
func replayBufferedLogs(send sse.Sender) bool {
	buffer := logging.GetBuffer()
	if buffer == nil {
		return true
	}
	for _, entry := range buffer.ReadAll() {
		ev := events.LogEntryEvent{
			Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
			Level:      entry.Level,
			Module:     entry.Module,
			Message:    entry.Message,
			Attributes: entry.Attributes,
		}
		if err := send.Data(ev); err != nil {
			return false
		}
	}
	return true
}

// registerLogRoutes wires the live log SSE endpoint.
func (s *Server) registerLogRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		if !replayBufferedLogs(send) {
			return
		}

		live := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.bus, live)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-live:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
