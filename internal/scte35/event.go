package scte35

import "time"

// EventType identifies the marker kind.
type EventType string

// Marker event types.
const (
	EventCueOut EventType = "CUE-OUT"
	EventCueIn  EventType = "CUE-IN"
)

// EventStatus is the lifecycle state of a marker event.
type EventStatus string

// Marker event states.
const (
	StatusPending   EventStatus = "pending"
	StatusActive    EventStatus = "active"
	StatusCompleted EventStatus = "completed"
	StatusFailed    EventStatus = "failed"
)

// Event is a single ad-marker event. Sequence numbers strictly increase
// across all streams for the lifetime of the sequencer.
type Event struct {
	ID          string      `json:"id" doc:"Event identifier"`
	StreamID    string      `json:"stream_id" example:"channel1" doc:"Owning stream name"`
	Type        EventType   `json:"type" example:"CUE-OUT" doc:"CUE-OUT or CUE-IN"`
	Sequence    uint64      `json:"sequence" example:"100023" doc:"Monotonic sequence number"`
	Duration    float64     `json:"duration" example:"30" doc:"Ad break duration in seconds (CUE-OUT only)"`
	PreRoll     float64     `json:"pre_roll" example:"2" doc:"Lead time in seconds before the cue takes effect"`
	Status      EventStatus `json:"status" example:"active" doc:"Event lifecycle state"`
	Descriptor  string      `json:"descriptor" doc:"Base64-encoded splice descriptor payload"`
	CreatedAt   time.Time   `json:"created_at" doc:"Injection timestamp"`
	CompletedAt time.Time   `json:"completed_at,omitzero" doc:"Completion timestamp"`
}

// clone returns a copy so callers cannot mutate injector state.
func (e *Event) clone() *Event {
	dup := *e
	return &dup
}
