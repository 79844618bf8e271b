// Package scte35 implements ad-marker event injection and lifecycle.
//
// The injector issues marker events with process-wide strictly
// increasing sequence numbers, hands each event to a dispatch sink
// (manifest generators and encoder control channels), and schedules the
// automatic CUE-IN that closes every CUE-OUT after duration plus
// pre-roll has elapsed.
package scte35

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cueplex/cueplex/internal/events"
	"github.com/cueplex/cueplex/internal/logging"
	"github.com/cueplex/cueplex/internal/metrics"
)

// ErrEventNotFound is returned for operations on unknown event IDs.
var ErrEventNotFound = errors.New("marker event not found")

const defaultHistoryLimit = 500

// DispatchFunc delivers a dispatched marker event to downstream sinks.
// A non-nil error marks the event failed.
type DispatchFunc func(streamID string, ev *Event) error

// Injector owns marker event state and follow-up timers.
type Injector struct {
	mu           sync.Mutex
	clock        Clock
	seq          Sequencer
	dispatch     DispatchFunc
	bus          *events.Bus
	logger       *slog.Logger
	events       map[string]*Event
	order        []*Event
	timers       map[string]Timer
	historyLimit int
}

// Option configures an Injector.
type Option func(*Injector)

// WithClock substitutes the clock used for timestamps and follow-up
// scheduling.
func WithClock(c Clock) Option {
	return func(i *Injector) { i.clock = c }
}

// WithSequencer substitutes the sequence number source.
func WithSequencer(s Sequencer) Option {
	return func(i *Injector) { i.seq = s }
}

// WithBus sets the event bus for marker lifecycle notifications.
func WithBus(b *events.Bus) Option {
	return func(i *Injector) { i.bus = b }
}

// WithHistoryLimit bounds the retained event history.
func WithHistoryLimit(n int) Option {
	return func(i *Injector) { i.historyLimit = n }
}

// New creates an injector. The dispatch sink is set separately via
// SetDispatcher because the orchestrator that provides it is
// constructed afterwards.
func New(opts ...Option) *Injector {
	i := &Injector{
		clock:        NewClock(),
		seq:          NewSequencer(1),
		logger:       logging.GetLogger("scte35"),
		events:       make(map[string]*Event),
		timers:       make(map[string]Timer),
		historyLimit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SetDispatcher sets the sink that receives dispatched marker events.
func (i *Injector) SetDispatcher(d DispatchFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.dispatch = d
}

// Inject creates and dispatches a marker event for the stream. CUE-OUT
// events schedule an automatic CUE-IN after duration plus pre-roll;
// CUE-IN events complete immediately on dispatch.
func (i *Injector) Inject(streamID string, typ EventType, duration, preRoll float64) (*Event, error) {
	if typ != EventCueOut && typ != EventCueIn {
		return nil, fmt.Errorf("unknown marker type %q", typ)
	}
	if typ == EventCueOut && duration <= 0 {
		return nil, fmt.Errorf("CUE-OUT duration must be positive, got %v", duration)
	}

	seq := i.seq.Next()
	now := i.clock.Now()
	ev := &Event{
		ID:        fmt.Sprintf("evt-%d", seq),
		StreamID:  streamID,
		Type:      typ,
		Sequence:  seq,
		Duration:  duration,
		PreRoll:   preRoll,
		Status:    StatusPending,
		CreatedAt: now,
	}

	descriptor, err := EncodeDescriptor(typ, seq, duration, preRoll, now)
	if err != nil {
		ev.Status = StatusFailed
		i.record(ev)
		return nil, err
	}
	ev.Descriptor = descriptor
	i.record(ev)

	i.mu.Lock()
	dispatch := i.dispatch
	i.mu.Unlock()

	if dispatch != nil {
		if err := dispatch(streamID, ev.clone()); err != nil {
			i.setFailed(ev.ID)
			i.logger.Error("Marker dispatch failed", "stream_id", streamID, "event_id", ev.ID, "error", err)
			return nil, fmt.Errorf("failed to dispatch %s marker: %w", typ, err)
		}
	}

	i.mu.Lock()
	if ev.Status != StatusPending {
		// A concurrent CancelStream settled the event while dispatch was
		// in flight. Activating it now would leave a follow-up timer
		// running for a stream that is already gone.
		result := ev.clone()
		i.mu.Unlock()
		i.logger.Info("Marker settled during dispatch",
			"stream_id", streamID, "event_id", ev.ID, "status", result.Status)
		return result, nil
	}
	ev.Status = StatusActive
	if typ == EventCueOut {
		delay := time.Duration((duration + preRoll) * float64(time.Second))
		id := ev.ID
		i.timers[id] = i.clock.AfterFunc(delay, func() { i.autoReturn(id) })
	} else {
		ev.Status = StatusCompleted
		ev.CompletedAt = now
	}
	i.updateActiveGaugeLocked(streamID)
	result := ev.clone()
	i.mu.Unlock()

	metrics.IncCueDispatched(streamID, string(typ))
	i.publishDispatched(result)
	if typ == EventCueIn {
		metrics.IncCueCompleted(streamID)
		i.publishCompleted(result)
	}

	i.logger.Info("Marker dispatched",
		"stream_id", streamID, "event_id", result.ID, "type", typ, "sequence", seq, "duration", duration)
	return result, nil
}

// Cancel moves an active event straight to completed without
// synthesizing a follow-up CUE-IN.
func (i *Injector) Cancel(eventID string) error {
	i.mu.Lock()
	ev, ok := i.events[eventID]
	if !ok {
		i.mu.Unlock()
		return ErrEventNotFound
	}
	if ev.Status != StatusActive {
		i.mu.Unlock()
		return fmt.Errorf("event %s is %s, not active", eventID, ev.Status)
	}
	i.stopTimerLocked(eventID)
	ev.Status = StatusCompleted
	ev.CompletedAt = i.clock.Now()
	streamID := ev.StreamID
	result := ev.clone()
	i.updateActiveGaugeLocked(streamID)
	i.mu.Unlock()

	metrics.IncCueCompleted(streamID)
	i.publishCompleted(result)
	i.logger.Info("Marker cancelled", "stream_id", streamID, "event_id", eventID)
	return nil
}

// ForceComplete runs an active CUE-OUT's follow-up logic immediately
// instead of waiting for its timer.
func (i *Injector) ForceComplete(eventID string) error {
	i.mu.Lock()
	ev, ok := i.events[eventID]
	if !ok {
		i.mu.Unlock()
		return ErrEventNotFound
	}
	if ev.Status != StatusActive {
		i.mu.Unlock()
		return fmt.Errorf("event %s is %s, not active", eventID, ev.Status)
	}
	if ev.Type != EventCueOut {
		i.mu.Unlock()
		return fmt.Errorf("event %s is a %s and has no follow-up", eventID, ev.Type)
	}
	i.stopTimerLocked(eventID)
	i.mu.Unlock()

	i.autoReturn(eventID)
	return nil
}

// CancelStream cancels every pending follow-up owned by the stream and
// closes out its active events. Called when a stream is stopped so no
// timer fires against a name no longer in the registry.
func (i *Injector) CancelStream(streamID string) {
	i.mu.Lock()
	now := i.clock.Now()
	var cancelled int
	for _, ev := range i.order {
		if ev.StreamID != streamID {
			continue
		}
		if ev.Status == StatusActive || ev.Status == StatusPending {
			i.stopTimerLocked(ev.ID)
			ev.Status = StatusCompleted
			ev.CompletedAt = now
			cancelled++
		}
	}
	i.updateActiveGaugeLocked(streamID)
	i.mu.Unlock()

	if cancelled > 0 {
		i.logger.Info("Cancelled pending markers for stopped stream",
			"stream_id", streamID, "count", cancelled)
	}
	metrics.DeleteCueMetrics(streamID)
}

// ActiveEvents returns the active events, optionally filtered by
// stream. Pass an empty streamID for all streams.
func (i *Injector) ActiveEvents(streamID string) []*Event {
	i.mu.Lock()
	defer i.mu.Unlock()

	var out []*Event
	for _, ev := range i.order {
		if ev.Status != StatusActive {
			continue
		}
		if streamID != "" && ev.StreamID != streamID {
			continue
		}
		out = append(out, ev.clone())
	}
	return out
}

// History returns the most recent events in injection order, optionally
// filtered by stream. A limit of 0 returns everything retained.
func (i *Injector) History(streamID string, limit int) []*Event {
	i.mu.Lock()
	defer i.mu.Unlock()

	var out []*Event
	for _, ev := range i.order {
		if streamID != "" && ev.StreamID != streamID {
			continue
		}
		out = append(out, ev.clone())
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// GetEvent returns a single event by ID.
func (i *Injector) GetEvent(eventID string) (*Event, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	ev, ok := i.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	return ev.clone(), nil
}

// autoReturn is the CUE-OUT follow-up: complete the originating event
// and synthesize the closing CUE-IN through the normal injection path.
func (i *Injector) autoReturn(eventID string) {
	i.mu.Lock()
	ev, ok := i.events[eventID]
	if !ok || ev.Status != StatusActive {
		i.mu.Unlock()
		return
	}
	delete(i.timers, eventID)
	ev.Status = StatusCompleted
	ev.CompletedAt = i.clock.Now()
	streamID := ev.StreamID
	result := ev.clone()
	i.updateActiveGaugeLocked(streamID)
	i.mu.Unlock()

	metrics.IncCueCompleted(streamID)
	i.publishCompleted(result)

	if _, err := i.Inject(streamID, EventCueIn, 0, 0); err != nil {
		i.logger.Error("Automatic CUE-IN failed",
			"stream_id", streamID, "event_id", eventID, "error", err)
	}
}

func (i *Injector) record(ev *Event) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.events[ev.ID] = ev
	i.order = append(i.order, ev)

	// Evict oldest settled events beyond the history limit
	for len(i.order) > i.historyLimit {
		oldest := i.order[0]
		if oldest.Status == StatusActive || oldest.Status == StatusPending {
			break
		}
		delete(i.events, oldest.ID)
		i.order = i.order[1:]
	}
}

func (i *Injector) setFailed(eventID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if ev, ok := i.events[eventID]; ok {
		ev.Status = StatusFailed
	}
}

func (i *Injector) stopTimerLocked(eventID string) {
	if t, ok := i.timers[eventID]; ok {
		t.Stop()
		delete(i.timers, eventID)
	}
}

func (i *Injector) updateActiveGaugeLocked(streamID string) {
	var count float64
	for _, ev := range i.order {
		if ev.StreamID == streamID && ev.Status == StatusActive {
			count++
		}
	}
	metrics.SetCueActive(streamID, count)
}

func (i *Injector) publishDispatched(ev *Event) {
	if i.bus == nil {
		return
	}
	i.bus.Publish(events.CueDispatchedEvent{
		Stream:    ev.StreamID,
		EventID:   ev.ID,
		EventType: string(ev.Type),
		Sequence:  ev.Sequence,
		Timestamp: ev.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (i *Injector) publishCompleted(ev *Event) {
	if i.bus == nil {
		return
	}
	ts := ev.CompletedAt
	if ts.IsZero() {
		ts = i.clock.Now()
	}
	i.bus.Publish(events.CueCompletedEvent{
		Stream:    ev.StreamID,
		EventID:   ev.ID,
		Timestamp: ts.UTC().Format(time.RFC3339),
	})
}
