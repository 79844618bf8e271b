package scte35

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeClock drives follow-up timers deterministically.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	f        func()
	fired    bool
	stopped  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 27, 10, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.fired && !t.stopped
	t.stopped = true
	return was
}

// Advance moves the clock forward, firing due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.deadline.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

type dispatchRecord struct {
	streamID string
	event    *Event
}

type recordingSink struct {
	mu      sync.Mutex
	records []dispatchRecord
	fail    bool
}

func (r *recordingSink) dispatch(streamID string, ev *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("sink unavailable")
	}
	r.records = append(r.records, dispatchRecord{streamID: streamID, event: ev})
	return nil
}

func (r *recordingSink) byType(typ EventType) []dispatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dispatchRecord
	for _, rec := range r.records {
		if rec.event.Type == typ {
			out = append(out, rec)
		}
	}
	return out
}

func newTestInjector(t *testing.T, start uint64) (*Injector, *fakeClock, *recordingSink) {
	t.Helper()
	clock := newFakeClock()
	sink := &recordingSink{}
	inj := New(WithClock(clock), WithSequencer(NewSequencer(start)))
	inj.SetDispatcher(sink.dispatch)
	return inj, clock, sink
}

func TestInjectCueOutSchedulesAutoCueIn(t *testing.T) {
	inj, clock, sink := newTestInjector(t, 100023)

	ev, err := inj.Inject("channel1", EventCueOut, 30, 2)
	if err != nil {
		t.Fatalf("Inject failed: %v", err)
	}
	if ev.Sequence != 100023 {
		t.Errorf("Sequence = %d, want 100023", ev.Sequence)
	}
	if ev.Status != StatusActive {
		t.Errorf("Status = %s, want active", ev.Status)
	}

	// Just before duration + pre-roll: no CUE-IN yet
	clock.Advance(31 * time.Second)
	if got := sink.byType(EventCueIn); len(got) != 0 {
		t.Fatalf("CUE-IN dispatched before deadline: %d", len(got))
	}

	// Crossing the deadline fires the follow-up
	clock.Advance(1 * time.Second)
	cueIns := sink.byType(EventCueIn)
	if len(cueIns) != 1 {
		t.Fatalf("CUE-IN count = %d, want 1", len(cueIns))
	}
	if cueIns[0].event.Sequence != 100024 {
		t.Errorf("CUE-IN sequence = %d, want 100024", cueIns[0].event.Sequence)
	}

	// Original event is completed
	got, err := inj.GetEvent(ev.ID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("original event status = %s, want completed", got.Status)
	}
	if len(inj.ActiveEvents("channel1")) != 0 {
		t.Error("expected no active events after auto return")
	}
}

func TestSequenceIncreasesAcrossStreams(t *testing.T) {
	inj, _, _ := newTestInjector(t, 1)

	var last uint64
	for _, stream := range []string{"a", "b", "a", "c"} {
		ev, err := inj.Inject(stream, EventCueOut, 10, 0)
		if err != nil {
			t.Fatalf("Inject failed: %v", err)
		}
		if ev.Sequence <= last {
			t.Errorf("sequence %d not greater than previous %d", ev.Sequence, last)
		}
		last = ev.Sequence
	}
}

func TestCueInCompletesImmediately(t *testing.T) {
	inj, _, _ := newTestInjector(t, 1)

	ev, err := inj.Inject("channel1", EventCueIn, 0, 0)
	if err != nil {
		t.Fatalf("Inject failed: %v", err)
	}
	if ev.Status != StatusCompleted {
		t.Errorf("CUE-IN status = %s, want completed", ev.Status)
	}
	if len(inj.ActiveEvents("")) != 0 {
		t.Error("CUE-IN should not remain active")
	}
}

func TestCancelSuppressesFollowUp(t *testing.T) {
	inj, clock, sink := newTestInjector(t, 1)

	ev, err := inj.Inject("channel1", EventCueOut, 30, 2)
	if err != nil {
		t.Fatalf("Inject failed: %v", err)
	}
	if err := inj.Cancel(ev.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	clock.Advance(60 * time.Second)
	if got := sink.byType(EventCueIn); len(got) != 0 {
		t.Errorf("cancelled event still produced %d CUE-IN", len(got))
	}

	got, _ := inj.GetEvent(ev.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}

	// Cancelling again reports the settled state
	if err := inj.Cancel(ev.ID); err == nil {
		t.Error("expected error cancelling a completed event")
	}
}

func TestForceCompleteFiresFollowUpEarly(t *testing.T) {
	inj, clock, sink := newTestInjector(t, 50)

	ev, err := inj.Inject("channel1", EventCueOut, 30, 2)
	if err != nil {
		t.Fatalf("Inject failed: %v", err)
	}
	if err := inj.ForceComplete(ev.ID); err != nil {
		t.Fatalf("ForceComplete failed: %v", err)
	}

	cueIns := sink.byType(EventCueIn)
	if len(cueIns) != 1 {
		t.Fatalf("CUE-IN count = %d, want 1", len(cueIns))
	}
	if cueIns[0].event.Sequence != 51 {
		t.Errorf("CUE-IN sequence = %d, want 51", cueIns[0].event.Sequence)
	}

	// Timer must not fire a second follow-up
	clock.Advance(60 * time.Second)
	if got := sink.byType(EventCueIn); len(got) != 1 {
		t.Errorf("timer fired after ForceComplete: %d CUE-IN", len(got))
	}
}

func TestCancelStreamCancelsPendingTimers(t *testing.T) {
	inj, clock, sink := newTestInjector(t, 1)

	if _, err := inj.Inject("channel1", EventCueOut, 30, 2); err != nil {
		t.Fatalf("Inject failed: %v", err)
	}
	if _, err := inj.Inject("channel2", EventCueOut, 10, 0); err != nil {
		t.Fatalf("Inject failed: %v", err)
	}

	inj.CancelStream("channel1")

	clock.Advance(60 * time.Second)

	// Only channel2's follow-up fires
	cueIns := sink.byType(EventCueIn)
	if len(cueIns) != 1 {
		t.Fatalf("CUE-IN count = %d, want 1", len(cueIns))
	}
	if cueIns[0].streamID != "channel2" {
		t.Errorf("CUE-IN stream = %s, want channel2", cueIns[0].streamID)
	}
	if len(inj.ActiveEvents("channel1")) != 0 {
		t.Error("channel1 should have no active events after CancelStream")
	}
}

// A stream stop landing while a marker dispatch is in flight settles
// the event and must not leave a follow-up timer behind.
func TestCancelStreamDuringDispatchLeavesNoTimer(t *testing.T) {
	clock := newFakeClock()
	inj := New(WithClock(clock), WithSequencer(NewSequencer(1)))
	inj.SetDispatcher(func(streamID string, ev *Event) error {
		inj.CancelStream(streamID)
		return nil
	})

	ev, err := inj.Inject("channel1", EventCueOut, 30, 2)
	if err != nil {
		t.Fatalf("Inject failed: %v", err)
	}
	if ev.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", ev.Status)
	}
	if len(inj.ActiveEvents("channel1")) != 0 {
		t.Error("expected no active events after cancelled dispatch")
	}

	inj.mu.Lock()
	timerCount := len(inj.timers)
	inj.mu.Unlock()
	if timerCount != 0 {
		t.Errorf("timer count = %d, want 0", timerCount)
	}

	// Nothing fires for the removed stream later
	clock.Advance(60 * time.Second)
	history := inj.History("channel1", 0)
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Type != EventCueOut {
		t.Errorf("unexpected follow-up event %s", history[0].Type)
	}
}

func TestDispatchFailureMarksEventFailed(t *testing.T) {
	clock := newFakeClock()
	sink := &recordingSink{fail: true}
	inj := New(WithClock(clock), WithSequencer(NewSequencer(1)))
	inj.SetDispatcher(sink.dispatch)

	_, err := inj.Inject("channel1", EventCueOut, 30, 0)
	if err == nil {
		t.Fatal("expected dispatch error")
	}

	history := inj.History("channel1", 0)
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Status != StatusFailed {
		t.Errorf("status = %s, want failed", history[0].Status)
	}

	// No follow-up scheduled for a failed event
	clock.Advance(60 * time.Second)
	if inj.History("channel1", 0)[0].Status != StatusFailed {
		t.Error("failed event changed state after clock advance")
	}
}

func TestInjectValidation(t *testing.T) {
	inj, _, _ := newTestInjector(t, 1)

	if _, err := inj.Inject("channel1", EventType("SPLICE"), 10, 0); err == nil {
		t.Error("expected error for unknown marker type")
	}
	if _, err := inj.Inject("channel1", EventCueOut, 0, 0); err == nil {
		t.Error("expected error for zero CUE-OUT duration")
	}
}

func TestHistoryLimitAndFilter(t *testing.T) {
	clock := newFakeClock()
	inj := New(WithClock(clock), WithSequencer(NewSequencer(1)), WithHistoryLimit(5))
	sink := &recordingSink{}
	inj.SetDispatcher(sink.dispatch)

	for range 10 {
		if _, err := inj.Inject("channel1", EventCueIn, 0, 0); err != nil {
			t.Fatalf("Inject failed: %v", err)
		}
	}
	if _, err := inj.Inject("channel2", EventCueIn, 0, 0); err != nil {
		t.Fatalf("Inject failed: %v", err)
	}

	all := inj.History("", 0)
	if len(all) > 5 {
		t.Errorf("history length = %d, want <= 5", len(all))
	}

	if got := inj.History("channel2", 0); len(got) != 1 {
		t.Errorf("channel2 history length = %d, want 1", len(got))
	}

	limited := inj.History("channel1", 2)
	if len(limited) != 2 {
		t.Errorf("limited history length = %d, want 2", len(limited))
	}
}

func TestDescriptorRoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 27, 10, 30, 0, 0, time.UTC)
	encoded, err := EncodeDescriptor(EventCueOut, 100023, 30, 2, at)
	if err != nil {
		t.Fatalf("EncodeDescriptor failed: %v", err)
	}

	d, err := DecodeDescriptor(encoded)
	if err != nil {
		t.Fatalf("DecodeDescriptor failed: %v", err)
	}
	if d.EventType != EventCueOut {
		t.Errorf("EventType = %s, want CUE-OUT", d.EventType)
	}
	if d.EventID != 100023 {
		t.Errorf("EventID = %d, want 100023", d.EventID)
	}
	if d.SegmentationTypeID != SegmentationProgramStart {
		t.Errorf("SegmentationTypeID = 0x%x, want 0x10", d.SegmentationTypeID)
	}

	encoded, err = EncodeDescriptor(EventCueIn, 100024, 0, 0, at)
	if err != nil {
		t.Fatalf("EncodeDescriptor failed: %v", err)
	}
	d, err = DecodeDescriptor(encoded)
	if err != nil {
		t.Fatalf("DecodeDescriptor failed: %v", err)
	}
	if d.SegmentationTypeID != SegmentationProgramEnd {
		t.Errorf("SegmentationTypeID = 0x%x, want 0x11", d.SegmentationTypeID)
	}
}
