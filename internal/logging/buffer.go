package logging

import (
	"sync"
	"time"
)

// LogEntry is one captured log record.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent log entries for the log history
// endpoint. Once full, writes overwrite the oldest entry.
type RingBuffer struct {
	mu   sync.RWMutex
	ring []LogEntry
	next int
	full bool
}

// NewRingBuffer creates a buffer holding up to capacity entries.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{ring: make([]LogEntry, capacity)}
}

// Write stores an entry.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.ring[rb.next] = entry
	rb.next++
	if rb.next == len(rb.ring) {
		rb.next = 0
		rb.full = true
	}
}

// ReadAll returns the buffered entries, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if !rb.full {
		if rb.next == 0 {
			return nil
		}
		out := make([]LogEntry, rb.next)
		copy(out, rb.ring[:rb.next])
		return out
	}

	out := make([]LogEntry, 0, len(rb.ring))
	out = append(out, rb.ring[rb.next:]...)
	out = append(out, rb.ring[:rb.next]...)
	return out
}

// Count returns how many entries are buffered.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.full {
		return len(rb.ring)
	}
	return rb.next
}
