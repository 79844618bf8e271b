package scte35

import "sync/atomic"

// Sequencer issues marker event sequence numbers. Implementations must
// return strictly increasing values across concurrent callers.
type Sequencer interface {
	Next() uint64
}

// CounterSequencer is an in-process atomic counter. A shared instance
// keeps sequence numbers strictly increasing across all streams; tests
// and multi-instance deployments can substitute their own Sequencer.
type CounterSequencer struct {
	next atomic.Uint64
}

// NewSequencer creates a counter that issues start as its first value.
func NewSequencer(start uint64) *CounterSequencer {
	s := &CounterSequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *CounterSequencer) Next() uint64 {
	return s.next.Add(1) - 1
}
