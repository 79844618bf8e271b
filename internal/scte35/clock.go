package scte35

import "time"

// Timer is a cancellable delayed callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the injector so follow-up scheduling can be
// driven by a fake clock in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// NewClock returns a Clock backed by the system clock.
func NewClock() Clock { return realClock{} }
