package creditsync

import "time"

// Clock schedules callbacks. The Reconciler takes one so debounce timing can be driven
// by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the callback has
	// already started or the timer was already stopped.
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return realClock{} }
