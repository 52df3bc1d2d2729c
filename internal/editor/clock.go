package editor

import "time"

// Clock abstracts time so the save debounce can be driven by tests.
type Clock interface {
	// Now returns the current local time.
	Now() time.Time

	// AfterFunc waits for d to elapse and then calls f in its own goroutine.
	// The returned Timer can cancel the call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled call.
type Timer interface {
	// Stop prevents the call from running. It returns false if the call has
	// already run or been stopped.
	Stop() bool
}

type standardClock struct{}

// NewStandardClock returns a Clock backed by the time package.
func NewStandardClock() Clock {
	return standardClock{}
}

func (standardClock) Now() time.Time {
	return time.Now()
}

func (standardClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
