// Package clock abstracts time so session scheduling can be driven by a
// fake clock in tests.
package clock

import "time"

// Clock is the subset of the time package the wallet needs
type Clock interface {
	Now() time.Time

	// AfterFunc calls f in its own goroutine (real) or synchronously from
	// Advance (fake) once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call
type Timer interface {
	// Stop prevents the call. It reports false if the call already ran or was stopped.
	Stop() bool
}

// Real returns the wall clock
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
