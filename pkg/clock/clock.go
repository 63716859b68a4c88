// Package clock abstracts wall-clock time and one-shot timers.
//
// Code that arms timers takes a Clock instead of calling time.AfterFunc
// directly so tests can drive time explicitly with the fake in the mock
// sub-package. Production code uses Real.
package clock

import "time"

// Timer is a handle to a pending one-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer has
	// already fired or been stopped.
	Stop() bool
}

// Clock supplies the current time and schedules callbacks.
//
// AfterFunc must run f on its own goroutine (or, for fakes, synchronously from
// the goroutine advancing time), never while holding locks the caller might
// need.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the Clock backed by package time.
type Real struct{}

// Compile-time assertion that Real implements Clock.
var _ Clock = Real{}

// Now returns time.Now.
func (Real) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
