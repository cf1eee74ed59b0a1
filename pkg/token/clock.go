package token

import "time"

// Clock provides the ledger's notion of now. Tests substitute a fixed clock
// to exercise expiry without sleeping.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a clock backed by time.Now.
func SystemClock() Clock {
	return ClockFunc(time.Now)
}
