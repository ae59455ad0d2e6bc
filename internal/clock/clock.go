// Package clock abstracts the time operations used by polling loops so tests can
// drive them deterministically.
package clock

import "time"

// Clock is the subset of the time package polling code depends on.
type Clock interface {
	Now() time.Time
	// After returns a channel that receives once d has elapsed. d <= 0 fires immediately.
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

// Since returns the time elapsed on c since t.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
