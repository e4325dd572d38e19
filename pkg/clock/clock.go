// Package clock lets timing code run against real or fake time.
package clock

import "time"

// Clock is the subset of the time package used by the studio.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f after d. The fake clock calls f synchronously
	// inside Advance.
	AfterFunc(d time.Duration, f func()) *Timer
	NewTicker(d time.Duration) *Ticker
}

// Timer cancels a pending AfterFunc.
type Timer struct {
	stop func() bool
}

// Stop reports whether the call prevented f from running.
func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers ticks on C, dropping ticks the reader misses.
type Ticker struct {
	C    <-chan time.Time
	stop func()
}

func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
