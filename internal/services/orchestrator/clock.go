package orchestrator

import "time"

// Clock abstracts time so dwell periods can be simulated in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock uses the wall clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// After waits for d to elapse.
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
