package hm10

import "time"

// Clock is the time source of the driver. All timeouts, delays and
// debounce windows go through it so tests can run on simulated time.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
