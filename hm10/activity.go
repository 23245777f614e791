package hm10

import (
	"context"
	"sync"
	"time"
)

// ActivityConfig tunes the ActivityTimer.
type ActivityConfig struct {
	// Duration is how many ticks an armed timer stays active. Default 50.
	Duration int
	// Debounce is how long after stopping the timer refuses to re-arm.
	// Default 50ms.
	Debounce time.Duration
	// Period is the tick interval used by Run. Default 1ms.
	Period time.Duration
}

func (c *ActivityConfig) setDefaults() {
	if c.Duration == 0 {
		c.Duration = 50
	}
	if c.Debounce == 0 {
		c.Debounce = 50 * time.Millisecond
	}
	if c.Period == 0 {
		c.Period = time.Millisecond
	}
}

// ActivityTimer is a debounced, self-expiring "bytes are flowing" signal.
//
// Start arms the timer; Tick, driven by an independent time source, counts
// it down. Start and Tick may run on different goroutines: every read-modify-
// write of the counters happens under mu.
type ActivityTimer struct {
	config ActivityConfig
	clock  Clock
	pin    OutputPin

	mu        sync.Mutex
	elapsed   int
	stoppedAt time.Time
}

// NewActivityTimer creates a timer driving pin, which may be nil.
func NewActivityTimer(config ActivityConfig, clock Clock, pin OutputPin) *ActivityTimer {
	config.setDefaults()
	if clock == nil {
		clock = SystemClock{}
	}
	return &ActivityTimer{config: config, clock: clock, pin: pin}
}

// Start arms the timer. It does nothing while the timer is armed, so the
// active window is not extended, or while the post-stop debounce window is
// still open.
func (t *ActivityTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.elapsed > 0 {
		return
	}
	if !t.stoppedAt.IsZero() && t.clock.Now().Sub(t.stoppedAt) < t.config.Debounce {
		return
	}

	t.elapsed = 1
	t.stoppedAt = time.Time{}
	t.setPin(true)
}

// Stop disarms the timer and opens the debounce window.
func (t *ActivityTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *ActivityTimer) stopLocked() {
	if t.elapsed == 0 {
		return
	}
	t.elapsed = 0
	t.stoppedAt = t.clock.Now()
	t.setPin(false)
}

// Tick advances an armed timer by one period and stops it once Duration
// ticks have elapsed.
func (t *ActivityTimer) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.elapsed > 0 {
		t.elapsed++
	}
	if t.elapsed >= t.config.Duration {
		t.stopLocked()
	}
}

// Active reports whether the timer is armed.
func (t *ActivityTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed > 0
}

// Run ticks the timer every Period until ctx is done.
func (t *ActivityTimer) Run(ctx context.Context) {
	ticker := time.NewTicker(t.config.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

func (t *ActivityTimer) setPin(high bool) {
	if t.pin != nil {
		_ = t.pin.Set(high)
	}
}
