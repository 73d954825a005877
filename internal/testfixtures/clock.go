package testfixtures

import (
	"sync"
	"time"

	"github.com/example/room-reservations/internal/slot"
)

// Clock is a manual time source. It starts at ReferenceTime unless told
// otherwise and only moves when a test moves it.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock reading start, or ReferenceTime for the zero value.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{now: start.UTC()}
}

// Now reads the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NowFunc adapts the clock to the func() time.Time services accept. A nil
// clock falls back to the wall clock.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Advance moves the clock forward by d and returns the new reading.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// AdvancePast moves the clock to one second after t, for stepping over
// cooldowns. A clock already past t does not move.
func (c *Clock) AdvancePast(t time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.now.After(t) {
		c.now = t.Add(time.Second).UTC()
	}
	return c.now
}

// SetLocal moves the clock to a wall time of the calendar's timezone.
func (c *Clock) SetLocal(cal *slot.Calendar, d slot.Date, tod slot.TimeOfDay) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = cal.Combine(d, tod).UTC()
	return c.now
}
