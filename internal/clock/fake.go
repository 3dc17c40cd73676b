package clock

import "time"

// FakeClock pins Now to a fixed instant so tests control which coverage
// year an accumulator key lands in. All times are normalized to UTC, the
// same zone service dates are bucketed in.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward and returns the new instant, so a test
// can step across a year boundary and assert the rollover in one line.
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}
