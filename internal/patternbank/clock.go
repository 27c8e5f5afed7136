package patternbank

import "time"

// Clock abstracts wall-clock time so decay, recency, and calibration
// windows can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// systemClock reads the system clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// FixedClock is a Clock frozen at a specific instant, for tests.
type FixedClock struct {
	At time.Time
}

// Now returns the frozen instant.
func (c FixedClock) Now() time.Time { return c.At }
