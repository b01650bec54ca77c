package engine

import "time"

// Clock abstracts wall-clock access so timer behavior is testable
// without sleeping.
type Clock interface {
	Now() time.Time
}

// systemClock reads the real time.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }
