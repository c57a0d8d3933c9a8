package scheduler

import "time"

// Clock abstracts time for the daemon loop so tests can advance it without
// real delays.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return systemClock{}
}
