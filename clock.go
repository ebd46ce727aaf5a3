package main

import "time"

// Clock abstracts time so the detector and queue can be driven by a fake
// clock in tests instead of real waiting.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
