package main

import "time"

// DistanceSample is one reading from the sensor channel.
type DistanceSample struct {
	At time.Time
	CM float64
}

type detectorState int

const (
	stateIdle detectorState = iota
	stateCooldown
)

// Detector turns the continuous distance stream into discrete, rate-limited
// proximity events. It is a two-state machine: Idle emits an event on the
// first sample at or under the threshold and arms the cooldown; Cooldown
// ignores every sample (no event, no timer reset) until the cooldown elapses.
//
// Observe must be called from a single goroutine (the event loop owns it).
type Detector struct {
	threshold float64
	cooldown  time.Duration
	clock     Clock

	state         detectorState
	cooldownUntil time.Time
	present       bool // last in-range observation, for departure logging only
}

func NewDetector(thresholdCM float64, cooldown time.Duration, clock Clock) *Detector {
	return &Detector{
		threshold: thresholdCM,
		cooldown:  cooldown,
		clock:     clock,
	}
}

// Observe feeds one sample through the state machine and reports whether it
// produced a proximity event. Malformed lines never reach Observe; they are
// dropped at the serial parse so they cannot touch cooldown state.
func (d *Detector) Observe(s DistanceSample) bool {
	now := d.clock.Now()

	if d.state == stateCooldown && !now.Before(d.cooldownUntil) {
		d.state = stateIdle
		logger.Debug("detector: cooldown elapsed")
	}

	if s.CM > d.threshold {
		if d.present {
			d.present = false
			logger.Info("detector: person moved away", "distance_cm", s.CM)
		}
		return false
	}

	if d.state == stateCooldown {
		logger.Debug("detector: in cooldown, sample ignored", "distance_cm", s.CM)
		return false
	}

	d.state = stateCooldown
	d.cooldownUntil = now.Add(d.cooldown)
	d.present = true
	logger.Info("detector: proximity detected", "distance_cm", s.CM, "threshold_cm", d.threshold)
	return true
}
