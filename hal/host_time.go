//go:build !tinygo

package hal

import (
	"time"

	"co2mon/hal/sim"
)

// hostTime feeds real elapsed time into the simulated hardware timer.
type hostTime struct {
	timer *sim.Timer
	now   func() time.Time
	last  time.Time
	acc   time.Duration
}

func newHostTime(timer *sim.Timer) *hostTime {
	return newHostTimeWithClock(timer, time.Now)
}

func newHostTimeWithClock(timer *sim.Timer, now func() time.Time) *hostTime {
	return &hostTime{timer: timer, now: now}
}

// step advances the timer by the whole milliseconds since the previous
// call. The first call only starts the clock.
func (t *hostTime) step() {
	now := t.now()
	if t.last.IsZero() {
		t.last = now
		return
	}

	t.acc += now.Sub(t.last)
	t.last = now

	ms := t.acc / time.Millisecond
	if ms <= 0 {
		return
	}
	t.acc -= ms * time.Millisecond
	t.timer.Advance(uint32(ms))
}
