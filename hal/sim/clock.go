package sim

import (
	"sync/atomic"
	"time"
)

// ManualClock only moves when told to.
type ManualClock struct {
	ms atomic.Uint32
}

func (c *ManualClock) Millis() uint32 { return c.ms.Load() }

func (c *ManualClock) Set(ms uint32) { c.ms.Store(ms) }

func (c *ManualClock) Advance(ms uint32) { c.ms.Add(ms) }

// StepClock advances by Step on every read, so busy-waits terminate
// without a second goroutine.
type StepClock struct {
	Step uint32
	ms   atomic.Uint32
}

func (c *StepClock) Millis() uint32 {
	step := c.Step
	if step == 0 {
		step = 1
	}
	return c.ms.Add(step) - step
}

// WallClock counts milliseconds of real time since it was created.
type WallClock struct {
	start time.Time
}

func NewWallClock() *WallClock { return &WallClock{start: time.Now()} }

func (c *WallClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}
