// Package sim is a deterministic model of the appliance's board: one CPU
// with a maskable interrupt controller, a millisecond clock, a basic timer,
// a UART with a pluggable peer, an SSD1306 panel behind I2C and a DS18B20
// on a 1-wire bus.
//
// Peripherals may pend interrupt lines from any goroutine. Handlers only
// ever run on the goroutine that owns the CPU, when it unmasks interrupts
// or calls Service.
package sim

import "sync/atomic"

// CPU models the core's interrupt mask and the interrupt controller.
type CPU struct {
	masked  bool
	pending []atomic.Bool
	enabled []atomic.Bool

	boot      []func(line int)
	ram       []func(line int)
	relocated bool

	serviced atomic.Uint64
	trapped  atomic.Uint64
}

// NewCPU returns an unmasked CPU with the given number of interrupt lines.
func NewCPU(lines int) *CPU {
	return &CPU{
		pending: make([]atomic.Bool, lines),
		enabled: make([]atomic.Bool, lines),
		boot:    make([]func(int), lines),
	}
}

// Disable masks interrupts and returns the previous state.
func (c *CPU) Disable() uintptr {
	prev := c.masked
	c.masked = true
	if prev {
		return 1
	}
	return 0
}

// Restore reinstates a state returned by Disable. Unmasking services any
// pending lines.
func (c *CPU) Restore(state uintptr) {
	c.masked = state != 0
	if !c.masked {
		c.Service()
	}
}

func (c *CPU) Masked() bool { return c.masked }

// Pend marks line pending. It is safe to call from any goroutine.
func (c *CPU) Pend(line int) {
	if line < 0 || line >= len(c.pending) {
		return
	}
	c.pending[line].Store(true)
}

func (c *CPU) Pending(line int) bool {
	if line < 0 || line >= len(c.pending) {
		return false
	}
	return c.pending[line].Load()
}

// Service runs the handlers of every pending, enabled line until none is
// left, lowest line first. It does nothing while interrupts are masked.
func (c *CPU) Service() int {
	if c.masked {
		return 0
	}
	n := 0
	for {
		ran := false
		for line := range c.pending {
			if !c.enabled[line].Load() || !c.pending[line].CompareAndSwap(true, false) {
				continue
			}
			ran = true
			n++
			c.enter(line)
		}
		if !ran {
			return n
		}
	}
}

func (c *CPU) enter(line int) {
	c.masked = true
	defer func() { c.masked = false }()

	c.serviced.Add(1)
	table := c.boot
	if c.relocated {
		table = c.ram
	}
	if fn := table[line]; fn != nil {
		fn(line)
		return
	}
	c.trapped.Add(1)
}

// Serviced returns how many interrupts have been taken.
func (c *CPU) Serviced() uint64 { return c.serviced.Load() }

// Trapped returns how many interrupts found no vector.
func (c *CPU) Trapped() uint64 { return c.trapped.Load() }

func (c *CPU) Lines() int { return len(c.pending) }

// Relocate copies the boot vector table into RAM and switches to it.
func (c *CPU) Relocate() {
	c.ram = make([]func(int), len(c.boot))
	copy(c.ram, c.boot)
	c.relocated = true
}

func (c *CPU) Relocated() bool { return c.relocated }

// SetVector installs entry for line in the active table.
func (c *CPU) SetVector(line int, entry func(line int)) {
	if line < 0 || line >= len(c.boot) {
		return
	}
	if c.relocated {
		c.ram[line] = entry
		return
	}
	c.boot[line] = entry
}

// ResetVectors switches back to the boot table and clears the RAM copy.
func (c *CPU) ResetVectors() {
	c.relocated = false
	c.ram = nil
}

func (c *CPU) EnableLine(line int) {
	if line >= 0 && line < len(c.enabled) {
		c.enabled[line].Store(true)
	}
}

func (c *CPU) DisableLine(line int) {
	if line >= 0 && line < len(c.enabled) {
		c.enabled[line].Store(false)
	}
}

func (c *CPU) LineEnabled(line int) bool {
	if line < 0 || line >= len(c.enabled) {
		return false
	}
	return c.enabled[line].Load()
}
