package sim

import "sync"

// Timer models a basic up-counting timer with an update (overflow) flag.
type Timer struct {
	cpu  *CPU
	line int

	mu      sync.Mutex
	tickMs  uint32
	acc     uint32
	running bool
	uif     bool
	resets  int
}

// NewTimer returns a stopped timer that pends line on every overflow.
func NewTimer(cpu *CPU, line int) *Timer {
	return &Timer{cpu: cpu, line: line}
}

func (t *Timer) Line() int { return t.line }

// Configure pulses the reset line and programs the prescaler and reload
// value against an input clock of clockHz.
func (t *Timer) Configure(prescaler, reload, clockHz uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resets++
	t.acc = 0
	t.uif = false
	t.running = false
	if clockHz == 0 {
		t.tickMs = 0
		return
	}
	t.tickMs = uint32(uint64(prescaler+1) * uint64(reload+1) * 1000 / uint64(clockHz))
}

func (t *Timer) Start() {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()
}

func (t *Timer) Stop() {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
}

// TickMs is the overflow period in milliseconds.
func (t *Timer) TickMs() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tickMs
}

// Resets counts reset pulses.
func (t *Timer) Resets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resets
}

func (t *Timer) UpdateFlag() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uif
}

func (t *Timer) ClearUpdateFlag() {
	t.mu.Lock()
	t.uif = false
	t.mu.Unlock()
}

// Advance lets ms milliseconds of counter time pass. Every overflow sets
// the update flag, pends the line and gives the CPU a chance to take it.
func (t *Timer) Advance(ms uint32) {
	for {
		t.mu.Lock()
		if !t.running || t.tickMs == 0 {
			t.mu.Unlock()
			return
		}
		step := t.tickMs - t.acc
		if step > ms {
			t.acc += ms
			t.mu.Unlock()
			return
		}
		ms -= step
		t.acc = 0
		t.uif = true
		t.mu.Unlock()

		t.cpu.Pend(t.line)
		t.cpu.Service()
	}
}

// Glitch pends the line without an update event, as a compare or trigger
// flag on the same vector would.
func (t *Timer) Glitch() {
	t.cpu.Pend(t.line)
	t.cpu.Service()
}
