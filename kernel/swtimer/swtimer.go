// Package swtimer multiplexes periodic software timers onto one hardware
// timer.
//
// The hardware timer's overflow interrupt only accumulates elapsed time and
// readies the multiplexer's scheduler task; callbacks run from that task,
// never from interrupt context.
package swtimer

import (
	"co2mon/kernel"
	"co2mon/kernel/irq"
	"co2mon/kernel/sched"

	"github.com/rs/zerolog"
)

// Name is used for both the interrupt action and the scheduler task.
const Name = "swtimer"

// HWTimer describes the hardware timer the multiplexer runs on.
type HWTimer struct {
	Base      uintptr
	IRQ       int
	Reset     int
	Reload    uint32
	Prescaler uint32
	// ClockHz is the timer's input clock.
	ClockHz uint32
}

// TickMs is the overflow period in milliseconds: the granularity of every
// software timer.
func (hw HWTimer) TickMs() int {
	if hw.ClockHz == 0 {
		return 0
	}
	return int(uint64(hw.Prescaler+1) * uint64(hw.Reload+1) * 1000 / uint64(hw.ClockHz))
}

// Hardware drives the timer peripheral.
type Hardware interface {
	// Setup pulses the reset line, programs prescaler and reload, enables
	// the update interrupt and starts the counter.
	Setup(hw HWTimer)
	Shutdown()
	UpdateFlag() bool
	ClearUpdateFlag()
}

// Handle identifies a timer slot. Valid handles start at 1.
type Handle int

// Callback is invoked from the multiplexer task when a timer expires.
type Callback func()

var (
	ErrNoSlot     = kernel.E("swtimer.register", kernel.Full, "timer table full")
	ErrPeriod     = kernel.E("swtimer.register", kernel.Range, "period below timer tick")
	ErrNoCallback = kernel.E("swtimer.register", kernel.WrongArg, "nil callback")
)

type Config struct {
	Capacity int
	Sched    *sched.Scheduler
	IRQ      *irq.Manager
	Mask     kernel.Mask
	Hardware Hardware
	Timer    HWTimer
	Logger   zerolog.Logger
}

type slot struct {
	cb        Callback
	period    int
	remaining int
	active    bool
}

// Multiplexer owns the timer slots, its interrupt action and its task.
type Multiplexer struct {
	cfg    Config
	log    zerolog.Logger
	tick   int
	slots  []slot
	ticks  int
	action *irq.Action
	task   sched.Handle
}

// New prepares a multiplexer. Nothing touches the hardware until Init.
func New(cfg Config) *Multiplexer {
	kernel.Assert(cfg.Capacity > 0, "swtimer.new", "capacity %d out of range", cfg.Capacity)
	kernel.Assert(cfg.Sched != nil && cfg.IRQ != nil && cfg.Mask != nil && cfg.Hardware != nil, "swtimer.new", "missing dependency")
	tick := cfg.Timer.TickMs()
	kernel.Assert(tick > 0, "swtimer.new", "timer tick is zero")
	return &Multiplexer{
		cfg:   cfg,
		log:   cfg.Logger.With().Str("component", "swtimer").Logger(),
		tick:  tick,
		slots: make([]slot, cfg.Capacity),
	}
}

// TickMs returns the timer granularity in milliseconds.
func (m *Multiplexer) TickMs() int { return m.tick }

// Init claims the timer interrupt, adds the multiplexer task and starts
// the hardware.
func (m *Multiplexer) Init() error {
	a, err := m.cfg.IRQ.Request(m.cfg.Timer.IRQ, m.isr, 0, Name, m)
	if err != nil {
		m.log.Error().Err(err).Msg("unable to request timer irq")
		return err
	}
	task, err := m.cfg.Sched.AddTask(Name, m.run)
	if err != nil {
		_ = m.cfg.IRQ.Free(a)
		m.log.Error().Err(err).Msg("unable to add timer task")
		return err
	}
	m.action, m.task = a, task
	m.cfg.Hardware.Setup(m.cfg.Timer)
	m.log.Info().Int("irq", m.cfg.Timer.IRQ).Int("tick_ms", m.tick).Msg("timer started")
	return nil
}

// Exit stops the hardware and releases the interrupt action and task.
func (m *Multiplexer) Exit() {
	m.cfg.Hardware.Shutdown()
	if m.task != 0 {
		_ = m.cfg.Sched.DelTask(m.task)
		m.task = 0
	}
	if m.action != nil {
		_ = m.cfg.IRQ.Free(m.action)
		m.action = nil
	}
}

func (m *Multiplexer) isr(line int, _ any) irq.Result {
	if !m.cfg.Hardware.UpdateFlag() {
		return irq.None
	}
	m.ticks += m.tick
	m.cfg.Sched.SetReady(m.task)
	m.cfg.Hardware.ClearUpdateFlag()
	return irq.Handled
}

func (m *Multiplexer) run() {
	g := kernel.Enter(m.cfg.Mask)
	elapsed := m.ticks
	m.ticks = 0
	g.Exit()

	for i := range m.slots {
		s := &m.slots[i]
		if !s.active || s.cb == nil {
			continue
		}
		if s.remaining <= 0 {
			s.cb()
			s.remaining = s.period
		}
		s.remaining -= elapsed
	}
}

// ResetTicks discards elapsed time not yet consumed by the task.
func (m *Multiplexer) ResetTicks() {
	g := kernel.Enter(m.cfg.Mask)
	m.ticks = 0
	g.Exit()
}

// Register allocates an active timer firing every periodMs milliseconds.
func (m *Multiplexer) Register(cb Callback, periodMs int) (Handle, error) {
	if cb == nil {
		return 0, ErrNoCallback
	}
	if periodMs < m.tick {
		return 0, ErrPeriod
	}
	for i := range m.slots {
		if m.slots[i].cb != nil {
			continue
		}
		m.slots[i] = slot{cb: cb, period: periodMs, remaining: periodMs, active: true}
		m.log.Info().Int("handle", i+1).Int("period_ms", periodMs).Msg("timer registered")
		return Handle(i + 1), nil
	}
	return 0, ErrNoSlot
}

// Delete frees the slot behind h.
func (m *Multiplexer) Delete(h Handle) {
	m.slots[m.index("swtimer.del", h)] = slot{}
}

// Start resumes a stopped timer without touching its countdown.
func (m *Multiplexer) Start(h Handle) {
	m.slots[m.index("swtimer.start", h)].active = true
}

// Stop pauses a timer without touching its countdown.
func (m *Multiplexer) Stop(h Handle) {
	m.slots[m.index("swtimer.stop", h)].active = false
}

// Reset reloads the countdown from the period.
func (m *Multiplexer) Reset(h Handle) {
	s := &m.slots[m.index("swtimer.reset", h)]
	s.remaining = s.period
}

// SetPeriod changes the value the countdown is reloaded with after the
// next expiry.
func (m *Multiplexer) SetPeriod(h Handle, periodMs int) error {
	i := m.index("swtimer.set_period", h)
	if periodMs < m.tick {
		return ErrPeriod
	}
	m.slots[i].period = periodMs
	return nil
}

// Remaining returns the milliseconds left before h expires.
func (m *Multiplexer) Remaining(h Handle) int {
	return m.slots[m.index("swtimer.remaining", h)].remaining
}

// Active reports whether h is running.
func (m *Multiplexer) Active(h Handle) bool {
	return m.slots[m.index("swtimer.active", h)].active
}

func (m *Multiplexer) index(op string, h Handle) int {
	kernel.Assert(h >= 1 && int(h) <= len(m.slots), op, "handle %d out of range", h)
	return int(h) - 1
}
