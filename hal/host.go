//go:build !tinygo

package hal

import (
	"fmt"
	"os"
	"sync"

	"co2mon/drivers/ds18b20"
	"co2mon/drivers/serial"
	"co2mon/hal/sim"
	"co2mon/kernel"
	"co2mon/kernel/swtimer"

	"tinygo.org/x/drivers"
)

// HostOptions seeds the simulated peripherals.
type HostOptions struct {
	// CO2 is the sensor's initial reading in ppm.
	CO2 uint16
	// Temp16 is the thermometer's reading in 1/16 degree C.
	Temp16 int16
}

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	cpu    *sim.CPU
	clock  *sim.WallClock
	timer  *hostTimer
	uart   *sim.UART
	s8     *sim.S8
	panel  *sim.Panel
	therm  *sim.DS18B20
	t      *hostTime
}

// New returns a host HAL backed by the simulated board.
func New() HAL {
	return newHost(HostOptions{})
}

func newHost(opts HostOptions) *hostHAL {
	if opts.CO2 == 0 {
		opts.CO2 = 650
	}
	if opts.Temp16 == 0 {
		opts.Temp16 = 21*16 + 8
	}
	logger := &hostLogger{w: os.Stdout}
	cpu := sim.NewCPU(NumIRQ)
	timer := &hostTimer{Timer: sim.NewTimer(cpu, IRQTimer)}
	s8 := sim.NewS8(opts.CO2)
	return &hostHAL{
		logger: logger,
		led:    &hostLED{},
		cpu:    cpu,
		clock:  sim.NewWallClock(),
		timer:  timer,
		uart:   sim.NewUART(cpu, IRQSensor, s8),
		s8:     s8,
		panel:  sim.NewPanel(),
		therm:  sim.NewDS18B20(opts.Temp16),
		t:      newHostTime(timer.Timer),
	}
}

func (h *hostHAL) Logger() Logger           { return h.logger }
func (h *hostHAL) LED() LED                 { return h.led }
func (h *hostHAL) CPU() CPU                 { return h.cpu }
func (h *hostHAL) Clock() kernel.Clock      { return h.clock }
func (h *hostHAL) Timer() swtimer.Hardware  { return h.timer }
func (h *hostHAL) SensorPort() serial.Port  { return h.uart }
func (h *hostHAL) I2C() drivers.I2C         { return h.panel }
func (h *hostHAL) OneWire() ds18b20.OneWire { return h.therm }

func (h *hostHAL) TimerHW() swtimer.HWTimer {
	return swtimer.HWTimer{
		Base:      0x40000000,
		IRQ:       IRQTimer,
		Reset:     0,
		Prescaler: 35,
		Reload:    4999,
		ClockHz:   36_000_000,
	}
}

// Panel is the simulated OLED behind I2C.
func (h *hostHAL) Panel() *sim.Panel { return h.panel }

// step advances simulated time to the wall clock and takes any interrupts
// that became pending.
func (h *hostHAL) step() {
	h.t.step()
	h.cpu.Service()
}

type hostTimer struct {
	*sim.Timer
}

func (t *hostTimer) Setup(hw swtimer.HWTimer) {
	t.Configure(hw.Prescaler, hw.Reload, hw.ClockHz)
	t.Timer.Start()
}

func (t *hostTimer) Shutdown() { t.Timer.Stop() }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu sync.Mutex
	on bool
}

func (l *hostLED) High() { l.set(true) }

func (l *hostLED) Low() { l.set(false) }

func (l *hostLED) Toggle() {
	l.mu.Lock()
	l.on = !l.on
	l.mu.Unlock()
}

func (l *hostLED) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

func (l *hostLED) set(on bool) {
	l.mu.Lock()
	l.on = on
	l.mu.Unlock()
}
