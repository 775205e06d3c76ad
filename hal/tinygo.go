//go:build tinygo && stm32f103

package hal

import (
	"device/stm32"
	"machine"
	"runtime/interrupt"
	"time"

	"co2mon/drivers/ds18b20"
	"co2mon/drivers/serial"
	"co2mon/kernel"
	"co2mon/kernel/swtimer"

	"tinygo.org/x/drivers"
)

const (
	apb1Hz  = 36_000_000
	oneWire = machine.PB12
)

type tinyGoHAL struct {
	logger *uartLogger
	led    *pinLED
	cpu    *nvicCPU
	clock  *tickClock
	timer  *tim2
	uart   *usart3
	wire   *bitBangWire
}

// New returns the Blue Pill (STM32F103C8) HAL.
//
// Log: USART1 at 115200 8N1. Sensor: USART3 on PB10/PB11. OLED: I2C1 on
// PB6/PB7. Thermometer: 1-wire on PB12.
func New() HAL {
	machine.Serial.Configure(machine.UARTConfig{BaudRate: 115200})

	ledPin := machine.LED
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})

	machine.I2C1.Configure(machine.I2CConfig{Frequency: 400 * machine.KHz})

	return &tinyGoHAL{
		logger: &uartLogger{uart: machine.Serial},
		led:    &pinLED{pin: ledPin},
		cpu:    theCPU,
		clock:  &tickClock{start: time.Now()},
		timer:  &tim2{},
		uart:   &usart3{},
		wire:   &bitBangWire{pin: oneWire},
	}
}

func (h *tinyGoHAL) Logger() Logger           { return h.logger }
func (h *tinyGoHAL) LED() LED                 { return h.led }
func (h *tinyGoHAL) CPU() CPU                 { return h.cpu }
func (h *tinyGoHAL) Clock() kernel.Clock      { return h.clock }
func (h *tinyGoHAL) Timer() swtimer.Hardware  { return h.timer }
func (h *tinyGoHAL) SensorPort() serial.Port  { return h.uart }
func (h *tinyGoHAL) I2C() drivers.I2C         { return machine.I2C1 }
func (h *tinyGoHAL) OneWire() ds18b20.OneWire { return h.wire }

func (h *tinyGoHAL) TimerHW() swtimer.HWTimer {
	return swtimer.HWTimer{
		Base:      0x40000000,
		IRQ:       IRQTimer,
		Reset:     0,
		Prescaler: 35,
		Reload:    4999,
		ClockHz:   apb1Hz,
	}
}

// nvicCPU routes the two wired interrupt lines through a RAM vector table.
// The flash table is fixed at link time so Relocate only marks the RAM copy
// live.
type nvicCPU struct {
	vectors [NumIRQ]func(line int)
	live    bool
	tim     interrupt.Interrupt
	usart   interrupt.Interrupt
}

var theCPU = &nvicCPU{}

func init() {
	theCPU.tim = interrupt.New(stm32.IRQ_TIM2, func(interrupt.Interrupt) { theCPU.enter(IRQTimer) })
	theCPU.usart = interrupt.New(stm32.IRQ_USART3, func(interrupt.Interrupt) { theCPU.enter(IRQSensor) })
}

func (c *nvicCPU) enter(line int) {
	if !c.live {
		return
	}
	if v := c.vectors[line]; v != nil {
		v(line)
	}
}

func (c *nvicCPU) Disable() uintptr      { return uintptr(interrupt.Disable()) }
func (c *nvicCPU) Restore(state uintptr) { interrupt.Restore(interrupt.State(state)) }
func (c *nvicCPU) Lines() int            { return NumIRQ }
func (c *nvicCPU) Relocate()             { c.live = true }

func (c *nvicCPU) SetVector(line int, entry func(line int)) {
	c.vectors[line] = entry
}

func (c *nvicCPU) ResetVectors() {
	c.live = false
	for i := range c.vectors {
		c.vectors[i] = nil
	}
}

func (c *nvicCPU) EnableLine(line int) {
	if in, ok := c.line(line); ok {
		in.Enable()
	}
}

func (c *nvicCPU) DisableLine(line int) {
	if in, ok := c.line(line); ok {
		in.Disable()
	}
}

func (c *nvicCPU) line(line int) (interrupt.Interrupt, bool) {
	switch line {
	case IRQTimer:
		return c.tim, true
	case IRQSensor:
		return c.usart, true
	}
	return interrupt.Interrupt{}, false
}

type tickClock struct {
	start time.Time
}

func (c *tickClock) Millis() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}

type tim2 struct{}

func (tim2) Setup(hw swtimer.HWTimer) {
	stm32.RCC.APB1ENR.SetBits(stm32.RCC_APB1ENR_TIM2EN)
	stm32.RCC.APB1RSTR.SetBits(stm32.RCC_APB1RSTR_TIM2RST)
	stm32.RCC.APB1RSTR.ClearBits(stm32.RCC_APB1RSTR_TIM2RST)

	stm32.TIM2.PSC.Set(hw.Prescaler)
	stm32.TIM2.ARR.Set(hw.Reload)
	stm32.TIM2.EGR.SetBits(stm32.TIM_EGR_UG)
	stm32.TIM2.SR.ClearBits(stm32.TIM_SR_UIF)
	stm32.TIM2.DIER.SetBits(stm32.TIM_DIER_UIE)
	stm32.TIM2.CR1.SetBits(stm32.TIM_CR1_CEN)
}

func (tim2) Shutdown() {
	stm32.TIM2.CR1.ClearBits(stm32.TIM_CR1_CEN)
	stm32.TIM2.DIER.ClearBits(stm32.TIM_DIER_UIE)
}

func (tim2) UpdateFlag() bool { return stm32.TIM2.SR.HasBits(stm32.TIM_SR_UIF) }
func (tim2) ClearUpdateFlag() { stm32.TIM2.SR.ClearBits(stm32.TIM_SR_UIF) }

type usart3 struct{}

func (usart3) Line() int { return IRQSensor }

func (usart3) Configure(baud uint32) error {
	if baud == 0 {
		return kernel.E("usart3", kernel.WrongArg, "zero baud")
	}
	stm32.RCC.APB2ENR.SetBits(stm32.RCC_APB2ENR_IOPBEN)
	stm32.RCC.APB1ENR.SetBits(stm32.RCC_APB1ENR_USART3EN)

	machine.PB10.Configure(machine.PinConfig{Mode: machine.PinOutput50MHz + machine.PinOutputModeAltPushPull})
	machine.PB11.Configure(machine.PinConfig{Mode: machine.PinInputModeFloating})

	stm32.USART3.BRR.Set(apb1Hz / baud)
	stm32.USART3.CR1.Set(stm32.USART_CR1_UE | stm32.USART_CR1_TE | stm32.USART_CR1_RE)
	return nil
}

func (usart3) SR() uint32     { return stm32.USART3.SR.Get() }
func (usart3) ReadDR() byte   { return byte(stm32.USART3.DR.Get()) }
func (usart3) WriteDR(b byte) { stm32.USART3.DR.Set(uint32(b)) }

func (usart3) SetRXInterrupt(on bool) {
	if on {
		stm32.USART3.CR1.SetBits(stm32.USART_CR1_RXNEIE)
	} else {
		stm32.USART3.CR1.ClearBits(stm32.USART_CR1_RXNEIE)
	}
}

func (usart3) SetTXInterrupt(on bool) {
	if on {
		stm32.USART3.CR1.SetBits(stm32.USART_CR1_TXEIE)
	} else {
		stm32.USART3.CR1.ClearBits(stm32.USART_CR1_TXEIE)
	}
}

func (usart3) TXInterrupt() bool { return stm32.USART3.CR1.HasBits(stm32.USART_CR1_TXEIE) }

// bitBangWire drives a 1-wire bus on an open-drain pin with the standard
// timing slots. Each slot runs with interrupts masked.
type bitBangWire struct {
	pin machine.Pin
}

func (w *bitBangWire) low() {
	w.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	w.pin.Low()
}

func (w *bitBangWire) release() {
	w.pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
}

func (w *bitBangWire) Reset() bool {
	state := interrupt.Disable()
	defer interrupt.Restore(state)

	w.low()
	delayUs(480)
	w.release()
	delayUs(70)
	present := !w.pin.Get()
	delayUs(410)
	return present
}

func (w *bitBangWire) Write(b byte) {
	for i := 0; i < 8; i++ {
		w.writeBit(b&1 != 0)
		b >>= 1
	}
}

func (w *bitBangWire) Read() byte {
	var b byte
	for i := 0; i < 8; i++ {
		if w.readBit() {
			b |= 1 << i
		}
	}
	return b
}

func (w *bitBangWire) writeBit(one bool) {
	state := interrupt.Disable()
	defer interrupt.Restore(state)

	w.low()
	if one {
		delayUs(6)
		w.release()
		delayUs(64)
		return
	}
	delayUs(60)
	w.release()
	delayUs(10)
}

func (w *bitBangWire) readBit() bool {
	state := interrupt.Disable()
	defer interrupt.Restore(state)

	w.low()
	delayUs(6)
	w.release()
	delayUs(9)
	v := w.pin.Get()
	delayUs(55)
	return v
}

func delayUs(us int64) {
	deadline := time.Now().Add(time.Duration(us) * time.Microsecond)
	for time.Now().Before(deadline) {
	}
}

type uartLogger struct {
	uart *machine.UART
}

func (l *uartLogger) WriteLineString(s string) {
	l.uart.Write([]byte(s))
	l.uart.Write([]byte("\r\n"))
}

func (l *uartLogger) WriteLineBytes(b []byte) {
	l.uart.Write(b)
	l.uart.Write([]byte("\r\n"))
}

type pinLED struct {
	pin machine.Pin
}

func (l *pinLED) High()   { l.pin.High() }
func (l *pinLED) Low()    { l.pin.Low() }
func (l *pinLED) Toggle() { l.pin.Set(!l.pin.Get()) }
