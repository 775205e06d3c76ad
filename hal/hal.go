// Package hal is the board abstraction: the only contact point between the
// firmware and the outside world.
package hal

import (
	"io"

	"co2mon/drivers/ds18b20"
	"co2mon/drivers/serial"
	"co2mon/kernel"
	"co2mon/kernel/irq"
	"co2mon/kernel/swtimer"

	"tinygo.org/x/drivers"
)

// Interrupt lines, STM32F103 numbering.
const (
	NumIRQ    = 68
	IRQTimer  = 28 // TIM2
	IRQSensor = 39 // USART3
)

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a minimal output pin abstraction.
type LED interface {
	High()
	Low()
	Toggle()
}

// CPU is the core's interrupt mask together with its interrupt controller.
type CPU interface {
	kernel.Mask
	irq.Controller
}

// HAL provides every peripheral the appliance uses.
type HAL interface {
	Logger() Logger
	LED() LED
	CPU() CPU
	Clock() kernel.Clock
	// Timer is the hardware timer behind the software timers, and
	// TimerHW its fixed board wiring.
	Timer() swtimer.Hardware
	TimerHW() swtimer.HWTimer
	SensorPort() serial.Port
	I2C() drivers.I2C
	OneWire() ds18b20.OneWire
}

// LogWriter adapts a line logger to io.Writer for structured loggers that
// emit one record per Write.
func LogWriter(l Logger) io.Writer {
	return logWriter{l: l}
}

type logWriter struct {
	l Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 && (p[len(p)-1] == '\n' || p[len(p)-1] == '\r') {
		p = p[:len(p)-1]
	}
	w.l.WriteLineBytes(p)
	return n, nil
}
