// Package serial is an interrupt-driven UART driver. Received bytes are
// queued from the interrupt handler into an RX queue; transmitted bytes are
// queued by tasks and drained by the transmit-empty interrupt.
package serial

import (
	"fmt"

	"co2mon/kernel"
	"co2mon/kernel/fifo"
	"co2mon/kernel/irq"

	"github.com/rs/zerolog"
)

// Status register bits, STM32 USART layout.
const (
	StatusPE   uint32 = 1 << 0
	StatusFE   uint32 = 1 << 1
	StatusNE   uint32 = 1 << 2
	StatusORE  uint32 = 1 << 3
	StatusRXNE uint32 = 1 << 5
	StatusTC   uint32 = 1 << 6
	StatusTXE  uint32 = 1 << 7
)

// Receive error codes recorded in the RX queue.
const (
	ErrNoise   = 1
	ErrOverrun = 2
	ErrFraming = 3
	ErrParity  = 4
)

const DefaultCapacity = 128

// Port is a USART register block.
type Port interface {
	Line() int
	Configure(baud uint32) error
	SR() uint32
	ReadDR() byte
	WriteDR(b byte)
	SetRXInterrupt(on bool)
	SetTXInterrupt(on bool)
	TXInterrupt() bool
}

type Config struct {
	Port       Port
	IRQ        *irq.Manager
	Mask       kernel.Mask
	Baud       uint32
	RXCapacity int
	TXCapacity int
	Logger     zerolog.Logger
	// Notify, if set, is called from the interrupt handler after a byte is
	// queued. Typically a scheduler SetReady for the consuming task.
	Notify func()
}

// Driver owns one UART, its interrupt action and its two queues.
type Driver struct {
	port   Port
	irq    *irq.Manager
	log    zerolog.Logger
	rx     *fifo.Queue
	tx     *fifo.Queue
	action *irq.Action
	notify func()

	dropped int
}

// New configures the port, allocates the queues and claims the port's
// interrupt line.
func New(cfg Config) (*Driver, error) {
	if cfg.Port == nil || cfg.IRQ == nil || cfg.Mask == nil {
		return nil, kernel.E("serial.new", kernel.WrongArg, "missing port, irq manager or mask")
	}
	if cfg.RXCapacity == 0 {
		cfg.RXCapacity = DefaultCapacity
	}
	if cfg.TXCapacity == 0 {
		cfg.TXCapacity = DefaultCapacity
	}
	d := &Driver{
		port:   cfg.Port,
		irq:    cfg.IRQ,
		log:    cfg.Logger.With().Str("component", "serial").Logger(),
		rx:     fifo.New(cfg.RXCapacity, cfg.Mask),
		tx:     fifo.New(cfg.TXCapacity, cfg.Mask),
		notify: cfg.Notify,
	}
	if cfg.Baud != 0 {
		if err := cfg.Port.Configure(cfg.Baud); err != nil {
			return nil, fmt.Errorf("serial: configure port: %w", err)
		}
	}
	a, err := cfg.IRQ.Request(cfg.Port.Line(), d.isr, irq.Shared, "serial", d)
	if err != nil {
		return nil, fmt.Errorf("serial: request irq %d: %w", cfg.Port.Line(), err)
	}
	d.action = a
	cfg.Port.SetRXInterrupt(true)
	return d, nil
}

func (d *Driver) isr(line int, _ any) irq.Result {
	res := irq.None
	sr := d.port.SR()

	if sr&StatusRXNE != 0 {
		res = irq.Handled
		b := d.port.ReadDR()
		switch {
		case sr&StatusNE != 0:
			d.rx.SetLastError(ErrNoise)
		case sr&StatusORE != 0:
			d.rx.SetLastError(ErrOverrun)
		case sr&StatusFE != 0:
			d.rx.SetLastError(ErrFraming)
		case sr&StatusPE != 0:
			d.rx.SetLastError(ErrParity)
		default:
			if d.rx.PutByte(b) != nil {
				d.dropped++
			} else if d.notify != nil {
				d.notify()
			}
		}
	}

	if sr&StatusTXE != 0 && d.port.TXInterrupt() {
		res = irq.Handled
		var one [1]byte
		if n, _ := d.tx.Get(one[:]); n == 1 {
			d.port.WriteDR(one[0])
		} else {
			d.port.SetTXInterrupt(false)
		}
	}
	return res
}

// Send queues data for transmission, all or nothing, and starts the
// transmitter.
func (d *Driver) Send(data []byte) error {
	if err := d.tx.Put(data); err != nil {
		return err
	}
	d.port.SetTXInterrupt(true)
	return nil
}

// Receive copies up to len(buf) received bytes into buf. It returns
// fifo.ErrEmpty when nothing is waiting.
func (d *Driver) Receive(buf []byte) (int, error) {
	return d.rx.Get(buf)
}

// Buffered returns the number of received bytes waiting.
func (d *Driver) Buffered() int { return d.rx.Len() }

// Pending returns the number of bytes still waiting to be transmitted.
func (d *Driver) Pending() int { return d.tx.Len() }

// Flush discards received bytes and clears the recorded error.
func (d *Driver) Flush() {
	d.rx.Reset()
}

// LastError returns the most recent receive error code, or 0.
func (d *Driver) LastError() int { return d.rx.LastError() }

// Dropped returns how many received bytes were lost to a full RX queue.
func (d *Driver) Dropped() int { return d.dropped }

// Close disables the port's interrupts and releases the interrupt action.
func (d *Driver) Close() error {
	d.port.SetRXInterrupt(false)
	d.port.SetTXInterrupt(false)
	return d.irq.Free(d.action)
}
