// Package s8 reads a Senseair S8 CO2 sensor over Modbus RTU.
//
// Framing, CRC and exception decoding come from goburrow/modbus; the bytes
// travel through an interrupt-driven serial link, and the driver busy-waits
// for the reply with a millisecond timeout.
package s8

import (
	"encoding/binary"
	"fmt"
	"time"

	"co2mon/kernel"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
)

const (
	// Address is the sensor's "any sensor" Modbus address.
	Address = 0xFE

	regMeterStatus = 0
	regSpaceCO2    = 3
	inputRegisters = 4

	DefaultTimeout = 180 * time.Millisecond

	rtuMinResponse = 5
)

var (
	ErrTimeout = kernel.E("s8.read", kernel.Timeout, "no reply from sensor")
	ErrShort   = kernel.E("s8.read", kernel.IO, "short register read")
)

// Link is the byte transport to the sensor.
type Link interface {
	Send(data []byte) error
	Receive(buf []byte) (int, error)
	Flush()
}

type Config struct {
	Link    Link
	Clock   kernel.Clock
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Reading is one sample: the meter status word and the space CO2 value.
type Reading struct {
	CO2    uint16
	Status uint16
}

// OK reports whether the sensor flagged no fault.
func (r Reading) OK() bool { return r.Status == 0 }

// Device is a Senseair S8 on a Modbus RTU link.
type Device struct {
	client  modbus.Client
	handler *handler
	log     zerolog.Logger
}

// New returns a driver for the sensor behind cfg.Link.
func New(cfg Config) *Device {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	codec := modbus.NewRTUClientHandler("")
	codec.SlaveId = Address
	h := &handler{
		Packager: codec,
		link:     cfg.Link,
		clock:    cfg.Clock,
		timeout:  uint32(cfg.Timeout / time.Millisecond),
	}
	return &Device{
		client:  modbus.NewClient(h),
		handler: h,
		log:     cfg.Logger.With().Str("component", "s8").Logger(),
	}
}

// Read fetches the meter status and space CO2 registers.
func (d *Device) Read() (Reading, error) {
	regs, err := d.client.ReadInputRegisters(0, inputRegisters)
	if err != nil {
		d.log.Error().Err(err).Msg("read input registers")
		return Reading{}, err
	}
	if len(regs) < 2*inputRegisters {
		return Reading{}, ErrShort
	}
	return Reading{
		Status: binary.BigEndian.Uint16(regs[2*regMeterStatus:]),
		CO2:    binary.BigEndian.Uint16(regs[2*regSpaceCO2:]),
	}, nil
}

// LastFrame returns the last raw reply received from the sensor.
func (d *Device) LastFrame() []byte {
	return append([]byte(nil), d.handler.last...)
}

// handler pairs the RTU packager with a transporter over Link.
type handler struct {
	modbus.Packager
	link    Link
	clock   kernel.Clock
	timeout uint32
	last    []byte
}

// Send writes one request frame and waits for the matching reply.
func (h *handler) Send(req []byte) ([]byte, error) {
	h.link.Flush()
	if err := h.link.Send(req); err != nil {
		return nil, fmt.Errorf("s8: send request: %w", err)
	}

	want := responseLength(req)
	resp := make([]byte, 0, want)
	var chunk [16]byte
	err := kernel.WaitEventTimeout(h.clock, func() bool {
		if n, err := h.link.Receive(chunk[:]); err == nil {
			resp = append(resp, chunk[:n]...)
		}
		if len(resp) >= rtuMinResponse && resp[1]&0x80 != 0 {
			want = rtuMinResponse
		}
		return len(resp) >= want
	}, h.timeout)
	h.last = resp
	if err != nil {
		return nil, ErrTimeout
	}
	return resp[:want], nil
}

// responseLength is the size of a normal reply to req.
func responseLength(req []byte) int {
	if len(req) < 6 {
		return rtuMinResponse
	}
	qty := int(binary.BigEndian.Uint16(req[4:6]))
	switch req[1] {
	case modbus.FuncCodeReadCoils, modbus.FuncCodeReadDiscreteInputs:
		return rtuMinResponse + (qty+7)/8
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		return rtuMinResponse + 2*qty
	default:
		return 8
	}
}
