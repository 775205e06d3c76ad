// Package ds18b20 reads a single DS18B20 thermometer on a 1-wire bus.
//
// Conversion is split in two calls so a periodic task never has to sit
// through the 750 ms conversion time: StartConversion, then on a later tick
// ReadTemperature.
package ds18b20

import (
	"fmt"

	"co2mon/kernel"
)

const (
	cmdSkipROM        = 0xCC
	cmdConvertT       = 0x44
	cmdReadScratchpad = 0xBE

	scratchpadLen = 9
)

var (
	ErrNoDevice = kernel.E("ds18b20", kernel.Unavailable, "no presence pulse")
	ErrCRC      = kernel.E("ds18b20", kernel.IO, "scratchpad crc mismatch")
)

// OneWire is a 1-wire bus master.
type OneWire interface {
	// Reset sends a reset pulse and reports whether a device answered.
	Reset() bool
	Write(b byte)
	Read() byte
}

// Temperature is a reading split into sign, whole degrees and the
// fraction in units of 1/10000 degree.
type Temperature struct {
	Sign    byte
	Integer uint16
	Frac    uint16
}

func (t Temperature) String() string {
	return fmt.Sprintf("%c%d.%04d", t.Sign, t.Integer, t.Frac)
}

// Milli returns the temperature in thousandths of a degree.
func (t Temperature) Milli() int {
	v := int(t.Integer)*1000 + int(t.Frac)/10
	if t.Sign == '-' {
		return -v
	}
	return v
}

// Parse decodes the 12-bit two's complement temperature register.
func Parse(lsb, msb byte) Temperature {
	raw := int16(uint16(msb)<<8 | uint16(lsb))
	t := Temperature{Sign: '+'}
	if raw < 0 {
		t.Sign = '-'
		raw = -raw
	}
	t.Integer = uint16(raw >> 4)
	t.Frac = uint16(raw&0x0F) * 625
	return t
}

// CRC8 is the Dallas/Maxim 1-wire CRC (polynomial x^8 + x^5 + x^4 + 1).
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		for i := 0; i < 8; i++ {
			mix := (crc ^ b) & 0x01
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8C
			}
			b >>= 1
		}
	}
	return crc
}

// Device is the only thermometer on its bus.
type Device struct {
	bus OneWire
	sp  [scratchpadLen]byte
}

func New(bus OneWire) *Device {
	return &Device{bus: bus}
}

// StartConversion tells every device on the bus to sample.
func (d *Device) StartConversion() error {
	if !d.bus.Reset() {
		return ErrNoDevice
	}
	d.bus.Write(cmdSkipROM)
	d.bus.Write(cmdConvertT)
	return nil
}

// ReadTemperature reads back the result of the last conversion.
func (d *Device) ReadTemperature() (Temperature, error) {
	if !d.bus.Reset() {
		return Temperature{}, ErrNoDevice
	}
	d.bus.Write(cmdSkipROM)
	d.bus.Write(cmdReadScratchpad)
	for i := range d.sp {
		d.sp[i] = d.bus.Read()
	}
	if CRC8(d.sp[:scratchpadLen-1]) != d.sp[scratchpadLen-1] {
		return Temperature{}, ErrCRC
	}
	return Parse(d.sp[0], d.sp[1]), nil
}
