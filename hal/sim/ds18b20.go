package sim

import "sync"

const (
	owSkipROM        = 0xCC
	owConvertT       = 0x44
	owReadScratchpad = 0xBE
)

// DS18B20 emulates a single thermometer on a 1-wire bus.
type DS18B20 struct {
	mu sync.Mutex

	present bool
	temp    int16
	latched int16
	romDone bool
	out     []byte
	corrupt bool
}

// NewDS18B20 returns a present sensor reading tempC16, in 1/16 degree C.
func NewDS18B20(tempC16 int16) *DS18B20 {
	return &DS18B20{present: true, temp: tempC16, latched: 0x0550}
}

func (d *DS18B20) SetTemp16(v int16) {
	d.mu.Lock()
	d.temp = v
	d.mu.Unlock()
}

func (d *DS18B20) SetPresent(on bool) {
	d.mu.Lock()
	d.present = on
	d.mu.Unlock()
}

// SetCorrupt makes the next scratchpad reads carry a bad CRC.
func (d *DS18B20) SetCorrupt(on bool) {
	d.mu.Lock()
	d.corrupt = on
	d.mu.Unlock()
}

// Reset issues a reset pulse and reports the presence pulse.
func (d *DS18B20) Reset() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.romDone = false
	d.out = nil
	return d.present
}

func (d *DS18B20) Write(b byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.present {
		return
	}
	if !d.romDone {
		d.romDone = b == owSkipROM
		return
	}
	switch b {
	case owConvertT:
		d.latched = d.temp
	case owReadScratchpad:
		d.out = d.scratchpad()
	}
}

func (d *DS18B20) Read() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.present || len(d.out) == 0 {
		return 0xFF
	}
	b := d.out[0]
	d.out = d.out[1:]
	return b
}

func (d *DS18B20) scratchpad() []byte {
	sp := []byte{byte(d.latched), byte(uint16(d.latched) >> 8), 0x4B, 0x46, 0x7F, 0xFF, 0x0C, 0x10, 0}
	sp[8] = crc8(sp[:8])
	if d.corrupt {
		sp[8] ^= 0xA5
	}
	return sp
}

func crc8(data []byte) byte {
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
