// Package ssd1306 drives an SSD1306 monochrome OLED over I2C.
//
// The device keeps a page-organised frame buffer and implements
// drivers.Displayer, so tinyfont and friends can draw into it.
package ssd1306

import (
	"fmt"
	"image/color"

	"tinygo.org/x/drivers"
)

const (
	DefaultAddress = 0x3C

	ctrlCommand = 0x00
	ctrlData    = 0x40

	cmdDisplayOff      = 0xAE
	cmdDisplayOn       = 0xAF
	cmdMemoryMode      = 0x20
	cmdPageStart       = 0xB0
	cmdComScanDec      = 0xC8
	cmdLowColumn       = 0x00
	cmdHighColumn      = 0x10
	cmdStartLine       = 0x40
	cmdContrast        = 0x81
	cmdSegRemap        = 0xA1
	cmdNormal          = 0xA6
	cmdInvert          = 0xA7
	cmdMultiplex       = 0xA8
	cmdFollowRAM       = 0xA4
	cmdDisplayOffset   = 0xD3
	cmdClockDiv        = 0xD5
	cmdPrecharge       = 0xD9
	cmdComPins         = 0xDA
	cmdVcomDetect      = 0xDB
	cmdChargePump      = 0x8D
	chargePumpEnable   = 0x14
	memoryHorizontal   = 0x00
	defaultContrastVal = 0xFF
)

type Config struct {
	Address uint16
	Width   int16
	Height  int16
}

// Device is one SSD1306 panel.
type Device struct {
	bus      drivers.I2C
	addr     uint16
	width    int16
	height   int16
	buf      []byte
	inverted bool
	on       bool
}

// New returns a device on bus. Zero config fields take the 128x64 at 0x3C
// defaults.
func New(bus drivers.I2C, cfg Config) *Device {
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.Width == 0 {
		cfg.Width = 128
	}
	if cfg.Height == 0 {
		cfg.Height = 64
	}
	return &Device{
		bus:    bus,
		addr:   cfg.Address,
		width:  cfg.Width,
		height: cfg.Height,
		buf:    make([]byte, int(cfg.Width)*int(cfg.Height)/8),
	}
}

// Configure runs the power-up sequence and clears the panel.
func (d *Device) Configure() error {
	comPins := byte(0x12)
	if d.height == 32 {
		comPins = 0x02
	}
	seq := []byte{
		cmdDisplayOff,
		cmdMemoryMode, memoryHorizontal,
		cmdPageStart,
		cmdComScanDec,
		cmdLowColumn, cmdHighColumn,
		cmdStartLine,
		cmdContrast, defaultContrastVal,
		cmdSegRemap,
		cmdNormal,
		cmdMultiplex, byte(d.height - 1),
		cmdFollowRAM,
		cmdDisplayOffset, 0x00,
		cmdClockDiv, 0xF0,
		cmdPrecharge, 0x22,
		cmdComPins, comPins,
		cmdVcomDetect, 0x20,
		cmdChargePump, chargePumpEnable,
	}
	if err := d.command(seq...); err != nil {
		return fmt.Errorf("ssd1306: init sequence: %w", err)
	}
	if err := d.SetDisplayOn(true); err != nil {
		return err
	}
	d.ClearBuffer()
	return d.Display()
}

// Size implements drivers.Displayer.
func (d *Device) Size() (x, y int16) { return d.width, d.height }

// SetPixel implements drivers.Displayer. Any non-black colour lights the
// pixel.
func (d *Device) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || x >= d.width || y < 0 || y >= d.height {
		return
	}
	i := int(x) + int(y/8)*int(d.width)
	bit := byte(1) << uint(y%8)
	if c.R != 0 || c.G != 0 || c.B != 0 {
		d.buf[i] |= bit
	} else {
		d.buf[i] &^= bit
	}
}

// GetPixel reports whether the buffered pixel is lit.
func (d *Device) GetPixel(x, y int16) bool {
	if x < 0 || x >= d.width || y < 0 || y >= d.height {
		return false
	}
	return d.buf[int(x)+int(y/8)*int(d.width)]&(1<<uint(y%8)) != 0
}

// Display implements drivers.Displayer: it writes the buffer one page at
// a time.
func (d *Device) Display() error {
	pages := int(d.height) / 8
	w := int(d.width)
	line := make([]byte, w+1)
	line[0] = ctrlData
	for p := 0; p < pages; p++ {
		if err := d.command(cmdPageStart+byte(p), cmdLowColumn, cmdHighColumn); err != nil {
			return fmt.Errorf("ssd1306: page %d address: %w", p, err)
		}
		copy(line[1:], d.buf[p*w:(p+1)*w])
		if err := d.bus.Tx(d.addr, line, nil); err != nil {
			return fmt.Errorf("ssd1306: page %d data: %w", p, err)
		}
	}
	return nil
}

// ClearBuffer blanks the frame buffer without touching the panel.
func (d *Device) ClearBuffer() {
	for i := range d.buf {
		d.buf[i] = 0
	}
}

// Fill lights or blanks the whole buffer.
func (d *Device) Fill(on bool) {
	v := byte(0)
	if on {
		v = 0xFF
	}
	for i := range d.buf {
		d.buf[i] = v
	}
}

func (d *Device) SetContrast(v byte) error {
	return d.command(cmdContrast, v)
}

func (d *Device) SetDisplayOn(on bool) error {
	c := byte(cmdDisplayOff)
	if on {
		c = cmdDisplayOn
	}
	if err := d.command(c); err != nil {
		return fmt.Errorf("ssd1306: display on/off: %w", err)
	}
	d.on = on
	return nil
}

func (d *Device) SetInverted(inv bool) error {
	c := byte(cmdNormal)
	if inv {
		c = cmdInvert
	}
	if err := d.command(c); err != nil {
		return err
	}
	d.inverted = inv
	return nil
}

func (d *Device) IsOn() bool { return d.on }

func (d *Device) command(cmds ...byte) error {
	w := make([]byte, 0, len(cmds)+1)
	w = append(w, ctrlCommand)
	w = append(w, cmds...)
	return d.bus.Tx(d.addr, w, nil)
}

func (d *Device) IsInverted() bool { return d.inverted }
