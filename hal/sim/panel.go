package sim

import (
	"errors"
	"sync"
)

const (
	PanelWidth   = 128
	PanelHeight  = 64
	PanelAddress = 0x3C

	panelPages = PanelHeight / 8
)

var ErrNack = errors.New("sim: i2c address not acknowledged")

// Panel emulates an SSD1306 OLED controller on an I2C bus. It decodes the
// command stream and keeps the controller's display RAM.
type Panel struct {
	mu sync.Mutex

	ram      [panelPages][PanelWidth]byte
	page     int
	col      int
	horiz    bool
	on       bool
	inverted bool
	contrast byte

	pendingCmd byte
	args       []byte
	need       int
}

func NewPanel() *Panel {
	return &Panel{}
}

// Tx implements drivers.I2C. The first written byte is the control byte:
// 0x00 for a command stream, 0x40 for display data.
func (p *Panel) Tx(addr uint16, w, r []byte) error {
	if addr != PanelAddress {
		return ErrNack
	}
	if len(w) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch w[0] {
	case 0x00:
		for _, b := range w[1:] {
			p.command(b)
		}
	case 0x40:
		for _, b := range w[1:] {
			p.data(b)
		}
	}
	for i := range r {
		r[i] = 0
	}
	return nil
}

func (p *Panel) command(b byte) {
	if p.need > 0 {
		p.args = append(p.args, b)
		p.need--
		if p.need == 0 {
			p.apply(p.pendingCmd, p.args)
			p.args = p.args[:0]
		}
		return
	}

	switch {
	case b <= 0x0F:
		p.col = p.col&0xF0 | int(b)
	case b >= 0x10 && b <= 0x1F:
		p.col = p.col&0x0F | int(b&0x0F)<<4
	case b >= 0xB0 && b <= 0xB7:
		p.page = int(b - 0xB0)
	case b == 0xAE:
		p.on = false
	case b == 0xAF:
		p.on = true
	case b == 0xA6:
		p.inverted = false
	case b == 0xA7:
		p.inverted = true
	case b == 0x20 || b == 0x81 || b == 0x8D || b == 0xA8 || b == 0xD3 ||
		b == 0xD5 || b == 0xD9 || b == 0xDA || b == 0xDB:
		p.pendingCmd, p.need = b, 1
	case b == 0x21 || b == 0x22:
		p.pendingCmd, p.need = b, 2
	}
}

func (p *Panel) apply(cmd byte, args []byte) {
	switch cmd {
	case 0x20:
		p.horiz = args[0]&0x03 == 0x00
	case 0x81:
		p.contrast = args[0]
	case 0x21:
		p.col = int(args[0]) % PanelWidth
	case 0x22:
		p.page = int(args[0]) % panelPages
	}
}

func (p *Panel) data(b byte) {
	p.ram[p.page][p.col] = b
	p.col++
	if p.col >= PanelWidth {
		p.col = 0
		if p.horiz {
			p.page = (p.page + 1) % panelPages
		}
	}
}

// Pixel reports whether the pixel at x, y is lit, ignoring inversion.
func (p *Panel) Pixel(x, y int) bool {
	if x < 0 || x >= PanelWidth || y < 0 || y >= PanelHeight {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ram[y/8][x]&(1<<(y%8)) != 0
}

// Lit counts lit pixels.
func (p *Panel) Lit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, page := range p.ram {
		for _, b := range page {
			for ; b != 0; b &= b - 1 {
				n++
			}
		}
	}
	return n
}

// Snapshot writes one byte per pixel (0 or 1, row-major) into dst, taking
// display on/off and inversion into account.
func (p *Panel) Snapshot(dst []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for y := 0; y < PanelHeight; y++ {
		for x := 0; x < PanelWidth; x++ {
			i := y*PanelWidth + x
			if i >= len(dst) {
				return
			}
			lit := p.ram[y/8][x]&(1<<(y%8)) != 0
			if p.inverted {
				lit = !lit
			}
			if !p.on {
				lit = false
			}
			if lit {
				dst[i] = 1
			} else {
				dst[i] = 0
			}
		}
	}
}

func (p *Panel) On() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on
}

func (p *Panel) Inverted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inverted
}

func (p *Panel) Contrast() byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contrast
}
