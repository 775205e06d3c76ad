//go:build !tinygo && cgo

package hal

import (
	"image"
	"image/color"

	"co2mon/hal/sim"
	"co2mon/internal/buildinfo"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

const (
	windowScale = 4
	ledStrip    = 6
	co2Step     = 50
)

var (
	pixelOn  = color.RGBA{R: 0x9c, G: 0xd8, B: 0xff, A: 0xff}
	pixelOff = color.RGBA{R: 0x06, G: 0x08, B: 0x10, A: 0xff}
	ledOn    = color.RGBA{R: 0x30, G: 0xe0, B: 0x40, A: 0xff}
	ledOff   = color.RGBA{R: 0x10, G: 0x30, B: 0x14, A: 0xff}
)

// RunWindow opens a desktop window showing the simulated OLED and the
// status LED. Up and Down change the simulated CO2 level. It blocks until
// the window closes.
func RunWindow(newApp func(HAL) func() error, opts HostOptions) error {
	h := newHost(opts)
	step := newApp(h)

	g := &hostGame{h: h, step: step, co2: h.s8.CO2()}
	ebiten.SetWindowTitle("co2mon (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(sim.PanelWidth*windowScale, (sim.PanelHeight+ledStrip)*windowScale)
	ebiten.SetTPS(200)
	return ebiten.RunGame(g)
}

type hostGame struct {
	h       *hostHAL
	step    func() error
	co2     uint16
	img     *image.RGBA
	panel   *ebiten.Image
	scratch []byte
}

func (g *hostGame) Update() error {
	g.pollKeys()
	g.h.step()
	if g.step != nil {
		if err := g.step(); err != nil {
			return err
		}
	}
	return nil
}

func (g *hostGame) pollKeys() {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyUp):
		if g.co2 <= 9999-co2Step {
			g.co2 += co2Step
		}
	case inpututil.IsKeyJustPressed(ebiten.KeyDown):
		if g.co2 >= co2Step {
			g.co2 -= co2Step
		}
	default:
		return
	}
	g.h.s8.SetCO2(g.co2)
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	if g.img == nil {
		g.img = image.NewRGBA(image.Rect(0, 0, sim.PanelWidth, sim.PanelHeight))
		g.scratch = make([]byte, sim.PanelWidth*sim.PanelHeight)
		g.panel = ebiten.NewImage(sim.PanelWidth, sim.PanelHeight)
	}

	g.h.panel.Snapshot(g.scratch)
	dst := g.img.Pix
	for i, lit := range g.scratch {
		c := pixelOff
		if lit != 0 {
			c = pixelOn
		}
		j := i * 4
		dst[j+0] = c.R
		dst[j+1] = c.G
		dst[j+2] = c.B
		dst[j+3] = c.A
	}

	g.panel.WritePixels(g.img.Pix)
	screen.DrawImage(g.panel, nil)

	c := ledOff
	if g.h.led.On() {
		c = ledOn
	}
	vector.DrawFilledRect(screen, 2, float32(sim.PanelHeight+1), float32(ledStrip-2), float32(ledStrip-2), c, false)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return sim.PanelWidth, sim.PanelHeight + ledStrip
}
