package ssd1306

import (
	"errors"
	"image/color"
	"testing"

	"co2mon/hal/sim"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

var _ drivers.Displayer = (*Device)(nil)

func TestConfigureTurnsPanelOn(t *testing.T) {
	panel := sim.NewPanel()
	d := New(panel, Config{})
	require.NoError(t, d.Configure())

	assert.True(t, panel.On())
	assert.True(t, d.IsOn())
	assert.Equal(t, byte(0xFF), panel.Contrast())
	assert.Zero(t, panel.Lit())
}

func TestDisplayWritesPixels(t *testing.T) {
	panel := sim.NewPanel()
	d := New(panel, Config{})
	require.NoError(t, d.Configure())

	d.SetPixel(0, 0, white)
	d.SetPixel(127, 63, white)
	d.SetPixel(5, 9, white)
	d.SetPixel(5, 9, color.RGBA{})
	d.SetPixel(200, 10, white)
	require.NoError(t, d.Display())

	assert.True(t, panel.Pixel(0, 0))
	assert.True(t, panel.Pixel(127, 63))
	assert.False(t, panel.Pixel(5, 9))
	assert.Equal(t, 2, panel.Lit())
}

func TestFillAndInvert(t *testing.T) {
	panel := sim.NewPanel()
	d := New(panel, Config{})
	require.NoError(t, d.Configure())

	d.Fill(true)
	require.NoError(t, d.Display())
	assert.Equal(t, 128*64, panel.Lit())

	require.NoError(t, d.SetInverted(true))
	assert.True(t, panel.Inverted())
	snap := make([]byte, 128*64)
	panel.Snapshot(snap)
	assert.Equal(t, byte(0), snap[0])
}

func TestTextRendersThroughTinyfont(t *testing.T) {
	panel := sim.NewPanel()
	d := New(panel, Config{})
	require.NoError(t, d.Configure())

	tinyfont.WriteLine(d, &tinyfont.TomThumb, 0, 10, "CO2", white)
	require.NoError(t, d.Display())
	assert.NotZero(t, panel.Lit())
}

func TestWrongAddressSurfacesError(t *testing.T) {
	d := New(sim.NewPanel(), Config{Address: 0x3D})
	err := d.Configure()
	require.Error(t, err)
	assert.True(t, errors.Is(err, sim.ErrNack))
}
