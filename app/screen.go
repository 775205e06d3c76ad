package app

import (
	"fmt"
	"image/color"

	"co2mon/internal/buildinfo"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/freemono"
	"tinygo.org/x/tinyfont/proggy"
)

var (
	white = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	small = &proggy.TinySZ8pt7b
	large = &freemono.Bold18pt7b
)

// Baselines on the 128x64 panel.
const (
	rowLabel  = 10
	rowValue  = 38
	rowStatus = 52
	rowTemp   = 63
)

// render redraws the measurement screen from the last sample.
func (s *System) render() error {
	d := s.oled
	d.ClearBuffer()

	tinyfont.WriteLine(d, small, 0, rowLabel, "CO2:", white)
	if s.samples > 0 && s.readErr == nil {
		value := fmt.Sprintf("%d", s.reading.CO2)
		tinyfont.WriteLine(d, large, 0, rowValue, value, white)
		_, w := tinyfont.LineWidth(large, value)
		tinyfont.WriteLine(d, small, int16(w)+2, rowValue, "ppm", white)
	} else {
		tinyfont.WriteLine(d, large, 0, rowValue, "----", white)
	}

	status := "Status: Ok"
	if s.readErr != nil || !s.reading.OK() {
		status = "Status: Err"
	}
	tinyfont.WriteLine(d, small, 0, rowStatus, status, white)

	switch {
	case s.therm == nil:
	case s.tempValid:
		tinyfont.WriteLine(d, small, 0, rowTemp, "T: "+s.temp.String()+" C", white)
	default:
		tinyfont.WriteLine(d, small, 0, rowTemp, "T: --", white)
	}
	return d.Display()
}

// splash shows the build identity until the first sample arrives.
func (s *System) splash() {
	d := s.oled
	d.ClearBuffer()
	tinyfont.WriteLine(d, small, 0, rowLabel, "co2mon", white)
	tinyfont.WriteLine(d, small, 0, rowLabel+12, buildinfo.Short(), white)
	tinyfont.WriteLine(d, small, 0, rowStatus, "warming up...", white)
	if err := d.Display(); err != nil {
		s.log.Error().Err(err).Msg("splash")
	}
}
