//go:build tinygo

package main

import (
	"co2mon/app"
	"co2mon/hal"
	"co2mon/internal/config"
)

func main() {
	app.Run(hal.New(), config.Default())
}
