//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"co2mon/app"
	"co2mon/hal"
	"co2mon/internal/config"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const stepBudget = 16

func main() {
	var (
		run     hal.HeadlessConfig
		cfgPath string
		co2     uint
		lvl     string
	)
	flag.BoolVar(&run.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&run.Hz, "hz", 200, "Tick rate in headless mode.")
	flag.Uint64Var(&run.Ticks, "ticks", 0, "Stop after N ticks in headless mode (0 = run forever).")
	flag.StringVar(&cfgPath, "config", "", "YAML configuration file.")
	flag.UintVar(&co2, "co2", 650, "Simulated CO2 level in ppm.")
	flag.StringVar(&lvl, "log-level", "info", "Minimum log level (debug, info, warn, error).")
	flag.Parse()

	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if co2 > 0xFFFF {
		fmt.Fprintf(os.Stderr, "-co2 %d out of range\n", co2)
		os.Exit(2)
	}
	opts := hal.HostOptions{CO2: uint16(co2)}
	run.Host = opts

	level, err := zerolog.ParseLevel(lvl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	newApp := func(h hal.HAL) func() error {
		log := hostLogger(h).Level(level)
		sys, err := app.New(h, cfg, app.WithLogger(log))
		if err != nil {
			return func() error { return err }
		}
		return func() error {
			sys.Step(stepBudget)
			return nil
		}
	}

	if run.Enabled {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := hal.RunHeadless(ctx, newApp, run); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := hal.RunWindow(newApp, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// hostLogger writes readable lines to a terminal and JSON, as the firmware
// does, when piped.
func hostLogger(h hal.HAL) zerolog.Logger {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		w := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
		return zerolog.New(w).With().Timestamp().Logger()
	}
	return zerolog.New(hal.LogWriter(h.Logger())).With().Timestamp().Logger()
}
