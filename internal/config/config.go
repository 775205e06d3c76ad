// Package config holds the appliance configuration. The firmware runs on
// Default; the host can override it from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const maxTasks = 64

// Config is the complete appliance configuration.
type Config struct {
	Kernel      Kernel      `yaml:"kernel"`
	Timer       Timer       `yaml:"timer"`
	Periods     Periods     `yaml:"periods"`
	Sensor      Sensor      `yaml:"sensor"`
	Display     Display     `yaml:"display"`
	Thermometer Thermometer `yaml:"thermometer"`
}

// Kernel sizes the scheduler task table and the software timer pool.
type Kernel struct {
	Tasks  int `yaml:"tasks"`
	Timers int `yaml:"timers"`
}

// Timer programs the hardware timer that drives the software timers.
type Timer struct {
	Prescaler uint32 `yaml:"prescaler"`
	Reload    uint32 `yaml:"reload"`
	ClockHz   uint32 `yaml:"clock_hz"`
}

// TickMs is the overflow period in milliseconds.
func (t Timer) TickMs() int {
	if t.ClockHz == 0 {
		return 0
	}
	return int(uint64(t.Prescaler+1) * uint64(t.Reload+1) * 1000 / uint64(t.ClockHz))
}

// Periods are the software timer periods of the appliance tasks.
type Periods struct {
	CO2Ms  int `yaml:"co2_ms"`
	LEDMs  int `yaml:"led_ms"`
	TempMs int `yaml:"temp_ms"`
}

// Sensor is the CO2 sensor serial line.
type Sensor struct {
	Baud       uint32 `yaml:"baud"`
	RXCapacity int    `yaml:"rx_capacity"`
	TXCapacity int    `yaml:"tx_capacity"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

type Display struct {
	Address  uint16 `yaml:"address"`
	Contrast uint8  `yaml:"contrast"`
}

type Thermometer struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the stock appliance configuration: a 5 ms tick from a
// 36 MHz timer clock, CO2 every 5 s, LED every 500 ms.
func Default() Config {
	return Config{
		Kernel: Kernel{Tasks: 8, Timers: 10},
		Timer:  Timer{Prescaler: 35, Reload: 4999, ClockHz: 36_000_000},
		Periods: Periods{
			CO2Ms:  5000,
			LEDMs:  500,
			TempMs: 1000,
		},
		Sensor: Sensor{
			Baud:       9600,
			RXCapacity: 128,
			TXCapacity: 128,
			TimeoutMs:  180,
		},
		Display:     Display{Address: 0x3C, Contrast: 0x8F},
		Thermometer: Thermometer{Enabled: true},
	}
}

// Load reads a YAML file over Default and validates the result. Keys absent
// from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first field that the kernel would reject.
func (c Config) Validate() error {
	if c.Kernel.Tasks <= 0 || c.Kernel.Tasks > maxTasks {
		return fmt.Errorf("config: kernel.tasks must be in 1..%d, got %d", maxTasks, c.Kernel.Tasks)
	}
	if c.Kernel.Timers <= 0 {
		return fmt.Errorf("config: kernel.timers must be positive, got %d", c.Kernel.Timers)
	}
	tick := c.Timer.TickMs()
	if tick <= 0 {
		return fmt.Errorf("config: timer yields a %d ms tick", tick)
	}
	periods := []struct {
		name string
		ms   int
	}{
		{"periods.co2_ms", c.Periods.CO2Ms},
		{"periods.led_ms", c.Periods.LEDMs},
		{"periods.temp_ms", c.Periods.TempMs},
	}
	for _, p := range periods {
		if p.ms < tick {
			return fmt.Errorf("config: %s must be at least the %d ms tick, got %d", p.name, tick, p.ms)
		}
	}
	if c.Sensor.Baud == 0 {
		return fmt.Errorf("config: sensor.baud must be positive")
	}
	for _, q := range []struct {
		name string
		n    int
	}{
		{"sensor.rx_capacity", c.Sensor.RXCapacity},
		{"sensor.tx_capacity", c.Sensor.TXCapacity},
	} {
		if q.n <= 0 || q.n&(q.n-1) != 0 {
			return fmt.Errorf("config: %s must be a power of two, got %d", q.name, q.n)
		}
	}
	if c.Sensor.TimeoutMs <= 0 {
		return fmt.Errorf("config: sensor.timeout_ms must be positive, got %d", c.Sensor.TimeoutMs)
	}
	if c.Display.Address == 0 || c.Display.Address > 0x7F {
		return fmt.Errorf("config: display.address 0x%X is not a 7-bit address", c.Display.Address)
	}
	return nil
}
