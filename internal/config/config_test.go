package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "co2mon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Timer.TickMs())
	assert.Equal(t, 5000, cfg.Periods.CO2Ms)
	assert.Equal(t, 500, cfg.Periods.LEDMs)
	assert.Equal(t, 10, cfg.Kernel.Timers)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
periods:
  co2_ms: 2000
sensor:
  baud: 19200
thermometer:
  enabled: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Periods.CO2Ms)
	assert.Equal(t, 500, cfg.Periods.LEDMs)
	assert.Equal(t, uint32(19200), cfg.Sensor.Baud)
	assert.False(t, cfg.Thermometer.Enabled)
	assert.Equal(t, uint16(0x3C), cfg.Display.Address)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "kernel: [1, 2"))
	assert.ErrorContains(t, err, "parse")

	_, err = Load(writeFile(t, "sensor:\n  rx_capacity: 100\n"))
	assert.ErrorContains(t, err, "sensor.rx_capacity")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"no tasks", func(c *Config) { c.Kernel.Tasks = 0 }, "kernel.tasks"},
		{"too many tasks", func(c *Config) { c.Kernel.Tasks = 65 }, "kernel.tasks"},
		{"no timers", func(c *Config) { c.Kernel.Timers = 0 }, "kernel.timers"},
		{"no clock", func(c *Config) { c.Timer.ClockHz = 0 }, "tick"},
		{"short period", func(c *Config) { c.Periods.LEDMs = 4 }, "periods.led_ms"},
		{"no baud", func(c *Config) { c.Sensor.Baud = 0 }, "sensor.baud"},
		{"odd tx queue", func(c *Config) { c.Sensor.TXCapacity = 96 }, "sensor.tx_capacity"},
		{"no timeout", func(c *Config) { c.Sensor.TimeoutMs = 0 }, "sensor.timeout_ms"},
		{"wide address", func(c *Config) { c.Display.Address = 0x100 }, "display.address"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.edit(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.field)
		})
	}
}
