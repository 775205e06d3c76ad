// Package app wires the kernel, the drivers and the board into the CO2
// monitor appliance.
package app

import (
	"fmt"
	"time"

	"co2mon/drivers/ds18b20"
	"co2mon/drivers/s8"
	"co2mon/drivers/serial"
	"co2mon/drivers/ssd1306"
	"co2mon/hal"
	"co2mon/internal/buildinfo"
	"co2mon/internal/config"
	"co2mon/kernel"
	"co2mon/kernel/irq"
	"co2mon/kernel/sched"
	"co2mon/kernel/swtimer"

	"github.com/rs/zerolog"
)

// Option customizes New.
type Option func(*options)

type options struct {
	logger *zerolog.Logger
	halt   func()
}

// WithLogger replaces the default JSON logger on the board console.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithHalt sets what the panic handler does after drawing the panic screen.
// Nil lets the panic unwind.
func WithHalt(fn func()) Option {
	return func(o *options) { o.halt = fn }
}

// System is the running appliance.
type System struct {
	h   hal.HAL
	cfg config.Config
	log zerolog.Logger

	irq    *irq.Manager
	sched  *sched.Scheduler
	uart   *serial.Driver
	timers *swtimer.Multiplexer
	oled   *ssd1306.Device
	sensor *s8.Device
	therm  *ds18b20.Device

	co2Timer, ledTimer, tempTimer swtimer.Handle

	reading    s8.Reading
	readErr    error
	samples    int
	temp       ds18b20.Temperature
	tempErr    error
	tempValid  bool
	converting bool
}

// New brings the appliance up on h: logging, interrupt manager, scheduler,
// sensor UART, software timers, display, sensor and thermometer, in that
// order. Then it registers the periodic timers.
func New(h hal.HAL, cfg config.Config, opts ...Option) (*System, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := zerolog.New(hal.LogWriter(h.Logger())).With().Timestamp().Logger()
	if o.logger != nil {
		log = *o.logger
	}
	s := &System{
		h:   h,
		cfg: cfg,
		log: log.With().Str("component", "app").Logger(),
	}
	buildinfo.Stamp(s.log.Info()).Msg("boot")

	cpu := h.CPU()
	s.irq = irq.New(irq.Config{Controller: cpu, Mask: cpu, Logger: log})
	s.irq.Init()

	s.sched = sched.New(sched.Config{Capacity: cfg.Kernel.Tasks, Mask: cpu, Logger: log})

	uart, err := serial.New(serial.Config{
		Port:       h.SensorPort(),
		IRQ:        s.irq,
		Mask:       cpu,
		Baud:       cfg.Sensor.Baud,
		RXCapacity: cfg.Sensor.RXCapacity,
		TXCapacity: cfg.Sensor.TXCapacity,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("app: sensor uart: %w", err)
	}
	s.uart = uart

	hw := h.TimerHW()
	hw.Prescaler, hw.Reload, hw.ClockHz = cfg.Timer.Prescaler, cfg.Timer.Reload, cfg.Timer.ClockHz
	s.timers = swtimer.New(swtimer.Config{
		Capacity: cfg.Kernel.Timers,
		Sched:    s.sched,
		IRQ:      s.irq,
		Mask:     cpu,
		Hardware: h.Timer(),
		Timer:    hw,
		Logger:   log,
	})
	if err := s.timers.Init(); err != nil {
		return nil, fmt.Errorf("app: timers: %w", err)
	}

	s.oled = ssd1306.New(h.I2C(), ssd1306.Config{Address: cfg.Display.Address})
	if err := s.oled.Configure(); err != nil {
		return nil, fmt.Errorf("app: display: %w", err)
	}
	if err := s.oled.SetContrast(cfg.Display.Contrast); err != nil {
		return nil, fmt.Errorf("app: display: %w", err)
	}
	installPanicHandler(s, o.halt)

	s.sensor = s8.New(s8.Config{
		Link:    uart,
		Clock:   h.Clock(),
		Timeout: time.Duration(cfg.Sensor.TimeoutMs) * time.Millisecond,
		Logger:  log,
	})

	if cfg.Thermometer.Enabled {
		s.therm = ds18b20.New(h.OneWire())
	}

	s.splash()

	if err := s.registerTimers(); err != nil {
		return nil, err
	}
	s.log.Info().Int("tasks", s.sched.Len()).Int("tick_ms", s.timers.TickMs()).Msg("ready")
	return s, nil
}

func (s *System) registerTimers() error {
	var err error
	if s.co2Timer, err = s.timers.Register(s.sampleCO2, s.cfg.Periods.CO2Ms); err != nil {
		return fmt.Errorf("app: co2 timer: %w", err)
	}
	if s.ledTimer, err = s.timers.Register(s.blink, s.cfg.Periods.LEDMs); err != nil {
		return fmt.Errorf("app: led timer: %w", err)
	}
	if s.therm != nil {
		if s.tempTimer, err = s.timers.Register(s.sampleTemp, s.cfg.Periods.TempMs); err != nil {
			return fmt.Errorf("app: temp timer: %w", err)
		}
	}
	return nil
}

// Step opens an interrupt window and then runs up to budget ready tasks.
// It returns how many ran.
func (s *System) Step(budget int) int {
	kernel.Critical(s.h.CPU(), func() {})
	n := 0
	for n < budget && s.sched.Step() {
		n++
	}
	return n
}

// Reading returns the last good sensor sample and the error of the most
// recent attempt.
func (s *System) Reading() (s8.Reading, error) { return s.reading, s.readErr }

// Samples counts sensor read attempts.
func (s *System) Samples() int { return s.samples }

// Temperature returns the last thermometer value and whether it is valid.
func (s *System) Temperature() (ds18b20.Temperature, bool) { return s.temp, s.tempValid }

// Display is the OLED driver.
func (s *System) Display() *ssd1306.Device { return s.oled }

func (s *System) sampleCO2() {
	s.samples++
	r, err := s.sensor.Read()
	s.readErr = err
	if err != nil {
		s.log.Error().Err(err).Msg("co2 read failed")
	} else {
		s.reading = r
		ev := s.log.Info().Uint16("co2", r.CO2).Uint16("status", r.Status)
		if s.tempValid {
			ev = ev.Str("temp", s.temp.String())
		}
		ev.Msg("reading")
	}
	if err := s.render(); err != nil {
		s.log.Error().Err(err).Msg("display update failed")
	}
}

func (s *System) blink() {
	s.h.LED().Toggle()
}

// sampleTemp alternates between starting a conversion and collecting it,
// so the 750 ms conversion never blocks the scheduler.
func (s *System) sampleTemp() {
	if !s.converting {
		if err := s.therm.StartConversion(); err != nil {
			s.tempFailed(err)
			return
		}
		s.converting = true
		return
	}
	s.converting = false
	t, err := s.therm.ReadTemperature()
	if err != nil {
		s.tempFailed(err)
		return
	}
	s.temp, s.tempValid, s.tempErr = t, true, nil
}

func (s *System) tempFailed(err error) {
	s.converting = false
	s.tempValid = false
	if s.tempErr == nil || s.tempErr.Error() != err.Error() {
		s.log.Error().Err(err).Msg("thermometer")
	}
	s.tempErr = err
}

// Run brings the appliance up and schedules forever. It is the firmware
// entry point.
func Run(h hal.HAL, cfg config.Config) {
	s, err := New(h, cfg, WithHalt(func() { select {} }))
	if err != nil {
		h.Logger().WriteLineString("co2mon: " + err.Error())
		select {}
	}
	s.sched.Start()
}
