//go:build !tinygo

package hal

import (
	"testing"
	"time"

	"co2mon/hal/sim"
)

type captureLogger struct {
	lines []string
}

func (l *captureLogger) WriteLineString(s string) { l.lines = append(l.lines, s) }
func (l *captureLogger) WriteLineBytes(b []byte)  { l.lines = append(l.lines, string(b)) }

func TestLogWriterStripsLineEndings(t *testing.T) {
	l := &captureLogger{}
	w := LogWriter(l)

	n, err := w.Write([]byte("{\"level\":\"info\"}\r\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 18 {
		t.Fatalf("Write returned %d, want 18", n)
	}
	if len(l.lines) != 1 || l.lines[0] != "{\"level\":\"info\"}" {
		t.Fatalf("lines = %q", l.lines)
	}
}

func TestHostTimeFeedsWholeMilliseconds(t *testing.T) {
	cpu := sim.NewCPU(NumIRQ)
	timer := sim.NewTimer(cpu, IRQTimer)
	timer.Configure(35, 4999, 36_000_000)
	timer.Start()

	fired := 0
	cpu.SetVector(IRQTimer, func(int) {
		fired++
		timer.ClearUpdateFlag()
	})
	cpu.EnableLine(IRQTimer)

	now := time.Unix(0, 0)
	ht := newHostTimeWithClock(timer, func() time.Time { return now })

	ht.step()
	if fired != 0 {
		t.Fatalf("first step fired %d times", fired)
	}

	now = now.Add(12*time.Millisecond + 600*time.Microsecond)
	ht.step()
	if fired != 2 {
		t.Fatalf("after 12.6ms fired %d, want 2", fired)
	}

	// 0.6 ms carried over plus 2.4 ms reaches the next 5 ms boundary.
	now = now.Add(2400 * time.Microsecond)
	ht.step()
	if fired != 3 {
		t.Fatalf("after 15ms fired %d, want 3", fired)
	}
}

func TestHostLED(t *testing.T) {
	l := &hostLED{}
	l.Toggle()
	if !l.On() {
		t.Fatal("expected on after toggle")
	}
	l.Low()
	if l.On() {
		t.Fatal("expected off after Low")
	}
	l.High()
	l.Toggle()
	if l.On() {
		t.Fatal("expected off after High+Toggle")
	}
}

func TestNewHostSeedsSensor(t *testing.T) {
	h := newHost(HostOptions{CO2: 1200})
	if got := h.s8.CO2(); got != 1200 {
		t.Fatalf("co2 = %d, want 1200", got)
	}
	if h.SensorPort().Line() != IRQSensor {
		t.Fatalf("sensor line = %d, want %d", h.SensorPort().Line(), IRQSensor)
	}
	if hw := h.TimerHW(); hw.TickMs() != 5 {
		t.Fatalf("tick = %d ms, want 5", hw.TickMs())
	}
}
