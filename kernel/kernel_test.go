package kernel

import (
	"errors"
	"fmt"
	"testing"

	"co2mon/hal/sim"
)

func TestGuardNests(t *testing.T) {
	cpu := sim.NewCPU(2)
	serviced := 0
	cpu.SetVector(1, func(int) { serviced++ })
	cpu.EnableLine(1)

	outer := Enter(cpu)
	inner := Enter(cpu)
	cpu.Pend(1)
	inner.Exit()
	if !cpu.Masked() || serviced != 0 {
		t.Fatalf("inner Exit unmasked interrupts: masked=%v serviced=%d", cpu.Masked(), serviced)
	}
	outer.Exit()
	if cpu.Masked() || serviced != 1 {
		t.Fatalf("outer Exit: masked=%v serviced=%d, want false 1", cpu.Masked(), serviced)
	}
}

func TestCriticalRestoresOnPanic(t *testing.T) {
	cpu := sim.NewCPU(1)
	func() {
		defer func() { _ = recover() }()
		Critical(cpu, func() { panic("boom") })
	}()
	if cpu.Masked() {
		t.Fatal("interrupts left masked after a panic inside Critical")
	}
}

func TestWaitEventTimeout(t *testing.T) {
	clk := &sim.StepClock{Step: 1}
	calls := 0
	err := WaitEventTimeout(clk, func() bool {
		calls++
		return calls == 5
	}, 100)
	if err != nil || calls != 5 {
		t.Fatalf("WaitEventTimeout = %v after %d calls, want nil after 5", err, calls)
	}

	err = WaitEventTimeout(clk, func() bool { return false }, 10)
	if !errors.Is(err, Timeout) || CodeOf(err) != Timeout {
		t.Fatalf("WaitEventTimeout = %v, want Timeout", err)
	}
}

func TestWaitEventTimeoutChecksOnce(t *testing.T) {
	clk := &sim.ManualClock{}
	calls := 0
	err := WaitEventTimeout(clk, func() bool { calls++; return true }, 0)
	if err != nil || calls != 1 {
		t.Fatalf("zero timeout: err=%v calls=%d, want nil 1", err, calls)
	}
}

func TestElapsedWraps(t *testing.T) {
	if got := Elapsed(0xFFFFFFF0, 0x10); got != 0x20 {
		t.Fatalf("Elapsed across wrap = %#x, want 0x20", got)
	}
}

func TestDelay(t *testing.T) {
	clk := &sim.StepClock{Step: 2}
	start := clk.Millis()
	Delay(clk, 20)
	if got := Elapsed(start, clk.Millis()); got < 20 {
		t.Fatalf("Delay returned after %d ms, want >= 20", got)
	}
}

func TestErrorMatchesCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", E("fifo.put", Full, "no room"))
	if !errors.Is(err, Full) {
		t.Fatal("errors.Is(err, Full) = false")
	}
	if errors.Is(err, Empty) {
		t.Fatal("errors.Is(err, Empty) = true")
	}
	if CodeOf(err) != Full {
		t.Fatalf("CodeOf = %d, want %d", CodeOf(err), Full)
	}
	if CodeOf(nil) != OK || CodeOf(errors.New("x")) != Unknown {
		t.Fatal("CodeOf fallback mismatch")
	}
	if got := E("op", Busy, "").Error(); got != "op: busy" {
		t.Fatalf("Error() = %q, want %q", got, "op: busy")
	}
}

func TestAssertRaisesViolation(t *testing.T) {
	var seen []PanicInfo
	SetPanicHandler(func(info PanicInfo) { seen = append(seen, info) })
	defer SetPanicHandler(nil)

	defer func() {
		v, ok := recover().(Violation)
		if !ok || v.Op != "test.op" {
			t.Fatalf("recovered %v, want Violation from test.op", v)
		}
		if len(seen) != 1 || seen[0].Op != "test.op" {
			t.Fatalf("panic handler saw %v, want one report from test.op", seen)
		}
		if !InPanicMode() {
			t.Fatal("InPanicMode = false after a violation")
		}
	}()
	Assert(true, "test.op", "never")
	Assert(false, "test.op", "handle %d", 7)
}
