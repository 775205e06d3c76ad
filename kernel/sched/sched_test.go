package sched

import (
	"errors"
	"strings"
	"testing"

	"co2mon/hal/sim"
	"co2mon/kernel"
)

func newTestScheduler(t *testing.T, capacity int) (*Scheduler, *sim.CPU) {
	t.Helper()
	cpu := sim.NewCPU(4)
	return New(Config{Capacity: capacity, Mask: cpu}), cpu
}

func TestAddTaskHandlesStartAtOne(t *testing.T) {
	s, _ := newTestScheduler(t, 4)
	h, err := s.AddTask("a", func() {})
	if err != nil || h != 1 {
		t.Fatalf("AddTask = (%d, %v), want (1, nil)", h, err)
	}
	h, err = s.AddTask("b", func() {})
	if err != nil || h != 2 {
		t.Fatalf("AddTask = (%d, %v), want (2, nil)", h, err)
	}
	if s.Len() != 2 || s.Name(2) != "b" {
		t.Fatalf("Len=%d Name(2)=%q, want 2 b", s.Len(), s.Name(2))
	}
	if s.IsReady(1) || s.IsReady(2) {
		t.Fatal("new tasks must start blocked")
	}
}

func TestAddTaskErrors(t *testing.T) {
	s, _ := newTestScheduler(t, 2)
	if _, err := s.AddTask("a", func() {}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if _, err := s.AddTask("a", func() {}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate name = %v, want ErrDuplicate", err)
	}
	if _, err := s.AddTask("", func() {}); !errors.Is(err, ErrNoName) {
		t.Fatalf("empty name = %v, want ErrNoName", err)
	}
	if _, err := s.AddTask("n", nil); !errors.Is(err, ErrNoFunc) {
		t.Fatalf("nil func = %v, want ErrNoFunc", err)
	}
	if _, err := s.AddTask("b", func() {}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if _, err := s.AddTask("c", func() {}); !errors.Is(err, ErrTableFull) || !errors.Is(err, kernel.Full) {
		t.Fatalf("full table = %v, want ErrTableFull", err)
	}
}

func TestRoundRobinAfterCurrent(t *testing.T) {
	s, _ := newTestScheduler(t, 4)
	var trace []string
	add := func(name string) Handle {
		h, err := s.AddTask(name, func() { trace = append(trace, name) })
		if err != nil {
			t.Fatalf("AddTask(%s): %v", name, err)
		}
		return h
	}
	a, b, c := add("A"), add("B"), add("C")

	s.SetReady(a)
	if !s.Step() || s.Current() != a {
		t.Fatalf("expected A to run first, current=%d", s.Current())
	}

	trace = nil
	for round := 0; round < 3; round++ {
		s.SetReady(a)
		s.SetReady(b)
		s.SetReady(c)
		s.Step()
	}
	// Each pass runs only the first ready task after the current one.
	if got := strings.Join(trace, ""); got != "BCA" {
		t.Fatalf("pass order = %q, want BCA", got)
	}
}

func TestReadyClearedBeforeRun(t *testing.T) {
	s, _ := newTestScheduler(t, 2)
	var h Handle
	runs := 0
	h, _ = s.AddTask("self", func() {
		runs++
		if s.IsReady(h) {
			t.Fatal("ready bit still set while the task runs")
		}
		if runs == 1 {
			s.SetReady(h)
		}
	})

	s.SetReady(h)
	s.Step()
	s.Step()
	if s.Step() {
		t.Fatal("third pass ran a task nobody readied")
	}
	if runs != 2 {
		t.Fatalf("runs = %d, want 2", runs)
	}
}

func TestSetReadyIsIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t, 2)
	runs := 0
	h, _ := s.AddTask("t", func() { runs++ })
	s.SetReady(h)
	s.SetReady(h)
	s.SetReady(h)
	for s.Step() {
	}
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
}

func TestSetReadyFromInterrupt(t *testing.T) {
	s, cpu := newTestScheduler(t, 2)
	runs := 0
	h, _ := s.AddTask("rx", func() { runs++ })
	cpu.SetVector(2, func(int) { s.SetReady(h) })
	cpu.EnableLine(2)

	cpu.Pend(2)
	cpu.Service()
	if !s.Step() || runs != 1 {
		t.Fatalf("Step after interrupt: runs = %d, want 1", runs)
	}
}

func TestDelTask(t *testing.T) {
	s, _ := newTestScheduler(t, 2)
	runs := 0
	h, _ := s.AddTask("t", func() { runs++ })
	s.SetReady(h)
	if err := s.DelTask(h); err != nil {
		t.Fatalf("DelTask: %v", err)
	}
	if s.Step() || runs != 0 {
		t.Fatal("deleted task ran")
	}
	if err := s.DelTask(h); !errors.Is(err, ErrNoTask) {
		t.Fatalf("second DelTask = %v, want ErrNoTask", err)
	}
	if h2, err := s.AddTask("t", func() {}); err != nil || h2 != h {
		t.Fatalf("re-add = (%d, %v), want (%d, nil)", h2, err, h)
	}
}

func TestOutOfRangeHandlePanics(t *testing.T) {
	s, _ := newTestScheduler(t, 2)
	for _, h := range []Handle{0, 3, -1} {
		func() {
			defer func() {
				if _, ok := recover().(kernel.Violation); !ok {
					t.Fatalf("SetReady(%d) did not raise a violation", h)
				}
			}()
			s.SetReady(h)
		}()
	}
}
