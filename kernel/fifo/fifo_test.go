package fifo

import (
	"errors"
	"runtime"
	"sync"
	"testing"

	"co2mon/hal/sim"
	"co2mon/kernel"
)

func TestPutGetOrder(t *testing.T) {
	cpu := sim.NewCPU(1)
	q := New(8, cpu)

	if err := q.Put([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := q.Put([]byte{4, 5}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	buf := make([]byte, 8)
	n, err := q.Get(buf)
	if err != nil || n != 5 {
		t.Fatalf("Get = (%d, %v), want (5, nil)", n, err)
	}
	for i := 0; i < 5; i++ {
		if buf[i] != byte(i+1) {
			t.Fatalf("buf[%d] = %d, want %d", i, buf[i], i+1)
		}
	}
	if !q.IsEmpty() {
		t.Fatalf("Len = %d after draining, want 0", q.Len())
	}
}

func TestFullAndEmptyAreDistinguished(t *testing.T) {
	cpu := sim.NewCPU(1)
	q := New(4, cpu)

	if err := q.Put([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Put to capacity: %v", err)
	}
	if !q.IsFull() || q.Len() != 4 || q.Free() != 0 {
		t.Fatalf("full=%v len=%d free=%d, want true 4 0", q.IsFull(), q.Len(), q.Free())
	}
	if err := q.Put([]byte{5}); !errors.Is(err, ErrFull) || !errors.Is(err, kernel.Full) {
		t.Fatalf("Put into full queue = %v, want ErrFull", err)
	}

	buf := make([]byte, 1)
	if n, err := q.Get(buf); err != nil || n != 1 || buf[0] != 1 {
		t.Fatalf("Get = (%d, %v, %d), want (1, nil, 1)", n, err, buf[0])
	}
	if q.IsFull() || q.Len() != 3 {
		t.Fatalf("full=%v len=%d after one read, want false 3", q.IsFull(), q.Len())
	}

	rest := make([]byte, 8)
	if n, _ := q.Get(rest); n != 3 {
		t.Fatalf("Get rest = %d, want 3", n)
	}
	if q.IsFull() || q.Len() != 0 || q.Free() != 4 {
		t.Fatalf("full=%v len=%d free=%d, want false 0 4", q.IsFull(), q.Len(), q.Free())
	}
}

func TestPutIsAllOrNothing(t *testing.T) {
	cpu := sim.NewCPU(1)
	q := New(8, cpu)

	if err := q.Put(make([]byte, 9)); !errors.Is(err, ErrRange) || kernel.CodeOf(err) != kernel.Range {
		t.Fatalf("oversized Put = %v, want ErrRange", err)
	}
	if err := q.Put([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := q.Put([]byte{7, 8, 9}); !errors.Is(err, ErrFull) {
		t.Fatalf("Put past free space = %v, want ErrFull", err)
	}
	if q.Len() != 6 {
		t.Fatalf("Len = %d after rejected Put, want 6", q.Len())
	}
}

func TestGetEmptyAndZeroLength(t *testing.T) {
	cpu := sim.NewCPU(1)
	q := New(2, cpu)

	if _, err := q.Get(make([]byte, 1)); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Get on empty = %v, want ErrEmpty", err)
	}
	_ = q.PutByte(9)
	if _, err := q.Get(nil); !errors.Is(err, kernel.Empty) {
		t.Fatalf("zero-length Get = %v, want Empty", err)
	}
	if q.Len() != 1 {
		t.Fatalf("zero-length Get consumed data, Len = %d", q.Len())
	}
}

func TestWrapAround(t *testing.T) {
	cpu := sim.NewCPU(1)
	q := New(4, cpu)
	buf := make([]byte, 4)

	var next, want byte
	for round := 0; round < 50; round++ {
		chunk := []byte{next, next + 1, next + 2}
		next += 3
		if err := q.Put(chunk); err != nil {
			t.Fatalf("round %d: Put: %v", round, err)
		}
		n, err := q.Get(buf)
		if err != nil || n != 3 {
			t.Fatalf("round %d: Get = (%d, %v)", round, n, err)
		}
		for i := 0; i < n; i++ {
			if buf[i] != want {
				t.Fatalf("round %d: got %d, want %d", round, buf[i], want)
			}
			want++
		}
	}
}

func TestLastError(t *testing.T) {
	cpu := sim.NewCPU(1)
	q := New(4, cpu)
	q.SetLastError(3)
	if q.LastError() != 3 {
		t.Fatalf("LastError = %d, want 3", q.LastError())
	}
	q.Reset()
	if q.LastError() != 0 {
		t.Fatalf("LastError after Reset = %d, want 0", q.LastError())
	}
}

func TestBadCapacityPanics(t *testing.T) {
	defer func() {
		if _, ok := recover().(kernel.Violation); !ok {
			t.Fatal("expected kernel.Violation panic")
		}
	}()
	New(12, sim.NewCPU(1))
}

// A producer in interrupt context pushes 200 single bytes while the task
// side drains in bursts of 16. The line is pended from another goroutine in
// rounds the consumer asks for, so interrupts land between the per-byte
// critical sections of Get. Nothing is lost, duplicated or reordered.
func TestInterruptProducerTaskConsumer(t *testing.T) {
	const (
		line  = 3
		total = 200
		burst = 16
		round = 24
	)
	cpu := sim.NewCPU(4)
	q := New(128, cpu)

	var produced int
	cpu.SetVector(line, func(int) {
		if produced < total && q.PutByte(byte(produced)) == nil {
			produced++
		}
	})
	cpu.EnableLine(line)

	kick := make(chan struct{})
	pended := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range kick {
			for i := 0; i < round; i++ {
				cpu.Pend(line)
				runtime.Gosched()
			}
			pended <- struct{}{}
		}
	}()

	got := make([]byte, 0, total)
	buf := make([]byte, burst)
	for len(got) < total {
		n, err := q.Get(buf)
		if err != nil {
			kick <- struct{}{}
			<-pended
			cpu.Service()
			continue
		}
		got = append(got, buf[:n]...)
	}
	close(kick)
	wg.Wait()

	for i, b := range got {
		if b != byte(i) {
			t.Fatalf("byte %d = %d, want %d", i, b, byte(i))
		}
	}
}
