// Package fifo is a fixed-capacity circular byte queue shared between one
// interrupt-context party and one task-context party.
//
// Every byte moves under its own critical section, so interrupts stay
// masked for a single copy at a time and the other party can run between
// bytes of a long transfer.
package fifo

import "co2mon/kernel"

var (
	ErrRange = kernel.E("fifo.put", kernel.Range, "write larger than capacity")
	ErrFull  = kernel.E("fifo.put", kernel.Full, "not enough free space")
	ErrEmpty = kernel.E("fifo.get", kernel.Empty, "nothing to read")
)

// Queue is a power-of-two circular byte buffer.
//
// It is safe for exactly one producer and one consumer, one of which may
// run in interrupt context.
type Queue struct {
	mask kernel.Mask
	buf  []byte
	rd   uint32
	wr   uint32
	full bool

	lastErr int
}

// New allocates a queue of capacity bytes. capacity must be a non-zero
// power of two.
func New(capacity int, mask kernel.Mask) *Queue {
	kernel.Assert(capacity > 0 && capacity&(capacity-1) == 0, "fifo.new", "capacity %d is not a power of two", capacity)
	kernel.Assert(mask != nil, "fifo.new", "nil mask")
	return &Queue{mask: mask, buf: make([]byte, capacity)}
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return len(q.buf) }

// Len returns the number of stored bytes.
func (q *Queue) Len() int {
	g := kernel.Enter(q.mask)
	defer g.Exit()
	return q.lenLocked()
}

// Free returns the number of bytes that can still be stored.
func (q *Queue) Free() int {
	return q.Cap() - q.Len()
}

func (q *Queue) IsFull() bool {
	g := kernel.Enter(q.mask)
	defer g.Exit()
	return q.full
}

func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

func (q *Queue) lenLocked() int {
	n := uint32(len(q.buf))
	left := ((n - q.wr) + q.rd) & (n - 1)
	if left == 0 && !q.full {
		left = n
	}
	return int(n - left)
}

// Put stores all of data or nothing. The bytes become visible to the
// consumer together, once the last one is in place.
func (q *Queue) Put(data []byte) error {
	if len(data) > len(q.buf) {
		return ErrRange
	}
	if len(data) > q.Free() {
		return ErrFull
	}

	n := uint32(len(q.buf))
	wr := q.wr
	for i, b := range data {
		g := kernel.Enter(q.mask)
		q.buf[(wr+uint32(i))&(n-1)] = b
		g.Exit()
	}

	g := kernel.Enter(q.mask)
	q.wr = (wr + uint32(len(data))) & (n - 1)
	if len(data) > 0 && q.wr == q.rd {
		q.full = true
	}
	g.Exit()
	return nil
}

// PutByte stores a single byte.
func (q *Queue) PutByte(b byte) error {
	one := [1]byte{b}
	return q.Put(one[:])
}

// Get moves up to len(buf) bytes out of the queue, oldest first, and
// reports how many were copied.
func (q *Queue) Get(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, ErrEmpty
	}
	used := q.Len()
	if used == 0 {
		return 0, ErrEmpty
	}
	if used > len(buf) {
		used = len(buf)
	}

	n := uint32(len(q.buf))
	rd := q.rd
	for i := 0; i < used; i++ {
		g := kernel.Enter(q.mask)
		buf[i] = q.buf[(rd+uint32(i))&(n-1)]
		g.Exit()
	}

	g := kernel.Enter(q.mask)
	q.rd = (rd + uint32(used)) & (n - 1)
	q.full = false
	g.Exit()
	return used, nil
}

// Reset discards the contents.
func (q *Queue) Reset() {
	g := kernel.Enter(q.mask)
	defer g.Exit()
	q.rd, q.wr, q.full = 0, 0, false
	q.lastErr = 0
}

// SetLastError records the producer's most recent device error code.
func (q *Queue) SetLastError(code int) {
	g := kernel.Enter(q.mask)
	q.lastErr = code
	g.Exit()
}

// LastError returns the code recorded by SetLastError.
func (q *Queue) LastError() int {
	g := kernel.Enter(q.mask)
	defer g.Exit()
	return q.lastErr
}
