package kernel

// Clock is a free-running millisecond counter that wraps at 2^32.
type Clock interface {
	Millis() uint32
}

// Elapsed returns the milliseconds from from to to, accounting for one wrap.
func Elapsed(from, to uint32) uint32 {
	return to - from
}

var errWaitTimeout = E("wait", Timeout, "")

// WaitEventTimeout busy-waits until cond reports true or timeoutMs elapses.
//
// cond is always evaluated at least once. The returned error matches
// kernel.Timeout.
func WaitEventTimeout(c Clock, cond func() bool, timeoutMs uint32) error {
	start := c.Millis()
	for {
		if cond() {
			return nil
		}
		if Elapsed(start, c.Millis()) >= timeoutMs {
			if cond() {
				return nil
			}
			return errWaitTimeout
		}
	}
}

// Delay busy-waits for ms milliseconds.
func Delay(c Clock, ms uint32) {
	start := c.Millis()
	for Elapsed(start, c.Millis()) < ms {
	}
}
