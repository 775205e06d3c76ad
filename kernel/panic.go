package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Violation is the panic value raised when a caller breaks a contract,
// such as passing an out-of-range handle.
type Violation struct {
	Op  string
	Msg string
}

func (v Violation) Error() string { return v.Op + ": " + v.Msg }

// PanicInfo describes a contract violation reported to the panic handler.
type PanicInfo struct {
	Op    string
	Value any
}

var (
	panicActive  atomic.Bool
	panicOnce    sync.Once
	panicHandler atomic.Value // func(PanicInfo)
)

// InPanicMode reports whether a violation has been raised.
func InPanicMode() bool {
	return panicActive.Load()
}

// SetPanicHandler installs a process-wide violation hook.
//
// The handler runs at most once, before the first violation unwinds. It must not panic.
func SetPanicHandler(fn func(PanicInfo)) {
	panicHandler.Store(fn)
}

// Assert raises a Violation when cond is false.
func Assert(cond bool, op, format string, args ...any) {
	if cond {
		return
	}
	v := Violation{Op: op, Msg: fmt.Sprintf(format, args...)}
	panicOnce.Do(func() {
		panicActive.Store(true)
		if h, ok := panicHandler.Load().(func(PanicInfo)); ok && h != nil {
			h(PanicInfo{Op: op, Value: v})
		}
	})
	panic(v)
}
