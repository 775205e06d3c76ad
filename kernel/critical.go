package kernel

// Mask is the CPU interrupt-enable control.
//
// Disable masks interrupts and returns the state that was in effect before;
// Restore puts that state back. On TinyGo these map onto
// runtime/interrupt.Disable and interrupt.Restore.
type Mask interface {
	Disable() uintptr
	Restore(state uintptr)
}

// Guard is an open critical section.
type Guard struct {
	m     Mask
	state uintptr
}

// Enter masks interrupts until Exit is called on the returned guard.
//
//	g := kernel.Enter(m)
//	defer g.Exit()
//
// Guards nest: each Exit restores exactly the state its Enter saved.
func Enter(m Mask) Guard {
	return Guard{m: m, state: m.Disable()}
}

// Exit restores the interrupt state saved by Enter.
func (g Guard) Exit() {
	g.m.Restore(g.state)
}

// Critical runs fn with interrupts masked.
func Critical(m Mask, fn func()) {
	g := Enter(m)
	defer g.Exit()
	fn()
}
