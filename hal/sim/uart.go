package sim

import "sync"

// USART status register bits.
const (
	SR_PE   uint32 = 1 << 0
	SR_FE   uint32 = 1 << 1
	SR_NE   uint32 = 1 << 2
	SR_ORE  uint32 = 1 << 3
	SR_RXNE uint32 = 1 << 5
	SR_TC   uint32 = 1 << 6
	SR_TXE  uint32 = 1 << 7
)

// Peer is the device on the other end of a UART. Receive is called for every
// transmitted byte and returns the bytes the peer sends back, if any.
type Peer interface {
	Receive(b byte) []byte
}

// UART models a USART register block: a one-byte receive data register fed
// from a line buffer, and a transmitter that completes instantly.
type UART struct {
	cpu  *CPU
	line int

	mu     sync.Mutex
	baud   uint32
	rx     []byte
	dr     byte
	sr     uint32
	rxie   bool
	txie   bool
	peer   Peer
	sent   []byte
	errset uint32
}

// NewUART returns an idle UART on line, transmitter empty.
func NewUART(cpu *CPU, line int, peer Peer) *UART {
	return &UART{cpu: cpu, line: line, peer: peer, sr: SR_TXE | SR_TC}
}

func (u *UART) Line() int { return u.line }

func (u *UART) Configure(baud uint32) error {
	u.mu.Lock()
	u.baud = baud
	u.mu.Unlock()
	return nil
}

func (u *UART) Baud() uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.baud
}

// SR returns the status register.
func (u *UART) SR() uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sr
}

// ReadDR returns the received byte and clears RXNE together with the error
// flags latched with it. The next buffered byte, if any, moves into DR.
func (u *UART) ReadDR() byte {
	u.mu.Lock()
	b := u.dr
	u.sr &^= SR_RXNE | SR_PE | SR_FE | SR_NE | SR_ORE
	irq := u.loadLocked()
	u.mu.Unlock()
	if irq {
		u.cpu.Pend(u.line)
	}
	return b
}

// WriteDR transmits b to the peer. Any reply is queued on the receive side.
func (u *UART) WriteDR(b byte) {
	u.mu.Lock()
	u.sent = append(u.sent, b)
	peer := u.peer
	u.mu.Unlock()

	var reply []byte
	if peer != nil {
		reply = peer.Receive(b)
	}

	u.mu.Lock()
	u.rx = append(u.rx, reply...)
	irq := u.loadLocked()
	if u.txie {
		irq = true
	}
	u.mu.Unlock()
	if irq {
		u.cpu.Pend(u.line)
	}
}

func (u *UART) SetRXInterrupt(on bool) {
	u.mu.Lock()
	u.rxie = on
	irq := on && u.sr&SR_RXNE != 0
	u.mu.Unlock()
	if irq {
		u.cpu.Pend(u.line)
	}
}

// SetTXInterrupt enables the transmit-empty interrupt. The transmitter is
// always empty, so enabling it pends the line immediately.
func (u *UART) SetTXInterrupt(on bool) {
	u.mu.Lock()
	u.txie = on
	u.mu.Unlock()
	if on {
		u.cpu.Pend(u.line)
	}
}

func (u *UART) TXInterrupt() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.txie
}

// Inject delivers bytes from the line as if the peer had sent them.
func (u *UART) Inject(data []byte) {
	u.mu.Lock()
	u.rx = append(u.rx, data...)
	irq := u.loadLocked()
	u.mu.Unlock()
	if irq {
		u.cpu.Pend(u.line)
	}
}

// InjectError delivers b with the given error flags latched in SR.
func (u *UART) InjectError(b byte, flags uint32) {
	u.mu.Lock()
	u.errset = flags & (SR_PE | SR_FE | SR_NE | SR_ORE)
	u.rx = append(u.rx, b)
	irq := u.loadLocked()
	u.mu.Unlock()
	if irq {
		u.cpu.Pend(u.line)
	}
}

// Sent returns a copy of everything transmitted so far.
func (u *UART) Sent() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]byte(nil), u.sent...)
}

func (u *UART) loadLocked() bool {
	if u.sr&SR_RXNE != 0 || len(u.rx) == 0 {
		return false
	}
	u.dr = u.rx[0]
	u.rx = u.rx[1:]
	u.sr |= SR_RXNE | u.errset
	u.errset = 0
	return u.rxie
}
