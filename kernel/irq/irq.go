// Package irq multiplexes hardware interrupt lines onto chains of
// registered actions.
//
// The manager relocates the vector table through its Controller and routes
// every line into a single trampoline. The trampoline looks up the line's
// chain and offers the interrupt to each action in registration order.
package irq

import (
	"co2mon/kernel"

	"github.com/rs/zerolog"
)

// Result is an action's verdict on an interrupt.
type Result uint8

const (
	None Result = iota
	Handled
)

func (r Result) String() string {
	switch r {
	case None:
		return "none"
	case Handled:
		return "handled"
	default:
		return "unknown"
	}
}

// Flags modify an action's registration.
type Flags uint32

const (
	// Shared marks an action willing to share its line with others. A line
	// holds more than one action only if every action on it is Shared.
	Shared Flags = 1 << iota
)

// Handler services one interrupt on behalf of devID.
type Handler func(line int, devID any) Result

// Action is one registered handler on a line. The pointer returned by
// Request is the handle passed to Free.
type Action struct {
	Handler Handler
	Flags   Flags
	Name    string
	DevID   any

	line  int
	freed bool
}

// Line returns the interrupt line the action is registered on.
func (a *Action) Line() int { return a.line }

// Controller is the platform's vector table and line-enable control.
type Controller interface {
	Lines() int
	Relocate()
	SetVector(line int, entry func(line int))
	ResetVectors()
	EnableLine(line int)
	DisableLine(line int)
}

var (
	ErrNoHandler = kernel.E("irq.request", kernel.WrongArg, "nil handler")
	ErrLineRange = kernel.E("irq.request", kernel.Range, "line out of range")
	ErrNoName    = kernel.E("irq.request", kernel.NotEnoughArgs, "empty name")
	ErrBusy      = kernel.E("irq.request", kernel.Busy, "line held by a non-shared action")
	ErrNotFound  = kernel.E("irq.free", kernel.Unavailable, "action not registered")
)

type Config struct {
	Controller Controller
	Mask       kernel.Mask
	Logger     zerolog.Logger
}

// Manager owns the per-line action chains.
type Manager struct {
	ctl   Controller
	mask  kernel.Mask
	log   zerolog.Logger
	lines [][]*Action
}

// New creates a manager with one empty chain per controller line.
func New(cfg Config) *Manager {
	kernel.Assert(cfg.Controller != nil, "irq.new", "nil controller")
	kernel.Assert(cfg.Mask != nil, "irq.new", "nil mask")
	return &Manager{
		ctl:   cfg.Controller,
		mask:  cfg.Mask,
		log:   cfg.Logger.With().Str("component", "irq").Logger(),
		lines: make([][]*Action, cfg.Controller.Lines()),
	}
}

// Init relocates the vector table and points every line at the manager.
func (m *Manager) Init() {
	g := kernel.Enter(m.mask)
	defer g.Exit()

	m.ctl.Relocate()
	for line := range m.lines {
		m.ctl.SetVector(line, m.dispatch)
	}
}

// Exit restores the original vector table and forgets every action.
func (m *Manager) Exit() {
	g := kernel.Enter(m.mask)
	defer g.Exit()

	for line, chain := range m.lines {
		if len(chain) > 0 {
			m.ctl.DisableLine(line)
		}
		m.lines[line] = nil
	}
	m.ctl.ResetVectors()
}

// Request appends a new action to line's chain and enables the line.
func (m *Manager) Request(line int, h Handler, flags Flags, name string, devID any) (*Action, error) {
	if h == nil {
		return nil, ErrNoHandler
	}
	if line < 0 || line >= len(m.lines) {
		return nil, ErrLineRange
	}
	if name == "" {
		return nil, ErrNoName
	}

	a := &Action{Handler: h, Flags: flags, Name: name, DevID: devID, line: line}

	g := kernel.Enter(m.mask)
	chain := m.lines[line]
	if len(chain) > 0 && (flags&Shared == 0 || chain[0].Flags&Shared == 0) {
		g.Exit()
		return nil, ErrBusy
	}
	m.lines[line] = append(chain, a)
	if len(chain) == 0 {
		m.ctl.EnableLine(line)
	}
	g.Exit()

	m.log.Info().Int("line", line).Str("name", name).Msg("irq registered")
	return a, nil
}

// Free unlinks a from its chain, leaving the other actions in place. The
// chain is rebuilt rather than shifted, so a handler may free itself or a
// neighbour while the line is being dispatched.
func (m *Manager) Free(a *Action) error {
	if a == nil || a.line < 0 || a.line >= len(m.lines) {
		return ErrNotFound
	}

	g := kernel.Enter(m.mask)
	defer g.Exit()

	chain := m.lines[a.line]
	for i, cur := range chain {
		if cur != a {
			continue
		}
		a.freed = true
		m.lines[a.line] = append(chain[:i:i], chain[i+1:]...)
		if len(m.lines[a.line]) == 0 {
			m.ctl.DisableLine(a.line)
		}
		return nil
	}
	return ErrNotFound
}

// Lookup returns the names of the actions on line, in dispatch order.
func (m *Manager) Lookup(line int) []string {
	if line < 0 || line >= len(m.lines) {
		return nil
	}
	g := kernel.Enter(m.mask)
	defer g.Exit()

	names := make([]string, 0, len(m.lines[line]))
	for _, a := range m.lines[line] {
		names = append(names, a.Name)
	}
	return names
}

func (m *Manager) dispatch(line int) {
	g := kernel.Enter(m.mask)
	defer g.Exit()

	if line < 0 || line >= len(m.lines) || len(m.lines[line]) == 0 {
		m.log.Warn().Int("line", line).Msg("unexpected interrupt")
		return
	}

	handled := false
	for _, a := range m.lines[line] {
		if a.freed {
			continue
		}
		if a.Handler(line, a.DevID) == Handled {
			handled = true
		}
	}
	if !handled {
		m.log.Warn().Int("line", line).Msg("nobody cared")
	}
}
