// Package sched is a cooperative run-to-completion scheduler.
//
// Tasks live in a fixed table and are marked ready through a bitmask,
// usually from interrupt context. Each pass picks the first ready task
// after the one that ran last, clears its bit and runs it to completion.
package sched

import (
	"co2mon/kernel"

	"github.com/rs/zerolog"
)

// MaxTasks is the largest table a scheduler can hold.
const MaxTasks = 64

// Handle identifies a task slot. Valid handles start at 1.
type Handle int

// Func is a task body. It must return; there is no preemption.
type Func func()

var (
	ErrTableFull = kernel.E("sched.add", kernel.Full, "task table full")
	ErrDuplicate = kernel.E("sched.add", kernel.WrongArg, "task name already in use")
	ErrNoName    = kernel.E("sched.add", kernel.NotEnoughArgs, "empty task name")
	ErrNoFunc    = kernel.E("sched.add", kernel.WrongArg, "nil task function")
	ErrNoTask    = kernel.E("sched.del", kernel.Unavailable, "no task in slot")
)

type Config struct {
	Capacity int
	Mask     kernel.Mask
	Logger   zerolog.Logger
	// Idle runs whenever a pass finds nothing ready. Nil busy-spins.
	Idle func()
}

type task struct {
	fn   Func
	name string
}

// Scheduler owns the task table and the ready mask.
type Scheduler struct {
	mask  kernel.Mask
	log   zerolog.Logger
	idle  func()
	tasks []task
	ready uint64
	// current is the slot index that ran last.
	current int
	ran     bool
}

// New creates an empty scheduler with room for cfg.Capacity tasks.
func New(cfg Config) *Scheduler {
	kernel.Assert(cfg.Capacity > 0 && cfg.Capacity <= MaxTasks, "sched.new", "capacity %d out of range", cfg.Capacity)
	kernel.Assert(cfg.Mask != nil, "sched.new", "nil mask")
	return &Scheduler{
		mask:  cfg.Mask,
		log:   cfg.Logger.With().Str("component", "sched").Logger(),
		idle:  cfg.Idle,
		tasks: make([]task, cfg.Capacity),
	}
}

// Cap returns the table size.
func (s *Scheduler) Cap() int { return len(s.tasks) }

// Len returns the number of occupied slots.
func (s *Scheduler) Len() int {
	n := 0
	for _, t := range s.tasks {
		if t.fn != nil {
			n++
		}
	}
	return n
}

// AddTask places fn under name in the first free slot and returns its
// handle.
func (s *Scheduler) AddTask(name string, fn Func) (Handle, error) {
	slot := -1
	for i, t := range s.tasks {
		if t.fn == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return 0, ErrTableFull
	}
	for _, t := range s.tasks {
		if t.fn != nil && t.name == name {
			return 0, ErrDuplicate
		}
	}
	if name == "" {
		return 0, ErrNoName
	}
	if fn == nil {
		return 0, ErrNoFunc
	}

	g := kernel.Enter(s.mask)
	s.tasks[slot] = task{fn: fn, name: name}
	s.ready &^= 1 << uint(slot)
	g.Exit()

	h := Handle(slot + 1)
	s.log.Info().Int("handle", int(h)).Str("name", name).Msg("task added")
	return h, nil
}

// DelTask empties the slot behind h and drops any pending readiness.
func (s *Scheduler) DelTask(h Handle) error {
	slot := s.slot("sched.del", h)

	g := kernel.Enter(s.mask)
	defer g.Exit()
	if s.tasks[slot].fn == nil {
		return ErrNoTask
	}
	s.tasks[slot] = task{}
	s.ready &^= 1 << uint(slot)
	return nil
}

// SetReady marks h runnable. It is idempotent and safe from interrupt
// context.
func (s *Scheduler) SetReady(h Handle) {
	slot := s.slot("sched.ready", h)

	g := kernel.Enter(s.mask)
	s.ready |= 1 << uint(slot)
	g.Exit()
}

// IsReady reports whether h is marked runnable.
func (s *Scheduler) IsReady(h Handle) bool {
	slot := s.slot("sched.ready", h)

	g := kernel.Enter(s.mask)
	defer g.Exit()
	return s.ready&(1<<uint(slot)) != 0
}

// Name returns the name the task at h was added under.
func (s *Scheduler) Name(h Handle) string {
	return s.tasks[s.slot("sched.name", h)].name
}

// Current returns the handle of the task that ran last, or 0.
func (s *Scheduler) Current() Handle {
	if !s.ran || s.tasks[s.current].fn == nil {
		return 0
	}
	return Handle(s.current + 1)
}

// Step runs at most one ready task and reports whether one ran.
func (s *Scheduler) Step() bool {
	g := kernel.Enter(s.mask)
	ready := s.ready
	g.Exit()
	if ready == 0 {
		return false
	}

	n := len(s.tasks)
	slot := -1
	for i := 1; i <= n; i++ {
		cand := (s.current + i) % n
		if ready&(1<<uint(cand)) != 0 {
			slot = cand
			break
		}
	}
	if slot < 0 {
		return false
	}

	g = kernel.Enter(s.mask)
	s.ready &^= 1 << uint(slot)
	fn := s.tasks[slot].fn
	g.Exit()

	s.current = slot
	s.ran = true
	if fn != nil {
		fn()
	}
	return true
}

// Start runs the scheduling loop forever.
func (s *Scheduler) Start() {
	for {
		if !s.Step() && s.idle != nil {
			s.idle()
		}
	}
}

func (s *Scheduler) slot(op string, h Handle) int {
	kernel.Assert(h >= 1 && int(h) <= len(s.tasks), op, "handle %d out of range", h)
	return int(h) - 1
}
