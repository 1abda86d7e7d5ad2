// Package proc implements the kernel's process model: a bounded TCB table,
// a preemptive round-robin scheduler, and per-process POSIX-style signal
// delivery, per spec.md §3 ("Process (TCB)") and §4.3.
package proc

import "fmt"

// State is one of the lifecycle states a TCB can be in.
type State int

const (
	StateUnused State = iota
	StateCreated
	StateReady
	StateRunning
	StateBlocked
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateUnused:
		return "UNUSED"
	case StateCreated:
		return "CREATED"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateBlocked:
		return "BLOCKED"
	case StateZombie:
		return "ZOMBIE"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// MaxNameLen is the fixed size of a TCB's name tag (spec.md §3: "≤ 31 chars").
const MaxNameLen = 31

// DefaultQuantum is the number of timer ticks a task runs before preemption:
// 10 ticks at 100 Hz = 100 ms, per spec.md §4.3.
const DefaultQuantum = 10

// IdlePID is reserved for the idle task, which is never on the ready queue
// and is selected only when it is empty.
const IdlePID = 0

// TCB is the kernel's per-process record. Unlike the C original, there is
// no synthetic interrupt frame or kernel stack: a TCB's "stack" is a real Go
// goroutine parked on wake, and Entry is the function the goroutine runs
// once the scheduler first selects it. This is the idiomatic Go reading of
// spec.md §9's "a kernel context value... passed by reference" guidance —
// the goroutine IS the execution context, and the scheduler's ready queue
// governs which one is allowed to touch shared kernel state at a time.
type TCB struct {
	PID        uint32
	ParentPID  uint32
	Name       string
	State      State
	Priority   int
	TimeSlice  int
	TotalTicks uint64

	NeedResched bool

	Signals SignalState

	Entry func(self *TCB)

	wake chan struct{}
	done chan struct{}

	exitStatus int

	// next is the index-linked ready queue pointer (spec.md §9: model
	// intrusive lists as index-linked slabs, not pointer-linked structures).
	// It holds a PID, with 0 (IdlePID) reserved and therefore never a valid
	// "next" reference since the idle task is never enqueued; noNext marks
	// list-end instead of relying on a sentinel PID value.
	next   uint32
	noNext bool
}
