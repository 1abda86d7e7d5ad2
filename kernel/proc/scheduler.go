package proc

import (
	"fmt"
	"log/slog"
	"sync"

	kerrors "nanosec-go/errors"
	"nanosec-go/logging"
)

// MaxProcs bounds the TCB table, per spec.md §3's fixed-size process table
// ("no dynamic process table; a compile-time maximum").
const MaxProcs = 64

// ExitFunc is called when a task's entry function returns or calls Exit.
type ExitFunc func(pid uint32, status int)

// Scheduler owns the TCB table and the ready queue. Go already gives every
// task its own real stack (a goroutine); what the scheduler adds is the
// single-current-task discipline the original kernel gets from not being
// preemptible except at interrupt boundaries. mu is that discipline's lock —
// the "big kernel lock" spec.md §9 calls for once a reimplementation target
// has genuine parallelism, which a goroutine-per-task model does.
type Scheduler struct {
	mu sync.Mutex

	tasks   [MaxProcs]*TCB
	current *TCB
	idle    *TCB

	readyHead uint32
	readyTail uint32
	hasReady  bool

	nextPID uint32
	ticks   uint64

	onExit ExitFunc

	log *slog.Logger
}

// New creates a scheduler with its idle task (PID 0) created but not yet
// running; call Start to enter the scheduling loop on the calling goroutine.
func New() *Scheduler {
	s := &Scheduler{nextPID: 1, log: logging.WithSubsystem(logging.Default(), "proc")}
	idle := &TCB{
		PID:       IdlePID,
		Name:      "idle",
		State:     StateReady,
		TimeSlice: DefaultQuantum,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		noNext:    true,
	}
	idle.Entry = func(self *TCB) { <-self.done }
	s.tasks[IdlePID] = idle
	s.idle = idle
	return s
}

// SetExitFunc installs a callback invoked whenever a task exits.
func (s *Scheduler) SetExitFunc(fn ExitFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExit = fn
}

// Start launches the idle task's goroutine and blocks the calling goroutine
// until the idle task is scheduled, establishing it as "current". Callers
// (cmd/kernel's boot path) then create real tasks and drive OnTick.
func (s *Scheduler) Start() {
	idle := s.idle
	go idle.Entry(idle)

	s.mu.Lock()
	idle.State = StateRunning
	s.current = idle
	s.mu.Unlock()
}

// Create allocates a TCB, assigns the next PID, and spawns a goroutine that
// blocks until the scheduler first selects it before running entry. Returns
// ErrNoProcessSlots if the table is full.
func (s *Scheduler) Create(name string, parent uint32, entry func(self *TCB)) (*TCB, error) {
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}

	s.mu.Lock()
	var slot int = -1
	for i := 1; i < MaxProcs; i++ {
		if s.tasks[i] == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		s.mu.Unlock()
		return nil, kerrors.Wrap(kerrors.ErrNoProcessSlots, kerrors.KindResource, "proc_create")
	}

	pid := s.nextPID
	s.nextPID++

	tcb := &TCB{
		PID:       pid,
		ParentPID: parent,
		Name:      name,
		State:     StateCreated,
		TimeSlice: DefaultQuantum,
		Entry:     entry,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		noNext:    true,
	}
	s.tasks[slot] = tcb
	s.enqueueReady(tcb)
	s.mu.Unlock()

	go func() {
		<-tcb.wake
		entry(tcb)
		s.exit(tcb, 0)
	}()

	s.log.Info("task created", "pid", pid, "name", name, "parent", parent)
	return tcb, nil
}

// enqueueReady appends tcb to the ready queue tail. Must be called with mu
// held. tcb transitions to StateReady as part of enqueueing.
func (s *Scheduler) enqueueReady(tcb *TCB) {
	tcb.State = StateReady
	tcb.noNext = true
	if !s.hasReady {
		s.readyHead = tcb.PID
		s.readyTail = tcb.PID
		s.hasReady = true
		return
	}
	tail := s.tasks[s.indexOf(s.readyTail)]
	tail.next = tcb.PID
	tail.noNext = false
	s.readyTail = tcb.PID
}

// dequeueReady pops the ready queue head, or returns idle if empty. Must be
// called with mu held.
func (s *Scheduler) dequeueReady() *TCB {
	if !s.hasReady {
		return s.idle
	}
	head := s.tasks[s.indexOf(s.readyHead)]
	if head.noNext {
		s.hasReady = false
	} else {
		s.readyHead = head.next
	}
	return head
}

// indexOf maps a PID to its slot in tasks. PIDs and slots coincide until a
// slot is reused (Create scans for the first free slot, and a slot only
// becomes free when Reap clears a zombie's TCB pointer), so linear lookup
// by PID rather than by slot index is what next/readyHead actually carry.
func (s *Scheduler) indexOf(pid uint32) int {
	for i, t := range s.tasks {
		if t != nil && t.PID == pid {
			return i
		}
	}
	return int(IdlePID)
}

// scheduleLocked performs one scheduling decision. Must be called with mu
// held. It does not block; callers that switch away from themselves must
// wait on their own wake channel after calling it.
func (s *Scheduler) scheduleLocked() (switched bool, prev, next *TCB) {
	next = s.dequeueReady()
	prev = s.current
	if next == prev {
		return false, prev, next
	}
	if prev != nil && prev.State == StateRunning {
		s.enqueueReady(prev)
	}
	next.State = StateRunning
	next.NeedResched = false
	next.TimeSlice = DefaultQuantum
	s.current = next
	return true, prev, next
}

// Yield voluntarily gives up the CPU. If another task is ready, this call
// blocks (parking the calling goroutine) until the scheduler selects this
// task again.
func (s *Scheduler) Yield() {
	s.mu.Lock()
	cur := s.current
	if cur == s.idle {
		// The idle task never joins the ready queue; dequeueReady falls
		// back to it only once the queue is empty.
		cur.State = StateReady
	} else {
		s.enqueueReady(cur)
	}
	next := s.dequeueReady()
	if next == cur {
		// Only ready task was the caller itself: undo the tentative
		// requeue and keep running uninterrupted.
		cur.State = StateRunning
		s.mu.Unlock()
		return
	}
	next.State = StateRunning
	next.NeedResched = false
	next.TimeSlice = DefaultQuantum
	s.current = next
	s.mu.Unlock()

	next.wake <- struct{}{}
	<-cur.wake
}

// Checkpoint is the cooperative preemption point: every blocking operation
// (pipe read/write, net_poll, explicit busy-loop iterations) calls it. If
// the timer ISR set NeedResched on the current task, Checkpoint performs the
// actual switch here — the same need_resched-flag pattern real preemptive
// kernels use to defer a reschedule from interrupt context to the next safe
// point, since nothing in a hosted Go process can interrupt another
// goroutine's arbitrary code path. It also delivers at most one pending
// signal, per spec.md §3.
func (s *Scheduler) Checkpoint() {
	s.mu.Lock()
	cur := s.current
	needResched := cur.NeedResched
	s.mu.Unlock()

	if needResched {
		s.Yield()
	}

	s.deliverOneSignal(cur)
}

func (s *Scheduler) deliverOneSignal(tcb *TCB) {
	s.mu.Lock()
	sig := tcb.Signals.nextDeliverable()
	if sig < 0 {
		s.mu.Unlock()
		return
	}
	tcb.Signals.clear(sig)
	action := tcb.Signals.Actions[sig]
	s.mu.Unlock()

	switch {
	case sig == SigKILL:
		s.Exit(tcb.PID, 128+sig)
	case sig == SigSTOP:
		// Stop is modeled as a no-op: the hosted scheduler has no
		// separate STOPPED state in spec.md's task list, so SIGSTOP is
		// accepted and cleared without changing state.
	case action.Disposition == DispositionHandler && action.Handler != nil:
		action.Handler(tcb.PID, sig)
	case action.Disposition == DispositionIgnore:
		// no-op
	default:
		// DispositionDefault: terminate, except for the signals whose
		// POSIX default is to be ignored.
		if sig == SigCHLD || sig == SigCONT {
			return
		}
		s.Exit(tcb.PID, 128+sig)
	}
}

// Exit transitions pid to Zombie, records status, and runs the onExit
// callback; the parent task is not woken or signalled. If the exiting task
// is current, it must be called from that task's own goroutine: once the
// next task is scheduled in, that goroutine blocks for good and Exit never
// returns.
func (s *Scheduler) Exit(pid uint32, status int) {
	s.mu.Lock()
	idx := s.indexOf(pid)
	tcb := s.tasks[idx]
	if tcb == nil || tcb.State == StateZombie {
		s.mu.Unlock()
		return
	}
	self := tcb == s.current
	s.mu.Unlock()

	s.exit(tcb, status)

	if self {
		// The calling goroutine must stop running kernel code now; block
		// forever so it never returns into the entry function's caller.
		select {}
	}
}

func (s *Scheduler) exit(tcb *TCB, status int) {
	s.mu.Lock()
	if tcb.State == StateZombie {
		s.mu.Unlock()
		return
	}
	tcb.exitStatus = status
	tcb.State = StateZombie
	isCurrent := tcb == s.current

	var switched bool
	var next *TCB
	if isCurrent {
		switched, _, next = s.scheduleLocked()
	}
	onExit := s.onExit
	s.mu.Unlock()

	close(tcb.done)
	if onExit != nil {
		onExit(tcb.PID, status)
	}
	if switched {
		next.wake <- struct{}{}
	}
}

// Reap removes a zombie's TCB from the table, freeing its slot for reuse.
func (s *Scheduler) Reap(pid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(pid)
	tcb := s.tasks[idx]
	if tcb == nil {
		return kerrors.New(kerrors.KindNotFound, "proc_reap", fmt.Sprintf("pid %d", pid))
	}
	if tcb.State != StateZombie {
		return kerrors.New(kerrors.KindInvalidState, "proc_reap", fmt.Sprintf("pid %d is not a zombie", pid))
	}
	s.tasks[idx] = nil
	return nil
}

// OnTick is the timer ISR's half of preemption: it advances the logical
// clock and, for the current task, decrements its quantum, setting
// NeedResched on expiry. It never performs the actual context switch (see
// Checkpoint) so it is safe to call from a different goroutine than the one
// currently running kernel code.
func (s *Scheduler) OnTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
	cur := s.current
	if cur == nil || cur == s.idle {
		return
	}
	cur.TotalTicks++
	cur.TimeSlice--
	if cur.TimeSlice <= 0 {
		cur.NeedResched = true
	}
}

// Ticks returns the number of timer ticks observed so far.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Current returns the PID of the currently running task.
func (s *Scheduler) Current() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return IdlePID
	}
	return s.current.PID
}

// Lookup returns a snapshot-free pointer to pid's TCB, or nil. Callers must
// not mutate fields outside the scheduler's lock except via Signals.Raise,
// which is safe to call unsynchronized only because uint32 bitmap ORs are
// not used concurrently with scheduler-owned fields in this package; signal
// delivery re-reads Pending under mu in deliverOneSignal.
func (s *Scheduler) Lookup(pid uint32) *TCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(pid)
	if t := s.tasks[idx]; t != nil && t.PID == pid {
		return t
	}
	return nil
}

// Raise posts sig to pid. Safe to call from any goroutine.
func (s *Scheduler) Raise(pid uint32, sig int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(pid)
	tcb := s.tasks[idx]
	if tcb == nil {
		return kerrors.New(kerrors.KindNotFound, "signal_raise", fmt.Sprintf("pid %d", pid))
	}
	tcb.Signals.Raise(sig)
	return nil
}

// List returns a snapshot of all live (non-nil) TCBs, for `ps`.
func (s *Scheduler) List() []TCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TCB, 0, MaxProcs)
	for _, t := range s.tasks {
		if t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// ExitStatus returns the recorded exit status of a zombie task.
func (s *Scheduler) ExitStatus(pid uint32) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(pid)
	tcb := s.tasks[idx]
	if tcb == nil || tcb.State != StateZombie {
		return 0, false
	}
	return tcb.exitStatus, true
}
