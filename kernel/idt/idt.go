// Package idt implements the kernel's interrupt descriptor table and
// dispatch: PIC remapping, the per-vector handler registry, and the
// exception-vs-IRQ-vs-syscall routing rules described in spec.md §4.1.
package idt

import (
	"fmt"
	"log/slog"
	"sync"

	kerrors "nanosec-go/errors"
	"nanosec-go/kernel/ioport"
	"nanosec-go/logging"
)

// HandlerFunc is a per-vector interrupt handler. It runs after EOI for IRQs
// (spec.md §4.1: "invoke the registered handler... after EOI so handlers
// may block or yield") and in place of the fatal path for exceptions.
type HandlerFunc func(tf *TrapFrame)

// PanicFunc is invoked for an unhandled exception. Real hardware would
// print the diagnostic, cli, and hlt; the simulation's default PanicFunc
// logs at Error and returns, since there's a Go process to keep alive for
// the caller (tests, the CLI) rather than real silicon to halt.
type PanicFunc func(tf *TrapFrame)

// IDT is the 256-vector handler table plus the PIC it rides on.
type IDT struct {
	mu       sync.RWMutex
	handlers [NumVectors]HandlerFunc
	pic      *PIC
	space    *ioport.Space
	onPanic  PanicFunc
	log      *slog.Logger

	irqCount [NumVectors]uint64
}

// New creates an IDT over the given port space. Call Init to perform the
// PIC remap; the IDT is unusable for IRQ dispatch until Init runs.
func New(space *ioport.Space) *IDT {
	return &IDT{
		pic:     NewPIC(space),
		space:   space,
		onPanic: defaultPanic,
		log:     logging.WithSubsystem(logging.Default(), "idt"),
	}
}

func defaultPanic(tf *TrapFrame) {
	logging.Error("unhandled exception",
		"name", ExceptionName(tf.Vector),
		"vector", tf.Vector,
		"error_code", tf.ErrorCode,
		"eip", fmt.Sprintf("%#x", tf.EIP),
		"cs", fmt.Sprintf("%#x", tf.CS),
		"eflags", fmt.Sprintf("%#x", tf.EFlags),
	)
}

// SetPanicFunc overrides the action taken for an unhandled exception.
// Tests use this to assert fatal delivery without actually halting.
func (t *IDT) SetPanicFunc(fn PanicFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPanic = fn
}

// Init remaps the 8259 PICs so IRQ0-7 land on vectors 32-39 and IRQ8-15 on
// 40-47, then unmasks every line. Idempotent: calling it twice just remaps
// twice, which is harmless.
func (t *IDT) Init() {
	t.pic.Remap(IRQBase, IRQBase+8)
	t.log.Info("idt initialized", "irq_base", IRQBase)
}

// RegisterHandler installs fn for vector, overwriting any previous
// registration. Vectors >= NumVectors are rejected.
func (t *IDT) RegisterHandler(vector uint32, fn HandlerFunc) error {
	if vector >= NumVectors {
		return kerrors.WrapWithDetail(kerrors.ErrVectorOutOfRange, kerrors.KindInvalidConfig,
			"isr_register_handler", fmt.Sprintf("vector %d", vector))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[vector] = fn
	return nil
}

// Handler returns the registered handler for vector, or nil.
func (t *IDT) Handler(vector uint32) HandlerFunc {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.handlers[vector]
}

// Dispatch routes a trap frame the way the common C-level dispatcher would:
// exceptions with no handler are fatal, IRQs are always EOI'd before their
// handler (if any) runs, and the syscall vector is expected to have its own
// handler registered by the syscall package.
func (t *IDT) Dispatch(tf *TrapFrame) {
	vector := tf.Vector

	switch {
	case IsException(vector):
		if h := t.Handler(vector); h != nil {
			h(tf)
			return
		}
		t.mu.RLock()
		onPanic := t.onPanic
		t.mu.RUnlock()
		onPanic(tf)

	case IsIRQ(vector):
		t.pic.EOI(vector)
		t.irqCount[vector]++
		if h := t.Handler(vector); h != nil {
			h(tf)
		}

	default:
		// Syscall vector (0x80) and any other vector dispatch straight to
		// their handler if registered; an unregistered non-exception,
		// non-IRQ vector is simply ignored.
		if h := t.Handler(vector); h != nil {
			h(tf)
		}
	}
}

// IRQCount returns how many times vector has fired, for scheduler-fairness
// and driver tests.
func (t *IDT) IRQCount(vector uint32) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.irqCount[vector]
}

// PIC exposes the underlying PIC for drivers (e.g. the NE2000 driver
// masking its own IRQ line) that need direct mask control.
func (t *IDT) PIC() *PIC { return t.pic }
