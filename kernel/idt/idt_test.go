package idt

import (
	"testing"

	"nanosec-go/kernel/ioport"
)

func newTestIDT() *IDT {
	space := ioport.NewSpace()
	t := New(space)
	t.Init()
	return t
}

func TestInit_RemapsPIC(t *testing.T) {
	idt := newTestIDT()
	if idt.pic.masterOffset != IRQBase {
		t.Fatalf("master offset = %d, want %d", idt.pic.masterOffset, IRQBase)
	}
	if idt.pic.slaveOffset != IRQBase+8 {
		t.Fatalf("slave offset = %d, want %d", idt.pic.slaveOffset, IRQBase+8)
	}
	if idt.pic.masterMask != 0 || idt.pic.slaveMask != 0 {
		t.Fatalf("expected all IRQs unmasked after init")
	}
}

func TestRegisterHandler_RejectsOutOfRangeVector(t *testing.T) {
	idt := newTestIDT()
	err := idt.RegisterHandler(NumVectors, func(*TrapFrame) {})
	if err == nil {
		t.Fatal("expected error for vector >= NumVectors")
	}
}

func TestDispatch_UnhandledExceptionIsFatal(t *testing.T) {
	idt := newTestIDT()
	var got *TrapFrame
	idt.SetPanicFunc(func(tf *TrapFrame) { got = tf })

	idt.Dispatch(&TrapFrame{Vector: ExGeneralProtection, ErrorCode: 5})

	if got == nil {
		t.Fatal("expected panic func to be invoked")
	}
	if got.Vector != ExGeneralProtection {
		t.Fatalf("panic frame vector = %d, want %d", got.Vector, ExGeneralProtection)
	}
}

func TestDispatch_HandledExceptionSkipsPanic(t *testing.T) {
	idt := newTestIDT()
	panicCalled := false
	idt.SetPanicFunc(func(tf *TrapFrame) { panicCalled = true })

	handled := false
	if err := idt.RegisterHandler(ExBreakpoint, func(tf *TrapFrame) { handled = true }); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	idt.Dispatch(&TrapFrame{Vector: ExBreakpoint})

	if !handled {
		t.Fatal("expected breakpoint handler to run")
	}
	if panicCalled {
		t.Fatal("panic func should not run for a handled exception")
	}
}

func TestDispatch_IRQAlwaysEOIs(t *testing.T) {
	idt := newTestIDT()
	idt.Dispatch(&TrapFrame{Vector: IRQTimer})

	master, slave := idt.pic.EOICounts()
	if master != 1 {
		t.Fatalf("master EOI count = %d, want 1", master)
	}
	if slave != 0 {
		t.Fatalf("slave EOI count = %d, want 0 for IRQ < 8", slave)
	}
}

func TestDispatch_SlaveIRQEOIsBoth(t *testing.T) {
	idt := newTestIDT()
	idt.Dispatch(&TrapFrame{Vector: IRQATA2}) // vector 47 >= 40

	master, slave := idt.pic.EOICounts()
	if master != 1 || slave != 1 {
		t.Fatalf("EOI counts = (%d, %d), want (1, 1)", master, slave)
	}
}

func TestDispatch_IRQHandlerRunsAfterEOI(t *testing.T) {
	idt := newTestIDT()
	var masterAtCallTime uint64
	if err := idt.RegisterHandler(IRQKeyboard, func(tf *TrapFrame) {
		masterAtCallTime, _ = idt.pic.EOICounts()
	}); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	idt.Dispatch(&TrapFrame{Vector: IRQKeyboard})

	if masterAtCallTime != 1 {
		t.Fatalf("EOI count observed inside handler = %d, want 1 (EOI before handler)", masterAtCallTime)
	}
}

func TestDispatch_UnhandledIRQIsSilentlyAcked(t *testing.T) {
	idt := newTestIDT()
	// Should not panic and should still EOI.
	idt.Dispatch(&TrapFrame{Vector: IRQFloppy})
	master, _ := idt.pic.EOICounts()
	if master != 1 {
		t.Fatalf("expected EOI even with no handler registered")
	}
}

func TestIRQCount(t *testing.T) {
	idt := newTestIDT()
	idt.Dispatch(&TrapFrame{Vector: IRQTimer})
	idt.Dispatch(&TrapFrame{Vector: IRQTimer})
	idt.Dispatch(&TrapFrame{Vector: IRQTimer})

	if got := idt.IRQCount(IRQTimer); got != 3 {
		t.Fatalf("IRQCount = %d, want 3", got)
	}
}

func TestDispatch_SyscallVectorDispatchesRegisteredHandler(t *testing.T) {
	idt := newTestIDT()
	called := false
	if err := idt.RegisterHandler(VectorSyscall, func(tf *TrapFrame) { called = true }); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	idt.Dispatch(&TrapFrame{Vector: VectorSyscall, EAX: 7})

	if !called {
		t.Fatal("expected syscall handler to run")
	}
}
