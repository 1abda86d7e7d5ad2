package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"nanosec-go/kernel/idt"
	"nanosec-go/kernel/ioport"
)

func TestTimer_ConfigureChangesPeriod(t *testing.T) {
	tm := New(nil, nil, nil)
	tm.Configure(1000)
	if got := tm.period(); got != time.Millisecond {
		t.Fatalf("period = %v, want 1ms", got)
	}
}

func TestTimer_StartFiresOnTickAndIRQHandler(t *testing.T) {
	var ticks int64
	tm := New(nil, nil, func() { atomic.AddInt64(&ticks, 1) })
	tm.Configure(1000) // 1ms period, fast enough for a short test

	table := idt.New(ioport.NewSpace())
	var irqFired int64
	table.RegisterHandler(idt.IRQTimer, func(tf *idt.TrapFrame) {
		atomic.AddInt64(&irqFired, 1)
	})
	tm.idt = table

	tm.Start()
	defer tm.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt64(&ticks) >= 5 && atomic.LoadInt64(&irqFired) >= 5 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for ticks: ticks=%d irqFired=%d", atomic.LoadInt64(&ticks), atomic.LoadInt64(&irqFired))
}

func TestTimer_StopHaltsTicking(t *testing.T) {
	tm := New(nil, nil, nil)
	tm.Configure(1000)
	tm.Start()
	time.Sleep(20 * time.Millisecond)
	tm.Stop()
	after := tm.Ticks()
	time.Sleep(30 * time.Millisecond)
	if tm.Ticks() != after {
		t.Fatalf("ticks advanced after Stop: %d -> %d", after, tm.Ticks())
	}
}

func TestTimer_PortIOReadbackMatchesProgrammedReload(t *testing.T) {
	space := ioport.NewSpace()
	tm := New(space, nil, nil)

	space.Outb(0x43, 0x36) // command write resets latch
	space.Outb(0x40, 0x34) // low byte
	space.Outb(0x40, 0x12) // high byte
	if tm.reload != 0x1234 {
		t.Fatalf("reload = %#x, want 0x1234", tm.reload)
	}

	space.Outb(0x43, 0x36)
	lo := space.Inb(0x40)
	hi := space.Inb(0x40)
	if lo != 0x34 || hi != 0x12 {
		t.Fatalf("readback = (%#x, %#x), want (0x34, 0x12)", lo, hi)
	}
}
