// Package timer simulates the 8253/8254 Programmable Interval Timer: the
// tick source that drives the scheduler's preemption and the kernel's
// uptime counter, per spec.md §4.2.
package timer

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nanosec-go/kernel/idt"
	"nanosec-go/kernel/ioport"
	"nanosec-go/logging"
)

const (
	// basePortData is channel 0's data port; basePortCommand is the mode
	// control register, per the real 8253's port layout (0x40-0x43).
	basePortData    = 0x00
	basePortCommand = 0x03

	// pitBaseFrequency is the real PIT's crystal frequency in Hz, used to
	// convert a programmed reload count into a period the simulation can
	// actually sleep for.
	pitBaseFrequency = 1193182

	// DefaultHz is the frequency Init programs absent a prior Configure
	// call, matching the 100Hz tick rate spec.md §4.2 assumes elsewhere.
	DefaultHz = 100
)

// OnTickFunc is invoked once per simulated tick, after the internal ticks
// counter has been advanced. proc.Scheduler.OnTick matches this signature.
type OnTickFunc func()

// Ticks exposes the timer's free-running tick counter to callers (ICMP/TCP
// timeouts, uptime reporting) without giving them access to the device
// itself, mirroring how kernel/net's Ticker interface only asks for Ticks().
type Ticks interface {
	Ticks() uint64
}

// Timer is both an ioport.Device (so BIOS-style mode-control writes to
// ports 0x40-0x43 behave the way driver code expects) and the real
// goroutine-driven tick source for the hosted simulation, since nothing
// else can raise IRQ0 on a schedule in a userspace process.
type Timer struct {
	mu      sync.Mutex
	reload  uint16
	latch   byte
	running bool
	stop    chan struct{}

	ticks uint64 // atomic

	idt     *idt.IDT
	onTick  OnTickFunc
	log     *slog.Logger
	sleeper func(time.Duration)
}

// New creates a Timer registered on space at the PIT's standard base port
// (0x40), wired to raise IRQTimer through table and to call onTick on every
// simulated tick.
func New(space *ioport.Space, table *idt.IDT, onTick OnTickFunc) *Timer {
	t := &Timer{
		reload:  pitBaseFrequency / DefaultHz,
		idt:     table,
		onTick:  onTick,
		log:     logging.WithSubsystem(logging.Default(), "timer"),
		sleeper: time.Sleep,
	}
	if space != nil {
		space.Register(0x40, 4, t)
	}
	return t
}

// Configure reprograms channel 0's reload value directly, equivalent to a
// driver issuing mode/command + two data-port writes to ports 0x43/0x40.
func (t *Timer) Configure(hz int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if hz <= 0 {
		hz = DefaultHz
	}
	t.reload = uint16(pitBaseFrequency / hz)
}

// Start launches the background goroutine that advances ticks at the
// programmed rate and calls onTick plus the registered IRQTimer handler on
// each one. Stop must be called to release it.
func (t *Timer) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	period := t.period()
	stop := t.stop
	t.mu.Unlock()

	go t.run(period, stop)
	t.log.Info("timer started", "period", period)
}

func (t *Timer) period() time.Duration {
	hz := pitBaseFrequency / int(t.reload)
	if hz <= 0 {
		hz = DefaultHz
	}
	return time.Second / time.Duration(hz)
}

func (t *Timer) run(period time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Re-check stop under mu, which Stop holds while closing it, so
			// no tick fires once Stop has returned.
			t.mu.Lock()
			select {
			case <-stop:
				t.mu.Unlock()
				return
			default:
			}
			t.fire()
			t.mu.Unlock()
		}
	}
}

func (t *Timer) fire() {
	atomic.AddUint64(&t.ticks, 1)
	if t.onTick != nil {
		t.onTick()
	}
	if t.idt != nil {
		if h := t.idt.Handler(idt.IRQTimer); h != nil {
			h(&idt.TrapFrame{Vector: idt.IRQTimer})
		}
	}
}

// Stop halts the background goroutine. Safe to call even if Start was
// never called.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	close(t.stop)
	t.running = false
}

// Ticks returns the free-running tick count.
func (t *Timer) Ticks() uint64 {
	return atomic.LoadUint64(&t.ticks)
}

// In implements ioport.Device: reads of the data port return the low byte
// of the current reload count on the first read after a latch command,
// matching the PIT's two-byte readback protocol closely enough for driver
// probes that read back what they programmed.
func (t *Timer) In(port uint16) uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch port {
	case basePortData:
		if t.latch == 0 {
			t.latch = 1
			return byte(t.reload & 0xFF)
		}
		t.latch = 0
		return byte(t.reload >> 8)
	default:
		return 0
	}
}

// Out implements ioport.Device. A write to the command port resets the
// latch sequencer; writes to the data port load the reload value a byte at
// a time, low byte first, matching mode 3 (square wave) programming.
func (t *Timer) Out(port uint16, val uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch port {
	case basePortCommand:
		t.latch = 0
	case basePortData:
		if t.latch == 0 {
			t.reload = (t.reload & 0xFF00) | uint16(val)
			t.latch = 1
		} else {
			t.reload = (t.reload & 0x00FF) | uint16(val)<<8
			t.latch = 0
		}
	}
}
