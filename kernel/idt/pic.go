package idt

import "nanosec-go/kernel/ioport"

// 8259 PIC port assignments.
const (
	masterCommand = 0x20
	masterData    = 0x21
	slaveCommand  = 0xA0
	slaveData     = 0xA1

	icw1Init  = 0x11
	icw4_8086 = 0x01

	eoiCommand = 0x20
)

// PIC simulates the cascaded 8259 pair. It exists so Init()'s remap
// sequence and EOI discipline are real port writes against kernel/ioport
// instead of no-ops — a reader stepping through Init byte-for-byte should
// recognize the standard remap sequence.
type PIC struct {
	space           *ioport.Space
	masterMask   uint8
	slaveMask    uint8
	masterOffset uint8
	slaveOffset  uint8
	masterEOIs   uint64
	slaveEOIs    uint64
}

// NewPIC creates a PIC wired to the given port space. Both chips start
// fully masked, matching real firmware hand-off before the kernel remaps.
func NewPIC(space *ioport.Space) *PIC {
	p := &PIC{space: space, masterMask: 0xFF, slaveMask: 0xFF}
	space.Register(masterCommand, 2, picCommandDevice{p, true})
	space.Register(slaveCommand, 2, picCommandDevice{p, false})
	return p
}

// Remap reassigns IRQ0-7 to masterOffset..masterOffset+7 and IRQ8-15 to
// slaveOffset..slaveOffset+7, per the standard 4-ICW initialization
// sequence, then unmasks every line.
func (p *PIC) Remap(masterOffset, slaveOffset uint8) {
	p.masterOffset = masterOffset
	p.slaveOffset = slaveOffset

	p.space.Outb(masterCommand, icw1Init)
	p.space.Outb(slaveCommand, icw1Init)
	p.space.Outb(masterData, masterOffset)
	p.space.Outb(slaveData, slaveOffset)
	p.space.Outb(masterData, 4) // tell master there's a slave at IRQ2
	p.space.Outb(slaveData, 2)  // tell slave its cascade identity
	p.space.Outb(masterData, icw4_8086)
	p.space.Outb(slaveData, icw4_8086)

	p.UnmaskAll()
}

// UnmaskAll clears both interrupt mask registers.
func (p *PIC) UnmaskAll() {
	p.masterMask = 0
	p.slaveMask = 0
	p.space.Outb(masterData, p.masterMask)
	p.space.Outb(slaveData, p.slaveMask)
}

// SetMask sets or clears the mask bit for irq (0-15).
func (p *PIC) SetMask(irq int, masked bool) {
	if irq < 8 {
		if masked {
			p.masterMask |= 1 << uint(irq)
		} else {
			p.masterMask &^= 1 << uint(irq)
		}
		p.space.Outb(masterData, p.masterMask)
		return
	}
	irq -= 8
	if masked {
		p.slaveMask |= 1 << uint(irq)
	} else {
		p.slaveMask &^= 1 << uint(irq)
	}
	p.space.Outb(slaveData, p.slaveMask)
}

// EOI sends End-Of-Interrupt for the given vector: always to the master,
// and to the slave first if the vector maps to IRQ8-15 (vector >= 40).
func (p *PIC) EOI(vector uint32) {
	if vector >= 40 {
		p.space.Outb(slaveCommand, eoiCommand)
		p.slaveEOIs++
	}
	p.space.Outb(masterCommand, eoiCommand)
	p.masterEOIs++
}

// EOICounts returns how many EOIs have been sent to each chip, for tests
// asserting the "slave EOI only for IRQ8-15" rule.
func (p *PIC) EOICounts() (master, slave uint64) {
	return p.masterEOIs, p.slaveEOIs
}

// picCommandDevice lets the command/data port pair participate in the
// simulated ioport.Space without PIC itself implementing ioport.Device
// (Remap needs to address master and slave through the same struct).
type picCommandDevice struct {
	pic    *PIC
	master bool
}

func (d picCommandDevice) In(port uint16) uint8       { return 0 }
func (d picCommandDevice) Out(port uint16, val uint8) {}
