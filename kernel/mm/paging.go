package mm

import "sync"

// PTE flags, matching the x86 bit layout closely enough that a reader who
// knows the architecture recognizes them, without pretending to model every
// bit (accessed/dirty/cache flags are out of scope per spec.md's core set).
const (
	FlagPresent = 1 << 0
	FlagWrite   = 1 << 1
	FlagUser    = 1 << 2
)

const (
	entriesPerTable = 1024
	identityMapMB   = 4
)

type pageTable struct {
	entries [entriesPerTable]uint32
}

// PageDirectory is a two-level x86 page table: a 1024-entry directory, each
// entry pointing to a 1024-entry table. Tables are allocated on demand
// except for the identity-mapped first 4 MB, installed at construction.
type PageDirectory struct {
	mu      sync.Mutex
	pages   *PageAllocator
	dirs    [entriesPerTable]*pageTable
	present [entriesPerTable]bool
}

// NewPageDirectory creates a directory with the first 4 MB identity-mapped,
// per spec.md §4.2.
func NewPageDirectory(pages *PageAllocator) *PageDirectory {
	d := &PageDirectory{pages: pages}
	id := &pageTable{}
	for i := 0; i < entriesPerTable; i++ {
		phys := uint32(i * PageSize)
		id.entries[i] = (phys & 0xFFFFF000) | FlagPresent | FlagWrite
	}
	d.dirs[0] = id
	d.present[0] = true
	return d
}

func split(virt uint32) (dirIdx, tblIdx int) {
	dirIdx = int(virt >> 22)
	tblIdx = int((virt >> 12) & 0x3FF)
	return
}

// Map installs a present PTE mapping virt to phys with the given flags,
// allocating and zeroing a new page table if the directory entry for virt's
// range isn't present yet. The TLB entry for virt is "invalidated" (a no-op
// bookkeeping call in the simulation, since there is no real TLB, but kept
// as an explicit step so the sequence matches the hardware original).
func (d *PageDirectory) Map(virt, phys uint32, flags uint32) {
	dirIdx, tblIdx := split(virt)

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.present[dirIdx] {
		d.dirs[dirIdx] = &pageTable{}
		d.present[dirIdx] = true
	}
	d.dirs[dirIdx].entries[tblIdx] = (phys & 0xFFFFF000) | flags | FlagPresent
	d.invalidate(virt)
}

// Unmap clears the PTE for virt, if any, and invalidates the TLB entry.
func (d *PageDirectory) Unmap(virt uint32) {
	dirIdx, tblIdx := split(virt)

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.present[dirIdx] {
		return
	}
	d.dirs[dirIdx].entries[tblIdx] = 0
	d.invalidate(virt)
}

// GetPhys walks the tables and returns the physical address backing virt,
// or 0 if unmapped.
func (d *PageDirectory) GetPhys(virt uint32) uint32 {
	dirIdx, tblIdx := split(virt)
	offset := virt & 0xFFF

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.present[dirIdx] {
		return 0
	}
	pte := d.dirs[dirIdx].entries[tblIdx]
	if pte&FlagPresent == 0 {
		return 0
	}
	return (pte & 0xFFFFF000) | offset
}

// invalidate is the simulation's stand-in for an `invlpg` instruction. It
// has no observable effect here but marks the point in Map/Unmap where real
// hardware would flush a stale translation.
func (d *PageDirectory) invalidate(virt uint32) {}
