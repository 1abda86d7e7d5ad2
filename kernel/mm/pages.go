// Package mm implements the kernel's memory subsystem: a physical-page
// bitmap allocator, two-level paging over that allocator, and a coalescing
// free-list heap, per spec.md §4.2.
package mm

import (
	"sync"

	kerrors "nanosec-go/errors"
)

const (
	// PageSize is the x86 page granularity.
	PageSize = 4096

	// RAMWindow is the size of RAM the physical allocator covers — 32 MB,
	// the reference design's figure.
	RAMWindow = 32 * 1024 * 1024

	// TotalPages is the number of 4 KB pages in RAMWindow.
	TotalPages = RAMWindow / PageSize

	// ReservedLowBytes covers the first 1 MB plus the kernel image; both
	// are marked busy at init and never freed.
	ReservedLowBytes = 1*1024*1024 + 512*1024
	reservedPages    = ReservedLowBytes / PageSize
)

// PageAllocator is a first-fit bitmap allocator over a fixed RAM window.
// Bit set means the page is in use; free-count always equals the number of
// clear bits (spec.md §3 invariant).
type PageAllocator struct {
	mu     sync.Mutex
	bitmap []uint64 // TotalPages bits, packed 64 per word
}

// NewPageAllocator creates an allocator with the low reserved region (first
// 1 MB plus the kernel image) pre-marked busy.
func NewPageAllocator() *PageAllocator {
	words := (TotalPages + 63) / 64
	a := &PageAllocator{bitmap: make([]uint64, words)}
	for i := 0; i < reservedPages; i++ {
		a.setBit(i)
	}
	return a
}

func (a *PageAllocator) setBit(i int)   { a.bitmap[i/64] |= 1 << uint(i%64) }
func (a *PageAllocator) clearBit(i int) { a.bitmap[i/64] &^= 1 << uint(i%64) }
func (a *PageAllocator) testBit(i int) bool {
	return a.bitmap[i/64]&(1<<uint(i%64)) != 0
}

// Alloc scans for the first clear bit, sets it, and returns the
// corresponding physical base address. Returns ErrNoPhysicalPages if the
// window is exhausted.
func (a *PageAllocator) Alloc() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < TotalPages; i++ {
		if !a.testBit(i) {
			a.setBit(i)
			return uint32(i * PageSize), nil
		}
	}
	return 0, kerrors.Wrap(kerrors.ErrNoPhysicalPages, kerrors.KindResource, "page_alloc")
}

// Free clears the bit for phys. Double-free is tolerated as a no-op, per
// spec.md §4.2.
func (a *PageAllocator) Free(phys uint32) {
	idx := int(phys / PageSize)
	if idx < 0 || idx >= TotalPages {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clearBit(idx)
}

// FreeCount returns the number of unallocated pages.
func (a *PageAllocator) FreeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	free := 0
	for i := 0; i < TotalPages; i++ {
		if !a.testBit(i) {
			free++
		}
	}
	return free
}

// UsedCount returns the number of allocated pages, including the reserved
// low region.
func (a *PageAllocator) UsedCount() int {
	return TotalPages - a.FreeCount()
}
