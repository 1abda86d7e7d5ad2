package mm

import (
	"sync"

	kerrors "nanosec-go/errors"
)

// HeapSize is the kernel heap's total arena size: one contiguous 1 MB
// region, per spec.md §4.2.
const HeapSize = 1 * 1024 * 1024

// headerSize models the intrusive {size, free, next} header's overhead for
// the split-threshold decision in Alloc. The arena below stores only
// payload bytes — Go has no pointer arithmetic to lay a real header in
// front of a slice's backing array — but the split heuristic (don't leave a
// sliver smaller than header+16 behind) is carried over unchanged so the
// fragmentation behavior matches spec.md's kmalloc exactly.
const headerSize = 12

// minSplitRemainder is the smallest remainder worth splitting off as its
// own free block, per spec.md §4.2's "size > n + header_size + 16" rule.
const minSplitRemainder = headerSize + 16

// block is one entry in the heap's address-ordered free list, addressed by
// offset into the arena rather than by pointer — the index-linked-slab
// style spec.md §9 calls for applied to a byte arena.
type block struct {
	offset uint32
	size   uint32
	free   bool
}

// Heap is a coalescing free-list allocator over a fixed-size byte arena.
// Coalescing happens eagerly on Free (merging with both neighbors
// immediately) rather than lazily, which keeps the conservation invariant
// (free all → arena returns to one free block spanning the whole arena)
// exact rather than approximate under fragmentation.
type Heap struct {
	mu        sync.Mutex
	arena     []byte
	blocks    []*block // address-ordered
	allocated uint32
}

// NewHeap creates a heap with its full arena as a single free block.
func NewHeap() *Heap {
	h := &Heap{arena: make([]byte, HeapSize)}
	h.blocks = []*block{{offset: 0, size: HeapSize, free: true}}
	return h
}

// Alloc finds the first free block of sufficient size, splits off any
// large remainder, and returns the offset of the payload. Returns
// ErrOutOfMemory if no block fits.
func (h *Heap) Alloc(n uint32) (uint32, error) {
	if n == 0 {
		n = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, b := range h.blocks {
		if !b.free || b.size < n {
			continue
		}
		remainder := b.size - n
		if remainder > minSplitRemainder {
			tail := &block{offset: b.offset + n, size: remainder, free: true}
			b.size = n
			h.blocks = append(h.blocks, nil)
			copy(h.blocks[i+2:], h.blocks[i+1:])
			h.blocks[i+1] = tail
		}
		b.free = false
		h.allocated += b.size
		return b.offset, nil
	}
	return 0, kerrors.Wrap(kerrors.ErrOutOfMemory, kerrors.KindOutOfMemory, "kmalloc")
}

// Free flips the block at offset back to free and coalesces it with either
// neighbor that is also free. Freeing an offset that doesn't head a block
// is a no-op (the C original has no way to detect this either, since it
// trusts the caller's pointer).
func (h *Heap) Free(offset uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := -1
	for i, b := range h.blocks {
		if b.offset == offset {
			idx = i
			break
		}
	}
	if idx == -1 || h.blocks[idx].free {
		return
	}

	b := h.blocks[idx]
	h.allocated -= b.size
	b.free = true

	if idx+1 < len(h.blocks) && h.blocks[idx+1].free {
		next := h.blocks[idx+1]
		b.size += next.size
		h.blocks = append(h.blocks[:idx+1], h.blocks[idx+2:]...)
	}
	if idx > 0 && h.blocks[idx-1].free {
		prev := h.blocks[idx-1]
		prev.size += b.size
		h.blocks = append(h.blocks[:idx], h.blocks[idx+1:]...)
	}
}

// Bytes returns a slice view of n payload bytes at offset, for callers that
// need to read or write through the allocation (e.g. net buffers, fs node
// data backed by the heap).
func (h *Heap) Bytes(offset, n uint32) []byte {
	return h.arena[offset : offset+n]
}

// Allocated returns the number of bytes currently allocated (not free).
// The heap-conservation property (spec.md §8) is: after any sequence of
// Alloc/Free where every Alloc is matched by a Free, this returns 0.
func (h *Heap) Allocated() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocated
}

// BlockCount returns the number of blocks currently in the free list,
// mostly useful for asserting full coalescing back to a single block.
func (h *Heap) BlockCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.blocks)
}
