// Package workheap implements the contiguous buffer pool that lends compute
// phases their I/O staging buffers. Producers allocate; the dispatcher hands
// buffers back asynchronously as release commands complete, and producers
// reconcile their view of free space through CompletePendingReleases.
package workheap

import (
	"sync"
	"unsafe"

	"plotdisk/internal/align"
	"plotdisk/internal/mmap"
)

type span struct {
	offset uint
	size   uint
}

// Heap is a contiguous byte region carved into block-aligned buffers by a
// first-fit free list. A buffer returned by Alloc is exclusively owned by
// the caller until the dispatcher executes a release command for it.
// Releases land in a pending list first and are folded back into the free
// list when a producer reconciles, or when Alloc needs the space.
type Heap struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf       []byte
	mmapped   bool
	blockSize uint

	free    []span // sorted by offset, coalesced
	allocs  map[uint]uint
	pending []span
}

// New allocates a heap of the given capacity. Allocations are rounded up to
// blockSize so every buffer handed out is block-multiple. The backing region
// is an mmap'd, page-aligned mapping, so buffers satisfy the direct-I/O
// alignment contract; if mmap fails it falls back to make([]byte), which
// carries no page alignment.
func New(size, blockSize uint) *Heap {
	h := &Heap{mmapped: true}
	h.cond = sync.NewCond(&h.mu)

	size = align.RoundUp(size, blockSize)
	buf, err := mmap.New(int(size))
	if err != nil {
		buf = make([]byte, size)
		h.mmapped = false
	}
	h.bind(buf[:size], blockSize)
	return h
}

// NewWithBuffer wraps a caller-supplied region. The caller is responsible
// for the region's alignment.
func NewWithBuffer(buf []byte, blockSize uint) *Heap {
	h := &Heap{}
	h.cond = sync.NewCond(&h.mu)
	h.bind(buf, blockSize)
	return h
}

func (h *Heap) bind(buf []byte, blockSize uint) {
	h.buf = buf
	h.blockSize = blockSize
	h.free = []span{{0, uint(len(buf))}}
	h.allocs = make(map[uint]uint)
	h.pending = h.pending[:0]
}

// Alloc returns an exclusively-owned buffer of at least n bytes, rounded up
// to the block size. When free space is short it first folds pending
// releases in, then blocks until the dispatcher releases enough. Requests
// larger than the heap capacity can never be satisfied and panic.
func (h *Heap) Alloc(n uint) []byte {
	if n == 0 {
		panic("workheap: zero-size allocation")
	}
	n = align.RoundUp(n, h.blockSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	if n > uint(len(h.buf)) {
		panic("workheap: allocation exceeds heap capacity")
	}

	for {
		h.drainPending()
		if off, ok := h.take(n); ok {
			h.allocs[off] = n
			return h.buf[off : off+n : off+n]
		}
		h.cond.Wait()
	}
}

// Release hands a buffer back from the dispatcher. The release is recorded
// as pending and any blocked Alloc is woken to reconcile. Releasing a buffer
// the heap did not hand out, or releasing one twice, is a contract violation.
func (h *Heap) Release(buf []byte) {
	h.mu.Lock()
	off := h.offsetOf(buf)
	size, live := h.allocs[off]
	if !live {
		h.mu.Unlock()
		panic("workheap: release of unallocated buffer")
	}
	delete(h.allocs, off)
	h.pending = append(h.pending, span{off, size})
	h.mu.Unlock()
	h.cond.Broadcast()
}

// CompletePendingReleases folds all releases announced by the dispatcher
// back into the free list. Producers call this before sizing a pass against
// FreeBytes.
func (h *Heap) CompletePendingReleases() {
	h.mu.Lock()
	h.drainPending()
	h.mu.Unlock()
}

// Reset rebinds the heap to a new region between passes. Panics if any
// allocation is still live.
func (h *Heap) Reset(buf []byte, blockSize uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drainPending()
	if len(h.allocs) != 0 {
		panic("workheap: reset with live allocations")
	}
	if h.mmapped {
		mmap.Free(h.buf)
		h.mmapped = false
	}
	h.bind(buf, blockSize)
}

// FreeBytes returns the reconciled free space. Pending releases do not
// count until they are completed.
func (h *Heap) FreeBytes() uint {
	h.mu.Lock()
	defer h.mu.Unlock()
	var n uint
	for _, s := range h.free {
		n += s.size
	}
	return n
}

// Cap returns the heap capacity.
func (h *Heap) Cap() uint {
	return uint(len(h.buf))
}

// take carves n bytes from the first free span that fits.
func (h *Heap) take(n uint) (uint, bool) {
	for i := range h.free {
		if h.free[i].size < n {
			continue
		}
		off := h.free[i].offset
		h.free[i].offset += n
		h.free[i].size -= n
		if h.free[i].size == 0 {
			h.free = append(h.free[:i], h.free[i+1:]...)
		}
		return off, true
	}
	return 0, false
}

// drainPending folds pending releases into the free list, keeping it sorted
// and coalesced.
func (h *Heap) drainPending() {
	for _, s := range h.pending {
		h.insertFree(s)
	}
	h.pending = h.pending[:0]
}

func (h *Heap) insertFree(s span) {
	i := 0
	for i < len(h.free) && h.free[i].offset < s.offset {
		i++
	}
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = s

	// Coalesce with the next span, then the previous.
	if i+1 < len(h.free) && h.free[i].offset+h.free[i].size == h.free[i+1].offset {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].offset+h.free[i-1].size == h.free[i].offset {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
}

// offsetOf maps a buffer back to its offset within the heap region.
func (h *Heap) offsetOf(buf []byte) uint {
	if len(buf) == 0 {
		panic("workheap: empty buffer")
	}
	p := uintptr(unsafe.Pointer(&buf[0]))
	base := uintptr(unsafe.Pointer(&h.buf[0]))
	if p < base || p >= base+uintptr(len(h.buf)) {
		panic("workheap: buffer outside heap region")
	}
	return uint(p - base)
}
