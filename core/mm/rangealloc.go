// File: core/mm/rangealloc.go
// Package mm implements the VRAM range allocator.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pure best-fit allocator over a fixed address space. The free list is
// kept address-ordered so released ranges coalesce with both neighbors
// in O(log n) lookup + O(n) insert, and so best-fit ties break toward
// the lowest address.

package mm

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/momentics/hioload-vram/api"
)

// RangeAllocator tracks free and used ranges within a fixed-size span.
// The span never resizes.
type RangeAllocator struct {
	mu   sync.Mutex
	size uint64
	used uint64
	free []api.Range // address-ordered, non-adjacent
}

// NewRangeAllocator creates an allocator over [0, size).
func NewRangeAllocator(size uint64) (*RangeAllocator, error) {
	if size == 0 {
		return nil, errors.Wrap(api.ErrInvalidSize, "zero-size address space")
	}
	return &RangeAllocator{
		size: size,
		free: []api.Range{{Offset: 0, Size: size}},
	}, nil
}

// Allocate reserves size bytes aligned to align (0 or 1 means byte
// alignment; otherwise align must be a power of two). Best-fit: the
// smallest free block that satisfies the request wins, lowest address
// on ties.
func (a *RangeAllocator) Allocate(size, align uint64) (api.Range, error) {
	if size == 0 {
		return api.Range{}, errors.Wrap(api.ErrInvalidSize, "zero-size allocation")
	}
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		return api.Range{}, errors.Wrapf(api.ErrInvalidSize, "alignment %d is not a power of two", align)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	best := -1
	var bestStart uint64
	for i, blk := range a.free {
		start := alignUp(blk.Offset, align)
		if start < blk.Offset || start+size < start { // overflow
			continue
		}
		if start+size > blk.End() {
			continue
		}
		if best < 0 || blk.Size < a.free[best].Size {
			best = i
			bestStart = start
		}
	}
	if best < 0 {
		return api.Range{}, errors.Wrapf(api.ErrOutOfSpace, "no free range fits %d bytes (align %d)", size, align)
	}

	blk := a.free[best]
	out := api.Range{Offset: bestStart, Size: size}

	// Replace the chosen block with the surviving head/tail fragments.
	var frags []api.Range
	if bestStart > blk.Offset {
		frags = append(frags, api.Range{Offset: blk.Offset, Size: bestStart - blk.Offset})
	}
	if out.End() < blk.End() {
		frags = append(frags, api.Range{Offset: out.End(), Size: blk.End() - out.End()})
	}
	a.free = append(a.free[:best], append(frags, a.free[best+1:]...)...)
	a.used += size

	return out, nil
}

// Free returns a range to the allocator, coalescing with adjacent free
// neighbors.
func (a *RangeAllocator) Free(r api.Range) {
	if r.Size == 0 || r.End() > a.size {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	released := r.Size
	i := sort.Search(len(a.free), func(i int) bool {
		return a.free[i].Offset >= r.Offset
	})

	// Merge with successor.
	if i < len(a.free) && r.End() == a.free[i].Offset {
		r.Size += a.free[i].Size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
	// Merge with predecessor.
	if i > 0 && a.free[i-1].End() == r.Offset {
		a.free[i-1].Size += r.Size
	} else {
		a.free = append(a.free, api.Range{})
		copy(a.free[i+1:], a.free[i:])
		a.free[i] = r
	}
	a.used -= min(a.used, released)
}

// FreeRanges returns a snapshot of the free list for diagnostics.
func (a *RangeAllocator) FreeRanges() []api.Range {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]api.Range, len(a.free))
	copy(out, a.free)
	return out
}

// Size returns the span size in bytes.
func (a *RangeAllocator) Size() uint64 { return a.size }

// Used returns the number of reserved bytes.
func (a *RangeAllocator) Used() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
