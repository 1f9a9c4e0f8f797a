// File: pool/vram.go
// Package pool implements the fixed-size VRAM pool.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/momentics/hioload-vram/api"
	"github.com/momentics/hioload-vram/core/mm"
)

// VRAMPool manages the device's dedicated memory range. Range
// bookkeeping lives in the core/mm allocator; the aperture window
// stands in for the device BAR, so mappings report device (I/O)
// memory to their users.
type VRAMPool struct {
	base  uint64
	alloc *mm.RangeAllocator

	mu       sync.Mutex
	window   []byte
	closed   bool
	reserves uint64
	releases uint64
	mappings uint64
}

var _ api.MemoryPool = (*VRAMPool)(nil)

// NewVRAMPool creates a pool over [base, base+size).
func NewVRAMPool(base, size uint64) (*VRAMPool, error) {
	alloc, err := mm.NewRangeAllocator(size)
	if err != nil {
		return nil, err
	}
	window, err := mapHostRegion(size)
	if err != nil {
		return nil, errors.Wrap(api.ErrOutOfMemory, err.Error())
	}
	return &VRAMPool{base: base, alloc: alloc, window: window}, nil
}

// Kind implements api.MemoryPool.
func (p *VRAMPool) Kind() api.PoolType { return api.PoolVRAM }

// Base returns the device base address of the VRAM range.
func (p *VRAMPool) Base() uint64 { return p.base }

// ReserveRange implements api.MemoryPool.
func (p *VRAMPool) ReserveRange(size, align uint64) (api.Range, error) {
	r, err := p.alloc.Allocate(size, align)
	if err != nil {
		return api.Range{}, err
	}
	p.mu.Lock()
	p.reserves++
	p.mu.Unlock()
	return r, nil
}

// ReleaseRange implements api.MemoryPool.
func (p *VRAMPool) ReleaseRange(r api.Range) {
	p.alloc.Free(r)
	p.mu.Lock()
	p.releases++
	p.mu.Unlock()
}

// EstablishMapping implements api.MemoryPool. The returned view aliases
// the aperture window; IsDeviceMemory is always true for VRAM.
func (p *VRAMPool) EstablishMapping(r api.Range) (api.Mapping, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.Mapping{}, errors.Wrap(api.ErrDeviceClosed, "vram pool closed")
	}
	if r.End() > uint64(len(p.window)) {
		return api.Mapping{}, errors.Wrapf(api.ErrUnsupported,
			"range [%d,%d) outside vram span of %d bytes", r.Offset, r.End(), len(p.window))
	}
	p.mappings++
	view := p.window[r.Offset:r.End():r.End()]
	return api.NewMapping(view, true), nil
}

// TeardownMapping implements api.MemoryPool. Aperture views carry no
// per-mapping resources; only the accounting changes.
func (p *VRAMPool) TeardownMapping(m api.Mapping) {
	if !m.Valid() {
		return
	}
	p.mu.Lock()
	if p.mappings > 0 {
		p.mappings--
	}
	p.mu.Unlock()
}

// FreeRanges implements api.MemoryPool.
func (p *VRAMPool) FreeRanges() []api.Range { return p.alloc.FreeRanges() }

// Stats implements api.MemoryPool.
func (p *VRAMPool) Stats() api.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return api.PoolStats{
		Capacity: p.alloc.Size(),
		Used:     p.alloc.Used(),
		Reserves: p.reserves,
		Releases: p.releases,
		Mappings: p.mappings,
	}
}

// Close releases the aperture window. Outstanding mappings become
// invalid; the device manager tears them down first.
func (p *VRAMPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	unmapHostRegion(p.window)
	p.window = nil
}
