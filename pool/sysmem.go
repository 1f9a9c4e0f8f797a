// File: pool/sysmem.go
// Package pool implements the system-memory fallback pool.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/momentics/hioload-vram/api"
)

// SystemPool is the spill target for evicted buffer objects. It has no
// fixed capacity: each reservation gets its own host region, keyed by a
// pool-local offset so the rest of the core can treat both pools
// through the same Range-based contract.
type SystemPool struct {
	mu       sync.Mutex
	next     uint64
	backing  map[uint64][]byte
	used     uint64
	reserves uint64
	releases uint64
	mappings uint64
}

var _ api.MemoryPool = (*SystemPool)(nil)

// NewSystemPool creates an empty system pool.
func NewSystemPool() *SystemPool {
	return &SystemPool{backing: make(map[uint64][]byte)}
}

// Kind implements api.MemoryPool.
func (p *SystemPool) Kind() api.PoolType { return api.PoolSystem }

// ReserveRange implements api.MemoryPool.
func (p *SystemPool) ReserveRange(size, align uint64) (api.Range, error) {
	if size == 0 {
		return api.Range{}, errors.Wrap(api.ErrInvalidSize, "zero-size reservation")
	}
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		return api.Range{}, errors.Wrapf(api.ErrInvalidSize, "alignment %d is not a power of two", align)
	}

	data, err := mapHostRegion(size)
	if err != nil {
		return api.Range{}, errors.Wrap(api.ErrOutOfMemory, err.Error())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	offset := (p.next + align - 1) &^ (align - 1)
	p.next = offset + size
	p.backing[offset] = data
	p.used += size
	p.reserves++
	return api.Range{Offset: offset, Size: size}, nil
}

// ReleaseRange implements api.MemoryPool.
func (p *SystemPool) ReleaseRange(r api.Range) {
	p.mu.Lock()
	data, ok := p.backing[r.Offset]
	if ok {
		delete(p.backing, r.Offset)
		p.used -= min(p.used, r.Size)
		p.releases++
	}
	p.mu.Unlock()
	unmapHostRegion(data)
}

// EstablishMapping implements api.MemoryPool. System backings are
// ordinary host memory.
func (p *SystemPool) EstablishMapping(r api.Range) (api.Mapping, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.backing[r.Offset]
	if !ok || uint64(len(data)) < r.Size {
		return api.Mapping{}, errors.Wrapf(api.ErrUnsupported,
			"no system backing at offset %d", r.Offset)
	}
	p.mappings++
	return api.NewMapping(data[:r.Size:r.Size], false), nil
}

// TeardownMapping implements api.MemoryPool.
func (p *SystemPool) TeardownMapping(m api.Mapping) {
	if !m.Valid() {
		return
	}
	p.mu.Lock()
	if p.mappings > 0 {
		p.mappings--
	}
	p.mu.Unlock()
}

// FreeRanges implements api.MemoryPool. The system pool has no fixed
// span, so there is no free list to report.
func (p *SystemPool) FreeRanges() []api.Range { return nil }

// Stats implements api.MemoryPool. Capacity 0 means unbounded.
func (p *SystemPool) Stats() api.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return api.PoolStats{
		Used:     p.used,
		Reserves: p.reserves,
		Releases: p.releases,
		Mappings: p.mappings,
	}
}

// Close releases every backing still held by the pool.
func (p *SystemPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for off, data := range p.backing {
		unmapHostRegion(data)
		delete(p.backing, off)
	}
	p.used = 0
}
