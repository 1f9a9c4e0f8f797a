// File: api/types.go
// Package api defines placement, range and mapping value types.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// PoolType identifies a backing store for buffer objects.
type PoolType int

const (
	// PoolSystem is ordinary host memory used as spill/fallback space.
	PoolSystem PoolType = iota
	// PoolVRAM is the dedicated on-device memory pool.
	PoolVRAM
)

// String returns a human-readable pool name.
func (t PoolType) String() string {
	switch t {
	case PoolSystem:
		return "system"
	case PoolVRAM:
		return "vram"
	default:
		return "unknown"
	}
}

// Range is a pool-local byte range.
type Range struct {
	Offset uint64
	Size   uint64
}

// End returns the first byte past the range.
func (r Range) End() uint64 { return r.Offset + r.Size }

// CachingMode selects the CPU caching attributes of a placement.
type CachingMode int

const (
	// CachingDefault uses the pool's preferred caching (cached host memory).
	CachingDefault CachingMode = iota
	// CachingWriteCombined is the usual mode for device-memory apertures.
	CachingWriteCombined
	// CachingUncached disables CPU caching entirely.
	CachingUncached
)

// Placement is one candidate location a buffer object may legally occupy.
// The candidate list is ordered: earlier entries are preferred.
type Placement struct {
	Pool    PoolType
	Caching CachingMode
	// NoEvict marks the candidate non-evictable while the object is pinned.
	NoEvict bool
}

// PlacementMask is a bit-set of pools a caller allows for a pin request.
type PlacementMask uint32

const (
	// MaskSystem allows placement in system memory.
	MaskSystem PlacementMask = 1 << iota
	// MaskVRAM allows placement in video memory.
	MaskVRAM
)

// PlacementsFromMask expands a mask into an ordered candidate list,
// VRAM first. An empty mask defaults to system-memory placement; the
// returned list is never empty.
func PlacementsFromMask(mask PlacementMask) []Placement {
	var pls []Placement
	if mask&MaskVRAM != 0 {
		pls = append(pls, Placement{Pool: PoolVRAM, Caching: CachingWriteCombined})
	}
	if mask&MaskSystem != 0 {
		pls = append(pls, Placement{Pool: PoolSystem, Caching: CachingDefault})
	}
	if len(pls) == 0 {
		pls = append(pls, Placement{Pool: PoolSystem, Caching: CachingDefault})
	}
	return pls
}

// Mapping is a CPU-visible view of a reserved range.
//
// IsDeviceMemory tells the caller which access path is required: device
// (I/O) memory must not be handed to routines that assume ordinary
// host-memory semantics.
type Mapping struct {
	Addr           uintptr
	IsDeviceMemory bool

	data []byte
}

// NewMapping builds a mapping over a live byte view. Used by pool
// implementations only.
func NewMapping(data []byte, isDeviceMemory bool) Mapping {
	m := Mapping{IsDeviceMemory: isDeviceMemory, data: data}
	if len(data) > 0 {
		m.Addr = bytesAddr(data)
	}
	return m
}

// Bytes returns the mapped view. Valid until the mapping is torn down.
func (m Mapping) Bytes() []byte { return m.data }

// Valid reports whether the mapping refers to live memory.
func (m Mapping) Valid() bool { return m.data != nil }

// PoolStats aggregates accounting for one pool.
type PoolStats struct {
	Capacity uint64
	Used     uint64
	Reserves uint64
	Releases uint64
	Mappings uint64
}
