// File: api/pool.go
// Package api defines the memory-pool capability.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// MemoryPool abstracts one backing store for buffer objects: the VRAM
// address range or the system-memory fallback. The page-table machinery
// behind EstablishMapping is opaque to the core.
type MemoryPool interface {
	// Kind identifies the pool.
	Kind() PoolType

	// ReserveRange allocates size bytes at the given alignment.
	// Returns ErrOutOfSpace when no free range fits and ErrInvalidSize
	// for a zero size or non-power-of-two alignment.
	ReserveRange(size, align uint64) (Range, error)

	// ReleaseRange returns a previously reserved range to the pool.
	ReleaseRange(r Range)

	// EstablishMapping creates a CPU-visible view of a reserved range.
	EstablishMapping(r Range) (Mapping, error)

	// TeardownMapping releases a view obtained from EstablishMapping.
	TeardownMapping(m Mapping)

	// FreeRanges returns a read-only snapshot of the pool's free list,
	// for diagnostics only.
	FreeRanges() []Range

	// Stats exposes accounting for observability.
	Stats() PoolStats
}
