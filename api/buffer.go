// File: api/buffer.go
// Package api defines the buffer-object contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A buffer object is a reference-counted, placement-aware allocation
// handle. Pool space is reserved lazily on first pin or mapping.

package api

// BufferObject is a placement-aware allocation handle.
//
// Pin, Unpin, Map and Unmap run under the object's reservation lock and
// are safe for concurrent use. Pins nest: repeated Pin calls preserve
// the current pool and ignore the mask argument.
type BufferObject interface {
	// ID returns the device-local object identifier.
	ID() uint64

	// Size returns the page-rounded object size in bytes.
	Size() uint64

	// Pool returns the pool the object currently resides in. Before the
	// first successful placement it reports the preferred candidate.
	Pool() PoolType

	// Pin makes the object non-evictable. A non-empty mask restricts the
	// placement candidates; on repeat pins the mask is ignored. Fails
	// with ErrOutOfSpace when no candidate pool can make room.
	Pin(mask PlacementMask) error

	// Unpin drops one pin. At zero the object becomes evictable again.
	// Unbalanced calls are logged and absorbed.
	Unpin()

	// Map returns a CPU-visible mapping of the whole object. With
	// establish false it only queries: (nil, nil) means not mapped.
	Map(establish bool) (*Mapping, error)

	// Unmap drops one mapping use. The mapping itself is retained until
	// the object moves or is destroyed; see the lazy-unmap note in the
	// implementation.
	Unmap()

	// MmapOffset returns the stable user-visible mapping token, or 0 if
	// no backing has been allocated yet.
	MmapOffset() uint64

	// DeviceOffset returns the pool-local offset. Only meaningful while
	// pinned; fails with ErrNotPinned otherwise.
	DeviceOffset() (int64, error)

	// Ref takes an additional owning reference.
	Ref()

	// Release drops one owning reference; the last one destroys the
	// object and returns its pool range.
	Release()
}
