// File: core/bo/object.go
// Package bo implements the placement-aware buffer object.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A buffer object owns its allocation record (size, alignment) and an
// ordered list of placement candidates. Pool space is reserved lazily:
// creation does not touch the pools, the first pin or mapping does.
//
// Lock order: the object's reservation lock is always outer, pool locks
// inner. Placement decisions (Owner.Validate) run with the reservation
// held by the caller.

package bo

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/momentics/hioload-vram/api"
)

// Owner is the device-level manager responsible for placement and
// registry bookkeeping. Every callback runs with the object's
// reservation lock held by the caller.
type Owner interface {
	// Validate places the object according to its candidate list,
	// evicting other objects if needed.
	Validate(obj *Object) error

	// ReleaseBacking returns the object's pool range, if any.
	ReleaseBacking(obj *Object)

	// Pool resolves a pool type to its implementation.
	Pool(t api.PoolType) api.MemoryPool

	// NoteUnpinned stamps eviction order when pin_count returns to zero.
	NoteUnpinned(obj *Object)

	// Forget unregisters the object after its last reference dropped.
	// Called without the reservation lock.
	Forget(obj *Object)
}

// Object is a reference-counted buffer object.
type Object struct {
	id    uint64
	size  uint64
	align uint64
	owner Owner
	log   *zap.Logger

	refs atomic.Int64

	resv       sync.Mutex // reservation lock
	placements []api.Placement
	pinCount   int
	mapUse     int
	mapping    *api.Mapping
	backed     bool
	pool       api.PoolType
	rng        api.Range
	mmapOff    uint64
	lastUnpin  uint64
}

var _ api.BufferObject = (*Object)(nil)

// New creates an object with the default dual placement: VRAM
// preferred, system memory as fallback. The caller (device manager) has
// already page-rounded size. The returned object holds one reference.
func New(id, size, align uint64, owner Owner, log *zap.Logger) *Object {
	o := &Object{
		id:         id,
		size:       size,
		align:      align,
		owner:      owner,
		log:        log,
		placements: api.PlacementsFromMask(api.MaskVRAM | api.MaskSystem),
	}
	o.refs.Store(1)
	return o
}

// ID implements api.BufferObject.
func (o *Object) ID() uint64 { return o.id }

// Size implements api.BufferObject.
func (o *Object) Size() uint64 { return o.size }

// Align returns the byte alignment requirement.
func (o *Object) Align() uint64 { return o.align }

// Pool implements api.BufferObject.
func (o *Object) Pool() api.PoolType {
	o.resv.Lock()
	defer o.resv.Unlock()
	if o.backed {
		return o.pool
	}
	return o.placements[0].Pool
}

// Pin implements api.BufferObject. Pins are reentrant: a pinned object
// stays in its current pool and the mask argument is ignored.
func (o *Object) Pin(mask api.PlacementMask) error {
	o.resv.Lock()
	defer o.resv.Unlock()

	if o.pinCount > 0 {
		o.pinCount++
		return nil
	}

	if mask != 0 {
		o.placements = api.PlacementsFromMask(mask)
	}
	for i := range o.placements {
		o.placements[i].NoEvict = true
	}
	if err := o.owner.Validate(o); err != nil {
		for i := range o.placements {
			o.placements[i].NoEvict = false
		}
		return err
	}
	o.pinCount = 1
	return nil
}

// Unpin implements api.BufferObject. At pin_count zero the no-evict
// flags are cleared and placement is revalidated best-effort: a failure
// here is logged, never propagated, since the object can stay in place
// and remains a future eviction candidate.
func (o *Object) Unpin() {
	o.resv.Lock()
	defer o.resv.Unlock()

	if o.pinCount == 0 {
		o.log.Warn("unpin without matching pin", zap.Uint64("bo", o.id))
		return
	}
	o.pinCount--
	if o.pinCount > 0 {
		return
	}

	for i := range o.placements {
		o.placements[i].NoEvict = false
	}
	o.owner.NoteUnpinned(o)
	if err := o.owner.Validate(o); err != nil {
		o.log.Warn("revalidation after unpin failed, object stays in place",
			zap.Uint64("bo", o.id), zap.Error(err))
	}
}

// Map implements api.BufferObject. With establish false the call is a
// pure query: (nil, nil) means no live or cached mapping exists.
func (o *Object) Map(establish bool) (*api.Mapping, error) {
	o.resv.Lock()
	defer o.resv.Unlock()

	if o.mapping != nil {
		o.mapUse++
		return o.mapping, nil
	}
	if !establish {
		return nil, nil
	}
	if !o.backed {
		if err := o.owner.Validate(o); err != nil {
			return nil, err
		}
	}
	m, err := o.owner.Pool(o.pool).EstablishMapping(o.rng)
	if err != nil {
		return nil, err
	}
	o.mapping = &m
	o.mapUse++
	return o.mapping, nil
}

// Unmap implements api.BufferObject.
//
// Reaching zero does not tear the mapping down: repeated map/unmap on
// hot paths would churn the page tables for nothing. The mapping is
// retained until the object moves pools or is destroyed.
func (o *Object) Unmap() {
	o.resv.Lock()
	defer o.resv.Unlock()

	if o.mapUse == 0 {
		o.log.Warn("unmap without matching map", zap.Uint64("bo", o.id))
		return
	}
	o.mapUse--
}

// MmapOffset implements api.BufferObject.
func (o *Object) MmapOffset() uint64 {
	o.resv.Lock()
	defer o.resv.Unlock()
	return o.mmapOff
}

// DeviceOffset implements api.BufferObject. The physical offset is only
// stable while pinned.
func (o *Object) DeviceOffset() (int64, error) {
	o.resv.Lock()
	defer o.resv.Unlock()
	if o.pinCount == 0 {
		return 0, api.ErrNotPinned
	}
	return int64(o.rng.Offset), nil
}

// Ref implements api.BufferObject.
func (o *Object) Ref() { o.refs.Add(1) }

// Release implements api.BufferObject.
func (o *Object) Release() {
	if o.refs.Add(-1) > 0 {
		return
	}
	o.destroy()
}

func (o *Object) destroy() {
	o.resv.Lock()
	if o.pinCount != 0 || o.mapUse != 0 {
		o.log.Warn("destroying buffer object with live users",
			zap.Uint64("bo", o.id),
			zap.Int("pin_count", o.pinCount),
			zap.Int("map_use_count", o.mapUse))
		o.pinCount = 0
		o.mapUse = 0
	}
	o.InvalidateMapping()
	o.owner.ReleaseBacking(o)
	o.resv.Unlock()
	o.owner.Forget(o)
}

// PinCount returns the current pin count.
func (o *Object) PinCount() int {
	o.resv.Lock()
	defer o.resv.Unlock()
	return o.pinCount
}

// MapUseCount returns the current mapping use count.
func (o *Object) MapUseCount() int {
	o.resv.Lock()
	defer o.resv.Unlock()
	return o.mapUse
}
