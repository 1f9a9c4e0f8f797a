// File: core/bo/reservation.go
// Package bo: device-manager access under the reservation lock.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The methods in this file exist for the device package. Unless noted
// otherwise they require the reservation lock: either the caller is
// inside an Owner callback (the object's own lock is held for it), or
// it won the lock through TryReserve on a foreign object.

package bo

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-vram/api"
)

// TryReserve attempts the reservation lock without blocking. Eviction
// uses it on victim objects so the object-outer/pool-inner lock order
// stays acyclic; a contended victim is skipped, not waited on.
func (o *Object) TryReserve() bool { return o.resv.TryLock() }

// Unreserve drops a reservation taken via TryReserve.
func (o *Object) Unreserve() { o.resv.Unlock() }

// Candidates returns a copy of the placement candidate list.
func (o *Object) Candidates() []api.Placement {
	out := make([]api.Placement, len(o.placements))
	copy(out, o.placements)
	return out
}

// Backing returns the current placement result.
func (o *Object) Backing() (api.PoolType, api.Range, bool) {
	return o.pool, o.rng, o.backed
}

// AttachBacking records a new placement result. The previous backing,
// if any, must have been detached already.
func (o *Object) AttachBacking(t api.PoolType, r api.Range) {
	o.pool = t
	o.rng = r
	o.backed = true
}

// DetachBacking clears the placement result.
func (o *Object) DetachBacking() {
	o.backed = false
	o.rng = api.Range{}
}

// SetMmapOffset assigns the stable user-visible mapping token. Only the
// first assignment sticks; the token survives pool moves.
func (o *Object) SetMmapOffset(off uint64) {
	if o.mmapOff == 0 {
		o.mmapOff = off
	}
}

// MmapOffsetAssigned reports whether the mapping token is already set.
func (o *Object) MmapOffsetAssigned() bool { return o.mmapOff != 0 }

// InvalidateMapping tears down the cached CPU mapping before the
// backing changes. A live mapping use at this point is a caller bug:
// the stale virtual address would alias reassigned memory.
func (o *Object) InvalidateMapping() {
	if o.mapping == nil {
		return
	}
	if o.mapUse > 0 {
		o.log.Warn("invalidating mapping with live users",
			zap.Uint64("bo", o.id), zap.Int("map_use_count", o.mapUse))
	}
	o.owner.Pool(o.pool).TeardownMapping(*o.mapping)
	o.mapping = nil
}

// ForceSystemPlacement strips VRAM eligibility; eviction moves the
// victim to the system-memory-only candidate set.
func (o *Object) ForceSystemPlacement() {
	o.placements = api.PlacementsFromMask(api.MaskSystem)
}

// Evictable reports whether the object may be relocated: it must hold a
// backing, be unpinned and carry no no-evict candidate.
func (o *Object) Evictable() bool {
	if !o.backed || o.pinCount > 0 {
		return false
	}
	for _, pl := range o.placements {
		if pl.NoEvict {
			return false
		}
	}
	return true
}

// LastUnpin returns the eviction-order stamp (monotonic sequence set
// when pin_count last returned to zero).
func (o *Object) LastUnpin() uint64 { return o.lastUnpin }

// StampUnpin records the eviction-order stamp.
func (o *Object) StampUnpin(seq uint64) { o.lastUnpin = seq }
