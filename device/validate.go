// File: device/validate.go
// Package device: placement validation and eviction policy.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Validate runs whenever an object's candidate set changes: a new pin
// request, the pressure pass of another object's pin, or a forced move
// to system memory. The caller holds the object's reservation lock;
// victim reservations are taken with TryLock only, so the lock order
// (object outer, pool inner) stays acyclic.

package device

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/momentics/hioload-vram/api"
	"github.com/momentics/hioload-vram/core/bo"
)

// Validate implements bo.Owner.
//
// Candidates are walked in listed order; order encodes preference. The
// current location wins if it still matches any candidate, so nested
// pins and unpin revalidation leave a resident object in place.
func (m *Manager) Validate(obj *bo.Object) error {
	curPool, curRng, curValid := obj.Backing()
	cands := obj.Candidates()

	if curValid {
		for _, pl := range cands {
			if pl.Pool == curPool {
				return nil
			}
		}
	}

	var firstErr error
	for _, pl := range cands {
		rng, err := m.reserveIn(pl.Pool, obj)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.attach(obj, curPool, curRng, curValid, pl.Pool, rng)
		return nil
	}
	if firstErr == nil {
		firstErr = errors.Wrap(api.ErrOutOfSpace, "no placement candidate satisfiable")
	}
	return firstErr
}

// reserveIn reserves pool space for obj, evicting other objects from
// VRAM when the first attempt reports no space.
func (m *Manager) reserveIn(t api.PoolType, obj *bo.Object) (api.Range, error) {
	p := m.Pool(t)
	if p == nil {
		return api.Range{}, errors.Wrapf(api.ErrUnsupported, "unknown pool type %d", int(t))
	}

	rng, err := p.ReserveRange(obj.Size(), obj.Align())
	if err == nil {
		return rng, nil
	}
	if t != api.PoolVRAM || !errors.Is(err, api.ErrOutOfSpace) {
		return api.Range{}, err
	}

	// Pressure pass: relocate unpinned occupants until the reservation
	// fits or no victim remains.
	for {
		victim := m.pickVictim(obj)
		if victim == nil {
			return api.Range{}, err
		}
		ok := m.evictLocked(victim)
		victim.Unreserve()
		if !ok {
			return api.Range{}, err
		}
		rng, rerr := p.ReserveRange(obj.Size(), obj.Align())
		if rerr == nil {
			return rng, nil
		}
		if !errors.Is(rerr, api.ErrOutOfSpace) {
			return api.Range{}, rerr
		}
	}
}

// pickVictim selects the least-recently-unpinned evictable VRAM
// resident and returns it with its reservation held. Contended objects
// are skipped rather than waited on. Returns nil when nothing is
// evictable.
func (m *Manager) pickVictim(requester *bo.Object) *bo.Object {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *bo.Object
	for _, cand := range m.objects {
		if cand == requester {
			continue
		}
		if !cand.TryReserve() {
			continue
		}
		t, _, backed := cand.Backing()
		if !backed || t != api.PoolVRAM || !cand.Evictable() {
			cand.Unreserve()
			continue
		}
		if best == nil || cand.LastUnpin() < best.LastUnpin() {
			if best != nil {
				best.Unreserve()
			}
			best = cand
			continue
		}
		cand.Unreserve()
	}
	return best
}

// evictLocked relocates a victim to system memory. The victim's
// reservation is held by the caller. Eviction strips VRAM eligibility
// from the victim's candidate set and frees its VRAM range.
func (m *Manager) evictLocked(v *bo.Object) bool {
	t, r, backed := v.Backing()
	if !backed || t != api.PoolVRAM {
		return false
	}

	sysRng, err := m.sys.ReserveRange(r.Size, v.Align())
	if err != nil {
		m.log.Warn("eviction spill to system memory failed",
			zap.Uint64("bo", v.ID()), zap.Error(err))
		return false
	}

	m.log.Debug("evicting buffer object to system memory",
		zap.Uint64("bo", v.ID()), zap.Uint64("offset", r.Offset), zap.Uint64("size", r.Size))

	v.ForceSystemPlacement()
	m.copyContents(api.PoolVRAM, r, api.PoolSystem, sysRng)
	// The stale virtual address must die before the range is reassigned.
	v.InvalidateMapping()
	v.DetachBacking()
	m.vram.ReleaseRange(r)
	v.AttachBacking(api.PoolSystem, sysRng)
	return true
}

// attach finalizes a placement decision: moves contents off the old
// backing, invalidates the cached mapping, and records the new result.
func (m *Manager) attach(obj *bo.Object, oldPool api.PoolType, oldRng api.Range, hadOld bool, newPool api.PoolType, newRng api.Range) {
	if hadOld {
		m.copyContents(oldPool, oldRng, newPool, newRng)
		obj.InvalidateMapping()
		obj.DetachBacking()
		m.Pool(oldPool).ReleaseRange(oldRng)
	}
	obj.AttachBacking(newPool, newRng)
	if !obj.MmapOffsetAssigned() {
		obj.SetMmapOffset(m.nextMmapOffset(obj.Size()))
	}
}

// copyContents moves object bytes between backings through transient
// pool mappings.
func (m *Manager) copyContents(srcPool api.PoolType, srcRng api.Range, dstPool api.PoolType, dstRng api.Range) {
	src, err := m.Pool(srcPool).EstablishMapping(srcRng)
	if err != nil {
		m.log.Warn("move source mapping failed", zap.Error(err))
		return
	}
	dst, err := m.Pool(dstPool).EstablishMapping(dstRng)
	if err != nil {
		m.Pool(srcPool).TeardownMapping(src)
		m.log.Warn("move destination mapping failed", zap.Error(err))
		return
	}
	copy(dst.Bytes(), src.Bytes())
	m.Pool(dstPool).TeardownMapping(dst)
	m.Pool(srcPool).TeardownMapping(src)
}

// nextMmapOffset hands out a stable, non-overlapping token from the
// device's mapping offset space. Token 0 stays reserved for "no
// backing allocated yet".
func (m *Manager) nextMmapOffset(size uint64) uint64 {
	end := m.nextMmap.Add(size)
	return end - size + m.pageSize
}
