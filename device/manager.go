// File: device/manager.go
// Package device implements the per-device memory manager.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The manager is the lifecycle root for one device: it owns the VRAM
// and system pools, the buffer-object registry, and the placement
// validation algorithm including eviction. One instance per device,
// passed by reference to everything that needs it; there is no hidden
// process-wide state.

package device

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/momentics/hioload-vram/api"
	"github.com/momentics/hioload-vram/core/bo"
	"github.com/momentics/hioload-vram/pool"
)

// DefaultPageSize is the pool page granularity used when the config
// leaves it unset.
const DefaultPageSize = 4096

// Config carries device parameters fixed at initialization.
type Config struct {
	VRAMBase uint64
	VRAMSize uint64
	PageSize uint64 // power of two; DefaultPageSize when zero
	Logger   *zap.Logger
}

// Manager owns the pools and the buffer-object registry of one device.
type Manager struct {
	pageSize uint64
	vram     *pool.VRAMPool
	sys      *pool.SystemPool
	log      *zap.Logger

	mu      sync.RWMutex
	objects map[uint64]*bo.Object
	closed  bool

	nextID   atomic.Uint64
	nextMmap atomic.Uint64
	unpinSeq atomic.Uint64
}

var _ bo.Owner = (*Manager)(nil)

// New creates the device memory manager.
func New(cfg Config) (*Manager, error) {
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize&(cfg.PageSize-1) != 0 {
		return nil, errors.Wrapf(api.ErrInvalidSize, "page size %d is not a power of two", cfg.PageSize)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	vram, err := pool.NewVRAMPool(cfg.VRAMBase, cfg.VRAMSize)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		pageSize: cfg.PageSize,
		vram:     vram,
		sys:      pool.NewSystemPool(),
		log:      cfg.Logger,
		objects:  make(map[uint64]*bo.Object),
	}
	return m, nil
}

// CreateBuffer creates a buffer object with the default dual placement.
// Size is rounded up to the page granularity; a rounded size of zero
// fails with ErrInvalidSize. No pool space is reserved yet.
func (m *Manager) CreateBuffer(size, align uint64) (*bo.Object, error) {
	rounded := (size + m.pageSize - 1) &^ (m.pageSize - 1)
	if rounded == 0 || rounded < size {
		return nil, errors.Wrapf(api.ErrInvalidSize, "requested size %d", size)
	}
	if align == 0 {
		align = m.pageSize
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, api.ErrDeviceClosed
	}
	obj := bo.New(m.nextID.Add(1), rounded, align, m, m.log)
	m.objects[obj.ID()] = obj
	return obj, nil
}

// Pool implements bo.Owner.
func (m *Manager) Pool(t api.PoolType) api.MemoryPool {
	switch t {
	case api.PoolVRAM:
		return m.vram
	case api.PoolSystem:
		return m.sys
	default:
		return nil
	}
}

// NoteUnpinned implements bo.Owner: least-recently-unpinned ordering
// for eviction victim selection.
func (m *Manager) NoteUnpinned(obj *bo.Object) {
	obj.StampUnpin(m.unpinSeq.Add(1))
}

// ReleaseBacking implements bo.Owner.
func (m *Manager) ReleaseBacking(obj *bo.Object) {
	t, r, ok := obj.Backing()
	if !ok {
		return
	}
	obj.DetachBacking()
	m.Pool(t).ReleaseRange(r)
}

// Forget implements bo.Owner.
func (m *Manager) Forget(obj *bo.Object) {
	m.mu.Lock()
	delete(m.objects, obj.ID())
	m.mu.Unlock()
}

// ObjectCount returns the number of live buffer objects.
func (m *Manager) ObjectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// FreeRangeDump returns a read-only snapshot of the VRAM free list.
// Diagnostics only; the debugfs analog of the original helper.
func (m *Manager) FreeRangeDump() []api.Range {
	return m.vram.FreeRanges()
}

// VRAMStats returns accounting for the VRAM pool.
func (m *Manager) VRAMStats() api.PoolStats { return m.vram.Stats() }

// SystemStats returns accounting for the system pool.
func (m *Manager) SystemStats() api.PoolStats { return m.sys.Stats() }

// PageSize returns the pool page granularity.
func (m *Manager) PageSize() uint64 { return m.pageSize }

// Close tears the device down. Outstanding buffer objects indicate a
// caller bug: it is reported loudly, but the pools are reclaimed
// regardless so the device can go away.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	n := len(m.objects)
	m.mu.Unlock()

	var err error
	if n > 0 {
		m.log.Warn("device teardown with outstanding buffer objects", zap.Int("count", n))
		err = errors.Wrapf(api.ErrBusy, "%d buffer objects outstanding at teardown", n)
	}
	m.vram.Close()
	m.sys.Close()
	return err
}
