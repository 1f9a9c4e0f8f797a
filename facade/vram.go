// File: facade/vram.go
// Unified facade layer for the hioload-vram library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// This file defines the VRAM struct, which aggregates the core
// components of hioload-vram behind a single facade: the device memory
// manager, the wake/park controller, the GT engine container, the
// handle table, and the control interfaces (metrics registry, debug
// probes). All buffer operations are exposed handle-based, the way a
// process-facing driver layer would call into this core.

package facade

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-vram/api"
	"github.com/momentics/hioload-vram/control"
	"github.com/momentics/hioload-vram/core/bo"
	"github.com/momentics/hioload-vram/device"
	"github.com/momentics/hioload-vram/engine"
	"github.com/momentics/hioload-vram/power"
)

// Config holds parameters immutable per device instance.
type Config struct {
	VRAMBase          uint64                 // Device base address of the VRAM range
	VRAMSize          uint64                 // VRAM capacity in bytes
	PageSize          uint64                 // Pool page granularity (0 = 4 KiB)
	ParkGrace         time.Duration          // Delay before the deferred park runs
	HangcheckInterval time.Duration          // Hangcheck timer period (0 = disabled)
	Engines           []*engine.Engine       // Device engines; defaulted when nil
	PowerDomains      api.PowerDomainService // Host power-domain provider
	ResetEngines      func() bool            // Hardware reset primitive
	HW                engine.HardwareInfo    // Capability flags
	EnableMetrics     bool                   // Publish pool/wake metrics
	EnableDebug       bool                   // Register debug probes
	Logger            *zap.Logger            // zap.NewNop when nil
}

// DefaultConfig returns defaults good enough for tests and mock
// devices: 256 MiB of VRAM and a single render engine.
func DefaultConfig() *Config {
	return &Config{
		VRAMBase:      0xE000_0000,
		VRAMSize:      256 << 20,
		PageSize:      device.DefaultPageSize,
		ParkGrace:     power.DefaultParkGrace,
		EnableMetrics: true,
		EnableDebug:   true,
	}
}

// VRAM is the main facade type, the per-device lifecycle root.
type VRAM struct {
	mgr     *device.Manager
	wake    *power.Controller
	gt      *engine.GT
	metrics *control.MetricsRegistry
	probes  *control.DebugProbes
	handles *handleTable
	config  *Config

	mu     sync.Mutex
	closed bool
}

// New constructs the facade and wires its subsystems together.
func New(cfg *Config) (*VRAM, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	mgr, err := device.New(device.Config{
		VRAMBase: cfg.VRAMBase,
		VRAMSize: cfg.VRAMSize,
		PageSize: cfg.PageSize,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	v := &VRAM{
		mgr:     mgr,
		metrics: control.NewMetricsRegistry(),
		probes:  control.NewDebugProbes(),
		handles: newHandleTable(),
		config:  cfg,
	}

	v.wake = power.NewController(power.Config{
		Domains:           cfg.PowerDomains,
		Domain:            api.DomainGTIRQ,
		Grace:             cfg.ParkGrace,
		HangcheckInterval: cfg.HangcheckInterval,
		Logger:            cfg.Logger,
		Hooks: power.Hooks{
			EnablePowersave:  func() { v.metrics.Set("powersave.enabled", true) },
			DisablePowersave: func() { v.metrics.Set("powersave.enabled", false) },
			RefreshCounters:  func() { v.metrics.Inc("gpu.counters.refresh") },
			FlushInterrupts:  func() { v.metrics.Inc("irq.flush") },
			Hangcheck:        func() { v.metrics.Inc("hangcheck.fired") },
		},
	})

	engines := cfg.Engines
	if engines == nil {
		engines = []*engine.Engine{
			engine.NewEngine("rcs0", engine.NewKernelContext(), nil),
		}
	}
	v.gt = engine.NewGT(engine.Config{
		Engines: engines,
		Wake:    v.wake,
		HW:      cfg.HW,
		Reset:   cfg.ResetEngines,
		Logger:  cfg.Logger,
	})

	if cfg.EnableMetrics {
		v.wake.Subscribe(func(ev api.WakeEvent) {
			switch ev {
			case api.EventUnparked:
				v.metrics.Inc("wake.unparked")
			case api.EventParked:
				v.metrics.Inc("wake.parked")
			}
		})
	}
	if cfg.EnableDebug {
		v.probes.RegisterProbe("vram-mm", func() any { return v.mgr.FreeRangeDump() })
		v.probes.RegisterProbe("vram-stats", func() any { return v.mgr.VRAMStats() })
		v.probes.RegisterProbe("objects", func() any { return v.mgr.ObjectCount() })
		v.probes.RegisterProbe("wake-state", func() any { return v.wake.State().String() })
	}

	return v, nil
}

// CreateBuffer creates a buffer object and returns its handle.
func (v *VRAM) CreateBuffer(size, align uint64) (Handle, error) {
	obj, err := v.mgr.CreateBuffer(size, align)
	if err != nil {
		return 0, err
	}
	return v.handles.insert(obj), nil
}

// DestroyBuffer drops the handle's owning reference.
func (v *VRAM) DestroyBuffer(h Handle) error {
	obj, ok := v.handles.remove(h)
	if !ok {
		return ErrUnknownHandle
	}
	obj.Release()
	return nil
}

// withObject runs fn on the handle's object under a short-lived
// reference.
func (v *VRAM) withObject(h Handle, fn func(*bo.Object) error) error {
	obj, ok := v.handles.get(h)
	if !ok {
		return ErrUnknownHandle
	}
	defer obj.Release()
	return fn(obj)
}

// Pin pins the handle's object, optionally restricting placement.
func (v *VRAM) Pin(h Handle, mask api.PlacementMask) error {
	return v.withObject(h, func(obj *bo.Object) error {
		return obj.Pin(mask)
	})
}

// Unpin drops one pin from the handle's object.
func (v *VRAM) Unpin(h Handle) error {
	return v.withObject(h, func(obj *bo.Object) error {
		obj.Unpin()
		return nil
	})
}

// Map maps the handle's object for CPU access.
func (v *VRAM) Map(h Handle, establish bool) (*api.Mapping, error) {
	var m *api.Mapping
	err := v.withObject(h, func(obj *bo.Object) error {
		var err error
		m, err = obj.Map(establish)
		return err
	})
	return m, err
}

// Unmap drops one mapping use from the handle's object.
func (v *VRAM) Unmap(h Handle) error {
	return v.withObject(h, func(obj *bo.Object) error {
		obj.Unmap()
		return nil
	})
}

// MmapOffset returns the stable user-visible mapping token.
func (v *VRAM) MmapOffset(h Handle) (uint64, error) {
	var off uint64
	err := v.withObject(h, func(obj *bo.Object) error {
		off = obj.MmapOffset()
		return nil
	})
	return off, err
}

// DeviceOffset returns the pool-local offset of a pinned object.
func (v *VRAM) DeviceOffset(h Handle) (int64, error) {
	var off int64
	err := v.withObject(h, func(obj *bo.Object) error {
		var err error
		off, err = obj.DeviceOffset()
		return err
	})
	return off, err
}

// AcquireWake takes a wake reference on the device.
func (v *VRAM) AcquireWake() error { return v.wake.Acquire() }

// ReleaseWake drops a wake reference.
func (v *VRAM) ReleaseWake() { v.wake.Release() }

// Sanitize restores engine tracking after a reset or power loss.
func (v *VRAM) Sanitize(force bool) { v.gt.Sanitize(force) }

// Resume restarts the engines after Sanitize.
func (v *VRAM) Resume() error { return v.gt.Resume() }

// Wake exposes the wake controller.
func (v *VRAM) Wake() *power.Controller { return v.wake }

// Manager exposes the device memory manager.
func (v *VRAM) Manager() *device.Manager { return v.mgr }

// GT exposes the engine container.
func (v *VRAM) GT() *engine.GT { return v.gt }

// Metrics exposes the metrics registry.
func (v *VRAM) Metrics() *control.MetricsRegistry { return v.metrics }

// Probes exposes the debug probe registry.
func (v *VRAM) Probes() *control.DebugProbes { return v.probes }

// HandleCount returns the number of live handles.
func (v *VRAM) HandleCount() int { return v.handles.count() }

// Shutdown tears the device down: remaining handles are released, the
// pending park (if any) is flushed, and the pools are reclaimed.
// Calling Shutdown twice is a no-op.
func (v *VRAM) Shutdown() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.mu.Unlock()

	for _, obj := range v.handles.drain() {
		obj.Release()
	}
	v.wake.Close()
	return v.mgr.Close()
}
