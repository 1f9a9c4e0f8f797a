// File: engine/gt.go
// Package engine implements the GT container: sanitize and resume.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package engine

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-vram/api"
	"github.com/momentics/hioload-vram/power"
)

// HardwareInfo carries the capability flags consulted by Sanitize.
type HardwareInfo struct {
	// ResetClobbersDisplay: a GPU reset would take the display down
	// with it, so Sanitize must not attempt one.
	ResetClobbersDisplay bool
}

// Config parameterizes the GT container.
type Config struct {
	Engines []*Engine
	Wake    *power.Controller
	HW      HardwareInfo
	// Reset attempts a hardware reset of all engines, returning true on
	// success. Nil counts as success (test/mock devices).
	Reset func() bool
	// DisablePowersave is invoked by PMDisable on suspend paths.
	DisablePowersave func()
	Logger           *zap.Logger
}

// GT aggregates the device's engines and its wake controller.
type GT struct {
	engines []*Engine
	wake    *power.Controller
	hw      HardwareInfo
	reset   func() bool
	disable func()
	log     *zap.Logger
}

// NewGT creates the GT container.
func NewGT(cfg Config) *GT {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &GT{
		engines: cfg.Engines,
		wake:    cfg.Wake,
		hw:      cfg.HW,
		reset:   cfg.Reset,
		disable: cfg.DisablePowersave,
		log:     cfg.Logger,
	}
}

// Engines returns the engine list.
func (gt *GT) Engines() []*Engine { return gt.engines }

func (gt *GT) resetEngines() bool {
	if gt.hw.ResetClobbersDisplay {
		return false
	}
	if gt.reset == nil {
		return true
	}
	return gt.reset()
}

// Sanitize restores engine tracking after the GPU lost power. Anytime
// the GPU resets, explicitly or through a power cycle, it loses state
// and the tracking must match. Calling Sanitize without a real reset
// having occurred corrupts that tracking.
func (gt *GT) Sanitize(force bool) {
	if !gt.resetEngines() && !force {
		return
	}
	for _, e := range gt.engines {
		e.sanitize()
	}
}

// Resume pokes the retained kernel contexts to paper over any damage
// from the sudden suspend, then restarts each engine. The first resume
// failure aborts the loop: engines after the failing one stay
// un-resumed, since continuing with partial state risks corruption.
// The owning system decides whether to retry device-wide.
func (gt *GT) Resume() error {
	if err := gt.wake.Acquire(); err != nil {
		return err
	}
	defer gt.wake.Release()

	for _, e := range gt.engines {
		if ce := e.kernelCtx; ce != nil {
			if !ce.Pinned() {
				gt.log.Warn("kernel context not pinned across suspend",
					zap.String("engine", e.name))
			}
			ce.Reset()
		}
		e.bumpSerial() // kernel context lost
		if e.resume != nil {
			if err := e.resume(); err != nil {
				gt.log.Error("failed to restart engine",
					zap.String("engine", e.name), zap.Error(err))
				return api.NewError(api.ErrCodeInternal, "engine restart failed").
					WithContext("engine", e.name).
					WithCause(err)
			}
		}
	}
	return nil
}

// PMEnable forces a kernel context reload on every engine by bumping
// serials inside a short wake reference.
func (gt *GT) PMEnable() error {
	if err := gt.wake.Acquire(); err != nil {
		return err
	}
	for _, e := range gt.engines {
		e.bumpSerial()
	}
	gt.wake.Release()
	return nil
}

// PMDisable turns power saving off ahead of suspend.
func (gt *GT) PMDisable() {
	if gt.disable != nil {
		gt.disable()
	}
}
