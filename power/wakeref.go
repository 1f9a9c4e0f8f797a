// File: power/wakeref.go
// Package power implements the reference-counted wake state machine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// States: PARKED -> WAKING -> AWAKE -> PARKING -> PARKED. The first
// acquire performs the unpark side effects exactly once; concurrent
// acquirers block until AWAKE. The last release schedules the park on
// the deferred worker, where a racing acquire can still cancel it: the
// park commits only if its generation (epoch) is untouched. Once
// committed, a racing acquire waits for PARKED and then performs a full
// unpark, so neither side's effects ever run twice or interleave.

package power

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-vram/api"
)

// DefaultParkGrace is the delay between the last release and the park
// side effects when the config leaves it unset.
const DefaultParkGrace = 50 * time.Millisecond

// Hooks carries the device-specific unpark/park side effects. Nil
// entries are skipped.
type Hooks struct {
	EnablePowersave  func()
	DisablePowersave func()
	RefreshCounters  func()
	FlushInterrupts  func()
	Hangcheck        func()
}

// Config parameterizes a Controller.
type Config struct {
	Domains api.PowerDomainService // in-process DomainService when nil
	Domain  api.PowerDomain
	Grace   time.Duration // park delay; DefaultParkGrace when zero, <0 means none
	// HangcheckInterval arms Hooks.Hangcheck after each unpark; zero
	// disables the timer.
	HangcheckInterval time.Duration
	Hooks             Hooks
	Logger            *zap.Logger
}

// Controller is the per-device wake/park state machine.
type Controller struct {
	cfg      Config
	notifier *Notifier
	worker   *Worker

	mu        sync.Mutex
	cond      *sync.Cond
	state     api.WakeState
	count     int
	epoch     uint64
	committed bool
	token     api.PowerDomainToken
	hangcheck *time.Timer

	unparks atomic.Uint64
	parks   atomic.Uint64
}

var _ api.WakeController = (*Controller)(nil)

// NewController creates a Controller in the PARKED state.
func NewController(cfg Config) *Controller {
	if cfg.Domains == nil {
		cfg.Domains = NewDomainService()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	switch {
	case cfg.Grace == 0:
		cfg.Grace = DefaultParkGrace
	case cfg.Grace < 0:
		cfg.Grace = 0
	}
	c := &Controller{
		cfg:      cfg,
		notifier: NewNotifier(),
		worker:   NewWorker(),
		state:    api.WakeParked,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Acquire implements api.WakeController.
func (c *Controller) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		switch c.state {
		case api.WakeAwake:
			c.count++
			return nil

		case api.WakeParking:
			if c.committed {
				// Too late to cancel; wait for PARKED, then unpark.
				c.cond.Wait()
				continue
			}
			// Cancellation wins: the pending park observes the epoch
			// bump and aborts without running any side effects.
			c.epoch++
			c.state = api.WakeAwake
			c.count++
			return nil

		case api.WakeWaking:
			// Another thread runs the unpark side effects; coalesce.
			c.cond.Wait()

		case api.WakeParked:
			c.state = api.WakeWaking
			c.mu.Unlock()
			tok, err := c.unpark()
			c.mu.Lock()
			if err != nil {
				c.state = api.WakeParked
				c.cond.Broadcast()
				return err
			}
			c.token = tok
			c.state = api.WakeAwake
			c.count = 1
			c.cond.Broadcast()
			return nil
		}
	}
}

// Release implements api.WakeController.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		c.cfg.Logger.Warn("wake release without matching acquire")
		return
	}
	c.count--
	if c.count > 0 {
		return
	}

	c.state = api.WakeParking
	c.epoch++
	e := c.epoch
	if err := c.worker.Submit(c.cfg.Grace, func() { c.park(e) }); err != nil {
		c.cfg.Logger.Warn("park scheduling failed", zap.Error(err))
	}
}

// unpark runs the wake side effects. Exactly one thread is here at a
// time (state WAKING).
func (c *Controller) unpark() (api.PowerDomainToken, error) {
	// Hold the GT IRQ power well for as long as there is any activity:
	// DC state churn during submission otherwise wrecks interrupt
	// latency.
	tok, err := c.cfg.Domains.Acquire(c.cfg.Domain)
	if err != nil {
		return 0, err
	}
	callHook(c.cfg.Hooks.EnablePowersave)
	callHook(c.cfg.Hooks.RefreshCounters)
	c.notifier.Notify(api.EventUnparked)
	c.armHangcheck()
	c.unparks.Add(1)
	c.cfg.Logger.Debug("gt unparked")
	return tok, nil
}

// park runs on the deferred worker. It commits only if no acquire
// cancelled this generation in the meantime.
func (c *Controller) park(epoch uint64) {
	c.mu.Lock()
	if c.state != api.WakeParking || c.epoch != epoch || c.count != 0 {
		c.mu.Unlock()
		return
	}
	c.committed = true
	tok := c.token
	c.mu.Unlock()

	// Subscribers hear about the park before powersave goes away.
	c.notifier.Notify(api.EventParked)
	callHook(c.cfg.Hooks.DisablePowersave)
	// Everything switched off, flush any residual interrupt.
	callHook(c.cfg.Hooks.FlushInterrupts)
	c.cfg.Domains.Release(c.cfg.Domain, tok)
	c.disarmHangcheck()
	c.parks.Add(1)
	c.cfg.Logger.Debug("gt parked")

	c.mu.Lock()
	c.committed = false
	c.state = api.WakeParked
	c.cond.Broadcast()
	c.mu.Unlock()
}

// State implements api.WakeController.
func (c *Controller) State() api.WakeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Counter returns the current wake reference count.
func (c *Controller) Counter() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Subscribe implements api.WakeController.
func (c *Controller) Subscribe(fn func(api.WakeEvent)) api.SubscriptionToken {
	return c.notifier.Subscribe(fn)
}

// Unsubscribe implements api.WakeController.
func (c *Controller) Unsubscribe(tok api.SubscriptionToken) {
	c.notifier.Unsubscribe(tok)
}

// Unparks returns the number of unpark side-effect invocations.
func (c *Controller) Unparks() uint64 { return c.unparks.Load() }

// Parks returns the number of committed park side-effect invocations.
func (c *Controller) Parks() uint64 { return c.parks.Load() }

// Close flushes the deferred worker. Callers drop their wake
// references first; a pending park still executes.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.count > 0 {
		c.cfg.Logger.Warn("wake controller closed with references held",
			zap.Int("count", c.count))
	}
	c.mu.Unlock()
	c.worker.Close()
	c.disarmHangcheck()
}

func (c *Controller) armHangcheck() {
	if c.cfg.HangcheckInterval <= 0 || c.cfg.Hooks.Hangcheck == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hangcheck != nil {
		c.hangcheck.Stop()
	}
	c.hangcheck = time.AfterFunc(c.cfg.HangcheckInterval, c.cfg.Hooks.Hangcheck)
}

func (c *Controller) disarmHangcheck() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hangcheck != nil {
		c.hangcheck.Stop()
		c.hangcheck = nil
	}
}

func callHook(fn func()) {
	if fn != nil {
		fn()
	}
}
