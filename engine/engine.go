// File: engine/engine.go
// Package engine implements compute-engine state tracking.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package engine

import (
	"sync"
	"sync/atomic"
)

// Context is a kernel-owned execution context. Only kernel contexts
// remain pinned over suspend; user contexts are fixed up on their next
// pin, so they never appear here.
type Context struct {
	mu     sync.Mutex
	pinned bool
	resets uint64

	// internal tracking invalidated on reset
	ringHead  uint64
	ringTail  uint64
	lastSeqno uint64
}

// NewKernelContext creates a pinned kernel context.
func NewKernelContext() *Context {
	return &Context{pinned: true}
}

// Pinned reports whether the context is pinned.
func (c *Context) Pinned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinned
}

// Reset clears the context's internal state under its own exclusive
// lock and counts the reset so continuity assumptions can be checked.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ringHead = 0
	c.ringTail = 0
	c.lastSeqno = 0
	c.resets++
}

// Resets returns how many times the context was reset.
func (c *Context) Resets() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

// Engine is one compute engine of the device.
type Engine struct {
	name      string
	serial    atomic.Uint64
	kernelCtx *Context
	resume    func() error

	mu       sync.Mutex
	inflight uint64
	seqno    uint64
}

// NewEngine creates an engine. kernelCtx may be nil for engines without
// a retained kernel context; a nil resume hook always succeeds.
func NewEngine(name string, kernelCtx *Context, resume func() error) *Engine {
	return &Engine{name: name, kernelCtx: kernelCtx, resume: resume}
}

// Name returns the engine name.
func (e *Engine) Name() string { return e.name }

// Serial returns the generation counter. It bumps whenever continuity
// is lost so stale caches can detect it.
func (e *Engine) Serial() uint64 { return e.serial.Load() }

func (e *Engine) bumpSerial() { e.serial.Add(1) }

// KernelContext returns the retained kernel context, if any.
func (e *Engine) KernelContext() *Context { return e.kernelCtx }

// sanitize resets internal submission tracking to a clean baseline.
func (e *Engine) sanitize() {
	e.mu.Lock()
	e.inflight = 0
	e.seqno = 0
	e.mu.Unlock()
}
