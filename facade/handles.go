// File: facade/handles.go
// Package facade: user-visible handle table.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handles are small dense integers, the identity a user process would
// hold instead of an object pointer. The table owns one reference per
// live handle; lookups take their own short-lived reference so an
// operation never races with DestroyBuffer.

package facade

import (
	"errors"
	"sync"

	"github.com/momentics/hioload-vram/core/bo"
)

// Handle identifies a buffer object to external callers.
type Handle uint32

// ErrUnknownHandle indicates the handle is not in the table
var ErrUnknownHandle = errors.New("unknown buffer handle")

type handleTable struct {
	mu   sync.RWMutex
	next Handle
	objs map[Handle]*bo.Object
}

func newHandleTable() *handleTable {
	return &handleTable{objs: make(map[Handle]*bo.Object)}
}

// insert stores obj and returns its new handle. The table assumes the
// caller's reference.
func (t *handleTable) insert(obj *bo.Object) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := t.next
	t.objs[h] = obj
	return h
}

// get returns the object with an extra reference taken. The caller
// must Release it.
func (t *handleTable) get(h Handle) (*bo.Object, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	obj, ok := t.objs[h]
	if !ok {
		return nil, false
	}
	obj.Ref()
	return obj, true
}

// remove detaches the handle and returns the object still holding the
// table's reference; the caller releases it.
func (t *handleTable) remove(h Handle) (*bo.Object, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	obj, ok := t.objs[h]
	if ok {
		delete(t.objs, h)
	}
	return obj, ok
}

// drain empties the table, returning all objects with their table
// references.
func (t *handleTable) drain() []*bo.Object {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*bo.Object, 0, len(t.objs))
	for h, obj := range t.objs {
		out = append(out, obj)
		delete(t.objs, h)
	}
	return out
}

func (t *handleTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.objs)
}
