// File: power/notifier.go
// Package power: wake transition observer chain.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Observers are looked up by token, never stored as owning pointers, so
// no ownership cycle forms between the controller and its subscribers.

package power

import (
	"sync"

	"github.com/momentics/hioload-vram/api"
)

// Notifier fans wake events out to registered observers synchronously,
// in registration order. It does not enforce a timeout; observers must
// not block indefinitely.
type Notifier struct {
	mu    sync.Mutex
	next  api.SubscriptionToken
	order []api.SubscriptionToken
	subs  map[api.SubscriptionToken]func(api.WakeEvent)
}

// NewNotifier creates an empty chain.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[api.SubscriptionToken]func(api.WakeEvent))}
}

// Subscribe registers an observer and returns its token.
func (n *Notifier) Subscribe(fn func(api.WakeEvent)) api.SubscriptionToken {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	tok := n.next
	n.order = append(n.order, tok)
	n.subs[tok] = fn
	return tok
}

// Unsubscribe removes a registration. Unknown tokens are ignored.
func (n *Notifier) Unsubscribe(tok api.SubscriptionToken) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[tok]; !ok {
		return
	}
	delete(n.subs, tok)
	for i, t := range n.order {
		if t == tok {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// Notify delivers ev to every observer in registration order. The
// snapshot is taken under the lock but observers run outside it, so
// they may subscribe, unsubscribe or query controller state.
func (n *Notifier) Notify(ev api.WakeEvent) {
	n.mu.Lock()
	fns := make([]func(api.WakeEvent), 0, len(n.order))
	for _, tok := range n.order {
		if fn, ok := n.subs[tok]; ok {
			fns = append(fns, fn)
		}
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
