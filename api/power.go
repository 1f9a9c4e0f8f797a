// File: api/power.go
// Package api defines the wake/park power contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// WakeState is the power state of the device GT.
type WakeState int

const (
	// WakeParked: no wake references, power rails released.
	WakeParked WakeState = iota
	// WakeWaking: first acquire in progress, unpark side effects running.
	WakeWaking
	// WakeAwake: at least one wake reference held.
	WakeAwake
	// WakeParking: counter reached zero, asynchronous park pending.
	WakeParking
)

// String returns a human-readable state name.
func (s WakeState) String() string {
	switch s {
	case WakeParked:
		return "parked"
	case WakeWaking:
		return "waking"
	case WakeAwake:
		return "awake"
	case WakeParking:
		return "parking"
	default:
		return "unknown"
	}
}

// WakeEvent is delivered to subscribers on power transitions.
type WakeEvent int

const (
	// EventUnparked fires after the unpark side effects completed.
	EventUnparked WakeEvent = iota
	// EventParked fires when a park commits, before the power-saving
	// features are disabled.
	EventParked
)

// SubscriptionToken identifies one observer registration.
type SubscriptionToken uint64

// WakeController is the reference-counted wake state machine gating GPU
// activity. Acquire/Release nest; the first acquire performs the unpark
// side effects exactly once, the last release schedules an asynchronous
// park that a racing acquire may cancel.
type WakeController interface {
	// Acquire takes a wake reference, waking the device if parked.
	Acquire() error

	// Release drops a wake reference; at zero a deferred park is
	// scheduled. Unbalanced calls are logged and absorbed.
	Release()

	// State returns the current wake state.
	State() WakeState

	// Subscribe registers an observer. Notification is a synchronous,
	// ordered fan-out in registration order; observers must not block
	// indefinitely.
	Subscribe(fn func(WakeEvent)) SubscriptionToken

	// Unsubscribe removes a prior registration.
	Unsubscribe(tok SubscriptionToken)
}

// PowerDomainToken is an opaque receipt from a power-domain acquire.
type PowerDomainToken uint64

// PowerDomain identifies a host power well.
type PowerDomain int

const (
	// DomainGTIRQ covers the GT interrupt/display well held while the
	// device is awake.
	DomainGTIRQ PowerDomain = iota
)

// PowerDomainService is the host-side power-domain provider consumed by
// the wake controller.
type PowerDomainService interface {
	Acquire(d PowerDomain) (PowerDomainToken, error)
	Release(d PowerDomain, tok PowerDomainToken)
}
