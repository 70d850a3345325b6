// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cart

import (
	"time"
)

const (
	// VerifiedTopic is the hub topic carrying an Event for every cart
	// that reached Trusted.
	VerifiedTopic = "cart.verified"

	// RejectedTopic is the hub topic carrying an Event for every cart
	// that reached Rejected.
	RejectedTopic = "cart.rejected"

	// TrustReloadedTopic is the hub topic carrying a TrustReload after
	// every attempt to reload the trust store.
	TrustReloadedTopic = "trust.reloaded"
)

// TrustReload reports the outcome of reloading the trust store.
type TrustReload struct {
	// Identities is the number of trusted identities after the reload.
	Identities int

	// Err is set when the reload failed and the store fails closed.
	Err error

	Time time.Time
}

// Action discriminates device events.
type Action string

const (
	Attach Action = "attach"
	Detach Action = "detach"
)

// DeviceEvent reports a cart candidate appearing at, or disappearing
// from, a mount path.
type DeviceEvent struct {
	Action    Action
	MountPath string
	Device    string
	Time      time.Time
}

// Event is the outcome of verifying a cart. It is the only output of the
// verification core.
type Event struct {
	MountPath string
	Device    string
	State     State

	// Manifest is set for verified carts.
	Manifest *Manifest
	Signer   string

	// Reason and Err are set for rejected carts.
	Reason Reason
	Err    error

	// DetectedAt is when the cart was attached, Time when the outcome
	// was decided.
	DetectedAt time.Time
	Time       time.Time
}

// Topic returns the hub topic the event is published on.
func (e Event) Topic() string {
	if e.State == Trusted {
		return VerifiedTopic
	}
	return RejectedTopic
}

// EventFromRecord builds the event announcing a terminal record.
func EventFromRecord(r Record) Event {
	return Event{
		MountPath:  r.MountPath,
		Device:     r.Device,
		State:      r.State,
		Manifest:   r.Manifest,
		Signer:     r.Signer,
		Reason:     r.Reason,
		Err:        r.Err,
		DetectedAt: r.DetectedAt,
		Time:       r.VerifiedAt,
	}
}
