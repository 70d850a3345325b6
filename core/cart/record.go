// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cart

import (
	"time"

	"github.com/juju/errors"
)

// Record is the live state of one attached cart. It is created on attach,
// mutated only by the worker handling its mount path, and discarded on
// detach.
type Record struct {
	// MountPath is where the cart's filesystem is mounted.
	MountPath string

	// Device is the block device backing the mount, when known.
	Device string

	State State

	// Manifest is set if and only if State is Trusted.
	Manifest *Manifest

	// Err and Reason describe the latest failure.
	Err    error
	Reason Reason

	// Signer is the label of the trusted identity that verified the
	// manifest.
	Signer string

	// Attempts counts calls made to locate the cart's files.
	Attempts int

	DetectedAt time.Time
	VerifiedAt time.Time
}

// NewRecord returns a record for a cart that has just been attached.
func NewRecord(ev DeviceEvent) Record {
	return Record{
		MountPath:  ev.MountPath,
		Device:     ev.Device,
		State:      Detected,
		DetectedAt: ev.Time,
	}
}

// Validate checks the record's invariants.
func (r Record) Validate() error {
	if r.MountPath == "" {
		return errors.NotValidf("empty mount path")
	}
	switch r.State {
	case Detected, Verifying, Trusted, Rejected:
	default:
		return errors.NotValidf("state %q", r.State)
	}
	if (r.State == Trusted) != (r.Manifest != nil) {
		return errors.NotValidf("%s record with manifest set %v", r.State, r.Manifest != nil)
	}
	if r.State == Rejected && r.Reason == ReasonNone {
		return errors.NotValidf("rejected record without reason")
	}
	if r.State.IsTerminal() == r.VerifiedAt.IsZero() {
		return errors.NotValidf("%s record with decision time set %v", r.State, !r.VerifiedAt.IsZero())
	}
	return nil
}

// Trust moves the record to Trusted.
func (r *Record) Trust(m Manifest, signer string, now time.Time) {
	r.State = Trusted
	r.Manifest = &m
	r.Signer = signer
	r.Err = nil
	r.Reason = ReasonNone
	r.VerifiedAt = now
}

// Reject moves the record to Rejected, recording why.
func (r *Record) Reject(err error, now time.Time) {
	r.State = Rejected
	r.Manifest = nil
	r.Err = err
	r.Reason = ReasonOf(err)
	r.VerifiedAt = now
}
