// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package trust

import (
	"bytes"
	"time"

	"golang.org/x/crypto/ssh"
)

// SignerIdentity is a public key authorised to sign cart manifests.
// Identities are compared by key material only.
type SignerIdentity struct {
	// Label is a human readable name for the key, taken from the
	// allow-list comment or principals.
	Label string

	Key ssh.PublicKey

	// ValidAfter and ValidBefore bound when the key may be used. A zero
	// value leaves that side open.
	ValidAfter  time.Time
	ValidBefore time.Time
}

// Fingerprint returns the SHA256 fingerprint of the key, as printed by
// ssh-keygen -l.
func (id SignerIdentity) Fingerprint() string {
	return ssh.FingerprintSHA256(id.Key)
}

// SameKey reports whether id and other hold the same key material.
func (id SignerIdentity) SameKey(other SignerIdentity) bool {
	if id.Key == nil || other.Key == nil {
		return false
	}
	return bytes.Equal(id.Key.Marshal(), other.Key.Marshal())
}

// ValidAt reports whether the identity may sign at t.
func (id SignerIdentity) ValidAt(t time.Time) bool {
	if !id.ValidAfter.IsZero() && t.Before(id.ValidAfter) {
		return false
	}
	if !id.ValidBefore.IsZero() && !t.Before(id.ValidBefore) {
		return false
	}
	return true
}

// String returns the label and fingerprint.
func (id SignerIdentity) String() string {
	if id.Key == nil {
		return id.Label
	}
	return id.Label + " " + id.Fingerprint()
}
