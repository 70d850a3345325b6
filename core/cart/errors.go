// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cart

import (
	"github.com/juju/errors"
)

const (
	// ErrTrustStore is returned when the allow-list cannot be read or
	// contains a malformed entry. The trust store fails closed.
	ErrTrustStore = errors.ConstError("trust store unavailable")

	// ErrManifestMissing is returned when a cart has no cart.yaml.
	ErrManifestMissing = errors.ConstError("manifest missing")

	// ErrSignatureMissing is returned when a cart has no cart.yaml.sig.
	ErrSignatureMissing = errors.ConstError("signature missing")

	// ErrIO is returned when reading a cart's files fails for any other
	// reason.
	ErrIO = errors.ConstError("io error")

	// ErrNamespaceMismatch is returned when a signature was produced
	// under a namespace other than the expected one.
	ErrNamespaceMismatch = errors.ConstError("namespace mismatch")

	// ErrNoMatchingSigner is returned when no trusted identity verifies a
	// signature.
	ErrNoMatchingSigner = errors.ConstError("no matching signer")

	// ErrMalformedSignature is returned when the signature envelope
	// cannot be decoded.
	ErrMalformedSignature = errors.ConstError("malformed signature")

	// ErrCryptoVerifyFailure is returned when a signature names a trusted
	// key but does not verify the manifest bytes.
	ErrCryptoVerifyFailure = errors.ConstError("signature verification failed")

	// ErrManifestMalformed is returned when verified manifest bytes do
	// not parse into a manifest.
	ErrManifestMalformed = errors.ConstError("manifest malformed")
)

// Reason is the audit code recorded against a rejected cart.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonTrustStoreUnavailable Reason = "TrustStoreUnavailable"
	ReasonManifestMissing       Reason = "ManifestMissing"
	ReasonSignatureMissing      Reason = "SignatureMissing"
	ReasonIOError               Reason = "IoError"
	ReasonNamespaceMismatch     Reason = "NamespaceMismatch"
	ReasonNoMatchingSigner      Reason = "NoMatchingSigner"
	ReasonMalformedSignature    Reason = "MalformedSignature"
	ReasonCryptoVerifyFailure   Reason = "CryptoVerifyFailure"
	ReasonManifestMalformed     Reason = "ManifestMalformed"
	ReasonInternal              Reason = "Internal"
)

var reasons = []struct {
	err    error
	reason Reason
}{
	{ErrTrustStore, ReasonTrustStoreUnavailable},
	{ErrManifestMissing, ReasonManifestMissing},
	{ErrSignatureMissing, ReasonSignatureMissing},
	{ErrIO, ReasonIOError},
	{ErrNamespaceMismatch, ReasonNamespaceMismatch},
	{ErrNoMatchingSigner, ReasonNoMatchingSigner},
	{ErrMalformedSignature, ReasonMalformedSignature},
	{ErrCryptoVerifyFailure, ReasonCryptoVerifyFailure},
	{ErrManifestMalformed, ReasonManifestMalformed},
}

// ReasonOf classifies err into the reason recorded for a rejected cart.
// Errors outside the cart taxonomy classify as ReasonInternal.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonInternal
}

// IsRetryable reports whether err may clear up on its own, such as media
// that has not finished mounting. Verification failures are never
// retryable: the signature on the media will not change.
func IsRetryable(err error) bool {
	switch ReasonOf(err) {
	case ReasonManifestMissing, ReasonSignatureMissing, ReasonIOError:
		return true
	}
	return false
}
