// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sshsig

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"golang.org/x/crypto/ssh"

	"github.com/juju/cartd/core/cart"
	"github.com/juju/cartd/internal/trust"
)

// Verify checks that sig covers message under namespace and was made by
// one of identities. Identities are tried in order and the first that
// verifies is returned. Identities outside their validity window at the
// given time are not tried.
func Verify(message []byte, sig *Signature, namespace string, identities []trust.SignerIdentity, at time.Time) (trust.SignerIdentity, error) {
	if sig == nil || sig.Signature == nil || sig.PublicKey == nil {
		return trust.SignerIdentity{}, errors.Annotate(cart.ErrMalformedSignature, "empty signature")
	}
	if sig.Namespace != namespace {
		return trust.SignerIdentity{}, errors.Annotatef(cart.ErrNamespaceMismatch,
			"signature namespace %q, expected %q", sig.Namespace, namespace)
	}
	if err := checkSignatureFormat(sig); err != nil {
		return trust.SignerIdentity{}, errors.Trace(err)
	}
	blob, err := signedBlob(message, sig.Namespace, sig.Reserved, sig.HashAlgorithm)
	if err != nil {
		return trust.SignerIdentity{}, errors.Trace(err)
	}

	claimed := trust.SignerIdentity{Key: sig.PublicKey}
	var claimedTrusted bool
	for _, id := range identities {
		if !id.ValidAt(at) {
			continue
		}
		if id.SameKey(claimed) {
			claimedTrusted = true
		}
		if err := id.Key.Verify(blob, sig.Signature); err == nil {
			return id, nil
		}
	}
	if claimedTrusted {
		return trust.SignerIdentity{}, errors.Annotatef(cart.ErrCryptoVerifyFailure,
			"signature by %s does not match content", claimed.Fingerprint())
	}
	return trust.SignerIdentity{}, errors.Annotatef(cart.ErrNoMatchingSigner,
		"signer %s not trusted", claimed.Fingerprint())
}

// checkSignatureFormat rejects SHA-1 RSA signatures. RSA signatures
// must use rsa-sha2-256 or rsa-sha2-512.
func checkSignatureFormat(sig *Signature) error {
	format := sig.Signature.Format
	if format == ssh.KeyAlgoRSA {
		return errors.Annotatef(cart.ErrMalformedSignature, "signature format %q not allowed", format)
	}
	if sig.PublicKey.Type() == ssh.KeyAlgoRSA && format != ssh.KeyAlgoRSASHA256 && format != ssh.KeyAlgoRSASHA512 {
		return errors.Annotatef(cart.ErrMalformedSignature, "signature format %q not allowed for RSA keys", format)
	}
	return nil
}

// IdentitySource supplies the identities to verify against.
// *trust.Store implements it.
type IdentitySource interface {
	Identities() ([]trust.SignerIdentity, error)
}

// Verifier verifies armored signatures against a trust store.
type Verifier struct {
	// Namespace is the namespace signatures must have been made under.
	Namespace string

	Source IdentitySource
	Clock  clock.Clock
}

// NewVerifier returns a verifier for cart manifests backed by source.
func NewVerifier(source IdentitySource, clk clock.Clock) *Verifier {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Verifier{
		Namespace: cart.Namespace,
		Source:    source,
		Clock:     clk,
	}
}

// Verify decodes armored and checks it covers message. The trust store is
// consulted once, so a reload during verification is not observed.
func (v *Verifier) Verify(message, armored []byte) (trust.SignerIdentity, error) {
	sig, err := Parse(armored)
	if err != nil {
		return trust.SignerIdentity{}, errors.Trace(err)
	}
	identities, err := v.Source.Identities()
	if err != nil {
		return trust.SignerIdentity{}, errors.Trace(err)
	}
	id, err := Verify(message, sig, v.Namespace, identities, v.Clock.Now())
	return id, errors.Trace(err)
}
