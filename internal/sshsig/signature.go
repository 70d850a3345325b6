// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package sshsig verifies detached signatures in the armored SSHSIG
// format produced by ssh-keygen -Y sign.
package sshsig

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/pem"
	"hash"

	"github.com/juju/errors"
	"golang.org/x/crypto/ssh"

	"github.com/juju/cartd/core/cart"
)

const (
	magicPreamble = "SSHSIG"
	sigVersion    = 1
	pemType       = "SSH SIGNATURE"

	// HashSHA256 and HashSHA512 are the message digests a signature may
	// be computed over.
	HashSHA256 = "sha256"
	HashSHA512 = "sha512"
)

// Signature is a decoded detached signature.
type Signature struct {
	// PublicKey is the key the signer claims to have used.
	PublicKey ssh.PublicKey

	// Namespace is the context the signature was produced for.
	Namespace string

	Reserved      []byte
	HashAlgorithm string

	// Signature is the signature over the signed data blob.
	Signature *ssh.Signature
}

// wireSignature is the SSHSIG blob following the magic preamble.
type wireSignature struct {
	Version       uint32
	PublicKey     []byte
	Namespace     string
	Reserved      []byte
	HashAlgorithm string
	Signature     []byte
}

// signedData is the blob following the magic preamble that the signer
// actually signs.
type signedData struct {
	Namespace     string
	Reserved      []byte
	HashAlgorithm string
	Hash          []byte
}

// Parse decodes an armored signature. Every decoding failure is an
// ErrMalformedSignature.
func Parse(armored []byte) (*Signature, error) {
	block, rest := pem.Decode(armored)
	if block == nil {
		return nil, errors.Annotate(cart.ErrMalformedSignature, "no armored signature found")
	}
	if block.Type != pemType {
		return nil, errors.Annotatef(cart.ErrMalformedSignature, "unexpected armor type %q", block.Type)
	}
	if len(bytes.TrimSpace(rest)) != 0 {
		return nil, errors.Annotate(cart.ErrMalformedSignature, "trailing data after signature")
	}
	return ParseBlob(block.Bytes)
}

// ParseBlob decodes an unarmored SSHSIG blob.
func ParseBlob(blob []byte) (*Signature, error) {
	if !bytes.HasPrefix(blob, []byte(magicPreamble)) {
		return nil, errors.Annotate(cart.ErrMalformedSignature, "missing SSHSIG preamble")
	}
	var wire wireSignature
	if err := ssh.Unmarshal(blob[len(magicPreamble):], &wire); err != nil {
		return nil, errors.Annotatef(cart.ErrMalformedSignature, "decoding envelope: %v", err)
	}
	if wire.Version != sigVersion {
		return nil, errors.Annotatef(cart.ErrMalformedSignature, "unsupported version %d", wire.Version)
	}
	if _, err := hasherFor(wire.HashAlgorithm); err != nil {
		return nil, errors.Trace(err)
	}
	pub, err := ssh.ParsePublicKey(wire.PublicKey)
	if err != nil {
		return nil, errors.Annotatef(cart.ErrMalformedSignature, "decoding public key: %v", err)
	}
	sig := new(ssh.Signature)
	if err := ssh.Unmarshal(wire.Signature, sig); err != nil {
		return nil, errors.Annotatef(cart.ErrMalformedSignature, "decoding signature: %v", err)
	}
	return &Signature{
		PublicKey:     pub,
		Namespace:     wire.Namespace,
		Reserved:      wire.Reserved,
		HashAlgorithm: wire.HashAlgorithm,
		Signature:     sig,
	}, nil
}

// Marshal returns the unarmored SSHSIG blob.
func (s *Signature) Marshal() []byte {
	wire := wireSignature{
		Version:       sigVersion,
		PublicKey:     s.PublicKey.Marshal(),
		Namespace:     s.Namespace,
		Reserved:      s.Reserved,
		HashAlgorithm: s.HashAlgorithm,
		Signature:     ssh.Marshal(s.Signature),
	}
	return append([]byte(magicPreamble), ssh.Marshal(wire)...)
}

// Armor returns the signature in the armored form written to
// cart.yaml.sig.
func (s *Signature) Armor() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  pemType,
		Bytes: s.Marshal(),
	})
}

// signedBlob returns the data covered by a signature over message.
func signedBlob(message []byte, namespace string, reserved []byte, hashAlgorithm string) ([]byte, error) {
	h, err := hasherFor(hashAlgorithm)
	if err != nil {
		return nil, errors.Trace(err)
	}
	h.Write(message)
	data := ssh.Marshal(signedData{
		Namespace:     namespace,
		Reserved:      reserved,
		HashAlgorithm: hashAlgorithm,
		Hash:          h.Sum(nil),
	})
	return append([]byte(magicPreamble), data...), nil
}

func hasherFor(name string) (hash.Hash, error) {
	switch name {
	case HashSHA256:
		return sha256.New(), nil
	case HashSHA512:
		return sha512.New(), nil
	}
	return nil, errors.Annotatef(cart.ErrMalformedSignature, "unsupported hash algorithm %q", name)
}
