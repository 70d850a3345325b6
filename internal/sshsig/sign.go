// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sshsig

import (
	"crypto/rand"

	"github.com/juju/errors"
	"golang.org/x/crypto/ssh"
)

// Sign produces an armored signature over message, equivalent to
// ssh-keygen -Y sign -n namespace.
func Sign(signer ssh.Signer, message []byte, namespace string) ([]byte, error) {
	sig, err := SignDetached(signer, message, namespace, HashSHA512)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return sig.Armor(), nil
}

// SignDetached returns the decoded signature over message.
func SignDetached(signer ssh.Signer, message []byte, namespace, hashAlgorithm string) (*Signature, error) {
	blob, err := signedBlob(message, namespace, nil, hashAlgorithm)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var sig *ssh.Signature
	if as, ok := signer.(ssh.AlgorithmSigner); ok && signer.PublicKey().Type() == ssh.KeyAlgoRSA {
		sig, err = as.SignWithAlgorithm(rand.Reader, blob, ssh.KeyAlgoRSASHA512)
	} else {
		sig, err = signer.Sign(rand.Reader, blob)
	}
	if err != nil {
		return nil, errors.Annotate(err, "signing")
	}
	return &Signature{
		PublicKey:     signer.PublicKey(),
		Namespace:     namespace,
		HashAlgorithm: hashAlgorithm,
		Signature:     sig,
	}, nil
}
