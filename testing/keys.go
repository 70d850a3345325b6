// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package testing

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"

	jc "github.com/juju/testing/checkers"
	"golang.org/x/crypto/ssh"
	gc "gopkg.in/check.v1"

	"github.com/juju/cartd/core/cart"
	"github.com/juju/cartd/internal/sshsig"
	"github.com/juju/cartd/internal/trust"
)

// Signer is an ed25519 key able to sign cart manifests.
type Signer struct {
	ssh.Signer
	Label string
}

// NewSigner generates a new signing key.
func NewSigner(c *gc.C, label string) Signer {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	c.Assert(err, jc.ErrorIsNil)
	signer, err := ssh.NewSignerFromKey(priv)
	c.Assert(err, jc.ErrorIsNil)
	return Signer{Signer: signer, Label: label}
}

// AuthorizedKey returns the public key in authorized_keys form, without
// a comment or trailing newline.
func (s Signer) AuthorizedKey() string {
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(s.PublicKey())))
}

// AllowListLine returns an allowed_signers entry for the key.
func (s Signer) AllowListLine(principals string) string {
	return principals + " " + s.AuthorizedKey() + " " + s.Label
}

// Identity returns the trust store identity for the key.
func (s Signer) Identity() trust.SignerIdentity {
	return trust.SignerIdentity{Label: s.Label, Key: s.PublicKey()}
}

// SignManifest returns an armored signature over message.
func (s Signer) SignManifest(c *gc.C, message []byte, namespace string) []byte {
	sig, err := sshsig.Sign(s, message, namespace)
	c.Assert(err, jc.ErrorIsNil)
	return sig
}

// WriteAllowList writes lines as the allow-list in dir and returns its
// path.
func WriteAllowList(c *gc.C, dir string, lines ...string) string {
	path := filepath.Join(dir, trust.AllowListFile)
	data := strings.Join(lines, "\n") + "\n"
	err := os.WriteFile(path, []byte(data), 0644)
	c.Assert(err, jc.ErrorIsNil)
	return path
}

// WriteCart writes the manifest and, when sig is not nil, its signature
// into dir.
func WriteCart(c *gc.C, dir string, manifest, sig []byte) {
	err := os.WriteFile(filepath.Join(dir, cart.ManifestFile), manifest, 0644)
	c.Assert(err, jc.ErrorIsNil)
	if sig == nil {
		return
	}
	err = os.WriteFile(filepath.Join(dir, cart.SignatureFile), sig, 0644)
	c.Assert(err, jc.ErrorIsNil)
}

// WriteSignedCart writes manifest into dir signed by s under the cart
// namespace.
func WriteSignedCart(c *gc.C, dir string, s Signer, manifest []byte) {
	WriteCart(c, dir, manifest, s.SignManifest(c, manifest, cart.Namespace))
}
