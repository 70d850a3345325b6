// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package daemon

import (
	"github.com/juju/clock"

	"github.com/juju/cartd/core/cart"
	"github.com/juju/cartd/internal/manifest"
	"github.com/juju/cartd/internal/sshsig"
)

// Check takes the cart mounted at mountPath through one verification
// without retries and returns the resulting record. It never returns a
// record in a non-terminal state.
func Check(mountPath string, source sshsig.IdentitySource, clk clock.Clock) cart.Record {
	r := cart.NewRecord(cart.DeviceEvent{
		Action:    cart.Attach,
		MountPath: mountPath,
		Time:      clk.Now(),
	})
	r.Attempts = 1

	bundle, err := manifest.Locate(mountPath)
	if err != nil {
		r.Reject(err, clk.Now())
		return r
	}
	r.State = cart.Verifying
	id, err := sshsig.NewVerifier(source, clk).Verify(bundle.Manifest, bundle.Signature)
	if err != nil {
		r.Reject(err, clk.Now())
		return r
	}
	m, err := manifest.Parse(bundle.Manifest)
	if err != nil {
		r.Reject(err, clk.Now())
		return r
	}
	r.Trust(m, id.Label, clk.Now())
	return r
}
