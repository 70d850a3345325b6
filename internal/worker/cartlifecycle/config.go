// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cartlifecycle

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/juju/cartd/core/cart"
	"github.com/juju/cartd/internal/manifest"
	"github.com/juju/cartd/internal/trust"
)

// DeviceSource delivers attach and detach events.
type DeviceSource interface {
	Events() <-chan cart.DeviceEvent
}

// Verifier checks a detached signature over manifest bytes against the
// trust store.
type Verifier interface {
	Verify(message, armored []byte) (trust.SignerIdentity, error)
}

// Hub is the subset of the pubsub hub used to announce outcomes and to
// hear about trust store reloads.
type Hub interface {
	Publish(topic string, data interface{}) func()
	Subscribe(topic string, handler func(string, interface{})) func()
}

// Config holds the dependencies and configuration of the Controller.
type Config struct {
	Devices  DeviceSource
	Verifier Verifier
	Hub      Hub
	Clock    clock.Clock
	Logger   Logger

	// Locate reads a cart's manifest and signature. It defaults to
	// manifest.Locate.
	Locate func(mountPath string) (manifest.Bundle, error)

	// Parse interprets verified manifest bytes. It defaults to
	// manifest.Parse.
	Parse func(data []byte) (cart.Manifest, error)

	// LocateAttempts bounds how many times a cart's files are looked for
	// before it is rejected.
	LocateAttempts int

	// LocateDelay is the wait before the second attempt; it doubles on
	// each further attempt up to LocateMaxDelay.
	LocateDelay    time.Duration
	LocateMaxDelay time.Duration
}

// Validate returns an error if the config cannot be used to start a
// Controller.
func (c Config) Validate() error {
	if c.Devices == nil {
		return errors.NotValidf("nil Devices")
	}
	if c.Verifier == nil {
		return errors.NotValidf("nil Verifier")
	}
	if c.Hub == nil {
		return errors.NotValidf("nil Hub")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.LocateAttempts < 1 {
		return errors.NotValidf("LocateAttempts %d", c.LocateAttempts)
	}
	if c.LocateDelay <= 0 {
		return errors.NotValidf("LocateDelay %v", c.LocateDelay)
	}
	if c.LocateMaxDelay < c.LocateDelay {
		return errors.NotValidf("LocateMaxDelay less than LocateDelay")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Locate == nil {
		c.Locate = manifest.Locate
	}
	if c.Parse == nil {
		c.Parse = manifest.Parse
	}
	return c
}
