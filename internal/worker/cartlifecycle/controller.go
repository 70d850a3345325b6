// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cartlifecycle provides the worker that takes every attached
// cart through verification and announces whether it can be trusted.
//
// Each attached mount path gets its own record and its own goroutine:
//
//	Detected -> Verifying -> Trusted
//	    |           |
//	    +-----------+------> Rejected
//
// Files that are missing or unreadable are looked for again with backoff
// before the cart is rejected; a signature or manifest that fails is
// rejected at once. Trusted and rejected carts are published on the hub
// and stay until the device is detached.
package cartlifecycle

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"

	"github.com/juju/cartd/core/cart"
)

// Controller owns the record of every attached cart.
type Controller struct {
	catacomb catacomb.Catacomb
	config   Config

	reloaded chan struct{}

	// generation counts successful trust store reloads.
	generation atomic.Uint64

	mu    sync.Mutex
	carts map[string]*cartWorker
}

// NewController starts a Controller.
func NewController(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	c := &Controller{
		config:   config.withDefaults(),
		reloaded: make(chan struct{}, 1),
		carts:    make(map[string]*cartWorker),
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &c.catacomb,
		Work: c.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return c, nil
}

// Kill is part of the worker.Worker interface.
func (c *Controller) Kill() {
	c.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (c *Controller) Wait() error {
	return c.catacomb.Wait()
}

func (c *Controller) loop() error {
	unsubscribe := c.config.Hub.Subscribe(cart.TrustReloadedTopic, c.onTrustReload)
	defer unsubscribe()

	events := c.config.Devices.Events()
	for {
		select {
		case <-c.catacomb.Dying():
			return c.catacomb.ErrDying()
		case ev, ok := <-events:
			if !ok {
				return errors.New("device events closed")
			}
			if err := c.handleDeviceEvent(ev); err != nil {
				return errors.Trace(err)
			}
		case <-c.reloaded:
			if err := c.rerunUntrusted(); err != nil {
				return errors.Trace(err)
			}
		}
	}
}

func (c *Controller) onTrustReload(_ string, data interface{}) {
	reload, ok := data.(cart.TrustReload)
	if !ok || reload.Err != nil {
		return
	}
	c.generation.Add(1)
	c.signalReloaded()
}

func (c *Controller) signalReloaded() {
	select {
	case c.reloaded <- struct{}{}:
	default:
	}
}

// onUntrusted is called when a cart started at generation is rejected
// because the trust store was unavailable. If the store has reloaded
// since, the rejection may have missed the re-run, so another is asked
// for.
func (c *Controller) onUntrusted(generation uint64) {
	if c.generation.Load() != generation {
		c.signalReloaded()
	}
}

func (c *Controller) handleDeviceEvent(ev cart.DeviceEvent) error {
	switch ev.Action {
	case cart.Attach:
		c.config.Logger.Infof("cart attached at %s (%s)", ev.MountPath, ev.Device)
		return c.start(ev)
	case cart.Detach:
		c.mu.Lock()
		w, ok := c.carts[ev.MountPath]
		delete(c.carts, ev.MountPath)
		c.mu.Unlock()
		if !ok {
			c.config.Logger.Debugf("detach of unknown cart %s", ev.MountPath)
			return nil
		}
		c.config.Logger.Infof("cart detached from %s", ev.MountPath)
		w.detach()
		return nil
	}
	c.config.Logger.Warningf("ignoring device event with action %q", ev.Action)
	return nil
}

// start begins verification of a cart with a fresh record, replacing any
// record already held for the mount path.
func (c *Controller) start(ev cart.DeviceEvent) error {
	w := newCartWorker(c.config, ev, c.generation.Load(), c.onUntrusted)
	c.mu.Lock()
	old := c.carts[ev.MountPath]
	c.carts[ev.MountPath] = w
	c.mu.Unlock()

	if old != nil {
		old.detach()
	}
	return errors.Trace(c.catacomb.Add(w))
}

// rerunUntrusted starts verification again for every cart rejected
// because the trust store was unavailable.
func (c *Controller) rerunUntrusted() error {
	c.mu.Lock()
	var rerun []cart.DeviceEvent
	for _, w := range c.carts {
		r := w.Record()
		if r.State == cart.Rejected && r.Reason == cart.ReasonTrustStoreUnavailable {
			rerun = append(rerun, cart.DeviceEvent{
				Action:    cart.Attach,
				MountPath: r.MountPath,
				Device:    r.Device,
				Time:      r.DetectedAt,
			})
		}
	}
	c.mu.Unlock()

	for _, ev := range rerun {
		c.config.Logger.Infof("trust store reloaded, verifying cart %s again", ev.MountPath)
		if err := c.start(ev); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Records returns the records of all attached carts ordered by mount
// path.
func (c *Controller) Records() []cart.Record {
	c.mu.Lock()
	workers := make([]*cartWorker, 0, len(c.carts))
	for _, w := range c.carts {
		workers = append(workers, w)
	}
	c.mu.Unlock()

	records := make([]cart.Record, len(workers))
	for i, w := range workers {
		records[i] = w.Record()
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].MountPath < records[j].MountPath
	})
	return records
}

// Record returns the record of the cart attached at mountPath.
func (c *Controller) Record(mountPath string) (cart.Record, error) {
	c.mu.Lock()
	w, ok := c.carts[mountPath]
	c.mu.Unlock()
	if !ok {
		return cart.Record{}, errors.NotFoundf("cart at %q", mountPath)
	}
	return w.Record(), nil
}

// Report returns the state of every attached cart.
func (c *Controller) Report() map[string]interface{} {
	carts := make(map[string]interface{})
	for _, r := range c.Records() {
		entry := map[string]interface{}{
			"state":    string(r.State),
			"attempts": r.Attempts,
		}
		if r.Reason != cart.ReasonNone {
			entry["reason"] = string(r.Reason)
		}
		if r.Signer != "" {
			entry["signer"] = r.Signer
		}
		carts[r.MountPath] = entry
	}
	return map[string]interface{}{
		"carts": carts,
	}
}
