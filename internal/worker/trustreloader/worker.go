// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package trustreloader provides a worker that reloads the trust store
// when the allow-list changes, when asked to by a signal, and
// periodically, so that a broken allow-list is picked up once fixed.
package trustreloader

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"

	"github.com/juju/cartd/core/cart"
	"github.com/juju/cartd/core/watcher"
	"github.com/juju/cartd/internal/worker/filenotifywatcher"
)

// TrustStore is the store being kept up to date.
type TrustStore interface {
	Path() string
	Reload() error
	Len() int
}

// Hub is used to announce every reload.
type Hub interface {
	Publish(topic string, data interface{}) func()
}

// Config holds the dependencies and configuration of the reloader.
type Config struct {
	Store  TrustStore
	Hub    Hub
	Clock  clock.Clock
	Logger Logger

	// FileNotifyWatcher watches the allow-list for changes. Optional.
	FileNotifyWatcher filenotifywatcher.FileNotifyWatcher

	// Signals triggers a reload on every value received. Optional.
	Signals <-chan os.Signal

	// Interval is how often the store is reloaded regardless of other
	// triggers. Zero disables periodic reloads.
	Interval time.Duration
}

// Validate returns an error if the config cannot be used to start a
// reloader.
func (c Config) Validate() error {
	if c.Store == nil {
		return errors.NotValidf("nil Store")
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
	if c.Interval < 0 {
		return errors.NotValidf("negative Interval")
	}
	return nil
}

// NewWorker returns a worker that reloads the trust store.
func NewWorker(config Config) (worker.Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w, err := watcher.NewNotifyWorker(watcher.NotifyConfig{
		Handler: &reloader{config: config},
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

type reloader struct {
	config Config
}

// SetUp is part of the watcher.NotifyHandler interface.
func (r *reloader) SetUp(context.Context) (watcher.NotifyWatcher, error) {
	var watchers []watcher.NotifyWatcher
	if r.config.FileNotifyWatcher != nil {
		path := r.config.Store.Path()
		ch, err := r.config.FileNotifyWatcher.Changes(filepath.Dir(path), filepath.Base(path))
		if err != nil {
			r.config.Logger.Warningf("not watching %q, relying on signals and periodic reloads: %v", path, err)
		} else {
			watchers = append(watchers, watcher.NewChannelNotifyWatcher(ch))
		}
	}
	if r.config.Signals != nil {
		watchers = append(watchers, watcher.NewChannelNotifyWatcher(r.config.Signals))
	}
	if r.config.Interval > 0 {
		watchers = append(watchers, watcher.NewPeriodicNotifyWatcher(r.config.Clock, r.config.Interval))
	}
	return watcher.NewMultiNotifyWatcher(watchers...), nil
}

// Handle is part of the watcher.NotifyHandler interface.
func (r *reloader) Handle(context.Context) error {
	store := r.config.Store
	err := store.Reload()
	if err != nil {
		r.config.Logger.Errorf("trust store unavailable, refusing all carts: %v", err)
	} else {
		r.config.Logger.Infof("trust store reloaded from %s with %d signers", store.Path(), store.Len())
	}
	r.config.Hub.Publish(cart.TrustReloadedTopic, cart.TrustReload{
		Identities: store.Len(),
		Err:        err,
		Time:       r.config.Clock.Now(),
	})
	return nil
}

// TearDown is part of the watcher.NotifyHandler interface.
func (r *reloader) TearDown() error {
	return nil
}
