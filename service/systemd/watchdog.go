// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"gopkg.in/tomb.v2"
)

// WatchdogConfig configures a watchdog worker.
type WatchdogConfig struct {
	Notifier *Notifier
	Clock    clock.Clock

	// Interval is the watchdog timeout of the service manager. The
	// worker pings at half of it.
	Interval time.Duration
}

// Validate returns an error if the config cannot be used.
func (c WatchdogConfig) Validate() error {
	if c.Notifier == nil {
		return errors.NotValidf("nil Notifier")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Interval <= 0 {
		return errors.NotValidf("non-positive Interval")
	}
	return nil
}

// Watchdog pings the service manager's watchdog until killed.
type Watchdog struct {
	tomb   tomb.Tomb
	config WatchdogConfig
}

// NewWatchdog starts a watchdog worker.
func NewWatchdog(config WatchdogConfig) (*Watchdog, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Watchdog{config: config}
	w.tomb.Go(w.loop)
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Watchdog) Kill() {
	w.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Watchdog) Wait() error {
	return w.tomb.Wait()
}

func (w *Watchdog) loop() error {
	period := w.config.Interval / 2
	for {
		w.config.Notifier.Watchdog()
		select {
		case <-w.tomb.Dying():
			return tomb.ErrDying
		case <-w.config.Clock.After(period):
		}
	}
}
