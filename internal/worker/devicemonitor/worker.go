// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package devicemonitor provides a worker that reports carts being
// attached to and detached from the host.
package devicemonitor

import (
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"

	"github.com/juju/cartd/core/cart"
	"github.com/juju/cartd/core/watcher"
	"github.com/juju/cartd/internal/worker/filenotifywatcher"
)

// Config holds the dependencies and configuration of the device monitor.
type Config struct {
	// Source lists the current cart candidates.
	Source MountSource

	// MediaRoots are watched for entries appearing and disappearing.
	MediaRoots []string

	// FileNotifyWatcher is used to watch the media roots. Optional.
	FileNotifyWatcher filenotifywatcher.FileNotifyWatcher

	// NewMountWatcher returns a watcher of the mount table. Optional.
	NewMountWatcher func() (watcher.NotifyWatcher, error)

	Clock  clock.Clock
	Logger Logger

	// Debounce is how long to wait after a change before reading the
	// mount table, so that bursts of changes produce one scan.
	Debounce time.Duration

	// RescanInterval is how often the mount table is read regardless of
	// notifications. Zero disables periodic rescans.
	RescanInterval time.Duration
}

// Validate returns an error if the config cannot be used to start a
// monitor.
func (c Config) Validate() error {
	if c.Source == nil {
		return errors.NotValidf("nil Source")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.Debounce < 0 {
		return errors.NotValidf("negative Debounce")
	}
	if c.RescanInterval < 0 {
		return errors.NotValidf("negative RescanInterval")
	}
	return nil
}

// Worker watches the mount table and emits a DeviceEvent for every cart
// candidate that appears or disappears.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config
	events   chan cart.DeviceEvent

	mu    sync.Mutex
	known map[string]Mount
}

// NewWorker starts a device monitor. The first scan reports every
// candidate already mounted.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Worker{
		config: config,
		events: make(chan cart.DeviceEvent),
		known:  make(map[string]Mount),
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Events returns the channel on which device events are delivered, in
// the order they were observed.
func (w *Worker) Events() <-chan cart.DeviceEvent {
	return w.events
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}

// Report returns the mounts currently considered attached.
func (w *Worker) Report() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	mounts := make(map[string]interface{}, len(w.known))
	for path, m := range w.known {
		mounts[path] = m.Device
	}
	return map[string]interface{}{
		"mounts": mounts,
	}
}

func (w *Worker) loop() error {
	changes, err := w.watchChanges()
	if err != nil {
		return errors.Trace(err)
	}

	pending := w.scan()
	var debounce <-chan time.Time
	for {
		var (
			out  chan<- cart.DeviceEvent
			next cart.DeviceEvent
		)
		if len(pending) > 0 {
			out = w.events
			next = pending[0]
		}

		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case _, ok := <-changes:
			if !ok {
				return errors.New("change watcher closed")
			}
			if debounce == nil {
				debounce = w.config.Clock.After(w.config.Debounce)
			}
		case <-debounce:
			debounce = nil
			pending = append(pending, w.scan()...)
		case out <- next:
			w.config.Logger.Debugf("%s %s (%s)", next.Action, next.MountPath, next.Device)
			pending = pending[1:]
		}
	}
}

// watchChanges combines every source of change notification into one
// watcher owned by the catacomb.
func (w *Worker) watchChanges() (watcher.NotifyChannel, error) {
	var watchers []watcher.NotifyWatcher
	if w.config.NewMountWatcher != nil {
		mw, err := w.config.NewMountWatcher()
		if errors.Is(err, errors.NotSupported) {
			w.config.Logger.Infof("mount table notifications not available, relying on rescans")
		} else if err != nil {
			return nil, errors.Annotate(err, "watching mount table")
		} else {
			watchers = append(watchers, mw)
		}
	}
	if w.config.FileNotifyWatcher != nil {
		for _, root := range w.config.MediaRoots {
			ch, err := w.config.FileNotifyWatcher.Changes(root, "")
			if err != nil {
				w.config.Logger.Warningf("not watching media root %q: %v", root, err)
				continue
			}
			watchers = append(watchers, watcher.NewChannelNotifyWatcher(ch))
		}
	}
	if w.config.RescanInterval > 0 {
		watchers = append(watchers, watcher.NewPeriodicNotifyWatcher(w.config.Clock, w.config.RescanInterval))
	}

	multi := watcher.NewMultiNotifyWatcher(watchers...)
	if err := w.catacomb.Add(multi); err != nil {
		return nil, errors.Trace(err)
	}
	return multi.Changes(), nil
}

// scan reads the candidate mounts and returns the events that bring the
// known set in line with them. A failed read changes nothing.
func (w *Worker) scan() []cart.DeviceEvent {
	mounts, err := w.config.Source.Mounts()
	if err != nil {
		w.config.Logger.Warningf("scanning mounts: %v", err)
		return nil
	}
	current := make(map[string]Mount, len(mounts))
	for _, m := range mounts {
		current[m.Path] = m
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.config.Clock.Now()
	var detached, attached []cart.DeviceEvent
	for path, old := range w.known {
		if m, ok := current[path]; ok && m.Device == old.Device {
			continue
		}
		detached = append(detached, cart.DeviceEvent{
			Action:    cart.Detach,
			MountPath: path,
			Device:    old.Device,
			Time:      now,
		})
		delete(w.known, path)
	}
	for path, m := range current {
		if _, ok := w.known[path]; ok {
			continue
		}
		attached = append(attached, cart.DeviceEvent{
			Action:    cart.Attach,
			MountPath: path,
			Device:    m.Device,
			Time:      now,
		})
		w.known[path] = m
	}
	sortEvents(detached)
	sortEvents(attached)
	return append(detached, attached...)
}

func sortEvents(events []cart.DeviceEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].MountPath < events[j].MountPath
	})
}
