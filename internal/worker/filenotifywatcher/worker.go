// Copyright 2023 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package filenotifywatcher provides directory watchers backed by
// inotify, owned by a single worker so that they all stop together.
package filenotifywatcher

import (
	"sync"

	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"
)

// FileNotifyWatcher represents a way to watch for changes in a directory.
type FileNotifyWatcher interface {
	// Changes returns a channel for the given directory that will carry
	// the path of every entry changed. When fileName is not empty only
	// changes to that entry are reported.
	Changes(dir, fileName string) (<-chan string, error)
}

// WorkerConfig encapsulates the configuration options for the
// file notify worker.
type WorkerConfig struct {
	Logger     Logger
	NewWatcher WatcherFn
}

// Validate ensures that the config values are valid.
func (c *WorkerConfig) Validate() error {
	if c.Logger == nil {
		return errors.NotValidf("missing Logger")
	}
	if c.NewWatcher == nil {
		return errors.NotValidf("missing NewWatcher")
	}
	return nil
}

type watchKey struct {
	dir      string
	fileName string
}

type fileNotifyWorker struct {
	cfg      WorkerConfig
	catacomb catacomb.Catacomb

	mu       sync.Mutex
	watchers map[watchKey]FileWatcher
}

// NewWorker returns a worker that owns every directory watcher handed out
// by Changes.
func NewWorker(cfg WorkerConfig) (worker.Worker, error) {
	return newWorker(cfg)
}

func newWorker(cfg WorkerConfig) (*fileNotifyWorker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	w := &fileNotifyWorker{
		cfg:      cfg,
		watchers: make(map[watchKey]FileWatcher),
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

func (w *fileNotifyWorker) loop() error {
	<-w.catacomb.Dying()
	return w.catacomb.ErrDying()
}

// Kill is part of the worker.Worker interface.
func (w *fileNotifyWorker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *fileNotifyWorker) Wait() error {
	return w.catacomb.Wait()
}

// Changes returns a channel containing all the change events for the given
// directory. Asking again for the same directory and file name returns
// the same channel.
func (w *fileNotifyWorker) Changes(dir, fileName string) (<-chan string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := watchKey{dir: dir, fileName: fileName}
	if watcher, ok := w.watchers[key]; ok {
		return watcher.Changes(), nil
	}

	opts := []Option{WithLogger(w.cfg.Logger)}
	if fileName != "" {
		opts = append(opts, WithFileName(fileName))
	}
	watcher, err := w.cfg.NewWatcher(dir, opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := w.catacomb.Add(watcher); err != nil {
		return nil, errors.Annotatef(err, "starting watcher for %q", dir)
	}
	w.watchers[key] = watcher
	return watcher.Changes(), nil
}
