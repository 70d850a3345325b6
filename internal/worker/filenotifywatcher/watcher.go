// Copyright 2023 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package filenotifywatcher

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/juju/errors"
	"gopkg.in/tomb.v2"
)

// FileWatcher is a worker that reports changes to entries of a single
// directory.
type FileWatcher interface {
	Kill()
	Wait() error

	// Changes returns a channel carrying the full path of every entry
	// that was created, written, renamed or removed.
	Changes() <-chan string
}

// INotifyWatcher is the subset of fsnotify.Watcher used here.
type INotifyWatcher interface {
	Watch(path string) error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

// WatcherFn creates a new file watcher for the directory dir.
type WatcherFn = func(dir string, opts ...Option) (FileWatcher, error)

type option struct {
	logger    Logger
	fileName  string
	watcherFn func() (INotifyWatcher, error)
}

// Option configures a Watcher.
type Option func(*option)

// WithLogger sets the logger used by the watcher.
func WithLogger(logger Logger) Option {
	return func(o *option) {
		o.logger = logger
	}
}

// WithFileName restricts reported changes to the named entry of the
// directory.
func WithFileName(name string) Option {
	return func(o *option) {
		o.fileName = name
	}
}

// WithINotifyWatcherFn sets the function used to create the underlying
// inotify watcher.
func WithINotifyWatcherFn(fn func() (INotifyWatcher, error)) Option {
	return func(o *option) {
		o.watcherFn = fn
	}
}

func newOption() *option {
	return &option{
		logger:    noopLogger{},
		watcherFn: newWatcher,
	}
}

// Watcher reports changes to the entries of a directory.
type Watcher struct {
	tomb     tomb.Tomb
	dir      string
	fileName string
	changes  chan string
	watcher  INotifyWatcher
	logger   Logger
}

// NewWatcher creates a new Watcher for the directory dir.
func NewWatcher(dir string, opts ...Option) (FileWatcher, error) {
	o := newOption()
	for _, opt := range opts {
		opt(o)
	}

	watcher, err := o.watcherFn()
	if err != nil {
		return nil, errors.Annotatef(err, "creating watcher for %q", dir)
	}
	if err := watcher.Watch(dir); err != nil {
		_ = watcher.Close()
		return nil, errors.Annotatef(err, "watching %q", dir)
	}

	w := &Watcher{
		dir:      dir,
		fileName: o.fileName,
		changes:  make(chan string),
		watcher:  watcher,
		logger:   o.logger,
	}
	w.tomb.Go(w.loop)
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Watcher) Kill() {
	w.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Watcher) Wait() error {
	return w.tomb.Wait()
}

// Changes returns the channel of changed paths.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

func (w *Watcher) loop() error {
	defer func() {
		_ = w.watcher.Close()
		close(w.changes)
	}()

	var target string
	if w.fileName != "" {
		target = filepath.Join(w.dir, w.fileName)
	}

	for {
		select {
		case <-w.tomb.Dying():
			return tomb.ErrDying
		case event, ok := <-w.watcher.Events():
			if !ok {
				return errors.New("watcher has stopped")
			}
			if target != "" && filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Tracef("%s: %s", event.Name, event.Op)

			select {
			case <-w.tomb.Dying():
				return tomb.ErrDying
			case w.changes <- event.Name:
			}
		case err, ok := <-w.watcher.Errors():
			if !ok {
				return errors.New("watcher has stopped")
			}
			return errors.Annotatef(err, "watching %q", w.dir)
		}
	}
}

type fsWatcher struct {
	*fsnotify.Watcher
}

func newWatcher() (INotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &fsWatcher{Watcher: w}, nil
}

func (w *fsWatcher) Watch(path string) error {
	return w.Watcher.Add(path)
}

func (w *fsWatcher) Events() <-chan fsnotify.Event {
	return w.Watcher.Events
}

func (w *fsWatcher) Errors() <-chan error {
	return w.Watcher.Errors
}

type noopLogger struct{}

func (noopLogger) Errorf(string, ...any)   {}
func (noopLogger) Warningf(string, ...any) {}
func (noopLogger) Infof(string, ...any)    {}
func (noopLogger) Debugf(string, ...any)   {}
func (noopLogger) Tracef(string, ...any)   {}
