// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package watcher

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"
)

// NotifyChannel receives a value whenever the observed thing changes.
type NotifyChannel = <-chan struct{}

// NotifyWatcher reports changes without saying what changed.
type NotifyWatcher = Watcher[struct{}]

// NotifyHandler is the behaviour run by a NotifyWorker, such as the
// trust store reloader.
type NotifyHandler interface {
	// SetUp returns the watcher whose changes drive Handle. The worker
	// owns the returned watcher.
	SetUp(context.Context) (NotifyWatcher, error)

	// Handle runs once per change. The context is cancelled when the
	// worker is killed; a cancelled Handle is not an error.
	Handle(context.Context) error

	// TearDown releases anything SetUp or Handle acquired. It runs even
	// when SetUp failed.
	TearDown() error
}

// NotifyConfig holds the dependencies of a NotifyWorker.
type NotifyConfig struct {
	Handler NotifyHandler
}

// Validate returns an error if the config cannot start a NotifyWorker.
func (config NotifyConfig) Validate() error {
	if config.Handler == nil {
		return errors.NotValidf("nil Handler")
	}
	return nil
}

// NotifyWorker calls its handler for every change of the handler's
// watcher until killed or until the handler fails.
type NotifyWorker struct {
	catacomb catacomb.Catacomb
	config   NotifyConfig
}

// NewNotifyWorker starts a NotifyWorker.
func NewNotifyWorker(config NotifyConfig) (*NotifyWorker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	nw := &NotifyWorker{config: config}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &nw.catacomb,
		Work: nw.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return nw, nil
}

func (nw *NotifyWorker) loop() (err error) {
	defer func() {
		// The loop's own error takes precedence over TearDown's.
		nw.catacomb.Kill(err)
		nw.catacomb.Kill(nw.config.Handler.TearDown())
	}()

	changes, err := nw.setUp()
	if err != nil {
		return errors.Trace(err)
	}
	for {
		select {
		case <-nw.catacomb.Dying():
			return nw.catacomb.ErrDying()
		case _, ok := <-changes:
			if !ok {
				return errors.New("change channel closed")
			}
			if err := nw.handle(); err != nil {
				return errors.Trace(err)
			}
		}
	}
}

func (nw *NotifyWorker) setUp() (NotifyChannel, error) {
	ctx, cancel := nw.scopedContext()
	defer cancel()

	w, err := nw.config.Handler.SetUp(ctx)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, errors.New("handler returned nil watcher")
	}
	if err := nw.catacomb.Add(w); err != nil {
		return nil, errors.Trace(err)
	}
	return w.Changes(), nil
}

func (nw *NotifyWorker) handle() error {
	ctx, cancel := nw.scopedContext()
	defer cancel()

	err := nw.config.Handler.Handle(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Kill is part of the worker.Worker interface.
func (nw *NotifyWorker) Kill() {
	nw.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (nw *NotifyWorker) Wait() error {
	return nw.catacomb.Wait()
}

// Report includes the handler's report when it has one.
func (nw *NotifyWorker) Report() map[string]interface{} {
	report := map[string]interface{}{
		"type": "NotifyWorker",
	}
	if r, ok := nw.config.Handler.(worker.Reporter); ok {
		report["handler"] = r.Report()
	}
	return report
}

func (nw *NotifyWorker) scopedContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(nw.catacomb.Context(context.Background()))
}
