// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package watchertest

import (
	"gopkg.in/tomb.v2"

	"github.com/juju/cartd/core/watcher"
)

// MockNotifyWatcher is a NotifyWatcher that relays events from a
// channel owned by the test.
type MockNotifyWatcher struct {
	tomb    tomb.Tomb
	changes <-chan struct{}
}

// NewMockNotifyWatcher returns a watcher whose Changes channel is ch.
func NewMockNotifyWatcher(ch <-chan struct{}) *MockNotifyWatcher {
	w := &MockNotifyWatcher{changes: ch}
	w.tomb.Go(func() error {
		<-w.tomb.Dying()
		return tomb.ErrDying
	})
	return w
}

func (w *MockNotifyWatcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *MockNotifyWatcher) Kill() {
	w.tomb.Kill(nil)
}

// KillErr can be used to kill the worker with an error, to simulate a
// failing watcher.
func (w *MockNotifyWatcher) KillErr(err error) {
	w.tomb.Kill(err)
}

func (w *MockNotifyWatcher) Wait() error {
	return w.tomb.Wait()
}

var _ watcher.NotifyWatcher = (*MockNotifyWatcher)(nil)
