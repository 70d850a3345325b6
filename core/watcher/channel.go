// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package watcher

import (
	"time"

	"github.com/juju/clock"
	"gopkg.in/tomb.v2"
)

// channelWatcher turns every value received on a channel into a notify
// event.
type channelWatcher[T any] struct {
	tomb    tomb.Tomb
	changes chan struct{}
}

// NewChannelNotifyWatcher returns a NotifyWatcher that sends an event for
// each value received from in. The watcher stops when in is closed.
func NewChannelNotifyWatcher[T any](in <-chan T) NotifyWatcher {
	w := &channelWatcher[T]{
		changes: make(chan struct{}),
	}
	w.tomb.Go(func() error {
		defer close(w.changes)
		var out chan struct{}
		for {
			select {
			case <-w.tomb.Dying():
				return tomb.ErrDying
			case _, ok := <-in:
				if !ok {
					return nil
				}
				out = w.changes
			case out <- struct{}{}:
				out = nil
			}
		}
	})
	return w
}

func (w *channelWatcher[T]) Kill() {
	w.tomb.Kill(nil)
}

func (w *channelWatcher[T]) Wait() error {
	return w.tomb.Wait()
}

func (w *channelWatcher[T]) Changes() <-chan struct{} {
	return w.changes
}

// periodicWatcher sends an event every period.
type periodicWatcher struct {
	tomb    tomb.Tomb
	changes chan struct{}
}

// NewPeriodicNotifyWatcher returns a NotifyWatcher that sends an event
// each time period elapses on clk. A period that is not positive never
// fires.
func NewPeriodicNotifyWatcher(clk clock.Clock, period time.Duration) NotifyWatcher {
	w := &periodicWatcher{
		changes: make(chan struct{}),
	}
	w.tomb.Go(func() error {
		defer close(w.changes)
		var (
			timer <-chan time.Time
			out   chan struct{}
		)
		if period > 0 {
			timer = clk.After(period)
		}
		for {
			select {
			case <-w.tomb.Dying():
				return tomb.ErrDying
			case <-timer:
				timer = clk.After(period)
				out = w.changes
			case out <- struct{}{}:
				out = nil
			}
		}
	})
	return w
}

func (w *periodicWatcher) Kill() {
	w.tomb.Kill(nil)
}

func (w *periodicWatcher) Wait() error {
	return w.tomb.Wait()
}

func (w *periodicWatcher) Changes() <-chan struct{} {
	return w.changes
}
