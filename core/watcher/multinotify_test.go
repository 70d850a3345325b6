// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package watcher_test

import (
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/juju/cartd/core/watcher"
	"github.com/juju/cartd/core/watcher/watchertest"
	coretesting "github.com/juju/cartd/testing"
)

type multiNotifySuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&multiNotifySuite{})

func (*multiNotifySuite) TestMultiNotifyWatcher(c *gc.C) {
	ch0 := make(chan struct{}, 1)
	w0 := watchertest.NewMockNotifyWatcher(ch0)
	ch1 := make(chan struct{}, 1)
	w1 := watchertest.NewMockNotifyWatcher(ch1)

	mw := watcher.NewMultiNotifyWatcher(w0, w1)
	defer workertest.CleanKill(c, mw)

	wc := NewNotifyWatcherC(c, mw)
	wc.AssertNoChange()

	ch0 <- struct{}{}
	wc.AssertOneChange()

	ch1 <- struct{}{}
	wc.AssertOneChange()

	// Pending changes are coalesced.
	ch0 <- struct{}{}
	ch1 <- struct{}{}
	wc.AssertAtLeastOneChange()
	wc.AssertNoChange()
}

func (*multiNotifySuite) TestMultiNotifyWatcherStop(c *gc.C) {
	ch0 := make(chan struct{}, 1)
	w0 := watchertest.NewMockNotifyWatcher(ch0)
	ch1 := make(chan struct{}, 1)
	w1 := watchertest.NewMockNotifyWatcher(ch1)

	mw := watcher.NewMultiNotifyWatcher(w0, w1)
	wc := NewNotifyWatcherC(c, mw)
	workertest.CleanKill(c, mw)
	wc.AssertClosed()
	workertest.CheckKilled(c, w0)
	workertest.CheckKilled(c, w1)
}

func (*multiNotifySuite) TestMultiNotifyWatcherFailure(c *gc.C) {
	ch0 := make(chan struct{}, 1)
	w0 := watchertest.NewMockNotifyWatcher(ch0)
	ch1 := make(chan struct{}, 1)
	w1 := watchertest.NewMockNotifyWatcher(ch1)

	mw := watcher.NewMultiNotifyWatcher(w0, w1)
	w0.KillErr(errors.New("boom"))

	err := workertest.CheckKilled(c, mw)
	c.Check(err, gc.ErrorMatches, "boom")
	workertest.CheckKilled(c, w1)
}

func (*multiNotifySuite) TestChannelNotifyWatcher(c *gc.C) {
	in := make(chan string)
	w := watcher.NewChannelNotifyWatcher[string](in)

	wc := NewNotifyWatcherC(c, w)
	in <- "/media/usb0"
	wc.AssertOneChange()

	close(in)
	wc.AssertClosed()
	c.Check(w.Wait(), jc.ErrorIsNil)
}

func (*multiNotifySuite) TestPeriodicNotifyWatcher(c *gc.C) {
	clk := testclock.NewClock(time.Time{})
	w := watcher.NewPeriodicNotifyWatcher(clk, time.Minute)
	defer workertest.CleanKill(c, w)

	wc := NewNotifyWatcherC(c, w)
	wc.AssertNoChange()

	for i := 0; i < 2; i++ {
		c.Assert(clk.WaitAdvance(time.Minute, coretesting.LongWait, 1), jc.ErrorIsNil)
		wc.AssertOneChange()
	}
}

func (*multiNotifySuite) TestPeriodicNotifyWatcherDisabled(c *gc.C) {
	clk := testclock.NewClock(time.Time{})
	w := watcher.NewPeriodicNotifyWatcher(clk, 0)
	defer workertest.CleanKill(c, w)

	NewNotifyWatcherC(c, w).AssertNoChange()
}

// NotifyWatcherC asserts on the events of a NotifyWatcher.
type NotifyWatcherC struct {
	*gc.C
	Watcher watcher.NotifyWatcher
}

func NewNotifyWatcherC(c *gc.C, w watcher.NotifyWatcher) NotifyWatcherC {
	return NotifyWatcherC{C: c, Watcher: w}
}

func (c NotifyWatcherC) AssertOneChange() {
	select {
	case _, ok := <-c.Watcher.Changes():
		c.Assert(ok, jc.IsTrue)
	case <-time.After(coretesting.LongWait):
		c.Fatalf("watcher did not send change")
	}
	c.AssertNoChange()
}

func (c NotifyWatcherC) AssertAtLeastOneChange() {
	select {
	case _, ok := <-c.Watcher.Changes():
		c.Assert(ok, jc.IsTrue)
	case <-time.After(coretesting.LongWait):
		c.Fatalf("watcher did not send change")
	}
	for {
		select {
		case _, ok := <-c.Watcher.Changes():
			c.Assert(ok, jc.IsTrue)
		case <-time.After(coretesting.ShortWait):
			return
		}
	}
}

func (c NotifyWatcherC) AssertNoChange() {
	select {
	case _, ok := <-c.Watcher.Changes():
		c.Fatalf("watcher sent unexpected change: (_, %v)", ok)
	case <-time.After(coretesting.ShortWait):
	}
}

func (c NotifyWatcherC) AssertClosed() {
	select {
	case _, ok := <-c.Watcher.Changes():
		c.Assert(ok, jc.IsFalse)
	case <-time.After(coretesting.LongWait):
		c.Fatalf("watcher did not close")
	}
}
