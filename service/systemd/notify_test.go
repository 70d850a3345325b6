// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd_test

import (
	"os"
	"sync"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/juju/cartd/service/systemd"
	coretesting "github.com/juju/cartd/testing"
)

type notifySuite struct {
	testing.IsolationSuite

	mu    sync.Mutex
	sent  []string
	err   error
	calls chan string
}

var _ = gc.Suite(&notifySuite{})

func (s *notifySuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.sent = nil
	s.err = nil
	s.calls = make(chan string, 10)
}

func (s *notifySuite) notify(unset bool, state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	s.sent = append(s.sent, state)
	select {
	case s.calls <- state:
	default:
	}
	return true, nil
}

func (s *notifySuite) TestMessages(c *gc.C) {
	n := systemd.NewNotifier(s.notify, coretesting.NewCheckLogger(c))
	n.Ready("watching 2 media roots")
	n.Status("%d carts trusted", 3)
	n.Watchdog()
	n.Stopping()

	c.Check(s.sent, jc.DeepEquals, []string{
		"READY=1\nSTATUS=watching 2 media roots",
		"STATUS=3 carts trusted",
		"WATCHDOG=1",
		"STOPPING=1",
	})
}

func (s *notifySuite) TestNotifyErrorLogged(c *gc.C) {
	s.err = errors.New("connection refused")
	n := systemd.NewNotifier(s.notify, coretesting.NewCheckLogger(c))
	n.Ready("")
	c.Check(s.sent, gc.HasLen, 0)
	c.Check(c.GetTestLog(), jc.Contains, "notifying service manager: connection refused")
}

func (s *notifySuite) TestWatchdogValidate(c *gc.C) {
	n := systemd.NewNotifier(s.notify, coretesting.NoopLogger{})
	clk := testclock.NewClock(time.Time{})
	for i, cfg := range []systemd.WatchdogConfig{
		{Clock: clk, Interval: time.Second},
		{Notifier: n, Interval: time.Second},
		{Notifier: n, Clock: clk},
	} {
		c.Logf("test %d", i)
		_, err := systemd.NewWatchdog(cfg)
		c.Check(err, jc.Satisfies, errors.IsNotValid)
	}
}

func (s *notifySuite) TestWatchdogPings(c *gc.C) {
	clk := testclock.NewClock(time.Time{})
	w, err := systemd.NewWatchdog(systemd.WatchdogConfig{
		Notifier: systemd.NewNotifier(s.notify, coretesting.NoopLogger{}),
		Clock:    clk,
		Interval: 20 * time.Second,
	})
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)

	s.expectPing(c)
	c.Assert(clk.WaitAdvance(10*time.Second, coretesting.LongWait, 1), jc.ErrorIsNil)
	s.expectPing(c)
	c.Assert(clk.WaitAdvance(10*time.Second, coretesting.LongWait, 1), jc.ErrorIsNil)
	s.expectPing(c)
}

func (s *notifySuite) expectPing(c *gc.C) {
	select {
	case state := <-s.calls:
		c.Check(state, gc.Equals, "WATCHDOG=1")
	case <-time.After(coretesting.LongWait):
		c.Fatalf("timed out waiting for watchdog ping")
	}
}

func (s *notifySuite) TestIsRunningMatchesRuntimeDir(c *gc.C) {
	_, err := os.Stat(systemd.RuntimeDir)
	c.Check(systemd.IsRunning(), gc.Equals, err == nil)
}
