// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package watcher_test

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/juju/cartd/core/watcher"
	"github.com/juju/cartd/core/watcher/watchertest"
	coretesting "github.com/juju/cartd/testing"
)

type notifyWorkerSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&notifyWorkerSuite{})

func (s *notifyWorkerSuite) TestValidate(c *gc.C) {
	_, err := watcher.NewNotifyWorker(watcher.NotifyConfig{})
	c.Check(err, jc.Satisfies, errors.IsNotValid)
}

func (s *notifyWorkerSuite) TestHandleCalledPerChange(c *gc.C) {
	ch := make(chan struct{})
	h := newActionsHandler(watchertest.NewMockNotifyWatcher(ch))
	w, err := watcher.NewNotifyWorker(watcher.NotifyConfig{Handler: h})
	c.Assert(err, jc.ErrorIsNil)

	for i := 0; i < 2; i++ {
		select {
		case ch <- struct{}{}:
		case <-time.After(coretesting.LongWait):
			c.Fatalf("timed out sending change")
		}
		h.waitHandled(c)
	}
	workertest.CleanKill(c, w)
	c.Check(h.actions(), jc.DeepEquals, []string{"setup", "handle", "handle", "teardown"})
}

func (s *notifyWorkerSuite) TestHandleError(c *gc.C) {
	ch := make(chan struct{}, 1)
	h := newActionsHandler(watchertest.NewMockNotifyWatcher(ch))
	h.handleErr = errors.New("boom")
	w, err := watcher.NewNotifyWorker(watcher.NotifyConfig{Handler: h})
	c.Assert(err, jc.ErrorIsNil)

	ch <- struct{}{}
	err = workertest.CheckKilled(c, w)
	c.Check(err, gc.ErrorMatches, "boom")
	c.Check(h.actions(), jc.DeepEquals, []string{"setup", "handle", "teardown"})
}

func (s *notifyWorkerSuite) TestSetUpError(c *gc.C) {
	h := newActionsHandler(nil)
	h.setupErr = errors.New("no watcher")
	w, err := watcher.NewNotifyWorker(watcher.NotifyConfig{Handler: h})
	c.Assert(err, jc.ErrorIsNil)

	err = workertest.CheckKilled(c, w)
	c.Check(err, gc.ErrorMatches, "no watcher")
	c.Check(h.actions(), jc.DeepEquals, []string{"setup", "teardown"})
}

func (s *notifyWorkerSuite) TestNilWatcher(c *gc.C) {
	h := newActionsHandler(nil)
	w, err := watcher.NewNotifyWorker(watcher.NotifyConfig{Handler: h})
	c.Assert(err, jc.ErrorIsNil)

	err = workertest.CheckKilled(c, w)
	c.Check(err, gc.ErrorMatches, "handler returned nil watcher")
	c.Check(h.actions(), jc.DeepEquals, []string{"setup", "teardown"})
}

func (s *notifyWorkerSuite) TestHandleErrorWinsOverTearDownError(c *gc.C) {
	ch := make(chan struct{}, 1)
	h := newActionsHandler(watchertest.NewMockNotifyWatcher(ch))
	h.handleErr = errors.New("boom")
	h.teardownErr = errors.New("teardown failed")
	w, err := watcher.NewNotifyWorker(watcher.NotifyConfig{Handler: h})
	c.Assert(err, jc.ErrorIsNil)

	ch <- struct{}{}
	err = workertest.CheckKilled(c, w)
	c.Check(err, gc.ErrorMatches, "boom")
}

func (s *notifyWorkerSuite) TestTearDownErrorReported(c *gc.C) {
	h := newActionsHandler(watchertest.NewMockNotifyWatcher(make(chan struct{})))
	h.teardownErr = errors.New("teardown failed")
	w, err := watcher.NewNotifyWorker(watcher.NotifyConfig{Handler: h})
	c.Assert(err, jc.ErrorIsNil)

	w.Kill()
	c.Check(w.Wait(), gc.ErrorMatches, "teardown failed")
}

type actionsHandler struct {
	mu        sync.Mutex
	recorded  []string
	watcher   watcher.NotifyWatcher
	setupErr  error
	handleErr error
	handled   chan struct{}

	teardownErr error
}

func newActionsHandler(w watcher.NotifyWatcher) *actionsHandler {
	return &actionsHandler{
		watcher: w,
		handled: make(chan struct{}, 10),
	}
}

func (h *actionsHandler) record(action string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorded = append(h.recorded, action)
}

func (h *actionsHandler) actions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.recorded...)
}

func (h *actionsHandler) SetUp(context.Context) (watcher.NotifyWatcher, error) {
	h.record("setup")
	if h.setupErr != nil {
		return nil, h.setupErr
	}
	return h.watcher, nil
}

func (h *actionsHandler) Handle(context.Context) error {
	h.record("handle")
	h.handled <- struct{}{}
	return h.handleErr
}

func (h *actionsHandler) TearDown() error {
	h.record("teardown")
	return h.teardownErr
}

func (h *actionsHandler) waitHandled(c *gc.C) {
	select {
	case <-h.handled:
	case <-time.After(coretesting.LongWait):
		c.Fatalf("timed out waiting for handle")
	}
}
