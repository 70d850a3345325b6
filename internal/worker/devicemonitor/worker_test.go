// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package devicemonitor

import (
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/juju/cartd/core/cart"
	"github.com/juju/cartd/core/watcher"
	"github.com/juju/cartd/core/watcher/watchertest"
	coretesting "github.com/juju/cartd/testing"
)

const debounce = 500 * time.Millisecond

type workerSuite struct {
	baseSuite

	clock   *testclock.Clock
	changes chan struct{}
}

var _ = gc.Suite(&workerSuite{})

func (s *workerSuite) SetUpTest(c *gc.C) {
	s.baseSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	s.changes = make(chan struct{})
}

func (s *workerSuite) config(c *gc.C) Config {
	return Config{
		Source: s.source,
		NewMountWatcher: func() (watcher.NotifyWatcher, error) {
			return watchertest.NewMockNotifyWatcher(s.changes), nil
		},
		Clock:    s.clock,
		Logger:   coretesting.NewCheckLogger(c),
		Debounce: debounce,
	}
}

func (s *workerSuite) TestValidateConfig(c *gc.C) {
	defer s.setupMocks(c).Finish()

	cfg := s.config(c)
	c.Check(cfg.Validate(), jc.ErrorIsNil)

	cfg = s.config(c)
	cfg.Source = nil
	c.Check(cfg.Validate(), jc.Satisfies, errors.IsNotValid)

	cfg = s.config(c)
	cfg.Clock = nil
	c.Check(cfg.Validate(), jc.Satisfies, errors.IsNotValid)

	cfg = s.config(c)
	cfg.Logger = nil
	c.Check(cfg.Validate(), jc.Satisfies, errors.IsNotValid)

	cfg = s.config(c)
	cfg.Debounce = -time.Second
	c.Check(cfg.Validate(), jc.Satisfies, errors.IsNotValid)
}

func (s *workerSuite) TestInitialEnumeration(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.source.EXPECT().Mounts().Return([]Mount{
		{Path: "/media/usb1", Device: "/dev/sdc1"},
		{Path: "/media/usb0", Device: "/dev/sdb1"},
	}, nil)

	w, err := NewWorker(s.config(c))
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)

	s.expectEvent(c, w, cart.Attach, "/media/usb0", "/dev/sdb1")
	s.expectEvent(c, w, cart.Attach, "/media/usb1", "/dev/sdc1")
	s.expectNoEvent(c, w)
}

func (s *workerSuite) TestAttachAndDetach(c *gc.C) {
	defer s.setupMocks(c).Finish()

	gomock.InOrder(
		s.source.EXPECT().Mounts().Return(nil, nil),
		s.source.EXPECT().Mounts().Return([]Mount{{Path: "/media/usb0", Device: "/dev/sdb1"}}, nil),
		s.source.EXPECT().Mounts().Return(nil, nil),
	)

	w, err := NewWorker(s.config(c))
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)

	s.signal(c)
	s.expectEvent(c, w, cart.Attach, "/media/usb0", "/dev/sdb1")

	s.signal(c)
	s.expectEvent(c, w, cart.Detach, "/media/usb0", "/dev/sdb1")
	s.expectNoEvent(c, w)
}

func (s *workerSuite) TestChangesAreDebounced(c *gc.C) {
	defer s.setupMocks(c).Finish()

	gomock.InOrder(
		s.source.EXPECT().Mounts().Return(nil, nil),
		s.source.EXPECT().Mounts().Return([]Mount{{Path: "/media/usb0", Device: "/dev/sdb1"}}, nil),
	)

	w, err := NewWorker(s.config(c))
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)

	for i := 0; i < 3; i++ {
		s.sendChange(c)
	}
	c.Assert(s.clock.WaitAdvance(debounce, coretesting.LongWait, 1), jc.ErrorIsNil)
	s.expectEvent(c, w, cart.Attach, "/media/usb0", "/dev/sdb1")
	s.expectNoEvent(c, w)
}

func (s *workerSuite) TestDeviceChangeIsDetachThenAttach(c *gc.C) {
	defer s.setupMocks(c).Finish()

	gomock.InOrder(
		s.source.EXPECT().Mounts().Return([]Mount{{Path: "/media/usb0", Device: "/dev/sdb1"}}, nil),
		s.source.EXPECT().Mounts().Return([]Mount{{Path: "/media/usb0", Device: "/dev/sdc1"}}, nil),
	)

	w, err := NewWorker(s.config(c))
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)

	s.expectEvent(c, w, cart.Attach, "/media/usb0", "/dev/sdb1")
	s.signal(c)
	s.expectEvent(c, w, cart.Detach, "/media/usb0", "/dev/sdb1")
	s.expectEvent(c, w, cart.Attach, "/media/usb0", "/dev/sdc1")
}

func (s *workerSuite) TestScanErrorKeepsKnownMounts(c *gc.C) {
	defer s.setupMocks(c).Finish()

	scanned := make(chan struct{}, 1)
	gomock.InOrder(
		s.source.EXPECT().Mounts().Return([]Mount{{Path: "/media/usb0", Device: "/dev/sdb1"}}, nil),
		s.source.EXPECT().Mounts().Return(nil, errors.New("boom")),
		s.source.EXPECT().Mounts().DoAndReturn(func() ([]Mount, error) {
			scanned <- struct{}{}
			return []Mount{{Path: "/media/usb0", Device: "/dev/sdb1"}}, nil
		}),
	)

	w, err := NewWorker(s.config(c))
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)

	s.expectEvent(c, w, cart.Attach, "/media/usb0", "/dev/sdb1")
	s.signal(c)
	s.expectNoEvent(c, w)
	s.signal(c)
	select {
	case <-scanned:
	case <-time.After(coretesting.LongWait):
		c.Fatalf("timed out waiting for rescan")
	}
	s.expectNoEvent(c, w)
	c.Check(w.Report(), jc.DeepEquals, map[string]interface{}{
		"mounts": map[string]interface{}{"/media/usb0": "/dev/sdb1"},
	})
}

func (s *workerSuite) TestPeriodicRescan(c *gc.C) {
	defer s.setupMocks(c).Finish()

	gomock.InOrder(
		s.source.EXPECT().Mounts().Return(nil, nil),
		s.source.EXPECT().Mounts().Return([]Mount{{Path: "/media/usb0", Device: "/dev/sdb1"}}, nil),
	)

	cfg := s.config(c)
	cfg.NewMountWatcher = nil
	cfg.Debounce = 0
	cfg.RescanInterval = time.Minute
	w, err := NewWorker(cfg)
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)

	c.Assert(s.clock.WaitAdvance(time.Minute, coretesting.LongWait, 1), jc.ErrorIsNil)
	s.expectEvent(c, w, cart.Attach, "/media/usb0", "/dev/sdb1")
}

func (s *workerSuite) TestMountWatcherNotSupported(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.source.EXPECT().Mounts().Return(nil, nil)

	cfg := s.config(c)
	cfg.NewMountWatcher = func() (watcher.NotifyWatcher, error) {
		return nil, errors.NotSupportedf("mount table notifications")
	}
	w, err := NewWorker(cfg)
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)
	s.expectNoEvent(c, w)
}

func (s *workerSuite) TestMountWatcherError(c *gc.C) {
	defer s.setupMocks(c).Finish()

	cfg := s.config(c)
	cfg.NewMountWatcher = func() (watcher.NotifyWatcher, error) {
		return nil, errors.New("boom")
	}
	w, err := NewWorker(cfg)
	c.Assert(err, jc.ErrorIsNil)

	err = workertest.CheckKilled(c, w)
	c.Check(err, gc.ErrorMatches, "watching mount table: boom")
}

func (s *workerSuite) TestMediaRootChanges(c *gc.C) {
	defer s.setupMocks(c).Finish()

	rootChanges := make(chan string)
	gomock.InOrder(
		s.source.EXPECT().Mounts().Return(nil, nil),
		s.source.EXPECT().Mounts().Return([]Mount{{Path: "/media/usb0", Device: "/dev/sdb1"}}, nil),
	)

	cfg := s.config(c)
	cfg.NewMountWatcher = nil
	cfg.MediaRoots = []string{"/media", "/run/media"}
	cfg.FileNotifyWatcher = fileNotifyWatcherFunc(func(dir, fileName string) (<-chan string, error) {
		c.Check(fileName, gc.Equals, "")
		if dir == "/run/media" {
			return nil, errors.NotFoundf("directory %q", dir)
		}
		return rootChanges, nil
	})
	w, err := NewWorker(cfg)
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)

	select {
	case rootChanges <- "/media/usb0":
	case <-time.After(coretesting.LongWait):
		c.Fatalf("timed out sending root change")
	}
	c.Assert(s.clock.WaitAdvance(debounce, coretesting.LongWait, 1), jc.ErrorIsNil)
	s.expectEvent(c, w, cart.Attach, "/media/usb0", "/dev/sdb1")
}

func (s *workerSuite) sendChange(c *gc.C) {
	select {
	case s.changes <- struct{}{}:
	case <-time.After(coretesting.LongWait):
		c.Fatalf("timed out sending change")
	}
}

// signal sends a change and lets the debounce interval elapse.
func (s *workerSuite) signal(c *gc.C) {
	s.sendChange(c)
	c.Assert(s.clock.WaitAdvance(debounce, coretesting.LongWait, 1), jc.ErrorIsNil)
}

func (s *workerSuite) expectEvent(c *gc.C, w *Worker, action cart.Action, path, device string) {
	select {
	case ev := <-w.Events():
		c.Check(ev.Action, gc.Equals, action)
		c.Check(ev.MountPath, gc.Equals, path)
		c.Check(ev.Device, gc.Equals, device)
		c.Check(ev.Time, gc.Equals, s.clock.Now())
	case <-time.After(coretesting.LongWait):
		c.Fatalf("timed out waiting for %s of %s", action, path)
	}
}

func (s *workerSuite) expectNoEvent(c *gc.C, w *Worker) {
	select {
	case ev := <-w.Events():
		c.Fatalf("unexpected event %+v", ev)
	case <-time.After(coretesting.ShortWait):
	}
}

type fileNotifyWatcherFunc func(dir, fileName string) (<-chan string, error)

func (f fileNotifyWatcherFunc) Changes(dir, fileName string) (<-chan string, error) {
	return f(dir, fileName)
}
