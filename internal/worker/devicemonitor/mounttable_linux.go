// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build linux

package devicemonitor

import (
	"os"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
	"gopkg.in/tomb.v2"

	"github.com/juju/cartd/core/watcher"
)

const (
	mountInfoPath = "/proc/self/mountinfo"

	// pollTimeout bounds how long the poller blocks before checking
	// whether it should stop, in milliseconds.
	pollTimeout = 250
)

// mountTableWatcher notifies when the kernel mount table changes. The
// kernel flags POLLPRI on an open mountinfo file whenever a mount is
// added or removed.
type mountTableWatcher struct {
	tomb    tomb.Tomb
	file    *os.File
	changes chan struct{}
}

// NewMountTableWatcher returns a watcher of the kernel mount table.
func NewMountTableWatcher() (watcher.NotifyWatcher, error) {
	return newMountTableWatcher(mountInfoPath)
}

func newMountTableWatcher(path string) (*mountTableWatcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Annotatef(err, "opening %s", path)
	}
	w := &mountTableWatcher{
		file:    f,
		changes: make(chan struct{}),
	}
	polled := make(chan struct{}, 1)
	w.tomb.Go(func() error {
		return w.poll(polled)
	})
	w.tomb.Go(func() error {
		return w.loop(polled)
	})
	return w, nil
}

func (w *mountTableWatcher) poll(out chan<- struct{}) error {
	defer func() { _ = w.file.Close() }()

	fds := []unix.PollFd{{
		Fd:     int32(w.file.Fd()),
		Events: unix.POLLPRI,
	}}
	for {
		select {
		case <-w.tomb.Dying():
			return tomb.ErrDying
		default:
		}
		n, err := unix.Poll(fds, pollTimeout)
		if errors.Is(err, unix.EINTR) {
			continue
		} else if err != nil {
			return errors.Annotate(err, "polling mount table")
		}
		if n == 0 || fds[0].Revents&(unix.POLLPRI|unix.POLLERR) == 0 {
			continue
		}
		select {
		case out <- struct{}{}:
		default:
		}
	}
}

func (w *mountTableWatcher) loop(in <-chan struct{}) error {
	defer close(w.changes)
	var out chan struct{}
	for {
		select {
		case <-w.tomb.Dying():
			return tomb.ErrDying
		case <-in:
			out = w.changes
		case out <- struct{}{}:
			out = nil
		}
	}
}

func (w *mountTableWatcher) Kill() {
	w.tomb.Kill(nil)
}

func (w *mountTableWatcher) Wait() error {
	return w.tomb.Wait()
}

func (w *mountTableWatcher) Changes() <-chan struct{} {
	return w.changes
}
