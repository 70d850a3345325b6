// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build !linux

package devicemonitor

import (
	"github.com/juju/errors"

	"github.com/juju/cartd/core/watcher"
)

// NewMountTableWatcher is not supported off linux; the monitor falls
// back to periodic rescans.
func NewMountTableWatcher() (watcher.NotifyWatcher, error) {
	return nil, errors.NotSupportedf("mount table notifications")
}
