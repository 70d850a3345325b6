// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package watcher holds the watcher types shared by the cartd workers.
package watcher

import (
	"github.com/juju/worker/v4"
)

// Watcher is a worker that delivers values on a changes channel. The
// channel is closed when the watcher stops.
type Watcher[T any] interface {
	worker.Worker
	Changes() <-chan T
}
