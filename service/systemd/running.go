// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd

import (
	"github.com/coreos/go-systemd/v22/util"
)

// RuntimeDir exists only when systemd booted the host.
const RuntimeDir = "/run/systemd/system"

// IsRunning reports whether systemd is the init system. cartd only sends
// notifications and watchdog pings when it is.
func IsRunning() bool {
	return util.IsRunningSystemd()
}
