// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package systemd reports the daemon's state to the service manager.
package systemd

import (
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Logger represents the methods used to log details.
type Logger interface {
	Errorf(string, ...interface{})
	Warningf(string, ...interface{})
	Infof(string, ...interface{})
	Debugf(string, ...interface{})
	Tracef(string, ...interface{})
}

// NotifyFunc sends a state string to the service manager. It matches
// daemon.SdNotify.
type NotifyFunc func(unsetEnvironment bool, state string) (bool, error)

// Notifier sends sd_notify messages. Without a NOTIFY_SOCKET every
// message is dropped.
type Notifier struct {
	notify NotifyFunc
	logger Logger
}

// NewNotifier returns a notifier using notify, or daemon.SdNotify when
// notify is nil.
func NewNotifier(notify NotifyFunc, logger Logger) *Notifier {
	if notify == nil {
		notify = daemon.SdNotify
	}
	return &Notifier{notify: notify, logger: logger}
}

// Ready tells the service manager that start up has finished.
func (n *Notifier) Ready(status string) {
	state := daemon.SdNotifyReady
	if status != "" {
		state += "\n" + statusLine(status)
	}
	n.send(state)
}

// Stopping tells the service manager that the daemon is shutting down.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status updates the free-form status shown by systemctl.
func (n *Notifier) Status(format string, args ...interface{}) {
	n.send(statusLine(fmt.Sprintf(format, args...)))
}

// Watchdog keeps the service manager's watchdog from firing.
func (n *Notifier) Watchdog() {
	n.send(daemon.SdNotifyWatchdog)
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	if err != nil {
		n.logger.Warningf("notifying service manager: %v", err)
		return
	}
	if sent {
		n.logger.Tracef("notified service manager: %q", state)
	}
}

func statusLine(status string) string {
	return "STATUS=" + status
}

// WatchdogInterval returns how often the watchdog must be pinged, or
// zero when the service manager does not expect pings.
func WatchdogInterval() (time.Duration, error) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0, err
	}
	return interval, nil
}
