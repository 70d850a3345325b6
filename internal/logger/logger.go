// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package logger configures loggo for the daemon.
package logger

import (
	"io"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

// DefaultConfig is the logging specification used when none is given.
const DefaultConfig = "<root>=INFO"

// Identifier is the syslog identifier of journal entries.
const Identifier = "cartd"

// Config describes where log entries go and at which levels.
type Config struct {
	// Spec is a loggo specification such as "<root>=INFO;cartd.trust=DEBUG".
	Spec string

	// Journal sends entries to the systemd journal when one is listening.
	Journal bool

	// Output receives formatted entries when the journal is not used.
	// Defaults to stderr.
	Output io.Writer

	// JournalEnabled reports whether the journal is listening. Defaults
	// to journal.Enabled.
	JournalEnabled func() bool

	// Send defaults to journal.Send.
	Send JournalSender
}

// Configure replaces the default loggo writer and applies the logging
// specification. It reports whether entries go to the journal.
func Configure(config Config) (bool, error) {
	spec := config.Spec
	if spec == "" {
		spec = DefaultConfig
	}
	if _, err := loggo.ParseConfigString(spec); err != nil {
		return false, errors.NotValidf("logging config %q: %v", spec, err)
	}

	fallback := stderrWriter()
	if config.Output != nil {
		fallback = loggo.NewSimpleWriter(config.Output, formatEntry)
	}

	enabled := config.JournalEnabled
	if enabled == nil {
		enabled = journal.Enabled
	}
	useJournal := config.Journal && enabled()

	writer := fallback
	if useJournal {
		writer = NewJournalWriter(Identifier, config.Send, fallback)
	}
	if _, err := loggo.ReplaceDefaultWriter(writer); err != nil {
		return false, errors.Annotate(err, "replacing default log writer")
	}
	if err := loggo.ConfigureLoggers(spec); err != nil {
		return false, errors.Trace(err)
	}
	return useJournal, nil
}
