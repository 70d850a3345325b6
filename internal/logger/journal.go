// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/juju/loggo/v2"
)

// JournalSender sends a single entry to the systemd journal.
type JournalSender func(message string, priority journal.Priority, vars map[string]string) error

// JournalWriter is a loggo.Writer that sends every entry to the systemd
// journal with its module and source location attached.
type JournalWriter struct {
	identifier string
	send       JournalSender

	// fallback receives entries the journal refused.
	fallback loggo.Writer
}

// NewJournalWriter returns a writer sending entries to the journal under
// the given syslog identifier. Entries the journal cannot take are
// written to fallback when it is not nil.
func NewJournalWriter(identifier string, send JournalSender, fallback loggo.Writer) *JournalWriter {
	if send == nil {
		send = journal.Send
	}
	return &JournalWriter{
		identifier: identifier,
		send:       send,
		fallback:   fallback,
	}
}

// Write is part of the loggo.Writer interface.
func (w *JournalWriter) Write(entry loggo.Entry) {
	vars := map[string]string{
		"SYSLOG_IDENTIFIER": w.identifier,
		"CARTD_MODULE":      entry.Module,
	}
	if entry.Filename != "" {
		vars["CODE_FILE"] = filepath.Base(entry.Filename)
		vars["CODE_LINE"] = strconv.Itoa(entry.Line)
	}
	if err := w.send(entry.Message, Priority(entry.Level), vars); err != nil && w.fallback != nil {
		w.fallback.Write(entry)
	}
}

// Priority maps a loggo level onto a journal priority.
func Priority(level loggo.Level) journal.Priority {
	switch level {
	case loggo.CRITICAL:
		return journal.PriCrit
	case loggo.ERROR:
		return journal.PriErr
	case loggo.WARNING:
		return journal.PriWarning
	case loggo.INFO:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// stderrWriter writes entries to stderr using the default format.
func stderrWriter() loggo.Writer {
	return loggo.NewSimpleWriter(os.Stderr, formatEntry)
}

func formatEntry(entry loggo.Entry) string {
	return fmt.Sprintf("%s %s %s %s",
		entry.Timestamp.UTC().Format("2006-01-02 15:04:05"),
		entry.Level.String(),
		entry.Module,
		entry.Message,
	)
}
