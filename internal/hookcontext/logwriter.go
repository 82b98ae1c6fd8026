// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hookcontext

import (
	"context"
	"fmt"
	"io"

	"github.com/juju/loggo/v2"
)

// NewJujuLogWriter returns a loggo.Writer that sends log entries to the
// unit agent's log through the juju-log hook tool. Entries that cannot be
// delivered are written to fallback.
func NewJujuLogWriter(log ContextLogger, fallback io.Writer) loggo.Writer {
	return &jujuLogWriter{
		log:      log,
		fallback: fallback,
	}
}

type jujuLogWriter struct {
	log      ContextLogger
	fallback io.Writer
}

// Write is part of the loggo.Writer interface.
func (w *jujuLogWriter) Write(entry loggo.Entry) {
	message := entry.Message
	if entry.Module != "" {
		message = entry.Module + " " + message
	}
	if err := w.log.JujuLog(context.Background(), jujuLogLevel(entry.Level), message); err != nil && w.fallback != nil {
		fmt.Fprintf(w.fallback, "%s %s\n", entry.Level, message)
	}
}

// jujuLogLevel maps loggo levels onto the levels juju-log accepts.
func jujuLogLevel(level loggo.Level) string {
	switch level {
	case loggo.CRITICAL, loggo.ERROR:
		return "ERROR"
	case loggo.WARNING:
		return "WARNING"
	case loggo.INFO:
		return "INFO"
	case loggo.DEBUG:
		return "DEBUG"
	default:
		return "TRACE"
	}
}
