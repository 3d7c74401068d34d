// Package logging configures the process-wide logrus logger.
//
// stevedore is a GUI-subsystem binary on Windows, so stderr usually goes
// nowhere. Every run also appends to <DataDir>/logs/stevedore.log.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Setup sets the level and output of the standard logrus logger. The
// returned closer flushes and closes the log file.
func Setup(level, logsDir string) (io.Closer, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if err := os.MkdirAll(logsDir, 0700); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logsDir, "stevedore.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	var out io.Writer = f
	if hasConsole() {
		out = io.MultiWriter(os.Stderr, f)
	}
	logrus.SetOutput(out)
	return f, nil
}

// For returns an entry tagged with a component name.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

// hasConsole reports whether stderr is attached to something.
func hasConsole() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0 || fi.Mode()&os.ModeNamedPipe != 0 || fi.Mode().IsRegular()
}
