// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package logger wires github.com/decred/slog's subsystem-logger
// backend to a rotating file plus stdout, using the same slog and
// jrick/logrotate dependencies exccd's own go.mod requires. exccd
// carries no log.go source in this tree to copy from; one Backend,
// one named Logger per subsystem, and a SetLogLevel helper the config
// layer drives from --debuglevel is slog's own documented usage
// pattern.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

var (
	backendLog = slog.NewBackend(newLogWriter(io.Discard))
	logRotator *rotator.Rotator
)

// subsystems maps a short tag to the Logger other packages pull from
// via this package's exported accessors.
var subsystems = map[string]slog.Logger{
	"NODE": backendLog.Logger("NODE"),
	"CHAN": backendLog.Logger("CHAN"),
	"SYNC": backendLog.Logger("SYNC"),
	"PEER": backendLog.Logger("PEER"),
	"CMGR": backendLog.Logger("CMGR"),
	"AMGR": backendLog.Logger("AMGR"),
	"RPCS": backendLog.Logger("RPCS"),
	"PSTO": backendLog.Logger("PSTO"),
}

// InitLogRotator creates a rotating log file at logFile and directs
// every subsystem logger's output to both it and stdout.
func InitLogRotator(logFile string) error {
	if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
		return err
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return err
	}
	logRotator = r
	backendLog = slog.NewBackend(newLogWriter(io.MultiWriter(os.Stdout, r)))
	for tag := range subsystems {
		subsystems[tag] = backendLog.Logger(tag)
	}
	return nil
}

// Logger returns the named subsystem logger. For an unknown tag it
// returns a new logger under that tag from the current backend; such a
// logger is not in the subsystem map, so SetLogLevel does not reach it.
func Logger(tag string) slog.Logger {
	if l, ok := subsystems[tag]; ok {
		return l
	}
	return backendLog.Logger(tag)
}

// SetLogLevel sets every subsystem logger to the given level string
// ("trace", "debug", "info", "warn", "error", "critical", "off").
func SetLogLevel(levelStr string) {
	level, ok := slog.LevelFromString(levelStr)
	if !ok {
		return
	}
	for _, l := range subsystems {
		l.SetLevel(level)
	}
}

// Close flushes and closes the log rotator, if one was initialized.
func Close() {
	if logRotator != nil {
		logRotator.Close()
	}
}

type logWriter struct {
	w io.Writer
}

func newLogWriter(w io.Writer) *logWriter { return &logWriter{w: w} }

func (l *logWriter) Write(p []byte) (int, error) { return l.w.Write(p) }
