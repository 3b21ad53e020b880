// Package logging builds the process logger.
//
// Logs always go to stderr: stdout carries the JSON-RPC stream when running as
// an MCP server, and any stray byte there corrupts the protocol.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultLevel is used when no level or an unknown level is configured.
const DefaultLevel = logrus.InfoLevel

// New returns a text logger on stderr at the given level name
// (debug, info, warn, error). Unknown names fall back to info with a warning.
func New(level string) *logrus.Logger {
	return NewWithOutput(os.Stderr, level)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(w io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := parseLevel(level)
	l.SetLevel(lvl)
	if err != nil {
		l.WithField("level", level).Warn("unknown log level, using info")
	}
	return l
}

// Discard returns a logger that drops everything, for tests and library
// callers that pass no logger.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func parseLevel(level string) (logrus.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return DefaultLevel, nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return DefaultLevel, err
	}
	return lvl, nil
}
