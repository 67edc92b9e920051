// Package logging builds the structured loggers used by the store, the CLI
// and the network servers.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/phuslu/log"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns a logger writing to w at the given level. Format "console"
// renders human readable lines, "json" one JSON object per entry.
func New(level, format string, w io.Writer) (*log.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	logger := &log.Logger{Level: lvl}
	switch strings.ToLower(format) {
	case "", FormatConsole:
		logger.Writer = &log.ConsoleWriter{Writer: w}
	case FormatJSON:
		logger.Writer = &log.IOWriter{Writer: w}
	default:
		return nil, errors.Newf("unknown log format %q", format)
	}
	return logger, nil
}

// ParseLevel accepts trace, debug, info, warn, error and fatal
func ParseLevel(level string) (log.Level, error) {
	switch strings.ToLower(level) {
	case "":
		return log.InfoLevel, nil
	case "trace", "debug", "info", "warn", "error", "fatal":
		return log.ParseLevel(strings.ToLower(level)), nil
	}
	return 0, errors.Newf("unknown log level %q", level)
}

// Discard returns a logger that drops everything
func Discard() *log.Logger {
	return &log.Logger{Level: log.FatalLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}
