// Package logging configures the logrus logger used across rulecheck.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options selects level, format and destination.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output string // stderr, stdout or a file path
}

// New builds a logger. An invalid level falls back to info and an unusable
// output file falls back to stderr, both with a warning on the new logger.
// The returned closer releases an opened log file and is never nil.
func New(opts Options) (*logrus.Logger, io.Closer) {
	log := logrus.New()
	var warnings []string

	level, err := logrus.ParseLevel(opts.Level)
	if opts.Level == "" {
		level, err = logrus.InfoLevel, nil
	}
	if err != nil {
		warnings = append(warnings, "Invalid log level '"+opts.Level+"', using 'info' instead")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	var closer io.Closer = nopCloser{}
	switch strings.ToLower(opts.Output) {
	case "", "stderr":
		log.SetOutput(os.Stderr)
	case "stdout":
		log.SetOutput(os.Stdout)
	default:
		file, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			warnings = append(warnings, "Failed to open log file '"+opts.Output+"', using 'stderr' instead: "+err.Error())
			log.SetOutput(os.Stderr)
		} else {
			log.SetOutput(file)
			closer = file
		}
	}

	for _, w := range warnings {
		log.Warn(w)
	}
	return log, closer
}

// Discard returns a logger that drops everything, for tests and library
// callers that pass no logger.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return Discard()
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
