// Package actionlog records what the cleaner did to each entry and writes
// it as a human-readable log.
package actionlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/savid/m3uclean/internal/m3u"
	"github.com/sirupsen/logrus"
)

// Kind classifies an action.
type Kind string

const (
	KindDropped  Kind = "dropped"
	KindModified Kind = "modified"
	KindRepaired Kind = "repaired"
)

// Reason code prefixes.
const (
	ReasonCleanedPrefix  = "cleaned="
	ReasonRepairedPrefix = "repaired="
)

// Action is a single log record.
type Action struct {
	Kind   Kind
	Entry  string
	URL    string
	Line   int
	Reason string
}

// Log collects actions in the order they were taken.
type Log struct {
	mu      sync.Mutex
	runID   string
	actions []Action
}

// New creates an empty log tagged with runID.
func New(runID string) *Log {
	return &Log{runID: runID}
}

// Dropped records an entry removed from the playlist.
func (l *Log) Dropped(entry m3u.Entry, reason string) {
	l.add(KindDropped, entry, reason)
}

// Modified records the fields the cleaner changed.
func (l *Log) Modified(entry m3u.Entry, fields []string) {
	l.add(KindModified, entry, ReasonCleanedPrefix+strings.Join(fields, ","))
}

// Repaired records a parser-invalid entry that was salvaged.
func (l *Log) Repaired(entry m3u.Entry, problem string) {
	l.add(KindRepaired, entry, ReasonRepairedPrefix+strings.ReplaceAll(problem, " ", "-"))
}

func (l *Log) add(kind Kind, entry m3u.Entry, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.actions = append(l.actions, Action{
		Kind:   kind,
		Entry:  entry.Identifier(),
		URL:    entry.URL,
		Line:   entry.Line,
		Reason: reason,
	})
}

// Actions returns a copy of the recorded actions.
func (l *Log) Actions() []Action {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Action, len(l.actions))
	copy(out, l.actions)

	return out
}

// Count returns the number of actions of the given kind.
func (l *Log) Count(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0

	for _, a := range l.actions {
		if a.Kind == kind {
			n++
		}
	}

	return n
}

// WriteTo writes one line per action followed by a summary line.
func (l *Log) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	logger := logrus.New()
	logger.SetOutput(cw)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	log := logger.WithField("run", l.runID)
	actions := l.Actions()

	for _, a := range actions {
		fields := logrus.Fields{
			"entry":  a.Entry,
			"url":    a.URL,
			"reason": a.Reason,
		}

		if a.Line > 0 {
			fields["line"] = a.Line
		}

		entry := log.WithFields(fields)

		if a.Kind == KindDropped {
			entry.Warn(string(a.Kind))
		} else {
			entry.Info(string(a.Kind))
		}

		if cw.err != nil {
			return cw.n, cw.err
		}
	}

	log.WithFields(logrus.Fields{
		"dropped":  l.Count(KindDropped),
		"modified": l.Count(KindModified),
		"repaired": l.Count(KindRepaired),
	}).Info("summary")

	return cw.n, cw.err
}

// AppendToFile appends the log to path, creating it if needed.
func (l *Log) AppendToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if _, err := l.WriteTo(file); err != nil {
		_ = file.Close()

		return fmt.Errorf("failed to write log file: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}

	return nil
}

// countingWriter keeps the first write error, which logrus only prints.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}

	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err

	return n, err
}
