// Package pipeline runs a single clean pass: load, parse, clean, deduplicate,
// optionally validate, then write the playlist and the action log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/savid/m3uclean/internal/actionlog"
	"github.com/savid/m3uclean/internal/clean"
	"github.com/savid/m3uclean/internal/config"
	"github.com/savid/m3uclean/internal/m3u"
	"github.com/savid/m3uclean/internal/metrics"
	"github.com/savid/m3uclean/internal/source"
	"github.com/savid/m3uclean/internal/validate"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInput is returned when the input playlist cannot be read.
	ErrInput = errors.New("input error")
	// ErrOutput is returned when the playlist or the log cannot be written.
	ErrOutput = errors.New("output error")
)

// Labels for the dropped-entries metric.
const (
	dropInvalidURL       = "invalid_url"
	dropDuplicate        = "duplicate"
	dropValidationFailed = "validation_failed"
)

// StreamValidator checks a batch of stream URLs.
type StreamValidator interface {
	ValidateAll(ctx context.Context, urls []string) ([]validate.Result, error)
}

// Summary reports what a run did.
type Summary struct {
	Parsed           int
	Written          int
	InvalidURL       int
	Duplicates       int
	ValidationFailed int
	Modified         int
	Repaired         int
	Output           string
	LogFile          string
	Elapsed          time.Duration
}

// Dropped returns the total number of entries removed.
func (s *Summary) Dropped() int {
	return s.InvalidURL + s.Duplicates + s.ValidationFailed
}

// Pipeline wires the cleaning stages together.
type Pipeline struct {
	log       logrus.FieldLogger
	cfg       *config.Config
	runID     string
	loader    *source.Loader
	cleaner   *clean.Cleaner
	validator StreamValidator
	recorder  *metrics.Recorder
}

// New creates a pipeline for cfg. A validator is built only when stream
// validation is enabled.
func New(log logrus.FieldLogger, cfg *config.Config, runID string, recorder *metrics.Recorder) *Pipeline {
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}

	p := &Pipeline{
		log:      log.WithField("component", "pipeline"),
		cfg:      cfg,
		runID:    runID,
		loader:   source.NewLoader(log, cfg.UserAgent),
		cleaner:  clean.NewCleaner(cfg.Aggressive),
		recorder: recorder,
	}

	if cfg.ValidateStreams {
		p.validator = validate.New(log, ValidatorOptions(cfg), recorder)
	}

	return p
}

// WithValidator replaces the stream validator.
func (p *Pipeline) WithValidator(v StreamValidator) *Pipeline {
	p.validator = v

	return p
}

// ValidatorOptions maps the configuration onto validator options.
func ValidatorOptions(cfg *config.Config) validate.Options {
	opts := validate.DefaultOptions()
	opts.Slow = cfg.Slow
	opts.Aggressive = cfg.Aggressive
	opts.Timeout = cfg.Timeout
	opts.MaxAttempts = cfg.MaxAttempts
	opts.Concurrency = cfg.Concurrency
	opts.SlowDelay = cfg.SlowDelay
	opts.UserAgent = cfg.UserAgent

	return opts
}

// Run performs one pass. The playlist is written atomically before the
// action log is appended; nothing is written when loading fails or ctx is
// cancelled.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{
		Output:  p.cfg.OutputPath(),
		LogFile: p.cfg.LogPath(),
	}
	actions := actionlog.New(p.runID)

	for _, path := range []string{summary.Output, summary.LogFile} {
		if err := checkWritable(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOutput, err)
		}
	}

	p.log.WithFields(logrus.Fields{
		"input":      p.cfg.Input,
		"aggressive": p.cfg.Aggressive,
		"validate":   p.validator != nil,
	}).Info("Loading playlist")

	data, err := p.loader.Load(ctx, p.cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}

	playlist, err := m3u.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse playlist: %w", ErrInput, err)
	}

	summary.Parsed = len(playlist.Entries)
	p.recorder.EntriesParsed.Add(float64(summary.Parsed))
	p.logParseProblems(playlist.Entries)

	entries := p.cleanEntries(playlist.Entries, actions, summary)

	entries, duplicates := clean.Deduplicate(entries)
	for _, dup := range duplicates {
		actions.Dropped(dup.Entry, dup.Reason())
		p.recorder.EntriesDropped.WithLabelValues(dropDuplicate).Inc()
	}

	summary.Duplicates = len(duplicates)

	if p.validator != nil {
		entries, err = p.validateEntries(ctx, entries, actions, summary)
		if err != nil {
			return nil, err
		}
	}

	playlist.Entries = entries
	summary.Written = len(entries)
	p.recorder.EntriesWritten.Add(float64(summary.Written))

	if err := writeAtomic(summary.Output, m3u.Encode(playlist)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutput, err)
	}

	if err := actions.AppendToFile(summary.LogFile); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutput, err)
	}

	summary.Elapsed = time.Since(start)
	p.recorder.ObserveRun(start, summary.Elapsed)

	if p.cfg.MetricsFile != "" {
		if err := p.recorder.WriteTextfile(p.cfg.MetricsFile); err != nil {
			p.log.WithError(err).WithField("path", p.cfg.MetricsFile).Warn("Failed to write metrics")
		}
	}

	p.log.WithFields(logrus.Fields{
		"parsed":     summary.Parsed,
		"written":    summary.Written,
		"dropped":    summary.Dropped(),
		"duplicates": summary.Duplicates,
		"modified":   summary.Modified,
		"repaired":   summary.Repaired,
		"output":     summary.Output,
		"log":        summary.LogFile,
		"elapsed":    summary.Elapsed.Round(time.Millisecond),
	}).Info("Playlist cleaned")

	return summary, nil
}

func (p *Pipeline) logParseProblems(entries []m3u.Entry) {
	for _, e := range entries {
		if !e.Invalid {
			continue
		}

		p.recorder.ParseProblems.WithLabelValues(strings.ReplaceAll(e.Problem, " ", "_")).Inc()

		p.log.WithFields(logrus.Fields{
			"line":    e.Line,
			"entry":   e.Identifier(),
			"problem": e.Problem,
		}).Warn("Malformed entry")
	}
}

func (p *Pipeline) cleanEntries(entries []m3u.Entry, actions *actionlog.Log, summary *Summary) []m3u.Entry {
	kept := make([]m3u.Entry, 0, len(entries))

	for _, e := range entries {
		res := p.cleaner.Clean(e)

		if res.Drop {
			actions.Dropped(e, res.Reason)
			p.recorder.EntriesDropped.WithLabelValues(dropInvalidURL).Inc()
			summary.InvalidURL++

			continue
		}

		if res.Repaired {
			actions.Repaired(res.Entry, e.Problem)
			p.recorder.EntriesRepaired.Inc()
			summary.Repaired++
		}

		if len(res.Changed) > 0 {
			actions.Modified(res.Entry, res.Changed)
			p.recorder.EntriesModified.Inc()
			summary.Modified++
		}

		kept = append(kept, res.Entry)
	}

	return kept
}

func (p *Pipeline) validateEntries(
	ctx context.Context,
	entries []m3u.Entry,
	actions *actionlog.Log,
	summary *Summary,
) ([]m3u.Entry, error) {
	urls := make([]string, len(entries))
	for i, e := range entries {
		urls[i] = e.URL
	}

	results, err := p.validator.ValidateAll(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("validation interrupted: %w", err)
	}

	kept := make([]m3u.Entry, 0, len(entries))

	for i, e := range entries {
		res := results[i]

		if res.Passed() {
			kept = append(kept, e)

			continue
		}

		actions.Dropped(e, res.Reason())
		p.recorder.EntriesDropped.WithLabelValues(dropValidationFailed).Inc()
		summary.ValidationFailed++

		p.log.WithFields(logrus.Fields{
			"entry":    e.Identifier(),
			"url":      e.URL,
			"status":   res.Status.String(),
			"cause":    res.Cause,
			"attempts": res.Attempts,
		}).Warn("Stream failed validation")
	}

	return kept, nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place.
// checkWritable creates and removes a scratch file in dir so an unwritable
// destination fails the run before any loading or probing.
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".m3uclean-check-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}

	name := f.Name()
	_ = f.Close()

	return os.Remove(name)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()

		return fmt.Errorf("failed to write playlist: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()

		return fmt.Errorf("failed to sync playlist: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to close playlist: %w", err)
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to set playlist permissions: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to move playlist into place: %w", err)
	}

	return nil
}
