// Package config provides configuration for the playlist cleaner.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/savid/m3uclean/internal/source"
	"github.com/sirupsen/logrus"
)

const (
	cleanSuffix      = "_clean"
	defaultExtension = ".m3u"
	logExtension     = ".log"
)

// Extensions stripped before deriving output names.
var compressionExtensions = []string{".gz", ".bz2", ".xz"}

// Config holds the application configuration.
type Config struct {
	// Required
	Input string

	// Outputs
	Output      string
	LogFile     string
	MetricsFile string
	LogLevel    string

	// Cleaning
	Aggressive bool

	// Validation
	ValidateStreams bool
	Slow            bool
	Timeout         time.Duration
	MaxAttempts     int
	Concurrency     int
	SlowDelay       time.Duration
	UserAgent       string
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:    "info",
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		Concurrency: 8,
		SlowDelay:   1500 * time.Millisecond,
		UserAgent:   "m3uclean/1.0 Stream Validator",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Input == "" {
		return errors.New("input path is required")
	}

	if source.IsRemote(c.Input) {
		if _, err := url.Parse(c.Input); err != nil {
			return fmt.Errorf("invalid input URL: %w", err)
		}
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}

	if c.SlowDelay < 0 {
		return fmt.Errorf("slow delay must not be negative, got %s", c.SlowDelay)
	}

	if !source.IsRemote(c.Input) && samePath(c.Input, c.OutputPath()) {
		return errors.New("output path must differ from input path")
	}

	if samePath(c.OutputPath(), c.LogPath()) {
		return errors.New("log path must differ from output path")
	}

	return nil
}

// OutputPath returns the cleaned playlist path, derived from the input as
// <dir>/<stem>_clean<ext> when not set.
func (c *Config) OutputPath() string {
	if c.Output != "" {
		return c.Output
	}

	dir, stem, ext := c.splitInput()
	if ext == "" {
		ext = defaultExtension
	}

	return filepath.Join(dir, stem+cleanSuffix+ext)
}

// LogPath returns the action log path, derived from the input as
// <dir>/<stem>_clean.log when not set.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}

	dir, stem, _ := c.splitInput()

	return filepath.Join(dir, stem+cleanSuffix+logExtension)
}

// splitInput breaks the input into directory, stem and extension. Remote
// inputs resolve to the current directory.
func (c *Config) splitInput() (string, string, string) {
	dir, base := filepath.Dir(c.Input), filepath.Base(c.Input)

	if source.IsRemote(c.Input) {
		dir, base = ".", "playlist"

		if u, err := url.Parse(c.Input); err == nil {
			if b := path.Base(u.Path); b != "." && b != "/" {
				base = b
			}
		}
	}

	for _, ce := range compressionExtensions {
		if trimmed := strings.TrimSuffix(base, ce); trimmed != base && trimmed != "" {
			base = trimmed

			break
		}
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	if stem == "" {
		stem, ext = base, ""
	}

	return dir, stem, ext
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)

	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}

	return absA == absB
}
