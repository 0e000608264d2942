package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Input       *string `yaml:"input"`
	Output      *string `yaml:"output"`
	LogFile     *string `yaml:"log_file"`
	MetricsFile *string `yaml:"metrics_file"`
	LogLevel    *string `yaml:"log_level"`
	Validate    *bool   `yaml:"validate"`
	Slow        *bool   `yaml:"slow"`
	Aggressive  *bool   `yaml:"aggressive"`
	Timeout     *string `yaml:"timeout"`
	MaxAttempts *int    `yaml:"max_attempts"`
	Concurrency *int    `yaml:"concurrency"`
	SlowDelay   *string `yaml:"slow_delay"`
	UserAgent   *string `yaml:"user_agent"`
}

// LoadFile overlays settings from a YAML file. Keys absent from the file
// and settings for which skip returns true are left untouched.
func (c *Config) LoadFile(path string, skip SkipFunc) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	apply := func(setting string) bool {
		return skip == nil || !skip(setting)
	}

	setString(&c.Input, f.Input, apply(SettingInput))
	setString(&c.Output, f.Output, apply(SettingOutput))
	setString(&c.LogFile, f.LogFile, apply(SettingLog))
	setString(&c.MetricsFile, f.MetricsFile, apply(SettingMetricsFile))
	setString(&c.LogLevel, f.LogLevel, apply(SettingLogLevel))
	setString(&c.UserAgent, f.UserAgent, apply(SettingUserAgent))

	setBool(&c.ValidateStreams, f.Validate, apply(SettingValidate))
	setBool(&c.Slow, f.Slow, apply(SettingSlow))
	setBool(&c.Aggressive, f.Aggressive, apply(SettingAggressive))

	if f.MaxAttempts != nil && apply(SettingMaxAttempts) {
		c.MaxAttempts = *f.MaxAttempts
	}

	if f.Concurrency != nil && apply(SettingConcurrency) {
		c.Concurrency = *f.Concurrency
	}

	if err := setDuration(&c.Timeout, f.Timeout, apply(SettingTimeout)); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	if err := setDuration(&c.SlowDelay, f.SlowDelay, apply(SettingSlowDelay)); err != nil {
		return fmt.Errorf("invalid slow_delay: %w", err)
	}

	return nil
}

func setString(dst *string, src *string, ok bool) {
	if src != nil && ok {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool, ok bool) {
	if src != nil && ok {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string, ok bool) error {
	if src == nil || !ok {
		return nil
	}

	d, err := time.ParseDuration(*src)
	if err != nil {
		return err
	}

	*dst = d

	return nil
}
