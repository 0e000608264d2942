package config

import (
	"fmt"
	"strings"
)

// Setting names shared by flags, environment variables and the YAML file.
const (
	SettingInput      = "input"
	SettingOutput     = "output"
	SettingLog        = "log"
	SettingValidate   = "validate"
	SettingSlow       = "slow"
	SettingAggressive = "aggressive"
	SettingLogLevel   = "log-level"

	SettingTimeout     = "timeout"
	SettingMaxAttempts = "max-attempts"
	SettingConcurrency = "concurrency"
	SettingSlowDelay   = "slow-delay"
	SettingUserAgent   = "user-agent"
	SettingMetricsFile = "metrics-file"
)

// envVars maps settings to the environment variables that configure them.
var envVars = []struct {
	setting string
	name    string
}{
	{SettingInput, "INPUT_FILE"},
	{SettingOutput, "OUTPUT_FILE"},
	{SettingLog, "LOG_FILE"},
	{SettingValidate, "STREAM_VALIDATE"},
	{SettingAggressive, "AGGRESSIVE_CLEAN"},
	{SettingSlow, "SLOW_MODE"},
	{SettingLogLevel, "LOG_LEVEL"},
}

// LookupFunc resolves an environment variable, e.g. os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// SkipFunc reports whether a setting was already given with higher priority.
type SkipFunc func(setting string) bool

// ApplyEnv overlays settings from environment variables. Settings for which
// skip returns true are left untouched.
func (c *Config) ApplyEnv(lookup LookupFunc, skip SkipFunc) error {
	for _, ev := range envVars {
		if skip != nil && skip(ev.setting) {
			continue
		}

		value, ok := lookup(ev.name)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}

		if err := c.set(ev.setting, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("invalid %s: %w", ev.name, err)
		}
	}

	return nil
}

func (c *Config) set(setting, value string) error {
	switch setting {
	case SettingInput:
		c.Input = value
	case SettingOutput:
		c.Output = value
	case SettingLog:
		c.LogFile = value
	case SettingLogLevel:
		c.LogLevel = value
	case SettingValidate, SettingSlow, SettingAggressive:
		b, err := ParseBool(value)
		if err != nil {
			return err
		}

		switch setting {
		case SettingValidate:
			c.ValidateStreams = b
		case SettingSlow:
			c.Slow = b
		default:
			c.Aggressive = b
		}
	}

	return nil
}

// ParseBool accepts true/false, 1/0 and yes/no in any case.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", s)
	}
}
