// Package main is the entry point for the playlist cleaner.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/savid/m3uclean/internal/config"
	"github.com/savid/m3uclean/internal/metrics"
	"github.com/savid/m3uclean/internal/pipeline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

var (
	cfg        = config.DefaultConfig()
	configFile string
	log        = logrus.New()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "m3uclean [input]",
		Short: "Clean, deduplicate and validate M3U playlists",
		Long: `Reads an M3U playlist, repairs or drops malformed entries, removes
duplicates and optionally checks that every stream is reachable. Writes a
cleaned playlist and appends a log of every action taken.

Examples:
  # Clean a local playlist into channels_clean.m3u
  m3uclean channels.m3u

  # Strip aggressively and drop unreachable streams, one probe at a time
  m3uclean channels.m3u -a -v --slow

  # Fetch a remote playlist
  m3uclean https://example.com/playlist.m3u -o cleaned.m3u`,
		Args: cobra.MaximumNArgs(1),
		RunE: run,
	}

	// Output flags
	rootCmd.Flags().StringVarP(&cfg.Output, config.SettingOutput, "o", "", "Cleaned playlist path (default <dir>/<stem>_clean<ext>)")
	rootCmd.Flags().StringVarP(&cfg.LogFile, config.SettingLog, "l", "", "Action log path (default <dir>/<stem>_clean.log)")
	rootCmd.Flags().StringVar(&cfg.MetricsFile, config.SettingMetricsFile, "", "Write Prometheus textfile metrics to this path")
	rootCmd.Flags().StringVar(&cfg.LogLevel, config.SettingLogLevel, cfg.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&configFile, "config", "", "YAML configuration file")

	// Cleaning flags
	rootCmd.Flags().BoolVarP(&cfg.Aggressive, config.SettingAggressive, "a", false, "Strip everything but letters, digits and safe punctuation")

	// Validation flags
	rootCmd.Flags().BoolVarP(&cfg.ValidateStreams, config.SettingValidate, "v", false, "Check that every stream is reachable")
	rootCmd.Flags().BoolVar(&cfg.Slow, config.SettingSlow, false, "Probe one stream at a time with a delay between probes")
	rootCmd.Flags().DurationVar(&cfg.Timeout, config.SettingTimeout, cfg.Timeout, "Per-probe timeout")
	rootCmd.Flags().IntVar(&cfg.MaxAttempts, config.SettingMaxAttempts, cfg.MaxAttempts, "Probe attempts per stream")
	rootCmd.Flags().IntVar(&cfg.Concurrency, config.SettingConcurrency, cfg.Concurrency, "Probes in flight when not in slow mode")
	rootCmd.Flags().DurationVar(&cfg.SlowDelay, config.SettingSlowDelay, cfg.SlowDelay, "Delay between probes in slow mode")
	rootCmd.Flags().StringVar(&cfg.UserAgent, config.SettingUserAgent, cfg.UserAgent, "User-Agent sent with every request")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		cfg.Input = args[0]
	}

	// Flags win over the environment, which wins over the config file.
	changed := changedFlags(cmd.Flags())
	changed[config.SettingInput] = len(args) > 0

	skip := func(setting string) bool {
		return changed[setting]
	}

	if configFile != "" {
		if err := cfg.LoadFile(configFile, skip); err != nil {
			return err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv, skip); err != nil {
		return err
	}

	// Validate config
	if err := cfg.Validate(); err != nil {
		return err
	}

	cmd.SilenceUsage = true

	// Configure logger
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableColors:   !term.IsTerminal(int(os.Stderr.Fd())),
	})

	runID := uuid.NewString()
	runLog := log.WithField("run", runID)

	runLog.WithFields(logrus.Fields{
		"input":      cfg.Input,
		"output":     cfg.OutputPath(),
		"log":        cfg.LogPath(),
		"validate":   cfg.ValidateStreams,
		"slow":       cfg.Slow,
		"aggressive": cfg.Aggressive,
	}).Info("Starting m3uclean")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, err = pipeline.New(runLog, cfg, runID, metrics.NewRecorder()).Run(ctx)
	if err != nil {
		runLog.WithError(err).Error("Clean failed")

		return err
	}

	return nil
}

// changedFlags returns the names of flags set on the command line.
func changedFlags(fs *pflag.FlagSet) map[string]bool {
	changed := make(map[string]bool, fs.NFlag())

	fs.Visit(func(f *pflag.Flag) {
		changed[f.Name] = true
	})

	return changed
}
