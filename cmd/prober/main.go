// Package main provides a CLI tool for debugging stream validation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/savid/m3uclean/internal/clean"
	"github.com/savid/m3uclean/internal/m3u"
	"github.com/savid/m3uclean/internal/source"
	"github.com/savid/m3uclean/internal/validate"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	m3uPath  string
	logLevel string
	opts     = validate.DefaultOptions()
	log      = logrus.New()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "prober",
		Short: "Debug stream validation",
		Long: `A debugging tool to analyze how the streams of a playlist validate.

Outputs detailed information about:
- Which streams are reachable and how many attempts they took
- Which streams failed, grouped by cause (status code, timeout, dns, ...)
- Which streams were rate limited until their attempts ran out
- Summary statistics

Nothing is written to disk.

Examples:
  # Using a local file
  go run cmd/prober/main.go --m3u testdata/channels.m3u

  # Using a URL, one probe at a time
  go run cmd/prober/main.go --m3u https://example.com/playlist.m3u --slow`,
		RunE: run,
	}

	rootCmd.Flags().StringVar(&m3uPath, "m3u", "", "Path or URL to M3U playlist (required)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&opts.Slow, "slow", false, "Probe one stream at a time")
	rootCmd.Flags().BoolVar(&opts.Aggressive, "aggressive", false, "Require a ranged GET to deliver data")
	rootCmd.Flags().DurationVar(&opts.Timeout, "timeout", opts.Timeout, "Per-probe timeout")
	rootCmd.Flags().IntVar(&opts.MaxAttempts, "max-attempts", opts.MaxAttempts, "Probe attempts per stream")
	rootCmd.Flags().IntVar(&opts.Concurrency, "concurrency", opts.Concurrency, "Probes in flight")

	if err := rootCmd.MarkFlagRequired("m3u"); err != nil {
		log.WithError(err).Fatal("Failed to mark m3u flag as required")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	// Configure logger
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load M3U
	log.WithField("source", m3uPath).Info("Loading M3U")

	data, err := source.NewLoader(log, opts.UserAgent).Load(ctx, m3uPath)
	if err != nil {
		return fmt.Errorf("failed to load M3U: %w", err)
	}

	playlist, err := m3u.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse M3U: %w", err)
	}

	// Probe what the cleaner would keep.
	cleaner := clean.NewCleaner(false)
	entries := make([]m3u.Entry, 0, len(playlist.Entries))

	for _, e := range playlist.Entries {
		if res := cleaner.Clean(e); !res.Drop {
			entries = append(entries, res.Entry)
		}
	}

	entries, _ = clean.Deduplicate(entries)

	log.WithFields(logrus.Fields{
		"parsed": len(playlist.Entries),
		"unique": len(entries),
	}).Info("Parsed M3U entries")

	urls := make([]string, len(entries))
	for i, e := range entries {
		urls[i] = e.URL
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("RUNNING STREAM VALIDATOR (internal/validate.ValidateAll)")
	fmt.Println(strings.Repeat("=", 80))

	results, err := validate.New(log, opts, nil).ValidateAll(ctx, urls)
	if err != nil {
		return fmt.Errorf("validation interrupted: %w", err)
	}

	analyzeResults(entries, results)

	return nil
}

// analyzeResults prints a detailed validation report.
func analyzeResults(entries []m3u.Entry, results []validate.Result) {
	var reachable, skipped []int

	failed := make(map[string][]int, 8)

	for i, res := range results {
		switch res.Status {
		case validate.StatusReachable:
			reachable = append(reachable, i)
		case validate.StatusSkipped:
			skipped = append(skipped, i)
		default:
			failed[res.Cause] = append(failed[res.Cause], i)
		}
	}

	// Print reachable streams
	fmt.Println("\n" + strings.Repeat("-", 80))
	fmt.Printf("REACHABLE STREAMS (%d/%d)\n", len(reachable), len(entries))
	fmt.Println(strings.Repeat("-", 80))

	for _, i := range reachable {
		printEntry(entries[i], results[i])
	}

	if len(skipped) > 0 {
		fmt.Printf("\n  [SKIPPED] (%d streams)\n", len(skipped))

		for _, i := range skipped {
			printEntry(entries[i], results[i])
		}
	}

	// Print failed streams grouped by cause
	fmt.Println("\n" + strings.Repeat("-", 80))
	fmt.Printf("FAILED STREAMS (%d/%d)\n", len(entries)-len(reachable)-len(skipped), len(entries))
	fmt.Println(strings.Repeat("-", 80))

	causes := make([]string, 0, len(failed))
	for cause := range failed {
		causes = append(causes, cause)
	}

	// Largest groups first
	sort.Slice(causes, func(i, j int) bool {
		if len(failed[causes[i]]) != len(failed[causes[j]]) {
			return len(failed[causes[i]]) > len(failed[causes[j]])
		}

		return causes[i] < causes[j]
	})

	if len(causes) == 0 {
		fmt.Println("  All streams reachable!")
	}

	for _, cause := range causes {
		fmt.Printf("\n  [%s] (%d streams)\n", strings.ToUpper(cause), len(failed[cause]))

		for _, i := range failed[cause] {
			printEntry(entries[i], results[i])
		}
	}

	// Print summary
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	rate := 0.0
	if len(entries) > 0 {
		rate = float64(len(reachable)+len(skipped)) / float64(len(entries)) * 100
	}

	fmt.Printf("  Total streams:  %d\n", len(entries))
	fmt.Printf("  Passing:        %d (%.1f%%)\n", len(reachable)+len(skipped), rate)
	fmt.Printf("  Failed:         %d\n", len(entries)-len(reachable)-len(skipped))
	fmt.Println()
	fmt.Printf("  By cause:\n")

	for _, cause := range causes {
		fmt.Printf("    %-20s %d\n", cause+":", len(failed[cause]))
	}

	fmt.Println(strings.Repeat("=", 80))
}

func printEntry(e m3u.Entry, res validate.Result) {
	fmt.Printf("    %-40s %-30s [%d attempts, %s]\n",
		truncate(e.Name, 40),
		truncate(e.URL, 30),
		res.Attempts,
		res.Elapsed.Round(time.Millisecond),
	)
}

// truncate shortens s to maxLen runes so multi-byte names are never split.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}

	return string(runes[:maxLen-3]) + "..."
}
