// Package metrics records run statistics and exports them in the
// Prometheus text format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "m3uclean"

// Recorder owns a private registry so one run's numbers never mix with
// another's.
type Recorder struct {
	registry *prometheus.Registry

	EntriesParsed   prometheus.Counter
	EntriesWritten  prometheus.Counter
	EntriesDropped  *prometheus.CounterVec
	EntriesModified prometheus.Counter
	EntriesRepaired prometheus.Counter
	ParseProblems   *prometheus.CounterVec

	ProbesTotal    *prometheus.CounterVec
	ProbeDuration  prometheus.Histogram
	RateLimitTrips prometheus.Counter

	RunDuration      prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
}

// NewRecorder creates a recorder with all collectors registered.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		EntriesParsed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_parsed_total",
			Help:      "Total number of playlist entries read from the input",
		}),
		EntriesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_written_total",
			Help:      "Total number of entries written to the cleaned playlist",
		}),
		EntriesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_dropped_total",
			Help:      "Total number of entries dropped, by reason",
		}, []string{"reason"}), // "invalid_url", "duplicate", "validation_failed"
		EntriesModified: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_modified_total",
			Help:      "Total number of entries changed by the cleaner",
		}),
		EntriesRepaired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_repaired_total",
			Help:      "Total number of malformed entries that were salvaged",
		}),
		ParseProblems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_problems_total",
			Help:      "Total number of malformed entry blocks, by problem",
		}, []string{"problem"}),

		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Total number of stream probes, by result",
		}, []string{"result"}),
		ProbeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Stream probe duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RateLimitTrips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_trips_total",
			Help:      "Total number of rate-limit signals that extended the backoff window",
		}),

		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last run in seconds",
		}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp",
			Help:      "Timestamp of the last run",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveProbe records a single probe attempt.
func (r *Recorder) ObserveProbe(result string, d time.Duration) {
	r.ProbesTotal.WithLabelValues(result).Inc()
	r.ProbeDuration.Observe(d.Seconds())
}

// ObserveRateLimit records a rate-limit signal.
func (r *Recorder) ObserveRateLimit() {
	r.RateLimitTrips.Inc()
}

// ObserveRun records the duration and completion time of a run.
func (r *Recorder) ObserveRun(start time.Time, d time.Duration) {
	r.RunDuration.Set(d.Seconds())
	r.LastRunTimestamp.Set(float64(start.Add(d).Unix()))
}

// WriteTextfile writes all metrics to path in the node_exporter textfile
// collector format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}
