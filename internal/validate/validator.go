// Package validate checks that stream URLs are reachable, backing off when
// the upstream signals rate limiting.
package validate

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
	defaultBaseBackoff = time.Second
	defaultMaxBackoff  = 60 * time.Second
	defaultConcurrency = 8
	defaultSlowDelay   = 1500 * time.Millisecond
	defaultUserAgent   = "m3uclean/1.0 Stream Validator"
	maxRedirects       = 10
	progressInterval   = 10
)

// Options controls probing behaviour.
type Options struct {
	Slow        bool
	Aggressive  bool
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Concurrency int
	SlowDelay   time.Duration
	UserAgent   string
}

// DefaultOptions returns the default validator options.
func DefaultOptions() Options {
	return Options{
		Timeout:     defaultTimeout,
		MaxAttempts: defaultMaxAttempts,
		BaseBackoff: defaultBaseBackoff,
		MaxBackoff:  defaultMaxBackoff,
		Concurrency: defaultConcurrency,
		SlowDelay:   defaultSlowDelay,
		UserAgent:   defaultUserAgent,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()

	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}

	if o.MaxAttempts < 1 {
		o.MaxAttempts = d.MaxAttempts
	}

	if o.BaseBackoff <= 0 {
		o.BaseBackoff = d.BaseBackoff
	}

	if o.MaxBackoff <= 0 {
		o.MaxBackoff = d.MaxBackoff
	}

	if o.Concurrency < 1 {
		o.Concurrency = d.Concurrency
	}

	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}

	if o.Slow {
		o.Concurrency = 1

		if o.SlowDelay <= 0 {
			o.SlowDelay = d.SlowDelay
		}
	} else {
		o.SlowDelay = 0
	}

	return o
}

// Observer receives probe events.
type Observer interface {
	ObserveProbe(result string, d time.Duration)
	ObserveRateLimit()
}

type nopObserver struct{}

func (nopObserver) ObserveProbe(string, time.Duration) {}
func (nopObserver) ObserveRateLimit() {}

// Validator probes stream URLs.
type Validator struct {
	log        logrus.FieldLogger
	opts       Options
	obs        Observer
	httpClient *http.Client
	dialer     *net.Dialer
	gate       *Gate
	pacer      *pacer
}

// New creates a validator. A nil observer discards probe events.
func New(log logrus.FieldLogger, opts Options, obs Observer) *Validator {
	opts = opts.withDefaults()

	if obs == nil {
		obs = nopObserver{}
	}

	return &Validator{
		log:  log.WithField("component", "validator"),
		opts: opts,
		obs:  obs,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &headerTransport{
				headers: map[string]string{"User-Agent": opts.UserAgent},
				base:    http.DefaultTransport,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}

				return nil
			},
		},
		dialer: &net.Dialer{Timeout: opts.Timeout},
		gate:   NewGate(),
		pacer:  newPacer(opts.SlowDelay),
	}
}

// Options returns the effective options.
func (v *Validator) Options() Options {
	return v.opts
}

// Validate probes rawURL until it succeeds, fails definitively or runs out
// of attempts.
func (v *Validator) Validate(ctx context.Context, rawURL string) Result {
	start := time.Now()
	machine := newRetryMachine(v.opts.MaxAttempts, Backoff{Base: v.opts.BaseBackoff, Max: v.opts.MaxBackoff})

	for !machine.done() {
		if machine.state == stateBackoff {
			if err := sleep(ctx, machine.wait); err != nil {
				return v.cancelled(machine, start)
			}

			machine.resume()
		}

		if err := v.gate.Wait(ctx); err != nil {
			return v.cancelled(machine, start)
		}

		if err := v.pacer.Wait(ctx); err != nil {
			return v.cancelled(machine, start)
		}

		probeStart := time.Now()
		o := v.probe(ctx, rawURL)

		if ctx.Err() != nil {
			return v.cancelled(machine, start)
		}

		machine.record(o)
		v.obs.ObserveProbe(probeLabel(machine.last), time.Since(probeStart))

		switch machine.last.kind {
		case outcomeRateLimited:
			wait := machine.wait
			if wait <= 0 {
				wait = v.opts.BaseBackoff
			}

			consecutive := v.gate.Trip(wait)
			v.obs.ObserveRateLimit()

			v.log.WithFields(logrus.Fields{
				"url":         rawURL,
				"cause":       machine.last.cause,
				"attempt":     machine.attempts,
				"wait":        wait,
				"consecutive": consecutive,
			}).Warn("Rate limited, backing off")
		case outcomeOK:
			v.gate.Clear()
		case outcomeTransient:
			if machine.state == stateBackoff {
				v.log.WithFields(logrus.Fields{
					"url":     rawURL,
					"cause":   o.cause,
					"attempt": machine.attempts,
					"wait":    machine.wait,
				}).Debug("Probe failed, retrying")
			}
		}
	}

	res := machine.result()
	res.Elapsed = time.Since(start)

	return res
}

func (v *Validator) cancelled(machine *retryMachine, start time.Time) Result {
	return Result{
		Status:   StatusUnreachable,
		Cause:    CauseCancelled,
		Attempts: machine.attempts,
		Elapsed:  time.Since(start),
	}
}

// ValidateAll validates urls and returns results in input order. It returns
// an error only when ctx is cancelled.
func (v *Validator) ValidateAll(ctx context.Context, urls []string) ([]Result, error) {
	results := make([]Result, len(urls))

	v.log.WithFields(logrus.Fields{
		"streams":     len(urls),
		"concurrency": v.opts.Concurrency,
		"slow":        v.opts.Slow,
	}).Info("Validating streams")

	var (
		g         errgroup.Group
		completed atomic.Int64
	)

	g.SetLimit(v.opts.Concurrency)

	for i, u := range urls {
		if ctx.Err() != nil {
			break
		}

		i, u := i, u
		g.Go(func() error {
			results[i] = v.Validate(ctx, u)

			if n := completed.Add(1); n%progressInterval == 0 || int(n) == len(urls) {
				v.log.WithFields(logrus.Fields{
					"completed": n,
					"total":     len(urls),
				}).Info("Validation progress")
			}

			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}

	return results, nil
}

func probeLabel(o outcome) string {
	switch o.kind {
	case outcomeOK:
		return "ok"
	case outcomeSkipped:
		return "skipped"
	case outcomeRateLimited:
		return "rate_limited"
	case outcomeTransient:
		return "error"
	default:
		return "failed"
	}
}
