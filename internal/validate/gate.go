package validate

import (
	"context"
	"sync"
	"time"
)

// Gate is the rate-limit state shared by all probes of a run. Any probe
// that observes rate limiting trips the gate; no new probe is dispatched
// until the window has elapsed.
type Gate struct {
	mu              sync.Mutex
	activeUntil     time.Time
	consecutive429s int
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// Trip extends the backoff window to at least now+wait and returns the
// number of consecutive rate-limit signals seen.
func (g *Gate) Trip(wait time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if until := time.Now().Add(wait); until.After(g.activeUntil) {
		g.activeUntil = until
	}

	g.consecutive429s++

	return g.consecutive429s
}

// Clear resets the consecutive counter after a successful probe.
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.consecutive429s = 0
}

// Consecutive returns the number of rate-limit signals since the last success.
func (g *Gate) Consecutive() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.consecutive429s
}

// Remaining returns how long the backoff window stays active.
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	return time.Until(g.activeUntil)
}

// Wait blocks until the backoff window has elapsed.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		remaining := g.Remaining()
		if remaining <= 0 {
			return ctx.Err()
		}

		if err := sleep(ctx, remaining); err != nil {
			return err
		}
	}
}

// pacer enforces a minimum gap between consecutive probe starts.
type pacer struct {
	mu    sync.Mutex
	delay time.Duration
	next  time.Time
}

func newPacer(delay time.Duration) *pacer {
	return &pacer{delay: delay}
}

func (p *pacer) Wait(ctx context.Context) error {
	if p.delay <= 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	start := time.Now()
	if p.next.After(start) {
		start = p.next
	}
	p.next = start.Add(p.delay)
	p.mu.Unlock()

	return sleep(ctx, time.Until(start))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
