package validate

import "time"

// Backoff computes exponential retry delays: Base * 2^attempt, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base

	for i := 0; i < attempt; i++ {
		if b.Max > 0 && d >= b.Max {
			break
		}

		d *= 2
	}

	if b.Max > 0 && d > b.Max {
		return b.Max
	}

	return d
}

type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeSkipped
	outcomeFailed
	outcomeTransient
	outcomeRateLimited
)

// outcome is the result of a single probe attempt.
type outcome struct {
	kind       outcomeKind
	cause      string
	retryAfter time.Duration
}

func (o outcome) retryable() bool {
	return o.kind == outcomeTransient || o.kind == outcomeRateLimited
}

type retryState int

const (
	stateAttempting retryState = iota
	stateBackoff
	stateSuccess
	stateFailed
	stateExhausted
)

func (s retryState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateBackoff:
		return "backoff"
	case stateSuccess:
		return "success"
	case stateFailed:
		return "failed"
	case stateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// retryMachine drives Attempting(n) -> Backoff(wait) -> Attempting(n+1)
// until Success, Failed or Exhausted.
type retryMachine struct {
	state       retryState
	attempts    int
	maxAttempts int
	backoff     Backoff
	wait        time.Duration
	last        outcome
}

func newRetryMachine(maxAttempts int, backoff Backoff) *retryMachine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &retryMachine{
		state:       stateAttempting,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// record applies the outcome of the probe just made. A connection reset
// following another reset counts as rate limiting.
func (m *retryMachine) record(o outcome) {
	if o.cause == CauseConnectionReset && m.attempts > 0 && m.last.cause == CauseConnectionReset {
		o.kind = outcomeRateLimited
	}

	m.attempts++
	m.last = o

	switch {
	case o.kind == outcomeOK, o.kind == outcomeSkipped:
		m.state = stateSuccess
	case !o.retryable():
		m.state = stateFailed
	case m.attempts >= m.maxAttempts:
		m.state = stateExhausted
	default:
		m.wait = m.backoff.Delay(m.attempts - 1)

		if o.retryAfter > m.wait {
			m.wait = o.retryAfter
			if m.backoff.Max > 0 && m.wait > m.backoff.Max {
				m.wait = m.backoff.Max
			}
		}

		m.state = stateBackoff
	}
}

// resume leaves the backoff state once the wait has elapsed.
func (m *retryMachine) resume() {
	if m.state == stateBackoff {
		m.state = stateAttempting
	}
}

func (m *retryMachine) done() bool {
	return m.state == stateSuccess || m.state == stateFailed || m.state == stateExhausted
}

func (m *retryMachine) result() Result {
	res := Result{Attempts: m.attempts, Cause: m.last.cause}

	switch {
	case m.state == stateSuccess && m.last.kind == outcomeSkipped:
		res.Status = StatusSkipped
	case m.state == stateSuccess:
		res.Status = StatusReachable
	case m.state == stateExhausted && m.last.kind == outcomeRateLimited:
		res.Status = StatusRateLimitedExhausted
		res.Cause = CauseRateLimited
	default:
		res.Status = StatusUnreachable
	}

	return res
}
