package validate

import "time"

// Status is the outcome of validating one stream.
type Status int

const (
	StatusReachable Status = iota
	StatusUnreachable
	StatusRateLimitedExhausted
	StatusSkipped
)

// ReasonPrefix prefixes action log reasons for entries that failed validation.
const ReasonPrefix = "validation-failed="

// Causes reported for failed probes besides HTTP status codes.
const (
	CauseRateLimited       = "rate-limited"
	CauseConnectionReset   = "connection-reset"
	CauseTimeout           = "timeout"
	CauseDNS               = "dns"
	CauseConnectionRefused = "connection-refused"
	CauseNetwork           = "network"
	CauseNoData            = "no-data"
	CauseEmptyBody         = "empty-body"
	CauseUnsupported       = "unsupported-scheme"
	CauseInvalidURL        = "invalid-url"
	CauseCancelled         = "cancelled"
)

func (s Status) String() string {
	switch s {
	case StatusReachable:
		return "reachable"
	case StatusUnreachable:
		return "unreachable"
	case StatusRateLimitedExhausted:
		return "rate-limited-exhausted"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is the validation outcome for a single URL.
type Result struct {
	Status   Status
	Cause    string
	Attempts int
	Elapsed  time.Duration
}

// Passed reports whether the entry should be kept.
func (r Result) Passed() bool {
	return r.Status == StatusReachable || r.Status == StatusSkipped
}

// Reason returns the action log reason code for a failed result.
func (r Result) Reason() string {
	return ReasonPrefix + r.Cause
}
