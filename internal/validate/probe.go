package validate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	rangeHeader      = "bytes=0-1023"
	rtmpPort         = "1935"
	rtspPort         = "554"
	rtmpHandshakeLen = 1536
	rtmpVersion      = 0x03
)

// probe issues a single attempt against rawURL.
func (v *Validator) probe(ctx context.Context, rawURL string) outcome {
	u, err := url.Parse(rawURL)
	if err != nil {
		return outcome{kind: outcomeFailed, cause: CauseInvalidURL}
	}

	ctx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return v.probeHTTP(ctx, rawURL)
	case "rtmp":
		return v.probeStream(ctx, u, rtmpPort, rtmpGreeting())
	case "rtsp":
		return v.probeStream(ctx, u, rtspPort, rtspGreeting(rawURL, v.opts.UserAgent))
	case "udp":
		return outcome{kind: outcomeSkipped, cause: "udp"}
	default:
		return outcome{kind: outcomeFailed, cause: CauseUnsupported}
	}
}

// probeHTTP tries HEAD first and falls back to a ranged GET when the server
// rejects HEAD. In aggressive mode a HEAD success is confirmed by a GET that
// must deliver at least one byte.
func (v *Validator) probeHTTP(ctx context.Context, rawURL string) outcome {
	status, retryAfter, err := v.head(ctx, rawURL)
	if err != nil {
		return classifyError(err)
	}

	if status == http.StatusTooManyRequests {
		return outcome{kind: outcomeRateLimited, cause: CauseRateLimited, retryAfter: retryAfter}
	}

	if isSuccess(status) && !v.opts.Aggressive {
		return outcome{kind: outcomeOK, cause: strconv.Itoa(status)}
	}

	status, retryAfter, received, err := v.rangedGet(ctx, rawURL)
	if err != nil {
		return classifyError(err)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return outcome{kind: outcomeRateLimited, cause: CauseRateLimited, retryAfter: retryAfter}
	case !isSuccess(status):
		return outcome{kind: outcomeFailed, cause: strconv.Itoa(status)}
	case v.opts.Aggressive && !received:
		return outcome{kind: outcomeFailed, cause: CauseEmptyBody}
	}

	return outcome{kind: outcomeOK, cause: strconv.Itoa(status)}
}

func (v *Validator) head(ctx context.Context, rawURL string) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

func (v *Validator) rangedGet(ctx context.Context, rawURL string) (int, time.Duration, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Range", rangeHeader)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return 0, 0, false, err
	}
	defer resp.Body.Close()

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))

	if !isSuccess(resp.StatusCode) {
		return resp.StatusCode, retryAfter, false, nil
	}

	buf := make([]byte, 1)
	n, err := io.ReadFull(resp.Body, buf)

	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, 0, false, err
	}

	return resp.StatusCode, retryAfter, n > 0, nil
}

// probeStream opens a TCP connection, sends the protocol greeting and
// waits for the first byte of the reply.
func (v *Validator) probeStream(ctx context.Context, u *url.URL, defaultPort string, greeting []byte) outcome {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), defaultPort)
	}

	conn, err := v.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return classifyError(err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return classifyError(err)
		}
	}

	if _, err := conn.Write(greeting); err != nil {
		return classifyError(err)
	}

	buf := make([]byte, 1)
	if _, err := io.ReadFull(conn, buf); err != nil {
		if errors.Is(err, io.EOF) {
			return outcome{kind: outcomeFailed, cause: CauseNoData}
		}

		return classifyError(err)
	}

	return outcome{kind: outcomeOK, cause: "connected"}
}

func rtmpGreeting() []byte {
	// C0 (version) followed by a zeroed C1 block.
	greeting := make([]byte, 1+rtmpHandshakeLen)
	greeting[0] = rtmpVersion

	return greeting
}

func rtspGreeting(rawURL, userAgent string) []byte {
	return []byte(fmt.Sprintf("OPTIONS %s RTSP/1.0\r\nCSeq: 1\r\nUser-Agent: %s\r\n\r\n", rawURL, userAgent))
}

// classifyError maps a transport error to a probe outcome. A single
// connection reset is transient; the retry machine escalates repeats.
func classifyError(err error) outcome {
	var (
		dnsErr *net.DNSError
		netErr net.Error
	)

	switch {
	case errors.Is(err, context.Canceled):
		return outcome{kind: outcomeFailed, cause: CauseCancelled}
	case errors.Is(err, syscall.ECONNRESET):
		return outcome{kind: outcomeTransient, cause: CauseConnectionReset}
	case errors.As(err, &dnsErr) && !dnsErr.IsTimeout:
		return outcome{kind: outcomeTransient, cause: CauseDNS}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return outcome{kind: outcomeTransient, cause: CauseTimeout}
	case errors.Is(err, syscall.ECONNREFUSED):
		return outcome{kind: outcomeTransient, cause: CauseConnectionRefused}
	default:
		return outcome{kind: outcomeTransient, cause: CauseNetwork}
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 400
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}

	return 0
}
