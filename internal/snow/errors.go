package snow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// AuthError is a 401/403 from the upstream. Never retried; the caller
// should surface a re-authentication prompt rather than degrade.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("snow: authentication failed (status %d): %s", e.Status, e.Body)
}

// BusinessError is any other non-retryable upstream rejection: malformed
// sysparm_query, unknown table, or other 4xx responses.
type BusinessError struct {
	Status int
	Body   string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("snow: upstream rejected request (status %d): %s", e.Status, e.Body)
}

// upstreamStatusError marks a retryable HTTP status (429, 5xx). The
// gateway in front of ServiceNow answers 502/504 when the instance is
// slow, so these are treated the same as a dropped connection.
type upstreamStatusError struct {
	Status int
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("snow: upstream status %d", e.Status)
}

// IsTransient reports whether an error is worth retrying: connection
// resets, dial/connect timeouts, DNS failures, a connection the upstream
// closed mid-flight, or a retryable status code. Auth and business
// errors are always fatal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var authErr *AuthError
	var bizErr *BusinessError
	if errors.As(err, &authErr) || errors.As(err, &bizErr) {
		return false
	}

	var statusErr *upstreamStatusError
	if errors.As(err, &statusErr) {
		return true
	}

	// An attempt-level deadline means the upstream was too slow, not
	// that the caller gave up; the retry loop checks the parent
	// context separately before reattempting.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial", "read", "write":
			return true
		}
	}

	// Wrapped errors sometimes lose their type; fall back to message
	// patterns the instance is known to produce under load.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"no such host",
		"unexpected eof",
		"server closed idle connection",
		"connection was closed",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}
