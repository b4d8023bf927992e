package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// TransientError wraps an error that is safe to retry (network timeout, 5xx,
// 429). RetryAfter carries the provider-supplied hint when present.
type TransientError struct {
	Err        error
	StatusCode int
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP status.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// NewRateLimitError wraps a 429-class error, preserving the provider's
// retry-after hint.
func NewRateLimitError(err error, retryAfter time.Duration) *TransientError {
	return &TransientError{Err: err, StatusCode: 429, RetryAfter: retryAfter}
}

// SchemaError marks a structured response that failed contract validation:
// malformed JSON, missing fields, or out-of-range values. Retried up to the
// attempt ceiling, then the item is marked failed with the reason recorded.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string { return e.Err.Error() }

func (e *SchemaError) Unwrap() error { return e.Err }

// NewSchemaError wraps a validation failure.
func NewSchemaError(err error) *SchemaError {
	return &SchemaError{Err: err}
}

// IsSchema reports whether any error in the chain is a SchemaError.
func IsSchema(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsRateLimit reports whether the error is a 429-class transient error.
func IsRateLimit(err error) bool {
	var te *TransientError
	return errors.As(err, &te) && te.StatusCode == 429
}

// RetryAfterHint returns the provider-supplied retry delay, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var te *TransientError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return te.RetryAfter, true
	}
	return 0, false
}

// IsTransient reports whether the error (or anything in its chain) is a
// TransientError or matches common network-level transient patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped errors from HTTP clients lose their type; fall back to
	// message matching.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// Retryable is the default retry predicate for external calls: transient
// failures and schema violations both retry; everything else fails fast.
func Retryable(err error) bool {
	return IsTransient(err) || IsSchema(err)
}
