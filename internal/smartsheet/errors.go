package smartsheet

import (
	"fmt"
	"time"
)

// ErrorKind classifies an API call outcome for the orchestrator's
// continuation policy.
type ErrorKind string

const (
	// KindTransport is a network-level failure: connection refused,
	// timeout, DNS. No row information is available.
	KindTransport ErrorKind = "transport"

	// KindAuth is a 401/403. Fatal for the session: retrying further
	// batches with the same token cannot succeed.
	KindAuth ErrorKind = "auth"

	// KindRateLimited is a 429. Transient; safe to retry after waiting.
	KindRateLimited ErrorKind = "rate_limited"

	// KindValidation is a non-auth 4xx without per-row detail. Retrying
	// the identical payload cannot succeed.
	KindValidation ErrorKind = "validation"

	// KindServer is a 5xx. Transient; worth one retry.
	KindServer ErrorKind = "server"
)

// APIError is a failed Smartsheet call. StatusCode is zero for transport
// failures. RetryAfter carries the server's Retry-After hint when the
// response included one.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Code       int // Smartsheet errorCode, when the body parsed
	Message    string
	RetryAfter time.Duration
	Err        error // underlying transport error, if any
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("smartsheet: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("smartsheet: %s (HTTP %d, code %d): %s", e.Kind, e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the orchestrator may retry the same call.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTransport, KindServer:
		return true
	default:
		return false
	}
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}
