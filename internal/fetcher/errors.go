package fetcher

import (
	"fmt"
	"time"

	"github.com/bk-ru/parser/pkg/failure"
)

// FetchErrorCause classifies why a fetch attempt failed, for logging
// and for the retry decision. It never leaves this package.
type FetchErrorCause string

const (
	ErrCauseNetworkFailure   FetchErrorCause = "network failure"
	ErrCauseTimeout          FetchErrorCause = "timeout"
	ErrCauseRedirectOOS      FetchErrorCause = "redirect out of scope"
	ErrCauseRedirectLimit    FetchErrorCause = "redirect limit exceeded"
	ErrCauseReadBody         FetchErrorCause = "failed to read response body"
	ErrCauseHTTPStatus       FetchErrorCause = "http status"
	ErrCauseInvalidRequest   FetchErrorCause = "invalid request"
)

// FetchError is a classified, possibly-retryable failure of one fetch
// attempt. Non-HTML content types are NOT an error — they surface as
// a FetchResult with an empty BodyText.
type FetchError struct {
	Message    string
	Retryable  bool
	Cause      FetchErrorCause
	StatusCode int
	// RetryAfter overrides the computed backoff delay when set (from a
	// parseable Retry-After header on a 429/503 response).
	RetryAfter time.Duration
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetcher: %s: %s", e.Cause, e.Message)
}

func (e *FetchError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *FetchError) IsRetryable() bool {
	return e.Retryable
}

// RetryDelayOverride satisfies retry.RetryAfterOverrider: a parsed
// Retry-After header is authoritative over the computed backoff.
func (e *FetchError) RetryDelayOverride() time.Duration {
	return e.RetryAfter
}

// retryableStatus reports whether an HTTP status code is one the
// spec lists as transient.
func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
