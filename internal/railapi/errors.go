package railapi

import (
	"errors"
	"fmt"
)

// Auth sentinels. Their Error() strings are the exact tokens the
// front-end recognizes to trigger re-authentication, so they are never
// wrapped with extra text on the way up.
var (
	ErrCredentialsRequired = errors.New("AUTH_CREDENTIALS_REQUIRED")
	ErrTokenExpired        = errors.New("AUTH_TOKEN_EXPIRED")
	ErrDeviceKeyExpired    = errors.New("AUTH_DEVICE_KEY_EXPIRED")
)

// ErrBackendUnavailable is returned after the in-client 5xx retry is
// exhausted. The text is user-facing and surfaces verbatim.
var ErrBackendUnavailable = errors.New("Railway server is currently unavailable. Please try again after some time.")

// RateLimitError covers upstream throttling: a 429, or the 403 the
// reservation API serves under heavy traffic. The scheduler's retry
// envelope treats this category as retryable. Message is user-facing.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string { return e.Message }

// StatusError reports a non-2xx response that carries no more specific
// meaning than its code.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// IsRetryable reports whether err is in the retryable category:
// upstream rate limiting (429) or the high-traffic 403 rejection.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsAuth reports whether err is one of the auth sentinels. Auth
// failures propagate as-is and are never retried or zero-recorded.
func IsAuth(err error) bool {
	return errors.Is(err, ErrCredentialsRequired) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrDeviceKeyExpired)
}
