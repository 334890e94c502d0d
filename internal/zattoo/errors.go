// SPDX-License-Identifier: MIT

package zattoo

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrInvalidCredentials = errors.New("zattoo: login rejected (bad credentials)")
	ErrWrongCountry       = errors.New("zattoo: account region does not match configured country")
	ErrSessionExpired     = errors.New("zattoo: session expired or unauthorized")
	ErrThrottled          = errors.New("zattoo: throttled by upstream")
	ErrNotFound           = errors.New("zattoo: resource not found")
	ErrUnavailable        = errors.New("zattoo: host unreachable or transport failure")
	ErrUpstreamError      = errors.New("zattoo: upstream internal error (5xx)")
	ErrBadResponse        = errors.New("zattoo: invalid response format or malformed data")
	ErrTimeout            = errors.New("zattoo: request timed out")
)

// APIError is a rich error type that wraps the sentinel errors with context.
type APIError struct {
	Sentinel   error
	Operation  string
	Status     int
	Body       string
	RetryAfter time.Duration // upstream hint on throttle responses, 0 if absent
	Err        error         // nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("zattoo: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

// RetryAfterHint extracts the upstream Retry-After duration from err, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// IsThrottle reports whether err should be treated as an upstream throttle
// signal. 503s carry the same meaning as 429s for this provider.
func IsThrottle(err error) bool {
	return errors.Is(err, ErrThrottled)
}
