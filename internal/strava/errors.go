package strava

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected means the user has no Strava connection; recoverable
	// by going through the authorization flow.
	ErrNotConnected = errors.New("strava not connected")

	// ErrRateLimited is the provider telling us to back off. Distinct from
	// ProviderError so callers can retry later instead of failing hard.
	ErrRateLimited = errors.New("strava rate limited")
)

// RefreshFailedError wraps a failed token refresh. The connection is kept
// for a later retry, never deleted on this error.
type RefreshFailedError struct {
	Err error
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("strava token refresh failed: %s", e.Err)
}

func (e *RefreshFailedError) Unwrap() error {
	return e.Err
}

// ProviderError is any non-2xx, non-429 provider response.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("strava provider error: status %d: %s", e.StatusCode, e.Body)
}
