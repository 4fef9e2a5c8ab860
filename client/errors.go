package client

import (
	"errors"
	"fmt"
	"time"
)

// NetworkError wraps a transport-level failure so callers can distinguish it
// from protocol errors.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StateMismatchError signals that the state returned on the callback does not
// match the one bound when the authorization URL was built (CSRF defense).
type StateMismatchError struct {
	Expected string
	Got      string
}

func (e *StateMismatchError) Error() string {
	return "authorization callback state does not match the pending session"
}

// PollingTimeoutError signals that device polling exceeded its overall
// timeout, independent of the device code TTL.
type PollingTimeoutError struct {
	Timeout time.Duration
}

func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("device authorization polling timed out after %s", e.Timeout)
}

var (
	// ErrNoSession is returned when a callback arrives without a pending
	// authorization session.
	ErrNoSession = errors.New("no authorization session in progress")

	// ErrNoTokens is returned when no usable tokens are stored for the
	// client and no refresh is possible.
	ErrNoTokens = errors.New("no stored tokens")
)
