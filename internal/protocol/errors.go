package protocol

import (
	"errors"
	"fmt"
	"time"
)

// ErrTransportClosed is returned by every RPC once the underlying
// transport has terminated. Unrecoverable at the connection level;
// retry is the session broker's concern.
var ErrTransportClosed = errors.New("transport closed")

// ErrRouteAlreadyHandled is returned when a second terminal call is
// made on a route that was already continued, fulfilled, or aborted.
var ErrRouteAlreadyHandled = errors.New("route already handled")

// ErrResponseMissing is returned when a navigation completed but the
// engine's Response object never appeared in the registry.
var ErrResponseMissing = errors.New("navigation response object missing")

// ErrElementNotFound is returned when a locator operation found zero
// elements where exactly one was required.
var ErrElementNotFound = errors.New("element not found")

// ProtocolError is an error returned by the engine, surfaced verbatim.
type ProtocolError struct {
	Name    string
	Message string
	Stack   string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s", e.Name, e.Message)
	}
	return e.Message
}

// TimeoutError indicates a deadline raced an RPC. The engine side
// effect may still complete; callers decide whether to retry.
type TimeoutError struct {
	Message string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string { return e.Message }

// NavigationError wraps a failed goto with the URL being navigated.
type NavigationError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *NavigationError) Unwrap() error { return e.Err }

// AssertionTimeoutError is returned when an auto-retry assertion's
// deadline expired before its predicate held.
type AssertionTimeoutError struct {
	Selector  string
	Condition string
	Elapsed   time.Duration
}

// Error implements the error interface.
func (e *AssertionTimeoutError) Error() string {
	return fmt.Sprintf("expected %q %s within %v", e.Selector, e.Condition, e.Elapsed.Round(time.Millisecond))
}
