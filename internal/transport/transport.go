// Package transport provides the framed byte channels used to exchange
// JSON frames with the automation engine. Two variants exist: a pipe
// transport over the engine's stdio with 4-byte length-prefixed frames,
// and a websocket transport with one frame per text message.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by Send and ReadFrame after the transport has
// terminated, either by Close or by end-of-stream from the peer.
var ErrClosed = errors.New("transport closed")

// FramingError indicates the inbound byte stream violated the framing
// contract. The transport closes itself when this is returned.
type FramingError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("framing error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("framing error: %s", e.Reason)
}

// Unwrap returns the underlying I/O error, if any.
func (e *FramingError) Unwrap() error { return e.Err }

// Transport is a duplex channel carrying opaque JSON frames.
// Send is safe for concurrent use; ReadFrame must only be called by a
// single reader (the connection's dispatch loop).
type Transport interface {
	// Send writes one complete frame.
	Send(ctx context.Context, frame []byte) error

	// ReadFrame blocks until the next inbound frame is available.
	// Returns ErrClosed on normal termination.
	ReadFrame(ctx context.Context) ([]byte, error)

	// Close terminates the transport. Subsequent Send and ReadFrame
	// calls return ErrClosed. Close is idempotent.
	Close() error
}
