package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// maxFrameSize bounds a single inbound frame. Screenshot payloads can be
// large, but anything past this is a corrupt length header.
const maxFrameSize = 256 << 20

// Pipe is the stdio transport used when this process owns the engine
// child. Each frame is preceded by a 4-byte little-endian length.
type Pipe struct {
	w io.WriteCloser
	r io.Reader

	writeMu sync.Mutex
	readMu  sync.Mutex
	header  [4]byte

	closed atomic.Bool
}

// NewPipe creates a pipe transport over the engine's stdin and stdout.
func NewPipe(w io.WriteCloser, r io.Reader) *Pipe {
	return &Pipe{w: w, r: r}
}

// Send writes the length header and payload as one contiguous write so
// concurrent senders cannot interleave partial frames.
func (p *Pipe) Send(ctx context.Context, frame []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, 4+len(frame))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(frame)))
	copy(buf[4:], frame)

	p.writeMu.Lock()
	_, err := p.w.Write(buf)
	p.writeMu.Unlock()
	if err != nil {
		p.closed.Store(true)
		return fmt.Errorf("pipe write: %w", err)
	}
	return nil
}

// ReadFrame reads the next length-prefixed frame. A clean end-of-stream
// at a frame boundary returns ErrClosed; a partial header or body is a
// framing error and closes the transport.
func (p *Pipe) ReadFrame(ctx context.Context) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	p.readMu.Lock()
	defer p.readMu.Unlock()

	if _, err := io.ReadFull(p.r, p.header[:]); err != nil {
		p.closed.Store(true)
		if errors.Is(err, io.EOF) {
			return nil, ErrClosed
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &FramingError{Reason: "partial length header", Err: err}
		}
		return nil, &FramingError{Reason: "read length header", Err: err}
	}

	length := binary.LittleEndian.Uint32(p.header[:])
	if length > maxFrameSize {
		p.closed.Store(true)
		return nil, &FramingError{Reason: fmt.Sprintf("frame length %d exceeds limit", length)}
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(p.r, frame); err != nil {
		p.closed.Store(true)
		return nil, &FramingError{Reason: "partial frame body", Err: err}
	}
	return frame, nil
}

// Close closes the write side of the pipe. The engine treats a closed
// stdin as a shutdown signal.
func (p *Pipe) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.w.Close()
}
