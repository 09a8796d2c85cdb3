package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// WebSocket carries one JSON frame per text message. Used to reach a
// launch-server endpoint (reuse and stop), where the engine outlives
// this process.
type WebSocket struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  atomic.Bool
}

// DialWebSocket connects to a ws:// endpoint and returns the transport.
func DialWebSocket(ctx context.Context, url string) (*WebSocket, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	// Frames carry full protocol payloads; the 32KiB default is far too low.
	conn.SetReadLimit(maxFrameSize)
	return &WebSocket{conn: conn}, nil
}

// NewWebSocket wraps an already-established websocket connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	conn.SetReadLimit(maxFrameSize)
	return &WebSocket{conn: conn}
}

// Send writes one frame as a single text message.
func (t *WebSocket) Send(ctx context.Context, frame []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.writeMu.Lock()
	err := t.conn.Write(ctx, websocket.MessageText, frame)
	t.writeMu.Unlock()
	if err != nil {
		t.closed.Store(true)
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// ReadFrame returns the next text message. Binary messages violate the
// protocol and close the transport. Ping/pong is handled by the
// websocket library underneath.
func (t *WebSocket) ReadFrame(ctx context.Context) ([]byte, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}

	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		t.closed.Store(true)
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("websocket read: %w", err)
	}
	if typ != websocket.MessageText {
		t.closed.Store(true)
		_ = t.conn.Close(websocket.StatusUnsupportedData, "binary frame")
		return nil, &FramingError{Reason: "binary frame rejected"}
	}
	return data, nil
}

// Close performs a normal websocket closure.
func (t *WebSocket) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close(websocket.StatusNormalClosure, "client closing")
}
