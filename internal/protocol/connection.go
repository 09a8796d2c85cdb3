package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/grantcarthew/pwctl/internal/transport"
)

// DefaultRPCTimeout bounds a single RPC when the caller's context
// carries no deadline of its own.
const DefaultRPCTimeout = 30 * time.Second

// rootGUID identifies the implicit root object every connection starts
// with. The engine parents the Playwright object under it.
const rootGUID = ""

type pendingResult struct {
	result jsoniter.RawMessage
	err    error
}

// Connection owns a transport, correlates requests with responses by
// id, and maintains the remote object registry. Exactly one reader
// goroutine performs all inbound dispatch.
type Connection struct {
	transport transport.Transport
	log       *zap.Logger

	lastID atomic.Uint32

	pendingMu sync.Mutex
	pending   map[uint32]chan pendingResult

	objects *registry

	closed   atomic.Bool
	closedCh chan struct{}
	closeMu  sync.Mutex
	closeErr error
	done     chan struct{}

	// closer tears down whatever owns the transport (the engine
	// supervisor in pipe mode). Optional, invoked at most once.
	closer     func() error
	closerOnce sync.Once
}

// NewConnection wraps a transport and starts the dispatch loop. The
// implicit root object is registered immediately.
func NewConnection(t transport.Transport, log *zap.Logger) *Connection {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Connection{
		transport: t,
		log:       log,
		pending:   make(map[uint32]chan pendingResult),
		objects:   newRegistry(),
		closedCh:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	root := &UnknownObject{}
	root.init(c, "Root", rootGUID, nil)
	c.objects.objects[rootGUID] = root
	go c.readLoop()
	return c
}

// SetCloser registers a teardown hook invoked once when the connection
// closes, after the transport.
func (c *Connection) SetCloser(closer func() error) {
	c.closer = closer
}

// SendMessage performs one RPC against guid. It allocates an id,
// parks a sink for the response, writes the frame, and suspends until
// the response arrives, the context expires, or the transport closes.
func (c *Connection) SendMessage(ctx context.Context, guid, method string, params any) (jsoniter.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrTransportClosed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRPCTimeout)
		defer cancel()
	}

	id := c.lastID.Add(1)
	sink := make(chan pendingResult, 1)

	c.pendingMu.Lock()
	c.pending[id] = sink
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if params == nil {
		params = map[string]any{}
	}
	frame, err := json.Marshal(Request{ID: id, GUID: guid, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.log.Debug("send", zap.Uint32("id", id), zap.String("guid", guid), zap.String("method", method))
	if err := c.transport.Send(ctx, frame); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			c.closeWithError(err)
			return nil, ErrTransportClosed
		}
		return nil, err
	}

	select {
	case res := <-sink:
		return res.result, res.err
	case <-ctx.Done():
		// The sink is removed on return; a late response is discarded.
		return nil, &TimeoutError{Message: fmt.Sprintf("%s.%s: %v", guid, method, ctx.Err())}
	case <-c.closedCh:
		return nil, ErrTransportClosed
	}
}

// Object returns the registered wrapper for guid, or nil.
func (c *Connection) Object(guid string) RemoteObject {
	return c.objects.get(guid)
}

// waitForObject polls the registry for guid. Creation frames race with
// the responses that reference them, so a bounded number of polls
// covers the gap before giving up.
func (c *Connection) waitForObject(ctx context.Context, guid string) (RemoteObject, error) {
	const (
		steps = 10
		pause = 10 * time.Millisecond
	)
	for i := 0; i < steps; i++ {
		if obj := c.objects.get(guid); obj != nil {
			return obj, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.closedCh:
			return nil, ErrTransportClosed
		case <-time.After(pause):
		}
	}
	return nil, ErrResponseMissing
}

// Close terminates the connection: transport first, then the
// registered closer, failing every pending request.
func (c *Connection) Close() error {
	c.closeWithError(nil)
	err := c.transport.Close()
	<-c.done
	c.closerOnce.Do(func() {
		if c.closer == nil {
			return
		}
		if cerr := c.closer(); err == nil {
			err = cerr
		}
	})
	return err
}

// Err reports the error that closed the connection, if any.
func (c *Connection) Err() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeErr
}

// Closed reports whether the connection has terminated.
func (c *Connection) Closed() bool { return c.closed.Load() }

// closeWithError marks the connection closed and drains every pending
// sink with ErrTransportClosed. Idempotent.
func (c *Connection) closeWithError(cause error) {
	if c.closed.Swap(true) {
		return
	}
	c.closeMu.Lock()
	if cause != nil && !errors.Is(cause, transport.ErrClosed) {
		c.closeErr = cause
	}
	c.closeMu.Unlock()
	close(c.closedCh)

	c.pendingMu.Lock()
	for id, sink := range c.pending {
		sink <- pendingResult{err: ErrTransportClosed}
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	// Tear the object tree down so per-object workers stop.
	c.objects.remove(rootGUID)
}

// readLoop is the single reader task: it owns the transport inbox and
// performs all dispatch. Event handlers run inside it and must not
// block.
func (c *Connection) readLoop() {
	defer close(c.done)

	ctx := context.Background()
	for {
		frame, err := c.transport.ReadFrame(ctx)
		if err != nil {
			c.closeWithError(err)
			return
		}
		c.dispatch(frame)
	}
}

// dispatch classifies one frame as response, lifecycle control, event,
// or unknown, and routes it. Unknown shapes and unknown guids are
// logged at debug and discarded, never errors.
func (c *Connection) dispatch(frame []byte) {
	resp, evt, err := parseFrame(frame)
	if err != nil {
		c.log.Debug("discarding frame", zap.Error(err))
		return
	}

	if resp != nil {
		c.dispatchResponse(resp)
		return
	}

	switch evt.Method {
	case methodCreate:
		c.handleCreate(evt)
	case methodDispose:
		c.handleDispose(evt)
	case methodAdopt:
		c.handleAdopt(evt)
	default:
		obj := c.objects.get(evt.GUID)
		if obj == nil {
			c.log.Debug("event for unknown guid",
				zap.String("guid", evt.GUID), zap.String("method", evt.Method))
			return
		}
		obj.handleEvent(evt.Method, evt.Params)
	}
}

// dispatchResponse resolves the pending sink for the response id.
// Exactly one response resolves exactly one pending request; an
// unmatched id means the caller already timed out or went away.
func (c *Connection) dispatchResponse(resp *Response) {
	c.pendingMu.Lock()
	sink, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()
	if !ok {
		c.log.Debug("response for unknown id", zap.Uint32("id", resp.ID))
		return
	}

	if resp.Error != nil {
		sink <- pendingResult{err: mapProtocolError(resp.Error.Error)}
		return
	}
	sink <- pendingResult{result: resp.Result}
}

// handleCreate instantiates and registers a wrapper for a new remote
// object. The event's guid names the parent.
func (c *Connection) handleCreate(evt *Event) {
	var params createParams
	if err := json.Unmarshal(evt.Params, &params); err != nil {
		c.log.Debug("malformed __create__", zap.Error(err))
		return
	}
	obj := newObject(c, params.Type, params.GUID, params.Initializer)
	if !c.objects.add(evt.GUID, obj) {
		c.log.Debug("duplicate __create__", zap.String("guid", params.GUID))
		return
	}
	c.log.Debug("created object",
		zap.String("type", params.Type), zap.String("guid", params.GUID))
}

// handleDispose removes the target object and all its descendants.
func (c *Connection) handleDispose(evt *Event) {
	removed := c.objects.remove(evt.GUID)
	c.log.Debug("disposed object",
		zap.String("guid", evt.GUID), zap.Int("descendants", len(removed)))
}

// handleAdopt re-parents the object named in params under the event's
// guid.
func (c *Connection) handleAdopt(evt *Event) {
	var params adoptParams
	if err := json.Unmarshal(evt.Params, &params); err != nil {
		c.log.Debug("malformed __adopt__", zap.Error(err))
		return
	}
	if !c.objects.adopt(params.GUID, evt.GUID) {
		c.log.Debug("adopt of unregistered guid",
			zap.String("guid", params.GUID), zap.String("parent", evt.GUID))
	}
}

// mapProtocolError converts an engine error payload to the local error
// taxonomy. Unrecognized names stay ProtocolError, surfaced verbatim.
func mapProtocolError(p errorPayload) error {
	switch p.Name {
	case "TimeoutError":
		return &TimeoutError{Message: p.Message}
	case "TargetClosedError":
		return fmt.Errorf("%s: %w", p.Message, ErrTransportClosed)
	default:
		return &ProtocolError{Name: p.Name, Message: p.Message, Stack: p.Stack}
	}
}

// Initialize performs the protocol handshake and returns the root
// Playwright object once the engine has created it.
func (c *Connection) Initialize(ctx context.Context) (*Playwright, error) {
	result, err := c.SendMessage(ctx, rootGUID, "initialize", map[string]any{
		"sdkLanguage": "javascript",
	})
	if err != nil {
		return nil, err
	}
	guid := refGUID(result, "playwright")
	if guid == "" {
		return nil, fmt.Errorf("initialize result carries no playwright object")
	}
	obj, err := c.waitForObject(ctx, guid)
	if err != nil {
		return nil, err
	}
	pw, ok := obj.(*Playwright)
	if !ok {
		return nil, fmt.Errorf("object %s is %s, not Playwright", guid, obj.TypeName())
	}
	return pw, nil
}
