package protocol

import (
	"context"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/grantcarthew/pwctl/internal/transport"
)

// fakeTransport is an in-memory transport for exercising correlation
// and dispatch without an engine. Inbound frames are injected through
// the inbox; sent frames are recorded for inspection. An optional
// responder runs for every sent frame.
type fakeTransport struct {
	mu        sync.Mutex
	sent      [][]byte
	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	// responder, when set, observes each sent frame. It typically
	// injects a matching response.
	responder func(frame []byte)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbox:  make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Send(ctx context.Context, frame []byte) error {
	select {
	case <-f.closed:
		return transport.ErrClosed
	default:
	}

	f.mu.Lock()
	f.sent = append(f.sent, frame)
	responder := f.responder
	f.mu.Unlock()

	if responder != nil {
		responder(frame)
	}
	return nil
}

func (f *fakeTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-f.inbox:
		return frame, nil
	case <-f.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// inject queues a raw frame for the connection's dispatch loop.
func (f *fakeTransport) inject(frame string) {
	f.inbox <- []byte(frame)
}

// injectValue marshals and queues a frame.
func (f *fakeTransport) injectValue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.inbox <- data
}

// injectCreate queues a __create__ for guid under parent.
func (f *fakeTransport) injectCreate(parent, typeName, guid, initializer string) {
	init := initializer
	if init == "" {
		init = "{}"
	}
	f.inject(`{"guid":"` + parent + `","method":"__create__","params":{"type":"` + typeName + `","guid":"` + guid + `","initializer":` + init + `}}`)
}

// injectDispose queues a __dispose__ for guid.
func (f *fakeTransport) injectDispose(guid string) {
	f.inject(`{"guid":"` + guid + `","method":"__dispose__","params":{}}`)
}

// sentRequest decodes the i-th sent frame.
func (f *fakeTransport) sentRequest(i int) (Request, bool) {
	frames := f.sentFrames()
	if i >= len(frames) {
		return Request{}, false
	}
	var req struct {
		ID     uint32              `json:"id"`
		GUID   string              `json:"guid"`
		Method string              `json:"method"`
		Params jsoniter.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(frames[i], &req); err != nil {
		return Request{}, false
	}
	return Request{ID: req.ID, GUID: req.GUID, Method: req.Method, Params: req.Params}, true
}

// okResponder acknowledges every request with the given result JSON.
func okResponder(f *fakeTransport, result string) func([]byte) {
	return func(frame []byte) {
		var req struct {
			ID uint32 `json:"id"`
		}
		if err := json.Unmarshal(frame, &req); err != nil || req.ID == 0 {
			return
		}
		f.inject(`{"id":` + jsonUint(req.ID) + `,"result":` + result + `}`)
	}
}

func jsonUint(v uint32) string {
	data, _ := json.Marshal(v)
	return string(data)
}
