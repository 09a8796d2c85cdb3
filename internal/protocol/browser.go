package protocol

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
)

// Browser wraps a connected browser instance. Contexts created through
// it are tracked for enumeration.
type Browser struct {
	channelOwner

	connected atomic.Bool

	mu       sync.Mutex
	contexts []*BrowserContext
}

type browserInitializer struct {
	Version string `json:"version"`
	Name    string `json:"name"`
}

func newBrowser() *Browser {
	b := &Browser{}
	b.connected.Store(true)
	return b
}

// Version returns the browser version string from the initializer.
func (b *Browser) Version() string {
	var init browserInitializer
	b.decodeInitializer(&init)
	return init.Version
}

// Name returns the browser kind name from the initializer.
func (b *Browser) Name() string {
	var init browserInitializer
	b.decodeInitializer(&init)
	return init.Name
}

// IsConnected reports whether the browser is still attached.
func (b *Browser) IsConnected() bool { return b.connected.Load() }

// Contexts returns the contexts created through this handle.
func (b *Browser) Contexts() []*BrowserContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*BrowserContext, len(b.contexts))
	copy(out, b.contexts)
	return out
}

func (b *Browser) trackContext(bc *BrowserContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.contexts {
		if existing == bc {
			return
		}
	}
	b.contexts = append(b.contexts, bc)
}

func (b *Browser) forgetContext(bc *BrowserContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.contexts {
		if existing == bc {
			b.contexts = append(b.contexts[:i], b.contexts[i+1:]...)
			return
		}
	}
}

// ContextOptions configures a new browser context.
type ContextOptions struct {
	// StorageState seeds cookies and origin storage. Passed to the
	// engine verbatim.
	StorageState jsoniter.RawMessage
	UserAgent    string
	Viewport     *ViewportSize
}

// ViewportSize is a page viewport in CSS pixels.
type ViewportSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (o *ContextOptions) params() map[string]any {
	params := map[string]any{}
	if o == nil {
		return params
	}
	if len(o.StorageState) > 0 {
		params["storageState"] = o.StorageState
	}
	if o.UserAgent != "" {
		params["userAgent"] = o.UserAgent
	}
	if o.Viewport != nil {
		params["viewport"] = o.Viewport
	}
	return params
}

// NewContext creates an isolated browser context.
func (b *Browser) NewContext(ctx context.Context, opts *ContextOptions) (*BrowserContext, error) {
	result, err := b.send(ctx, "newContext", opts.params())
	if err != nil {
		return nil, err
	}
	guid := refGUID(result, "context")
	if guid == "" {
		return nil, fmt.Errorf("newContext result carries no context object")
	}
	obj, err := b.conn.waitForObject(ctx, guid)
	if err != nil {
		return nil, err
	}
	bc, ok := obj.(*BrowserContext)
	if !ok {
		return nil, fmt.Errorf("object %s is %s, not BrowserContext", guid, obj.TypeName())
	}
	bc.browser = b
	b.trackContext(bc)
	return bc, nil
}

// NewPage is the convenience path: a fresh default context holding a
// single page. Closing the page closes its context.
func (b *Browser) NewPage(ctx context.Context) (*Page, error) {
	bc, err := b.NewContext(ctx, nil)
	if err != nil {
		return nil, err
	}
	page, err := bc.NewPage(ctx)
	if err != nil {
		_ = bc.Close(ctx)
		return nil, err
	}
	page.ownedContext = bc
	return page, nil
}

// Close disconnects and disposes the browser and everything under it.
func (b *Browser) Close(ctx context.Context) error {
	if !b.connected.Load() {
		return nil
	}
	_, err := b.send(ctx, "close", nil)
	b.connected.Store(false)
	return err
}

// handleEvent flips the connected flag on close before fanning out.
func (b *Browser) handleEvent(method string, params jsoniter.RawMessage) {
	if method == "close" {
		b.connected.Store(false)
	}
	b.emit(method, params)
}
