package protocol

import (
	"context"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// BrowserContext is an isolated browsing session within a Browser.
type BrowserContext struct {
	channelOwner

	browser *Browser

	mu     sync.Mutex
	pages  []*Page
	closed bool
}

// Browser returns the owning browser handle, when known.
func (bc *BrowserContext) Browser() *Browser { return bc.browser }

// Pages returns the open pages observed in this context.
func (bc *BrowserContext) Pages() []*Page {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	out := make([]*Page, len(bc.pages))
	copy(out, bc.pages)
	return out
}

func (bc *BrowserContext) trackPage(p *Page) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for _, existing := range bc.pages {
		if existing == p {
			return
		}
	}
	p.context = bc
	bc.pages = append(bc.pages, p)
}

func (bc *BrowserContext) forgetPage(p *Page) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for i, existing := range bc.pages {
		if existing == p {
			bc.pages = append(bc.pages[:i], bc.pages[i+1:]...)
			return
		}
	}
}

// NewPage opens a page in this context.
func (bc *BrowserContext) NewPage(ctx context.Context) (*Page, error) {
	result, err := bc.send(ctx, "newPage", nil)
	if err != nil {
		return nil, err
	}
	guid := refGUID(result, "page")
	if guid == "" {
		return nil, fmt.Errorf("newPage result carries no page object")
	}
	obj, err := bc.conn.waitForObject(ctx, guid)
	if err != nil {
		return nil, err
	}
	page, ok := obj.(*Page)
	if !ok {
		return nil, fmt.Errorf("object %s is %s, not Page", guid, obj.TypeName())
	}
	bc.trackPage(page)
	return page, nil
}

// StorageState exports the context's cookies and origin storage as the
// engine's opaque JSON document.
func (bc *BrowserContext) StorageState(ctx context.Context) (jsoniter.RawMessage, error) {
	return bc.send(ctx, "storageState", nil)
}

// AddCookies installs cookies into the context. The cookie documents
// follow the engine's schema and are passed verbatim.
func (bc *BrowserContext) AddCookies(ctx context.Context, cookies []map[string]any) error {
	_, err := bc.send(ctx, "addCookies", map[string]any{"cookies": cookies})
	return err
}

// Close tears the context and its pages down.
func (bc *BrowserContext) Close(ctx context.Context) error {
	bc.mu.Lock()
	if bc.closed {
		bc.mu.Unlock()
		return nil
	}
	bc.closed = true
	bc.mu.Unlock()

	_, err := bc.send(ctx, "close", nil)
	if bc.browser != nil {
		bc.browser.forgetContext(bc)
	}
	return err
}

// handleEvent tracks page lifecycle before fanning out. "page" events
// carry the new page's ref; "close" marks the context gone.
func (bc *BrowserContext) handleEvent(method string, params jsoniter.RawMessage) {
	switch method {
	case "page":
		if guid := refGUID(params, "page"); guid != "" {
			if page, ok := bc.conn.Object(guid).(*Page); ok {
				bc.trackPage(page)
			}
		}
	case "close":
		bc.mu.Lock()
		bc.closed = true
		bc.mu.Unlock()
	}
	bc.emit(method, params)
}
