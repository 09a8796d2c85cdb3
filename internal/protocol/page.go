package protocol

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// WaitUntil names the navigation lifecycle event a goto waits for.
type WaitUntil string

// Navigation wait strategies accepted by the engine.
const (
	WaitUntilLoad             WaitUntil = "load"
	WaitUntilDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitUntilNetworkIdle      WaitUntil = "networkidle"
)

// routeEntry pairs a URL pattern with its handler.
type routeEntry struct {
	pattern string
	matcher func(url string) bool
	handler func(*Route)
}

// Page wraps a single tab. It owns a primary frame, tracks popups, and
// routes matching network requests to registered handlers.
type Page struct {
	channelOwner

	context      *BrowserContext
	ownedContext *BrowserContext

	mu     sync.Mutex
	routes []routeEntry
	popups []*Page
	closed bool

	// Route handlers run on a dedicated drain goroutine so the
	// connection's dispatch loop never blocks on user code.
	workOnce sync.Once
	work     chan func()
	quit     chan struct{}
}

type pageInitializer struct {
	MainFrame channelRef `json:"mainFrame"`
}

func newPage() *Page {
	return &Page{
		work: make(chan func(), 64),
		quit: make(chan struct{}),
	}
}

// Context returns the owning browser context, when known.
func (p *Page) Context() *BrowserContext { return p.context }

// MainFrame returns the page's primary frame.
func (p *Page) MainFrame() *Frame {
	var init pageInitializer
	p.decodeInitializer(&init)
	if frame, ok := p.conn.Object(init.MainFrame.GUID).(*Frame); ok {
		return frame
	}
	return nil
}

// URL returns the primary frame's cached URL.
func (p *Page) URL() string {
	if frame := p.MainFrame(); frame != nil {
		return frame.URL()
	}
	return ""
}

// Popups returns pages opened by this one.
func (p *Page) Popups() []*Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Page, len(p.popups))
	copy(out, p.popups)
	return out
}

// IsClosed reports whether the page has closed.
func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// GotoOptions tunes a navigation.
type GotoOptions struct {
	WaitUntil WaitUntil
	// TimeoutMS is forwarded to the engine's own navigation deadline.
	// Zero leaves the engine default in place.
	TimeoutMS float64
}

// Goto navigates the primary frame and returns the main resource
// response.
func (p *Page) Goto(ctx context.Context, url string, opts *GotoOptions) (*NetworkResponse, error) {
	frame := p.MainFrame()
	if frame == nil {
		return nil, &NavigationError{URL: url, Err: ErrResponseMissing}
	}
	return frame.Goto(ctx, url, opts)
}

// Reload reloads the page and returns the main resource response.
func (p *Page) Reload(ctx context.Context, opts *GotoOptions) (*NetworkResponse, error) {
	params := map[string]any{}
	if opts != nil && opts.WaitUntil != "" {
		params["waitUntil"] = opts.WaitUntil
	}
	result, err := p.send(ctx, "reload", params)
	if err != nil {
		return nil, &NavigationError{URL: p.URL(), Err: err}
	}
	return p.conn.responseFromResult(ctx, result)
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	frame := p.MainFrame()
	if frame == nil {
		return "", ErrResponseMissing
	}
	return frame.Title(ctx)
}

// Evaluate runs an expression in the page and returns its JSON value.
func (p *Page) Evaluate(ctx context.Context, expression string) (any, error) {
	frame := p.MainFrame()
	if frame == nil {
		return nil, ErrResponseMissing
	}
	return frame.Evaluate(ctx, expression)
}

// WaitForSelector blocks until the selector matches, returning the
// element.
func (p *Page) WaitForSelector(ctx context.Context, selector string, opts *WaitForSelectorOptions) (*ElementHandle, error) {
	frame := p.MainFrame()
	if frame == nil {
		return nil, ErrElementNotFound
	}
	return frame.WaitForSelector(ctx, selector, opts)
}

// Locator builds a selector-scoped handle on the primary frame.
func (p *Page) Locator(selector string) *Locator {
	return &Locator{frame: p.MainFrame(), selector: selector}
}

// ScreenshotOptions tunes a screenshot capture.
type ScreenshotOptions struct {
	FullPage bool
	// Format is "png" or "jpeg"; empty means png.
	Format string
}

// Screenshot captures the page and returns the image bytes.
func (p *Page) Screenshot(ctx context.Context, opts *ScreenshotOptions) ([]byte, error) {
	params := map[string]any{"type": "png"}
	if opts != nil {
		if opts.Format != "" {
			params["type"] = opts.Format
		}
		params["fullPage"] = opts.FullPage
	}
	result, err := p.send(ctx, "screenshot", params)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Binary string `json:"binary"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("screenshot payload: %w", err)
	}
	return base64.StdEncoding.DecodeString(payload.Binary)
}

// Route registers a handler for requests matching a URL glob pattern.
// The handler must terminally handle its Route exactly once.
func (p *Page) Route(ctx context.Context, pattern string, handler func(*Route)) error {
	matcher, err := globMatcher(pattern)
	if err != nil {
		return fmt.Errorf("route pattern %q: %w", pattern, err)
	}

	p.mu.Lock()
	p.routes = append(p.routes, routeEntry{pattern: pattern, matcher: matcher, handler: handler})
	patterns := make([]map[string]any, 0, len(p.routes))
	for _, r := range p.routes {
		patterns = append(patterns, map[string]any{"glob": r.pattern})
	}
	p.mu.Unlock()

	p.startWorker()
	_, err = p.send(ctx, "setNetworkInterceptionPatterns", map[string]any{"patterns": patterns})
	return err
}

// Unroute removes all handlers for pattern.
func (p *Page) Unroute(ctx context.Context, pattern string) error {
	p.mu.Lock()
	kept := p.routes[:0]
	for _, r := range p.routes {
		if r.pattern != pattern {
			kept = append(kept, r)
		}
	}
	p.routes = kept
	patterns := make([]map[string]any, 0, len(p.routes))
	for _, r := range p.routes {
		patterns = append(patterns, map[string]any{"glob": r.pattern})
	}
	p.mu.Unlock()

	_, err := p.send(ctx, "setNetworkInterceptionPatterns", map[string]any{"patterns": patterns})
	return err
}

// Close closes the page, and its context too when the page owns it
// (Browser.NewPage convenience path).
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	_, err := p.send(ctx, "close", nil)
	if p.ownedContext != nil {
		if cerr := p.ownedContext.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// startWorker lazily starts the route drain goroutine.
func (p *Page) startWorker() {
	p.workOnce.Do(func() {
		go func() {
			for {
				select {
				case fn := <-p.work:
					fn()
				case <-p.quit:
					return
				}
			}
		}()
	})
}

// enqueue hands work to the drain goroutine without blocking the
// dispatch loop. Work is dropped when the queue is saturated or the
// page is gone.
func (p *Page) enqueue(fn func()) {
	select {
	case p.work <- fn:
	case <-p.quit:
	default:
		p.conn.log.Debug("page work queue full; dropping")
	}
}

// handleEvent updates page state and fans out. Route events are matched
// against registered patterns and handed to the drain goroutine;
// unmatched routes continue unmodified.
func (p *Page) handleEvent(method string, params jsoniter.RawMessage) {
	switch method {
	case "route":
		p.dispatchRoute(params)
	case "popup":
		if guid := refGUID(params, "page"); guid != "" {
			if popup, ok := p.conn.Object(guid).(*Page); ok {
				p.mu.Lock()
				p.popups = append(p.popups, popup)
				p.mu.Unlock()
			}
		}
	case "close":
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		if p.context != nil {
			p.context.forgetPage(p)
		}
	}
	p.emit(method, params)
}

func (p *Page) dispatchRoute(params jsoniter.RawMessage) {
	guid := refGUID(params, "route")
	if guid == "" {
		return
	}
	route, ok := p.conn.Object(guid).(*Route)
	if !ok {
		return
	}

	url := ""
	if req := route.Request(); req != nil {
		url = req.URL()
	}

	var handler func(*Route)
	p.mu.Lock()
	for _, r := range p.routes {
		if r.matcher(url) {
			handler = r.handler
			break
		}
	}
	p.mu.Unlock()

	p.startWorker()
	if handler == nil {
		p.enqueue(func() { _ = route.Continue(context.Background(), nil) })
		return
	}
	p.enqueue(func() { handler(route) })
}

// disposed stops the drain goroutine.
func (p *Page) disposed() {
	close(p.quit)
}
