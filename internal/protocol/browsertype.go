package protocol

import (
	"context"
	"fmt"
)

// BrowserType launches or attaches to one engine browser flavor
// (chromium, firefox, webkit).
type BrowserType struct {
	channelOwner
}

type browserTypeInitializer struct {
	Name           string `json:"name"`
	ExecutablePath string `json:"executablePath"`
}

// Name returns the browser kind this type drives.
func (bt *BrowserType) Name() string {
	var init browserTypeInitializer
	bt.decodeInitializer(&init)
	return init.Name
}

// ExecutablePath returns the engine-resolved browser binary path.
func (bt *BrowserType) ExecutablePath() string {
	var init browserTypeInitializer
	bt.decodeInitializer(&init)
	return init.ExecutablePath
}

// LaunchOptions configures a browser launch.
type LaunchOptions struct {
	Headless bool
	Args     []string
}

func (o *LaunchOptions) params() map[string]any {
	params := map[string]any{"headless": true}
	if o != nil {
		params["headless"] = o.Headless
		if len(o.Args) > 0 {
			params["args"] = o.Args
		}
	}
	return params
}

// Launch starts a one-shot browser whose lifetime is tied to the
// returned handle.
func (bt *BrowserType) Launch(ctx context.Context, opts *LaunchOptions) (*Browser, error) {
	result, err := bt.send(ctx, "launch", opts.params())
	if err != nil {
		return nil, err
	}
	return bt.browserFromResult(ctx, result, "browser")
}

// ServerHandle describes a launched browser server: the websocket
// endpoint other clients reconnect through, plus the Browser already
// connected on this connection.
type ServerHandle struct {
	WSEndpoint string
	PID        int
	Browser    *Browser
	server     *BrowserServer
}

// Close asks the engine to shut the server down.
func (h *ServerHandle) Close(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Close(ctx)
}

// LaunchServer starts a reusable browser server and returns its
// websocket endpoint along with an already-connected Browser.
func (bt *BrowserType) LaunchServer(ctx context.Context, opts *LaunchOptions) (*ServerHandle, error) {
	result, err := bt.send(ctx, "launchServer", opts.params())
	if err != nil {
		return nil, err
	}

	serverGUID := refGUID(result, "server")
	if serverGUID == "" {
		return nil, fmt.Errorf("launchServer result carries no server object")
	}
	obj, err := bt.conn.waitForObject(ctx, serverGUID)
	if err != nil {
		return nil, err
	}
	server, ok := obj.(*BrowserServer)
	if !ok {
		return nil, fmt.Errorf("object %s is %s, not BrowserServer", serverGUID, obj.TypeName())
	}

	browser, err := bt.browserFromResult(ctx, result, "browser")
	if err != nil {
		return nil, err
	}

	return &ServerHandle{
		WSEndpoint: server.WSEndpoint(),
		PID:        server.PID(),
		Browser:    browser,
		server:     server,
	}, nil
}

// CDPSession describes the result of attaching to an externally
// running chromium over its DevTools endpoint.
type CDPSession struct {
	Browser *Browser
	// DefaultContext is the browser's existing context, when the
	// engine offers one. Nil otherwise.
	DefaultContext *BrowserContext
}

// ConnectOverCDP attaches to an externally running chromium-based
// browser via its DevTools endpoint.
func (bt *BrowserType) ConnectOverCDP(ctx context.Context, endpointURL string) (*CDPSession, error) {
	result, err := bt.send(ctx, "connectOverCDP", map[string]any{"endpointURL": endpointURL})
	if err != nil {
		return nil, err
	}

	browser, err := bt.browserFromResult(ctx, result, "browser")
	if err != nil {
		return nil, err
	}

	session := &CDPSession{Browser: browser}
	if guid := refGUID(result, "defaultContext"); guid != "" {
		if obj, err := bt.conn.waitForObject(ctx, guid); err == nil {
			if bc, ok := obj.(*BrowserContext); ok {
				session.DefaultContext = bc
				browser.trackContext(bc)
			}
		}
	}
	return session, nil
}

// browserFromResult resolves a Browser ref out of an RPC result.
func (bt *BrowserType) browserFromResult(ctx context.Context, result []byte, key string) (*Browser, error) {
	guid := refGUID(result, key)
	if guid == "" {
		return nil, fmt.Errorf("result carries no %s object", key)
	}
	obj, err := bt.conn.waitForObject(ctx, guid)
	if err != nil {
		return nil, err
	}
	browser, ok := obj.(*Browser)
	if !ok {
		return nil, fmt.Errorf("object %s is %s, not Browser", guid, obj.TypeName())
	}
	return browser, nil
}

// BrowserServer is the engine-side handle for a running browser
// server.
type BrowserServer struct {
	channelOwner
}

type browserServerInitializer struct {
	WSEndpoint string `json:"wsEndpoint"`
	PID        int    `json:"pid"`
}

// WSEndpoint returns the websocket endpoint clients reconnect through.
func (s *BrowserServer) WSEndpoint() string {
	var init browserServerInitializer
	s.decodeInitializer(&init)
	return init.WSEndpoint
}

// PID returns the server's browser process id.
func (s *BrowserServer) PID() int {
	var init browserServerInitializer
	s.decodeInitializer(&init)
	return init.PID
}

// Close shuts the browser server down.
func (s *BrowserServer) Close(ctx context.Context) error {
	_, err := s.send(ctx, "close", nil)
	return err
}
