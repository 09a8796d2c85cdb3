package protocol

import (
	"context"
	"fmt"
	"sync"
)

// Playwright is the root of the remote object graph. Its initializer
// carries the three BrowserType handles and, on launch-server
// reconnects, a pre-connected Browser.
type Playwright struct {
	channelOwner

	shutdownOnce sync.Once

	// keepServerRunning leaves the engine (and any browser server it
	// hosts) alive when this handle shuts down.
	keepServerRunning bool
}

type playwrightInitializer struct {
	Chromium           channelRef  `json:"chromium"`
	Firefox            channelRef  `json:"firefox"`
	Webkit             channelRef  `json:"webkit"`
	PreLaunchedBrowser *channelRef `json:"preLaunchedBrowser,omitempty"`
}

// SetKeepServerRunning controls whether Shutdown leaves the engine
// process alive. Set by the session broker in launch-server mode.
func (p *Playwright) SetKeepServerRunning(keep bool) {
	p.keepServerRunning = keep
}

// browserType resolves one of the initializer's BrowserType refs.
func (p *Playwright) browserType(ref channelRef) (*BrowserType, error) {
	obj := p.conn.Object(ref.GUID)
	if obj == nil {
		return nil, fmt.Errorf("browser type %s not registered", ref.GUID)
	}
	bt, ok := obj.(*BrowserType)
	if !ok {
		return nil, fmt.Errorf("object %s is %s, not BrowserType", ref.GUID, obj.TypeName())
	}
	return bt, nil
}

// Chromium returns the chromium BrowserType handle.
func (p *Playwright) Chromium() (*BrowserType, error) {
	var init playwrightInitializer
	p.decodeInitializer(&init)
	return p.browserType(init.Chromium)
}

// Firefox returns the firefox BrowserType handle.
func (p *Playwright) Firefox() (*BrowserType, error) {
	var init playwrightInitializer
	p.decodeInitializer(&init)
	return p.browserType(init.Firefox)
}

// Webkit returns the webkit BrowserType handle.
func (p *Playwright) Webkit() (*BrowserType, error) {
	var init playwrightInitializer
	p.decodeInitializer(&init)
	return p.browserType(init.Webkit)
}

// BrowserTypeByName resolves a BrowserType from its kind name.
func (p *Playwright) BrowserTypeByName(name string) (*BrowserType, error) {
	switch name {
	case "chromium":
		return p.Chromium()
	case "firefox":
		return p.Firefox()
	case "webkit":
		return p.Webkit()
	default:
		return nil, fmt.Errorf("unknown browser kind %q", name)
	}
}

// PreLaunchedBrowser returns the already-connected Browser offered by
// a launch-server endpoint, or nil when connecting cold.
func (p *Playwright) PreLaunchedBrowser() *Browser {
	var init playwrightInitializer
	p.decodeInitializer(&init)
	if init.PreLaunchedBrowser == nil {
		return nil
	}
	if b, ok := p.conn.Object(init.PreLaunchedBrowser.GUID).(*Browser); ok {
		return b
	}
	return nil
}

// Shutdown closes the transport and terminates the engine child unless
// keep-server-running is set. Safe to call more than once.
func (p *Playwright) Shutdown(_ context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		if p.keepServerRunning {
			// The engine must outlive this process; leave the
			// transport and child untouched.
			return
		}
		err = p.conn.Close()
	})
	return err
}
