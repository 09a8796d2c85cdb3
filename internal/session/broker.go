package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/grantcarthew/pwctl/internal/driver"
	"github.com/grantcarthew/pwctl/internal/protocol"
	"github.com/grantcarthew/pwctl/internal/transport"
)

// ErrBrowserLaunch wraps engine and browser startup failures.
var ErrBrowserLaunch = errors.New("browser launch failed")

// closeStepTimeout bounds each shutdown step so a wedged engine cannot
// hang session teardown.
const closeStepTimeout = 5 * time.Second

// Mode is the acquisition strategy the broker selected.
type Mode int

// Acquisition strategies.
const (
	// ModeCDP attaches to an externally running browser.
	ModeCDP Mode = iota
	// ModeServer launches (or reuses) a websocket browser server.
	ModeServer
	// ModeLaunch is a one-shot launch tied to this session.
	ModeLaunch
)

// String returns the strategy name.
func (m Mode) String() string {
	switch m {
	case ModeCDP:
		return "cdp"
	case ModeServer:
		return "server"
	case ModeLaunch:
		return "launch"
	default:
		return "unknown"
	}
}

// Config is the resolved option set the broker acts on.
type Config struct {
	// BrowserKind is chromium, firefox, or webkit.
	BrowserKind string
	Headless    bool
	// CDPEndpoint, when set, selects attach mode.
	CDPEndpoint string
	// LaunchServer selects the reusable-server strategy.
	LaunchServer bool
	// AuthFile seeds new contexts with storage state.
	AuthFile string
	// WaitUntil is the default navigation wait strategy.
	WaitUntil protocol.WaitUntil
	// Refresh discards any persisted descriptor before acquiring.
	Refresh bool
	// DescriptorPath overrides the default descriptor location.
	DescriptorPath string

	// DriverPath and NodePath override engine lookup.
	DriverPath string
	NodePath   string

	Logger *zap.Logger
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Config) descriptorPath() (string, error) {
	if c.DescriptorPath != "" {
		return c.DescriptorPath, nil
	}
	return DefaultDescriptorPath()
}

// resolveMode applies the strategy decision tree: an explicit CDP
// endpoint wins, then launch-server, then one-shot launch.
func resolveMode(cfg *Config) Mode {
	if cfg.CDPEndpoint != "" {
		return ModeCDP
	}
	if cfg.LaunchServer {
		return ModeServer
	}
	return ModeLaunch
}

// Session is a ready page with its owning context and browser. Close
// semantics depend on the acquisition mode.
type Session struct {
	Mode    Mode
	Browser *protocol.Browser
	Context *protocol.BrowserContext
	Page    *protocol.Page

	// WaitUntil is the configured default navigation wait strategy for
	// page operations on this session.
	WaitUntil protocol.WaitUntil

	playwright *protocol.Playwright
	log        *zap.Logger
	closed     bool
}

// Acquire produces a ready session per the configured strategy.
func Acquire(ctx context.Context, cfg *Config) (*Session, error) {
	log := cfg.logger()
	mode := resolveMode(cfg)
	log.Debug("acquiring session", zap.String("mode", mode.String()),
		zap.String("browser", cfg.BrowserKind), zap.Bool("headless", cfg.Headless))

	var (
		session *Session
		err     error
	)
	switch mode {
	case ModeCDP:
		session, err = acquireCDP(ctx, cfg, log)
	case ModeServer:
		session, err = acquireServer(ctx, cfg, log)
	default:
		session, err = acquireLaunch(ctx, cfg, log)
	}
	if err != nil {
		return nil, err
	}
	session.WaitUntil = cfg.WaitUntil
	return session, nil
}

// startEngine spawns the engine child, wires the pipe transport into a
// connection, and completes the protocol handshake. Storage state is
// loaded concurrently; engine spawn dominates the latency either way.
func startEngine(ctx context.Context, cfg *Config, log *zap.Logger) (*protocol.Playwright, jsoniter.RawMessage, error) {
	var (
		pw      *protocol.Playwright
		storage jsoniter.RawMessage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if cfg.AuthFile == "" {
			return nil
		}
		var err error
		storage, err = LoadStorageState(cfg.AuthFile)
		return err
	})
	g.Go(func() error {
		sup, err := driver.Start(driver.Options{
			DriverPath: cfg.DriverPath,
			NodePath:   cfg.NodePath,
			Logger:     log,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
		}
		conn := protocol.NewConnection(sup.Transport(), log)
		conn.SetCloser(sup.Close)
		pw, err = conn.Initialize(gctx)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if pw != nil {
			_ = pw.Shutdown(ctx)
		}
		return nil, nil, err
	}
	return pw, storage, nil
}

// acquireCDP attaches to an externally running chromium. Shutdown of
// such a session closes only the context we created.
func acquireCDP(ctx context.Context, cfg *Config, log *zap.Logger) (*Session, error) {
	if cfg.BrowserKind != "chromium" {
		return nil, fmt.Errorf("connect-over-cdp requires chromium, not %s", cfg.BrowserKind)
	}

	pw, storage, err := startEngine(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	session, err := func() (*Session, error) {
		bt, err := pw.Chromium()
		if err != nil {
			return nil, err
		}
		attached, err := bt.ConnectOverCDP(ctx, cfg.CDPEndpoint)
		if err != nil {
			return nil, err
		}

		var bc *protocol.BrowserContext
		if attached.DefaultContext != nil && len(storage) == 0 {
			bc = attached.DefaultContext
		} else {
			bc, err = attached.Browser.NewContext(ctx, &protocol.ContextOptions{StorageState: storage})
			if err != nil {
				return nil, err
			}
		}

		page, err := readyPage(ctx, bc)
		if err != nil {
			return nil, err
		}
		return &Session{
			Mode:       ModeCDP,
			Browser:    attached.Browser,
			Context:    bc,
			Page:       page,
			playwright: pw,
			log:        log,
		}, nil
	}()
	if err != nil {
		_ = pw.Shutdown(ctx)
		return nil, err
	}
	return session, nil
}

// acquireServer reuses a healthy persisted server or launches a fresh
// one, persisting its descriptor.
func acquireServer(ctx context.Context, cfg *Config, log *zap.Logger) (*Session, error) {
	path, err := cfg.descriptorPath()
	if err != nil {
		return nil, err
	}

	fingerprint, err := Fingerprint(cfg.AuthFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthLoad, err)
	}

	if cfg.Refresh {
		if _, err := RemoveDescriptor(path); err != nil {
			return nil, err
		}
	} else {
		desc, err := LoadDescriptor(path)
		if err != nil {
			return nil, err
		}
		if desc != nil {
			if descriptorMatches(desc, cfg, fingerprint) {
				session, rerr := reconnect(ctx, desc, cfg, log)
				if rerr == nil {
					return session, nil
				}
				log.Debug("descriptor reuse failed; relaunching", zap.Error(rerr))
			} else {
				log.Debug("descriptor invalidated", zap.String("path", path))
			}
			if _, err := RemoveDescriptor(path); err != nil {
				return nil, err
			}
		}
	}

	pw, storage, err := startEngine(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	session, err := func() (*Session, error) {
		bt, err := pw.BrowserTypeByName(cfg.BrowserKind)
		if err != nil {
			return nil, err
		}
		handle, err := bt.LaunchServer(ctx, &protocol.LaunchOptions{Headless: cfg.Headless})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
		}

		// The server must outlive this invocation.
		pw.SetKeepServerRunning(true)

		desc := newDescriptor(handle.WSEndpoint, handle.PID, cfg.BrowserKind, cfg.Headless, driver.Version, fingerprint)
		if err := desc.Save(path); err != nil {
			return nil, err
		}
		log.Debug("descriptor persisted",
			zap.String("path", path), zap.String("ws_endpoint", desc.WSEndpoint))

		bc, err := handle.Browser.NewContext(ctx, &protocol.ContextOptions{StorageState: storage})
		if err != nil {
			return nil, err
		}
		page, err := readyPage(ctx, bc)
		if err != nil {
			return nil, err
		}
		return &Session{
			Mode:       ModeServer,
			Browser:    handle.Browser,
			Context:    bc,
			Page:       page,
			playwright: pw,
			log:        log,
		}, nil
	}()
	if err != nil {
		pw.SetKeepServerRunning(false)
		_ = pw.Shutdown(ctx)
		return nil, err
	}
	return session, nil
}

// reconnect is the health check and rebuild path: dial the recorded
// websocket endpoint, complete the handshake, and verify the
// pre-launched browser is live before building a context and page.
func reconnect(ctx context.Context, desc *Descriptor, cfg *Config, log *zap.Logger) (*Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, closeStepTimeout)
	defer cancel()

	ws, err := transport.DialWebSocket(dialCtx, desc.WSEndpoint)
	if err != nil {
		return nil, fmt.Errorf("health check dial: %w", err)
	}

	conn := protocol.NewConnection(ws, log)
	session, err := func() (*Session, error) {
		pw, err := conn.Initialize(ctx)
		if err != nil {
			return nil, fmt.Errorf("health check handshake: %w", err)
		}
		browser := pw.PreLaunchedBrowser()
		if browser == nil || !browser.IsConnected() {
			return nil, errors.New("health check: no connected browser on endpoint")
		}

		var storage jsoniter.RawMessage
		if cfg.AuthFile != "" {
			if storage, err = LoadStorageState(cfg.AuthFile); err != nil {
				return nil, err
			}
		}

		bc, err := browser.NewContext(ctx, &protocol.ContextOptions{StorageState: storage})
		if err != nil {
			return nil, err
		}
		page, err := readyPage(ctx, bc)
		if err != nil {
			return nil, err
		}
		log.Debug("reusing live server", zap.String("ws_endpoint", desc.WSEndpoint))
		return &Session{
			Mode:       ModeServer,
			Browser:    browser,
			Context:    bc,
			Page:       page,
			playwright: pw,
			log:        log,
		}, nil
	}()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return session, nil
}

// acquireLaunch is the one-shot path: launch, use, close browser.
func acquireLaunch(ctx context.Context, cfg *Config, log *zap.Logger) (*Session, error) {
	pw, storage, err := startEngine(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	session, err := func() (*Session, error) {
		bt, err := pw.BrowserTypeByName(cfg.BrowserKind)
		if err != nil {
			return nil, err
		}
		browser, err := bt.Launch(ctx, &protocol.LaunchOptions{Headless: cfg.Headless})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
		}
		bc, err := browser.NewContext(ctx, &protocol.ContextOptions{StorageState: storage})
		if err != nil {
			return nil, err
		}
		page, err := readyPage(ctx, bc)
		if err != nil {
			return nil, err
		}
		return &Session{
			Mode:       ModeLaunch,
			Browser:    browser,
			Context:    bc,
			Page:       page,
			playwright: pw,
			log:        log,
		}, nil
	}()
	if err != nil {
		_ = pw.Shutdown(ctx)
		return nil, err
	}
	return session, nil
}

// readyPage reuses the context's first open page or creates one.
func readyPage(ctx context.Context, bc *protocol.BrowserContext) (*protocol.Page, error) {
	if pages := bc.Pages(); len(pages) > 0 {
		return pages[0], nil
	}
	return bc.NewPage(ctx)
}

// descriptorMatches applies the invalidation predicates: any mismatch
// forces relaunch and descriptor deletion.
func descriptorMatches(desc *Descriptor, cfg *Config, authFingerprint string) bool {
	if desc.BrowserKind != cfg.BrowserKind {
		return false
	}
	if desc.Headless != cfg.Headless {
		return false
	}
	if desc.DriverVersion != driver.Version {
		return false
	}
	if desc.AuthFingerprint != authFingerprint {
		return false
	}
	return true
}

// Close releases the session per its mode: attach and server modes
// close only the created context (the browser lives on); one-shot
// launch closes the browser too. Each step gets its own deadline.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	step := func(name string, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, closeStepTimeout)
		defer cancel()
		if err := fn(stepCtx); err != nil && !errors.Is(err, protocol.ErrTransportClosed) {
			s.log.Debug("close step failed", zap.String("step", name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	step("context", s.Context.Close)
	if s.Mode == ModeLaunch {
		step("browser", s.Browser.Close)
	}
	step("engine", s.playwright.Shutdown)
	return firstErr
}

// Stop shuts a descriptor-backed server down and removes its
// descriptor. Reports whether a server was actually stopped.
func Stop(ctx context.Context, cfg *Config) (bool, error) {
	log := cfg.logger()
	path, err := cfg.descriptorPath()
	if err != nil {
		return false, err
	}
	desc, err := LoadDescriptor(path)
	if err != nil {
		return false, err
	}
	if desc == nil {
		return false, nil
	}

	stopped := false
	if ws, err := transport.DialWebSocket(ctx, desc.WSEndpoint); err == nil {
		conn := protocol.NewConnection(ws, log)
		if pw, err := conn.Initialize(ctx); err == nil {
			if browser := pw.PreLaunchedBrowser(); browser != nil {
				if err := browser.Close(ctx); err == nil {
					stopped = true
				}
			}
		}
		_ = conn.Close()
	} else {
		log.Debug("server already gone", zap.String("ws_endpoint", desc.WSEndpoint), zap.Error(err))
	}

	if _, err := RemoveDescriptor(path); err != nil {
		return stopped, err
	}
	return stopped, nil
}

// Status reports the persisted descriptor state as a structured
// payload.
func Status(cfg *Config) (map[string]any, error) {
	path, err := cfg.descriptorPath()
	if err != nil {
		return nil, err
	}
	desc, err := LoadDescriptor(path)
	if err != nil {
		return nil, err
	}
	if desc == nil {
		return map[string]any{"active": false, "path": path}, nil
	}
	return map[string]any{
		"active":       true,
		"path":         path,
		"session_id":   desc.SessionID,
		"ws_endpoint":  desc.WSEndpoint,
		"pid":          desc.PID,
		"browser_kind": desc.BrowserKind,
		"headless":     desc.Headless,
		"driver":       desc.DriverVersion,
		"started_at":   desc.StartedAt,
	}, nil
}

// Clear removes the descriptor file without touching any live server.
func Clear(cfg *Config) (bool, error) {
	path, err := cfg.descriptorPath()
	if err != nil {
		return false, err
	}
	return RemoveDescriptor(path)
}
