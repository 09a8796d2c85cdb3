package protocol

import (
	"context"
)

// ElementHandle is a handle to a concrete DOM element. Most callers
// should prefer Locator; handles exist for WaitForSelector results and
// evaluate round-trips.
type ElementHandle struct {
	channelOwner
}

// TextContent returns the element's text content.
func (e *ElementHandle) TextContent(ctx context.Context) (string, error) {
	result, err := e.send(ctx, "textContent", nil)
	if err != nil {
		return "", err
	}
	return stringValue(result)
}

// InnerText returns the element's rendered text.
func (e *ElementHandle) InnerText(ctx context.Context) (string, error) {
	result, err := e.send(ctx, "innerText", nil)
	if err != nil {
		return "", err
	}
	return stringValue(result)
}

// Click clicks the element.
func (e *ElementHandle) Click(ctx context.Context) error {
	_, err := e.send(ctx, "click", nil)
	return err
}

// IsVisible reports whether the element is visible.
func (e *ElementHandle) IsVisible(ctx context.Context) (bool, error) {
	result, err := e.send(ctx, "isVisible", nil)
	if err != nil {
		return false, err
	}
	var payload struct {
		Value bool `json:"value"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return false, err
	}
	return payload.Value, nil
}

// Worker is a web or service worker. Tracked for registry completeness;
// the event surface is the generic one.
type Worker struct {
	channelOwner
}

// URL returns the worker script URL.
func (w *Worker) URL() string {
	var init struct {
		URL string `json:"url"`
	}
	w.decodeInitializer(&init)
	return init.URL
}

// Download is a finished or in-flight file download.
type Download struct {
	channelOwner
}

type downloadInitializer struct {
	URL               string `json:"url"`
	SuggestedFilename string `json:"suggestedFilename"`
}

// URL returns the download source URL.
func (d *Download) URL() string {
	var init downloadInitializer
	d.decodeInitializer(&init)
	return init.URL
}

// SuggestedFilename returns the engine-suggested local filename.
func (d *Download) SuggestedFilename() string {
	var init downloadInitializer
	d.decodeInitializer(&init)
	return init.SuggestedFilename
}

// Path blocks until the download finishes and returns its on-disk path.
func (d *Download) Path(ctx context.Context) (string, error) {
	result, err := d.send(ctx, "path", nil)
	if err != nil {
		return "", err
	}
	return stringValue(result)
}

// Dialog is a JavaScript dialog (alert, confirm, prompt) awaiting a
// decision.
type Dialog struct {
	channelOwner
}

type dialogInitializer struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Type returns the dialog kind.
func (d *Dialog) Type() string {
	var init dialogInitializer
	d.decodeInitializer(&init)
	return init.Type
}

// Message returns the dialog message.
func (d *Dialog) Message() string {
	var init dialogInitializer
	d.decodeInitializer(&init)
	return init.Message
}

// Accept accepts the dialog, with an optional prompt value.
func (d *Dialog) Accept(ctx context.Context, promptText string) error {
	params := map[string]any{}
	if promptText != "" {
		params["promptText"] = promptText
	}
	_, err := d.send(ctx, "accept", params)
	return err
}

// Dismiss dismisses the dialog.
func (d *Dialog) Dismiss(ctx context.Context) error {
	_, err := d.send(ctx, "dismiss", nil)
	return err
}

// Selectors is the engine's custom selector-engine registrar.
type Selectors struct {
	channelOwner
}

// Register installs a custom selector engine script.
func (s *Selectors) Register(ctx context.Context, name, script string) error {
	_, err := s.send(ctx, "register", map[string]any{
		"name":   name,
		"source": script,
	})
	return err
}

// Tracing is the engine's trace recorder. Registered so trace-capable
// engines keep a live object graph; trace tooling itself is out of
// scope.
type Tracing struct {
	channelOwner
}
