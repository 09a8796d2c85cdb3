package protocol

import (
	"context"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// Frame hosts all selector-driven primitives. Locators delegate here.
type Frame struct {
	channelOwner

	mu   sync.RWMutex
	url  string
	name string
}

type frameInitializer struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// seed caches the initializer's navigation state. Called by the
// factory after channel binding.
func (f *Frame) seed() {
	var init frameInitializer
	f.decodeInitializer(&init)
	f.url = init.URL
	f.name = init.Name
}

// URL returns the frame's cached URL, updated by navigation events.
func (f *Frame) URL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.url
}

// Name returns the frame's name attribute.
func (f *Frame) Name() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.name
}

// Goto navigates this frame and resolves the main resource response
// from the registry.
func (f *Frame) Goto(ctx context.Context, url string, opts *GotoOptions) (*NetworkResponse, error) {
	params := map[string]any{"url": url}
	if opts != nil {
		if opts.WaitUntil != "" {
			params["waitUntil"] = opts.WaitUntil
		}
		if opts.TimeoutMS > 0 {
			params["timeout"] = opts.TimeoutMS
		}
	}
	result, err := f.send(ctx, "goto", params)
	if err != nil {
		return nil, &NavigationError{URL: url, Err: err}
	}

	f.mu.Lock()
	f.url = url
	f.mu.Unlock()

	resp, err := f.conn.responseFromResult(ctx, result)
	if err != nil {
		return nil, &NavigationError{URL: url, Err: err}
	}
	return resp, nil
}

// Title returns the document title.
func (f *Frame) Title(ctx context.Context) (string, error) {
	result, err := f.send(ctx, "title", nil)
	if err != nil {
		return "", err
	}
	return stringValue(result)
}

// Evaluate runs an expression in the frame and returns its JSON value.
func (f *Frame) Evaluate(ctx context.Context, expression string) (any, error) {
	result, err := f.send(ctx, "evaluateExpression", map[string]any{
		"expression": expression,
	})
	if err != nil {
		return nil, err
	}
	return anyValue(result)
}

// EvalOnSelector runs an expression against the first element matching
// selector.
func (f *Frame) EvalOnSelector(ctx context.Context, selector, expression string) (any, error) {
	result, err := f.send(ctx, "evalOnSelector", map[string]any{
		"selector":   selector,
		"expression": expression,
	})
	if err != nil {
		return nil, err
	}
	return anyValue(result)
}

// Count returns how many elements match selector.
func (f *Frame) Count(ctx context.Context, selector string) (int, error) {
	result, err := f.send(ctx, "queryCount", map[string]any{"selector": selector})
	if err != nil {
		return 0, err
	}
	var payload struct {
		Value int `json:"value"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return 0, err
	}
	return payload.Value, nil
}

// TextContent returns the text content of the first matching element.
func (f *Frame) TextContent(ctx context.Context, selector string) (string, error) {
	return f.stringOp(ctx, "textContent", selector, nil)
}

// InnerText returns the rendered text of the first matching element.
func (f *Frame) InnerText(ctx context.Context, selector string) (string, error) {
	return f.stringOp(ctx, "innerText", selector, nil)
}

// InnerHTML returns the inner HTML of the first matching element.
func (f *Frame) InnerHTML(ctx context.Context, selector string) (string, error) {
	return f.stringOp(ctx, "innerHTML", selector, nil)
}

// GetAttribute returns an attribute of the first matching element.
// Absent attributes return ok=false.
func (f *Frame) GetAttribute(ctx context.Context, selector, name string) (value string, ok bool, err error) {
	result, err := f.send(ctx, "getAttribute", map[string]any{
		"selector": selector,
		"name":     name,
	})
	if err != nil {
		return "", false, err
	}
	var payload struct {
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", false, err
	}
	if payload.Value == nil {
		return "", false, nil
	}
	return *payload.Value, true, nil
}

// InputValue returns the value of the first matching form element.
func (f *Frame) InputValue(ctx context.Context, selector string) (string, error) {
	return f.stringOp(ctx, "inputValue", selector, nil)
}

// IsVisible reports whether the first matching element is visible.
// A selector matching nothing is not visible, not an error.
func (f *Frame) IsVisible(ctx context.Context, selector string) (bool, error) {
	return f.boolOp(ctx, "isVisible", selector)
}

// IsEnabled reports whether the first matching element is enabled.
func (f *Frame) IsEnabled(ctx context.Context, selector string) (bool, error) {
	return f.boolOp(ctx, "isEnabled", selector)
}

// IsEditable reports whether the first matching element is editable.
func (f *Frame) IsEditable(ctx context.Context, selector string) (bool, error) {
	return f.boolOp(ctx, "isEditable", selector)
}

// IsChecked reports whether the first matching checkbox is checked.
func (f *Frame) IsChecked(ctx context.Context, selector string) (bool, error) {
	return f.boolOp(ctx, "isChecked", selector)
}

// Click clicks the first matching element.
func (f *Frame) Click(ctx context.Context, selector string) error {
	return f.voidOp(ctx, "click", selector, nil)
}

// Fill sets the value of the first matching input.
func (f *Frame) Fill(ctx context.Context, selector, value string) error {
	return f.voidOp(ctx, "fill", selector, map[string]any{"value": value})
}

// Press sends a key chord to the first matching element.
func (f *Frame) Press(ctx context.Context, selector, key string) error {
	return f.voidOp(ctx, "press", selector, map[string]any{"key": key})
}

// Check checks the first matching checkbox.
func (f *Frame) Check(ctx context.Context, selector string) error {
	return f.voidOp(ctx, "check", selector, nil)
}

// Uncheck unchecks the first matching checkbox.
func (f *Frame) Uncheck(ctx context.Context, selector string) error {
	return f.voidOp(ctx, "uncheck", selector, nil)
}

// Hover hovers the first matching element.
func (f *Frame) Hover(ctx context.Context, selector string) error {
	return f.voidOp(ctx, "hover", selector, nil)
}

// SelectOption selects options by value on the first matching select
// element and returns the values actually selected.
func (f *Frame) SelectOption(ctx context.Context, selector string, values []string) ([]string, error) {
	options := make([]map[string]any, 0, len(values))
	for _, v := range values {
		options = append(options, map[string]any{"valueOrLabel": v})
	}
	result, err := f.send(ctx, "selectOption", map[string]any{
		"selector": selector,
		"options":  options,
	})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Values []string `json:"values"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, err
	}
	return payload.Values, nil
}

// InputFile is one file payload for SetInputFiles.
type InputFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	// Buffer is base64-encoded file content.
	Buffer string `json:"buffer"`
}

// SetInputFiles attaches files to the first matching file input.
func (f *Frame) SetInputFiles(ctx context.Context, selector string, files []InputFile) error {
	_, err := f.send(ctx, "setInputFiles", map[string]any{
		"selector": selector,
		"files":    files,
	})
	return err
}

// WaitForSelectorOptions tunes WaitForSelector.
type WaitForSelectorOptions struct {
	TimeoutMS float64
	// State is "attached", "detached", "visible", or "hidden".
	State string
}

// WaitForSelector blocks until selector reaches the requested state
// and returns the matched element.
func (f *Frame) WaitForSelector(ctx context.Context, selector string, opts *WaitForSelectorOptions) (*ElementHandle, error) {
	params := map[string]any{"selector": selector}
	if opts != nil {
		if opts.TimeoutMS > 0 {
			params["timeout"] = opts.TimeoutMS
		}
		if opts.State != "" {
			params["state"] = opts.State
		}
	}
	result, err := f.send(ctx, "waitForSelector", params)
	if err != nil {
		return nil, err
	}
	guid := refGUID(result, "element")
	if guid == "" {
		return nil, ErrElementNotFound
	}
	obj, err := f.conn.waitForObject(ctx, guid)
	if err != nil {
		return nil, err
	}
	if el, ok := obj.(*ElementHandle); ok {
		return el, nil
	}
	return nil, ErrElementNotFound
}

// stringOp runs a selector method whose result is {"value": string}.
// A null value means the selector matched nothing.
func (f *Frame) stringOp(ctx context.Context, method, selector string, extra map[string]any) (string, error) {
	params := map[string]any{"selector": selector}
	for k, v := range extra {
		params[k] = v
	}
	result, err := f.send(ctx, method, params)
	if err != nil {
		return "", err
	}
	var payload struct {
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", err
	}
	if payload.Value == nil {
		return "", ErrElementNotFound
	}
	return *payload.Value, nil
}

func (f *Frame) boolOp(ctx context.Context, method, selector string) (bool, error) {
	result, err := f.send(ctx, method, map[string]any{"selector": selector})
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

func (f *Frame) voidOp(ctx context.Context, method, selector string, extra map[string]any) error {
	params := map[string]any{"selector": selector}
	for k, v := range extra {
		params[k] = v
	}
	_, err := f.send(ctx, method, params)
	return err
}

// handleEvent updates the cached URL on navigation before fanning out.
func (f *Frame) handleEvent(method string, params jsoniter.RawMessage) {
	if method == "navigated" {
		var payload struct {
			URL  string `json:"url"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(params, &payload); err == nil {
			f.mu.Lock()
			f.url = payload.URL
			if payload.Name != "" {
				f.name = payload.Name
			}
			f.mu.Unlock()
		}
	}
	f.emit(method, params)
}

// stringValue parses a {"value": string} payload.
func stringValue(raw jsoniter.RawMessage) (string, error) {
	var payload struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", err
	}
	return payload.Value, nil
}

// anyValue parses a {"value": <json>} payload.
func anyValue(raw jsoniter.RawMessage) (any, error) {
	var payload struct {
		Value any `json:"value"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload.Value, nil
}
