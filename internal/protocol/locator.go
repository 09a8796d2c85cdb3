package protocol

import (
	"context"
	"fmt"
)

// selectorSeparator chains selector stages the way the engine's
// selector engine composes them.
const selectorSeparator = " >> "

// Locator is a (frame, selector) pair. It holds no remote state; every
// operation delegates to the frame's RPC methods with the composed
// selector.
type Locator struct {
	frame    *Frame
	selector string
}

// NewLocator builds a locator on frame.
func NewLocator(frame *Frame, selector string) *Locator {
	return &Locator{frame: frame, selector: selector}
}

// Selector returns the composed selector string.
func (l *Locator) Selector() string { return l.selector }

// Locator narrows this locator with a child selector.
func (l *Locator) Locator(selector string) *Locator {
	return &Locator{frame: l.frame, selector: l.selector + selectorSeparator + selector}
}

// First narrows to the first match.
func (l *Locator) First() *Locator { return l.Nth(0) }

// Nth narrows to the nth match (0-based).
func (l *Locator) Nth(index int) *Locator {
	return &Locator{frame: l.frame, selector: l.selector + selectorSeparator + fmt.Sprintf("nth=%d", index)}
}

// Count returns how many elements match.
func (l *Locator) Count(ctx context.Context) (int, error) {
	return l.frame.Count(ctx, l.selector)
}

// TextContent returns the first match's text content.
func (l *Locator) TextContent(ctx context.Context) (string, error) {
	return l.frame.TextContent(ctx, l.selector)
}

// InnerText returns the first match's rendered text.
func (l *Locator) InnerText(ctx context.Context) (string, error) {
	return l.frame.InnerText(ctx, l.selector)
}

// InnerHTML returns the first match's inner HTML.
func (l *Locator) InnerHTML(ctx context.Context) (string, error) {
	return l.frame.InnerHTML(ctx, l.selector)
}

// GetAttribute returns an attribute of the first match.
func (l *Locator) GetAttribute(ctx context.Context, name string) (string, bool, error) {
	return l.frame.GetAttribute(ctx, l.selector, name)
}

// InputValue returns the first match's form value.
func (l *Locator) InputValue(ctx context.Context) (string, error) {
	return l.frame.InputValue(ctx, l.selector)
}

// IsVisible reports whether the first match is visible.
func (l *Locator) IsVisible(ctx context.Context) (bool, error) {
	return l.frame.IsVisible(ctx, l.selector)
}

// IsEnabled reports whether the first match is enabled.
func (l *Locator) IsEnabled(ctx context.Context) (bool, error) {
	return l.frame.IsEnabled(ctx, l.selector)
}

// IsEditable reports whether the first match is editable.
func (l *Locator) IsEditable(ctx context.Context) (bool, error) {
	return l.frame.IsEditable(ctx, l.selector)
}

// IsChecked reports whether the first match is checked.
func (l *Locator) IsChecked(ctx context.Context) (bool, error) {
	return l.frame.IsChecked(ctx, l.selector)
}

// Click clicks the first match.
func (l *Locator) Click(ctx context.Context) error {
	return l.frame.Click(ctx, l.selector)
}

// Fill sets the first match's value.
func (l *Locator) Fill(ctx context.Context, value string) error {
	return l.frame.Fill(ctx, l.selector, value)
}

// Press sends a key chord to the first match.
func (l *Locator) Press(ctx context.Context, key string) error {
	return l.frame.Press(ctx, l.selector, key)
}

// Check checks the first match.
func (l *Locator) Check(ctx context.Context) error {
	return l.frame.Check(ctx, l.selector)
}

// Uncheck unchecks the first match.
func (l *Locator) Uncheck(ctx context.Context) error {
	return l.frame.Uncheck(ctx, l.selector)
}

// Hover hovers the first match.
func (l *Locator) Hover(ctx context.Context) error {
	return l.frame.Hover(ctx, l.selector)
}

// SelectOption selects options on the first match.
func (l *Locator) SelectOption(ctx context.Context, values []string) ([]string, error) {
	return l.frame.SelectOption(ctx, l.selector, values)
}

// SetInputFiles attaches files to the first match.
func (l *Locator) SetInputFiles(ctx context.Context, files []InputFile) error {
	return l.frame.SetInputFiles(ctx, l.selector, files)
}

// Evaluate runs an expression against the first match.
func (l *Locator) Evaluate(ctx context.Context, expression string) (any, error) {
	return l.frame.EvalOnSelector(ctx, l.selector, expression)
}
