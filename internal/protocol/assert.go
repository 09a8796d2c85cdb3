package protocol

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Assertion defaults matching the engine's own expect() behavior.
const (
	DefaultAssertionTimeout = 5 * time.Second
	DefaultPollInterval     = 100 * time.Millisecond
)

// TextMatch selects how ToHaveText compares strings.
type TextMatch int

// Text comparison modes.
const (
	MatchExact TextMatch = iota
	MatchContains
	MatchRegex
)

// Expect builds an auto-retry expectation for a locator. Predicates
// poll until they hold or the deadline expires.
func Expect(locator *Locator) *Expectation {
	return &Expectation{
		locator:      locator,
		timeout:      DefaultAssertionTimeout,
		pollInterval: DefaultPollInterval,
	}
}

// Expectation polls a predicate on a locator with a deadline.
type Expectation struct {
	locator      *Locator
	timeout      time.Duration
	pollInterval time.Duration
	negate       bool
}

// WithTimeout overrides the 5s default deadline.
func (e *Expectation) WithTimeout(timeout time.Duration) *Expectation {
	e.timeout = timeout
	return e
}

// WithPollInterval overrides the 100ms default poll interval.
func (e *Expectation) WithPollInterval(interval time.Duration) *Expectation {
	e.pollInterval = interval
	return e
}

// Not toggles negation for every predicate run on this expectation
// afterwards.
func (e *Expectation) Not() *Expectation {
	e.negate = !e.negate
	return e
}

// poll drives a predicate until it holds or the deadline expires.
// Probe errors are treated as "does not hold yet": the element may not
// exist on early polls.
func (e *Expectation) poll(ctx context.Context, condition string, probe func(context.Context) (bool, error)) error {
	start := time.Now()
	deadline := start.Add(e.timeout)

	for {
		ok, err := probe(ctx)
		if err == nil {
			if e.negate {
				ok = !ok
			}
			if ok {
				return nil
			}
		}

		if time.Now().After(deadline) {
			if e.negate {
				condition = "not " + condition
			}
			return &AssertionTimeoutError{
				Selector:  e.locator.Selector(),
				Condition: condition,
				Elapsed:   time.Since(start),
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.pollInterval):
		}
	}
}

// ToBeVisible asserts the element is visible.
func (e *Expectation) ToBeVisible(ctx context.Context) error {
	return e.poll(ctx, "to be visible", func(ctx context.Context) (bool, error) {
		return e.locator.IsVisible(ctx)
	})
}

// ToBeHidden asserts the element is hidden (or absent).
func (e *Expectation) ToBeHidden(ctx context.Context) error {
	e.negate = !e.negate
	return e.poll(ctx, "to be visible", func(ctx context.Context) (bool, error) {
		return e.locator.IsVisible(ctx)
	})
}

// ToBeEnabled asserts the element is enabled.
func (e *Expectation) ToBeEnabled(ctx context.Context) error {
	return e.poll(ctx, "to be enabled", func(ctx context.Context) (bool, error) {
		return e.locator.IsEnabled(ctx)
	})
}

// ToBeDisabled asserts the element is disabled.
func (e *Expectation) ToBeDisabled(ctx context.Context) error {
	e.negate = !e.negate
	return e.poll(ctx, "to be enabled", func(ctx context.Context) (bool, error) {
		return e.locator.IsEnabled(ctx)
	})
}

// ToBeChecked asserts the checkbox is checked.
func (e *Expectation) ToBeChecked(ctx context.Context) error {
	return e.poll(ctx, "to be checked", func(ctx context.Context) (bool, error) {
		return e.locator.IsChecked(ctx)
	})
}

// ToBeUnchecked asserts the checkbox is unchecked.
func (e *Expectation) ToBeUnchecked(ctx context.Context) error {
	e.negate = !e.negate
	return e.poll(ctx, "to be checked", func(ctx context.Context) (bool, error) {
		return e.locator.IsChecked(ctx)
	})
}

// ToBeEditable asserts the element is editable.
func (e *Expectation) ToBeEditable(ctx context.Context) error {
	return e.poll(ctx, "to be editable", func(ctx context.Context) (bool, error) {
		return e.locator.IsEditable(ctx)
	})
}

// ToBeFocused asserts the element has document focus.
func (e *Expectation) ToBeFocused(ctx context.Context) error {
	return e.poll(ctx, "to be focused", func(ctx context.Context) (bool, error) {
		value, err := e.locator.Evaluate(ctx, "e => e === document.activeElement")
		if err != nil {
			return false, err
		}
		focused, _ := value.(bool)
		return focused, nil
	})
}

// ToHaveText asserts the element's text content matches expected under
// the given comparison mode.
func (e *Expectation) ToHaveText(ctx context.Context, expected string, mode TextMatch) error {
	matcher, condition, err := textMatcher(expected, mode)
	if err != nil {
		return err
	}
	return e.poll(ctx, condition, func(ctx context.Context) (bool, error) {
		text, err := e.locator.TextContent(ctx)
		if err != nil {
			return false, err
		}
		return matcher(text), nil
	})
}

// ToHaveValue asserts the form element's value matches expected.
func (e *Expectation) ToHaveValue(ctx context.Context, expected string, mode TextMatch) error {
	matcher, condition, err := textMatcher(expected, mode)
	if err != nil {
		return err
	}
	condition = strings.Replace(condition, "have text", "have value", 1)
	return e.poll(ctx, condition, func(ctx context.Context) (bool, error) {
		value, err := e.locator.InputValue(ctx)
		if err != nil {
			return false, err
		}
		return matcher(value), nil
	})
}

func textMatcher(expected string, mode TextMatch) (func(string) bool, string, error) {
	switch mode {
	case MatchExact:
		return func(s string) bool { return s == expected },
			fmt.Sprintf("to have text %q", expected), nil
	case MatchContains:
		return func(s string) bool { return strings.Contains(s, expected) },
			fmt.Sprintf("to have text containing %q", expected), nil
	case MatchRegex:
		re, err := regexp.Compile(expected)
		if err != nil {
			return nil, "", fmt.Errorf("text pattern %q: %w", expected, err)
		}
		return re.MatchString,
			fmt.Sprintf("to have text matching %q", expected), nil
	default:
		return nil, "", fmt.Errorf("unknown text match mode %d", mode)
	}
}
