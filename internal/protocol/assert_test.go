package protocol

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// visibilityResponder answers isVisible with false until flipAfter
// polls have happened, then true. Everything else gets an empty OK.
func visibilityResponder(ft *fakeTransport, flipAfter int32) func([]byte) {
	var polls atomic.Int32
	return func(frame []byte) {
		var req struct {
			ID     uint32 `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(frame, &req); err != nil || req.ID == 0 {
			return
		}
		if req.Method != "isVisible" {
			ft.inject(`{"id":` + jsonUint(req.ID) + `,"result":{}}`)
			return
		}
		visible := polls.Add(1) > flipAfter
		if visible {
			ft.inject(`{"id":` + jsonUint(req.ID) + `,"result":{"value":true}}`)
		} else {
			ft.inject(`{"id":` + jsonUint(req.ID) + `,"result":{"value":false}}`)
		}
	}
}

func newTestLocator(t *testing.T, ft *fakeTransport, conn *Connection, selector string) *Locator {
	t.Helper()
	ft.injectCreate("", "Frame", "frame@1", `{"url":"","name":""}`)
	frame, ok := waitForGUID(t, conn, "frame@1").(*Frame)
	require.True(t, ok)
	return NewLocator(frame, selector)
}

func TestExpect_ToBeVisibleResolvesOncePredicateHolds(t *testing.T) {
	conn, ft := newTestConnection(t)
	ft.responder = visibilityResponder(ft, 3)
	locator := newTestLocator(t, ft, conn, "#x")

	err := Expect(locator).
		WithTimeout(2 * time.Second).
		WithPollInterval(10 * time.Millisecond).
		ToBeVisible(context.Background())
	require.NoError(t, err)
}

func TestExpect_ToBeVisibleTimesOut(t *testing.T) {
	conn, ft := newTestConnection(t)
	// Never becomes visible.
	ft.responder = visibilityResponder(ft, 1<<30)
	locator := newTestLocator(t, ft, conn, "#x")

	start := time.Now()
	err := Expect(locator).
		WithTimeout(100 * time.Millisecond).
		WithPollInterval(10 * time.Millisecond).
		ToBeVisible(context.Background())

	var aerr *AssertionTimeoutError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "#x", aerr.Selector)
	assert.Equal(t, "to be visible", aerr.Condition)
	assert.GreaterOrEqual(t, aerr.Elapsed, 100*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestExpect_NegationFlipsPredicate(t *testing.T) {
	conn, ft := newTestConnection(t)
	// Visible immediately: Not().ToBeVisible must time out.
	ft.responder = visibilityResponder(ft, 0)
	locator := newTestLocator(t, ft, conn, "#x")

	err := Expect(locator).
		Not().
		WithTimeout(80 * time.Millisecond).
		WithPollInterval(10 * time.Millisecond).
		ToBeVisible(context.Background())

	var aerr *AssertionTimeoutError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "not to be visible", aerr.Condition)
}

func TestExpect_ToBeHiddenIsNegatedVisibility(t *testing.T) {
	conn, ft := newTestConnection(t)
	// Never visible: hidden holds immediately.
	ft.responder = visibilityResponder(ft, 1<<30)
	locator := newTestLocator(t, ft, conn, "#gone")

	err := Expect(locator).
		WithTimeout(time.Second).
		WithPollInterval(10 * time.Millisecond).
		ToBeHidden(context.Background())
	require.NoError(t, err)
}

func TestExpect_ToHaveText(t *testing.T) {
	conn, ft := newTestConnection(t)
	ft.responder = func(frame []byte) {
		var req struct {
			ID     uint32 `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(frame, &req); err != nil || req.ID == 0 {
			return
		}
		if req.Method == "textContent" {
			ft.inject(`{"id":` + jsonUint(req.ID) + `,"result":{"value":"hello world"}}`)
			return
		}
		ft.inject(`{"id":` + jsonUint(req.ID) + `,"result":{}}`)
	}
	locator := newTestLocator(t, ft, conn, "h1")

	ctx := context.Background()
	expectation := func() *Expectation {
		return Expect(locator).WithTimeout(200 * time.Millisecond).WithPollInterval(10 * time.Millisecond)
	}

	require.NoError(t, expectation().ToHaveText(ctx, "hello world", MatchExact))
	require.NoError(t, expectation().ToHaveText(ctx, "world", MatchContains))
	require.NoError(t, expectation().ToHaveText(ctx, `^hello\s\w+$`, MatchRegex))

	var aerr *AssertionTimeoutError
	require.ErrorAs(t, expectation().ToHaveText(ctx, "goodbye", MatchExact), &aerr)
}

func TestTextMatcher_RejectsBadRegex(t *testing.T) {
	_, _, err := textMatcher("(", MatchRegex)
	require.Error(t, err)
}

func TestExpect_DefaultsMatchEngineBehavior(t *testing.T) {
	assert.Equal(t, 5*time.Second, DefaultAssertionTimeout)
	assert.Equal(t, 100*time.Millisecond, DefaultPollInterval)
}
