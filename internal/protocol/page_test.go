package protocol

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPage registers a Frame and Page pair and returns the Page.
func newTestPage(t *testing.T, conn *Connection, ft *fakeTransport) *Page {
	t.Helper()
	ft.injectCreate("", "Frame", "frame@1", `{"url":"about:blank","name":""}`)
	ft.injectCreate("", "Page", "page@1", `{"mainFrame":{"guid":"frame@1"}}`)
	page, ok := waitForGUID(t, conn, "page@1").(*Page)
	require.True(t, ok)
	waitForGUID(t, conn, "frame@1")
	return page
}

// methodResponder routes each request method to a canned result.
func methodResponder(ft *fakeTransport, results map[string]string) func([]byte) {
	return func(frame []byte) {
		var req struct {
			ID     uint32 `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(frame, &req); err != nil || req.ID == 0 {
			return
		}
		result, ok := results[req.Method]
		if !ok {
			result = `{}`
		}
		ft.inject(`{"id":` + jsonUint(req.ID) + `,"result":` + result + `}`)
	}
}

func TestPage_GotoResolvesResponseAndUpdatesURL(t *testing.T) {
	conn, ft := newTestConnection(t)
	page := newTestPage(t, conn, ft)

	ft.responder = func(frame []byte) {
		var req struct {
			ID     uint32 `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(frame, &req); err != nil || req.Method != "goto" {
			return
		}
		// The Response object creation races the goto response; engine
		// stream order guarantees create first.
		ft.injectCreate("page@1", "Response", "response@1",
			`{"url":"data:text/html,<title>T</title>","status":200,"statusText":"OK","headers":[]}`)
		ft.inject(`{"id":` + jsonUint(req.ID) + `,"result":{"response":{"guid":"response@1"}}}`)
	}

	resp, err := page.Goto(context.Background(), "data:text/html,<title>T</title>", &GotoOptions{WaitUntil: WaitUntilLoad})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 200, resp.Status())
	assert.True(t, resp.OK())
	assert.True(t, strings.HasPrefix(page.URL(), "data:text/html,"))
}

func TestPage_GotoWithoutResponseReturnsNil(t *testing.T) {
	conn, ft := newTestConnection(t)
	page := newTestPage(t, conn, ft)
	ft.responder = okResponder(ft, `{}`)

	resp, err := page.Goto(context.Background(), "about:blank", nil)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestPage_GotoMissingResponseObject(t *testing.T) {
	conn, ft := newTestConnection(t)
	page := newTestPage(t, conn, ft)
	// References a Response guid that is never created.
	ft.responder = okResponder(ft, `{"response":{"guid":"response@404"}}`)

	_, err := page.Goto(context.Background(), "https://h/", nil)
	var nerr *NavigationError
	require.ErrorAs(t, err, &nerr)
	assert.ErrorIs(t, err, ErrResponseMissing)
	assert.Equal(t, "https://h/", nerr.URL)
}

func TestPage_GotoProtocolErrorBecomesNavigationError(t *testing.T) {
	conn, ft := newTestConnection(t)
	page := newTestPage(t, conn, ft)
	ft.responder = func(frame []byte) {
		var req struct {
			ID uint32 `json:"id"`
		}
		_ = json.Unmarshal(frame, &req)
		ft.inject(`{"id":` + jsonUint(req.ID) + `,"error":{"error":{"name":"Error","message":"net::ERR_NAME_NOT_RESOLVED"}}}`)
	}

	_, err := page.Goto(context.Background(), "https://no.such.host/", nil)
	var nerr *NavigationError
	require.ErrorAs(t, err, &nerr)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestPage_TitleDelegatesToMainFrame(t *testing.T) {
	conn, ft := newTestConnection(t)
	page := newTestPage(t, conn, ft)
	ft.responder = methodResponder(ft, map[string]string{"title": `{"value":"T"}`})

	title, err := page.Title(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T", title)

	req, ok := ft.sentRequest(0)
	require.True(t, ok)
	assert.Equal(t, "frame@1", req.GUID)
}

func TestPage_ScreenshotDecodesBase64(t *testing.T) {
	conn, ft := newTestConnection(t)
	page := newTestPage(t, conn, ft)
	// "aGVsbG8=" is "hello".
	ft.responder = methodResponder(ft, map[string]string{"screenshot": `{"binary":"aGVsbG8="}`})

	data, err := page.Screenshot(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestFrame_NavigatedEventUpdatesCachedURL(t *testing.T) {
	conn, ft := newTestConnection(t)
	page := newTestPage(t, conn, ft)
	require.Equal(t, "about:blank", page.URL())

	ft.inject(`{"guid":"frame@1","method":"navigated","params":{"url":"https://h/next"}}`)

	require.Eventually(t, func() bool { return page.URL() == "https://h/next" },
		time.Second, 5*time.Millisecond)
}

func TestLocator_ComposesSelectors(t *testing.T) {
	conn, ft := newTestConnection(t)
	page := newTestPage(t, conn, ft)
	ft.responder = methodResponder(ft, map[string]string{
		"queryCount":  `{"value":2}`,
		"textContent": `{"value":"hi"}`,
	})

	locator := page.Locator("h1")
	count, err := locator.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	text, err := locator.First().TextContent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hi", text)

	// The composed selector reaches the frame RPC.
	req, ok := ft.sentRequest(1)
	require.True(t, ok)
	var params struct {
		Selector string `json:"selector"`
	}
	require.NoError(t, json.Unmarshal(mustRaw(t, req.Params), &params))
	assert.Equal(t, "h1 >> nth=0", params.Selector)

	chained := locator.Locator("span").Nth(3)
	assert.Equal(t, "h1 >> span >> nth=3", chained.Selector())
}

func TestFrame_TextContentNullValueMeansNoElement(t *testing.T) {
	conn, ft := newTestConnection(t)
	page := newTestPage(t, conn, ft)
	ft.responder = methodResponder(ft, map[string]string{"textContent": `{"value":null}`})

	_, err := page.Locator("#missing").TextContent(context.Background())
	require.ErrorIs(t, err, ErrElementNotFound)
}

func TestFrame_GetAttributeAbsent(t *testing.T) {
	conn, ft := newTestConnection(t)
	page := newTestPage(t, conn, ft)
	ft.responder = methodResponder(ft, map[string]string{"getAttribute": `{}`})

	_, ok, err := page.Locator("a").GetAttribute(context.Background(), "href")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBrowser_CloseEventFlipsConnected(t *testing.T) {
	conn, ft := newTestConnection(t)
	ft.injectCreate("", "Browser", "browser@1", `{"version":"120.0","name":"chromium"}`)
	browser, ok := waitForGUID(t, conn, "browser@1").(*Browser)
	require.True(t, ok)
	require.True(t, browser.IsConnected())

	ft.inject(`{"guid":"browser@1","method":"close","params":{}}`)

	require.Eventually(t, func() bool { return !browser.IsConnected() },
		time.Second, 5*time.Millisecond)
}

func TestBrowserContext_PageEventTracksPages(t *testing.T) {
	conn, ft := newTestConnection(t)
	ft.injectCreate("", "BrowserContext", "context@1", `{}`)
	bc, ok := waitForGUID(t, conn, "context@1").(*BrowserContext)
	require.True(t, ok)

	ft.injectCreate("context@1", "Frame", "frame@1", `{"url":"","name":""}`)
	ft.injectCreate("context@1", "Page", "page@1", `{"mainFrame":{"guid":"frame@1"}}`)
	waitForGUID(t, conn, "page@1")
	ft.inject(`{"guid":"context@1","method":"page","params":{"page":{"guid":"page@1"}}}`)

	require.Eventually(t, func() bool { return len(bc.Pages()) == 1 },
		time.Second, 5*time.Millisecond)
	assert.Same(t, bc, bc.Pages()[0].Context())
}

func mustRaw(t *testing.T, params any) []byte {
	t.Helper()
	data, err := json.Marshal(params)
	require.NoError(t, err)
	return data
}
