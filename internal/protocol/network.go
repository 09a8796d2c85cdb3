package protocol

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
)

// NetworkRequest wraps an intercepted or observed request.
type NetworkRequest struct {
	channelOwner
}

type requestInitializer struct {
	URL          string      `json:"url"`
	Method       string      `json:"method"`
	ResourceType string      `json:"resourceType"`
	Headers      []nameValue `json:"headers"`
	Frame        channelRef  `json:"frame"`
	PostData     string      `json:"postData"`
}

type nameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// URL returns the request URL.
func (r *NetworkRequest) URL() string {
	var init requestInitializer
	r.decodeInitializer(&init)
	return init.URL
}

// Method returns the HTTP method.
func (r *NetworkRequest) Method() string {
	var init requestInitializer
	r.decodeInitializer(&init)
	return init.Method
}

// ResourceType returns the engine's resource classification.
func (r *NetworkRequest) ResourceType() string {
	var init requestInitializer
	r.decodeInitializer(&init)
	return init.ResourceType
}

// Headers returns the request headers as a map.
func (r *NetworkRequest) Headers() map[string]string {
	var init requestInitializer
	r.decodeInitializer(&init)
	headers := make(map[string]string, len(init.Headers))
	for _, h := range init.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}
	return headers
}

// NetworkResponse wraps a received response.
type NetworkResponse struct {
	channelOwner
}

type responseInitializer struct {
	URL        string      `json:"url"`
	Status     int         `json:"status"`
	StatusText string      `json:"statusText"`
	Headers    []nameValue `json:"headers"`
	Request    channelRef  `json:"request"`
}

// URL returns the response URL.
func (r *NetworkResponse) URL() string {
	var init responseInitializer
	r.decodeInitializer(&init)
	return init.URL
}

// Status returns the HTTP status code.
func (r *NetworkResponse) Status() int {
	var init responseInitializer
	r.decodeInitializer(&init)
	return init.Status
}

// StatusText returns the HTTP status text.
func (r *NetworkResponse) StatusText() string {
	var init responseInitializer
	r.decodeInitializer(&init)
	return init.StatusText
}

// OK reports whether the status is in the 2xx range.
func (r *NetworkResponse) OK() bool {
	status := r.Status()
	return status >= 200 && status < 300
}

// Headers returns the response headers as a map.
func (r *NetworkResponse) Headers() map[string]string {
	var init responseInitializer
	r.decodeInitializer(&init)
	headers := make(map[string]string, len(init.Headers))
	for _, h := range init.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}
	return headers
}

// Body fetches the response body bytes.
func (r *NetworkResponse) Body(ctx context.Context) ([]byte, error) {
	result, err := r.send(ctx, "body", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Binary string `json:"binary"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(payload.Binary)
}

// Text fetches the response body as a string.
func (r *NetworkResponse) Text(ctx context.Context) (string, error) {
	body, err := r.Body(ctx)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Route is a per-request interception hook. Exactly one terminal call
// (Continue, Fulfill, or Abort) is allowed; further calls fail with
// ErrRouteAlreadyHandled and produce no outbound frame.
type Route struct {
	channelOwner

	handled atomic.Bool
}

type routeInitializer struct {
	Request channelRef `json:"request"`
}

// Request returns the intercepted request.
func (rt *Route) Request() *NetworkRequest {
	var init routeInitializer
	rt.decodeInitializer(&init)
	if req, ok := rt.conn.Object(init.Request.GUID).(*NetworkRequest); ok {
		return req
	}
	return nil
}

// claim enforces the exactly-once discipline locally, before any frame
// is written.
func (rt *Route) claim() error {
	if rt.handled.Swap(true) {
		return ErrRouteAlreadyHandled
	}
	return nil
}

// ContinueOverrides optionally rewrites the continued request.
type ContinueOverrides struct {
	URL     string
	Method  string
	Headers map[string]string
}

// Continue lets the request proceed, optionally modified.
func (rt *Route) Continue(ctx context.Context, overrides *ContinueOverrides) error {
	if err := rt.claim(); err != nil {
		return err
	}
	params := map[string]any{}
	if overrides != nil {
		if overrides.URL != "" {
			params["url"] = overrides.URL
		}
		if overrides.Method != "" {
			params["method"] = overrides.Method
		}
		if len(overrides.Headers) > 0 {
			params["headers"] = headerList(overrides.Headers)
		}
	}
	_, err := rt.send(ctx, "continue", params)
	return err
}

// FulfillOptions describes a synthesized response.
type FulfillOptions struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Fulfill answers the request with a synthesized response.
func (rt *Route) Fulfill(ctx context.Context, opts FulfillOptions) error {
	if err := rt.claim(); err != nil {
		return err
	}
	status := opts.Status
	if status == 0 {
		status = 200
	}
	params := map[string]any{
		"status":   status,
		"headers":  headerList(opts.Headers),
		"body":     base64.StdEncoding.EncodeToString(opts.Body),
		"isBase64": true,
	}
	_, err := rt.send(ctx, "fulfill", params)
	return err
}

// Abort fails the request. Reason defaults to "failed".
func (rt *Route) Abort(ctx context.Context, reason string) error {
	if err := rt.claim(); err != nil {
		return err
	}
	if reason == "" {
		reason = "failed"
	}
	_, err := rt.send(ctx, "abort", map[string]any{"errorCode": reason})
	return err
}

func headerList(headers map[string]string) []nameValue {
	out := make([]nameValue, 0, len(headers))
	for name, value := range headers {
		out = append(out, nameValue{Name: name, Value: value})
	}
	return out
}

// responseFromResult resolves the Response object referenced by a
// navigation result. The engine's __create__ for the Response may race
// with the navigation response frame, so the registry is polled for a
// bounded interval. A navigation with no response (e.g. about:blank)
// returns nil.
func (c *Connection) responseFromResult(ctx context.Context, result jsoniter.RawMessage) (*NetworkResponse, error) {
	guid := refGUID(result, "response")
	if guid == "" {
		// Navigations like about:blank legitimately produce no response.
		var outer map[string]jsoniter.RawMessage
		if err := json.Unmarshal(result, &outer); err == nil {
			if _, present := outer["response"]; !present {
				return nil, nil
			}
		}
		return nil, ErrResponseMissing
	}
	obj, err := c.waitForObject(ctx, guid)
	if err != nil {
		return nil, err
	}
	resp, ok := obj.(*NetworkResponse)
	if !ok {
		return nil, fmt.Errorf("object %s is %s, not Response", guid, obj.TypeName())
	}
	return resp, nil
}

// globMatcher compiles a URL glob into a predicate. "**" spans path
// separators, "*" does not, "?" matches a single character.
func globMatcher(pattern string) (func(string) bool, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch ch {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				sb.WriteString(".*")
				i++
			} else {
				sb.WriteString("[^/]*")
			}
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, err
	}
	return re.MatchString, nil
}
