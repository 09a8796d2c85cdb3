// Package protocol implements the JSON-RPC client for the automation
// engine: request/response correlation, the remote object registry, the
// typed object surface, and the auto-retry assertion harness.
package protocol

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Lifecycle control methods sent by the engine to maintain the remote
// object graph.
const (
	methodCreate  = "__create__"
	methodDispose = "__dispose__"
	methodAdopt   = "__adopt__"
)

// Request is an outbound RPC frame targeting the object identified by
// GUID.
type Request struct {
	ID       uint32         `json:"id"`
	GUID     string         `json:"guid"`
	Method   string         `json:"method"`
	Params   any            `json:"params"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Response is an inbound frame resolving a prior request by id. Result
// and Error are mutually exclusive.
type Response struct {
	ID     uint32
	Result jsoniter.RawMessage
	Error  *errorWrapper
}

// errorWrapper matches the engine's double-wrapped error payload:
// {"error": {"error": {"message", "name", "stack"}}}.
type errorWrapper struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Event is an inbound frame carrying an event (or lifecycle control)
// for the object identified by GUID.
type Event struct {
	GUID   string
	Method string
	Params jsoniter.RawMessage
}

// createParams is the payload of a __create__ event. The event's GUID
// names the parent object.
type createParams struct {
	Type        string              `json:"type"`
	GUID        string              `json:"guid"`
	Initializer jsoniter.RawMessage `json:"initializer"`
}

// adoptParams is the payload of an __adopt__ event. The event's GUID
// names the new parent.
type adoptParams struct {
	GUID string `json:"guid"`
}

// message is the inbound superset used to classify frames.
type message struct {
	ID     uint32              `json:"id,omitempty"`
	GUID   string              `json:"guid,omitempty"`
	Method string              `json:"method,omitempty"`
	Params jsoniter.RawMessage `json:"params,omitempty"`
	Result jsoniter.RawMessage `json:"result,omitempty"`
	Error  *errorWrapper       `json:"error,omitempty"`
}

// parseFrame classifies an inbound frame. A frame with an id and no
// method is a response; a frame with a method is an event or lifecycle
// control. Anything else is unknown and reported as an error for the
// caller to log and discard.
func parseFrame(data []byte) (*Response, *Event, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, nil, fmt.Errorf("parse frame: %w", err)
	}

	// Request ids start at 1, so a zero id means "absent".
	if msg.ID != 0 && msg.Method == "" {
		return &Response{ID: msg.ID, Result: msg.Result, Error: msg.Error}, nil, nil
	}

	if msg.Method != "" {
		return nil, &Event{GUID: msg.GUID, Method: msg.Method, Params: msg.Params}, nil
	}

	return nil, nil, fmt.Errorf("unknown frame shape: %s", truncate(data, 200))
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}

// channelRef is how frames reference other remote objects.
type channelRef struct {
	GUID string `json:"guid"`
}

// refGUID extracts the guid from a {"<key>": {"guid": ...}} reference
// inside a result or event payload. Returns "" when absent.
func refGUID(raw jsoniter.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var outer map[string]jsoniter.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil {
		return ""
	}
	inner, ok := outer[key]
	if !ok {
		return ""
	}
	var ref channelRef
	if err := json.Unmarshal(inner, &ref); err != nil {
		return ""
	}
	return ref.GUID
}
