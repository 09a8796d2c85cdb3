package protocol

import (
	"context"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// RemoteObject is the common surface of every registered wrapper. The
// registry is the single source of truth for which guids are live;
// wrappers hold no owning back-pointers beyond the parent guid.
type RemoteObject interface {
	GUID() string
	TypeName() string

	// handleEvent delivers an event targeted at this object's guid.
	// Called from the connection's dispatch loop; must not block.
	handleEvent(method string, params jsoniter.RawMessage)

	// disposed is invoked when the object is removed from the registry.
	disposed()

	// owner exposes the embedded channel state for in-place
	// initialization by the factory.
	owner() *channelOwner
}

// EventHandler receives the raw params of a subscribed event.
type EventHandler func(params jsoniter.RawMessage)

// channelOwner is the capability shared by all typed wrappers: a guid
// bound to a connection, the creation initializer, and the per-object
// handler lists.
type channelOwner struct {
	conn        *Connection
	guid        string
	typeName    string
	initializer jsoniter.RawMessage

	handlersMu sync.RWMutex
	handlers   map[string][]EventHandler
}

// init binds the channel state. Called exactly once by the factory
// before the wrapper is registered.
func (o *channelOwner) init(conn *Connection, typeName, guid string, initializer jsoniter.RawMessage) {
	o.conn = conn
	o.typeName = typeName
	o.guid = guid
	o.initializer = initializer
}

func (o *channelOwner) owner() *channelOwner { return o }

// GUID returns the object's protocol identifier.
func (o *channelOwner) GUID() string { return o.guid }

// TypeName returns the protocol type name.
func (o *channelOwner) TypeName() string { return o.typeName }

// send performs an RPC against this object's guid.
func (o *channelOwner) send(ctx context.Context, method string, params any) (jsoniter.RawMessage, error) {
	return o.conn.SendMessage(ctx, o.guid, method, params)
}

// On subscribes a handler to an event by name. Handlers run inside the
// connection's dispatch loop and must hand off blocking work.
func (o *channelOwner) On(event string, handler EventHandler) {
	o.handlersMu.Lock()
	defer o.handlersMu.Unlock()
	if o.handlers == nil {
		o.handlers = make(map[string][]EventHandler)
	}
	o.handlers[event] = append(o.handlers[event], handler)
}

// emit fans an event out to subscribed handlers. Handler panics are
// contained so they never kill the dispatch loop.
func (o *channelOwner) emit(event string, params jsoniter.RawMessage) {
	o.handlersMu.RLock()
	handlers := o.handlers[event]
	o.handlersMu.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					o.conn.log.Debug("event handler panicked")
				}
			}()
			handler(params)
		}()
	}
}

// handleEvent is the default event behavior: fan out to subscribers.
// Typed wrappers override this to update cached state first.
func (o *channelOwner) handleEvent(method string, params jsoniter.RawMessage) {
	o.emit(method, params)
}

// disposed is the default disposal hook.
func (o *channelOwner) disposed() {}

// decodeInitializer unmarshals the initializer into dst, ignoring
// malformed payloads: a wrapper with an empty initializer is inert but
// still registered.
func (o *channelOwner) decodeInitializer(dst any) {
	if len(o.initializer) == 0 {
		return
	}
	_ = json.Unmarshal(o.initializer, dst)
}

// UnknownObject is the inert wrapper registered for unrecognized
// protocol types. It participates in parent/child bookkeeping only:
// it accepts no methods and drops events.
type UnknownObject struct {
	channelOwner
}

func (*UnknownObject) handleEvent(string, jsoniter.RawMessage) {}

// registry maps guids to live wrappers and tracks the parent/child
// tree for depth-first disposal.
type registry struct {
	mu       sync.RWMutex
	objects  map[string]RemoteObject
	parents  map[string]string
	children map[string]map[string]struct{}
}

func newRegistry() *registry {
	return &registry{
		objects:  make(map[string]RemoteObject),
		parents:  make(map[string]string),
		children: make(map[string]map[string]struct{}),
	}
}

// get returns the wrapper for guid, or nil.
func (r *registry) get(guid string) RemoteObject {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.objects[guid]
}

// add registers obj under its guid as a child of parent. A guid
// appears at most once between create and dispose; a duplicate create
// is ignored and reported to the caller.
func (r *registry) add(parent string, obj RemoteObject) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	guid := obj.GUID()
	if _, exists := r.objects[guid]; exists {
		return false
	}
	r.objects[guid] = obj
	r.parents[guid] = parent
	set := r.children[parent]
	if set == nil {
		set = make(map[string]struct{})
		r.children[parent] = set
	}
	set[guid] = struct{}{}
	return true
}

// remove deletes guid and, depth-first, all of its descendants,
// invoking each wrapper's disposal hook. Returns the removed wrappers.
func (r *registry) remove(guid string) []RemoteObject {
	r.mu.Lock()
	removed := r.removeLocked(guid)
	r.mu.Unlock()

	for _, obj := range removed {
		obj.disposed()
	}
	return removed
}

func (r *registry) removeLocked(guid string) []RemoteObject {
	var removed []RemoteObject
	for child := range r.children[guid] {
		removed = append(removed, r.removeLocked(child)...)
	}
	delete(r.children, guid)

	if obj, ok := r.objects[guid]; ok {
		removed = append(removed, obj)
		delete(r.objects, guid)
	}
	if parent, ok := r.parents[guid]; ok {
		delete(r.parents, guid)
		if set := r.children[parent]; set != nil {
			delete(set, guid)
		}
	}
	return removed
}

// adopt re-parents child under newParent. Both must be registered.
func (r *registry) adopt(child, newParent string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[child]; !ok {
		return false
	}
	if _, ok := r.objects[newParent]; !ok {
		return false
	}
	if old, ok := r.parents[child]; ok {
		if set := r.children[old]; set != nil {
			delete(set, child)
		}
	}
	r.parents[child] = newParent
	set := r.children[newParent]
	if set == nil {
		set = make(map[string]struct{})
		r.children[newParent] = set
	}
	set[child] = struct{}{}
	return true
}

// newObject is the factory dispatching a protocol type name to the
// matching wrapper. The engine also reports dispatcher variants with
// an Impl suffix; they map to the same wrappers. An unknown name
// yields an inert UnknownObject so its children can still be tracked.
func newObject(conn *Connection, typeName, guid string, initializer jsoniter.RawMessage) RemoteObject {
	var obj RemoteObject
	switch strings.TrimSuffix(typeName, "Impl") {
	case "Root", "Playwright":
		obj = &Playwright{}
	case "BrowserType":
		obj = &BrowserType{}
	case "Browser":
		obj = newBrowser()
	case "BrowserContext":
		obj = &BrowserContext{}
	case "BrowserServer":
		obj = &BrowserServer{}
	case "Page":
		obj = newPage()
	case "Frame":
		obj = &Frame{}
	case "Request":
		obj = &NetworkRequest{}
	case "Response":
		obj = &NetworkResponse{}
	case "Route":
		obj = &Route{}
	case "ElementHandle", "JSHandle":
		obj = &ElementHandle{}
	case "Worker":
		obj = &Worker{}
	case "Download", "Artifact":
		obj = &Download{}
	case "Dialog":
		obj = &Dialog{}
	case "Selectors":
		obj = &Selectors{}
	case "Tracing":
		obj = &Tracing{}
	default:
		obj = &UnknownObject{}
	}

	obj.owner().init(conn, typeName, guid, initializer)
	if frame, ok := obj.(*Frame); ok {
		frame.seed()
	}
	return obj
}
