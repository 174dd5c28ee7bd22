// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// firstRequestID is the id of the first request an Engine sends.
const firstRequestID = 100

// NotificationHandler receives the params of a notification. Handlers run on
// the engine's dispatch goroutine, one notification at a time, so they may
// issue requests on the same engine.
type NotificationHandler func(params json.RawMessage)

// Handler identifies one registration of a NotificationHandler.
type Handler struct {
	method string
	fn     NotificationHandler
}

// Method returns the notification method h is registered for.
func (h *Handler) Method() string { return h.method }

// Engine speaks JSON-RPC 2.0 over a Transport: it correlates responses with
// pending requests by id and dispatches notifications to handlers.
type Engine struct {
	transport Transport
	log       zerolog.Logger
	isolate   bool

	nextID atomic.Int64

	mu       sync.Mutex
	pending  map[string]*Deferred
	handlers map[string][]*Handler

	listener *ListenerHandle

	// Notifications waiting for dispatch, with the handlers registered when
	// they arrived. One goroutine drains the queue while it is non-empty.
	queueMu  sync.Mutex
	queue    []dispatch
	draining bool
	idle     *sync.Cond
}

type dispatch struct {
	msg      *Message
	handlers []*Handler
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the engine logger.
func WithEngineLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// WithHandlerIsolation makes a panicking notification handler affect only
// itself. Without it, a panic stops the remaining handlers of the same
// notification.
func WithHandlerIsolation(isolate bool) EngineOption {
	return func(e *Engine) { e.isolate = isolate }
}

// NewEngine returns an Engine that listens to the response events of t.
func NewEngine(t Transport, opts ...EngineOption) *Engine {
	e := &Engine{
		transport: t,
		log:       zerolog.Nop(),
		pending:   make(map[string]*Deferred),
		handlers:  make(map[string][]*Handler),
	}
	e.idle = sync.NewCond(&e.queueMu)
	e.nextID.Store(firstRequestID)
	for _, opt := range opts {
		opt(e)
	}
	e.listener = t.AddListener(EventResponse, func(info EventInfo) {
		e.process(info.Frame)
	})
	return e
}

// Detach stops the engine from receiving frames from its transport.
func (e *Engine) Detach() {
	e.transport.RemoveListener(EventResponse, e.listener)
}

// Go sends a request and returns the Deferred that its response settles.
func (e *Engine) Go(ctx context.Context, method string, params interface{}) (string, *Deferred, error) {
	id := strconv.FormatInt(e.nextID.Add(1)-1, 10)
	d := NewDeferred()

	e.mu.Lock()
	e.pending[id] = d
	e.mu.Unlock()

	req := Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	}
	if err := e.transport.Send(ctx, req); err != nil {
		e.forget(id)
		return "", nil, fmt.Errorf("send %s: %w", method, err)
	}
	return id, d, nil
}

// Request sends a request and waits for its response. There is no timeout
// other than ctx; if ctx ends first the request is forgotten and a late
// response is treated as a notification.
func (e *Engine) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id, d, err := e.Go(ctx, method, params)
	if err != nil {
		return nil, err
	}
	result, err := d.Wait(ctx)
	if ctx.Err() != nil && !d.Settled() {
		e.forget(id)
	}
	return result, err
}

// Notify sends a notification. Nothing correlates with it.
func (e *Engine) Notify(ctx context.Context, method string, params interface{}) error {
	n := Notification{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
	}
	if err := e.transport.Send(ctx, n); err != nil {
		return fmt.Errorf("notify %s: %w", method, err)
	}
	return nil
}

// AddNotificationHandler appends fn to the handlers of method.
func (e *Engine) AddNotificationHandler(method string, fn NotificationHandler) *Handler {
	h := &Handler{method: method, fn: fn}
	e.mu.Lock()
	e.handlers[method] = append(e.handlers[method], h)
	e.mu.Unlock()
	return h
}

// RemoveNotificationHandler removes h from the handlers of method. Unknown
// methods and handlers are ignored.
func (e *Engine) RemoveNotificationHandler(method string, h *Handler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	hs := e.handlers[method]
	for i, cur := range hs {
		if cur == h {
			hs = append(hs[:i:i], hs[i+1:]...)
			if len(hs) == 0 {
				delete(e.handlers, method)
			} else {
				e.handlers[method] = hs
			}
			return
		}
	}
}

// Pending returns the number of requests awaiting a response.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Abort rejects every pending request with err.
func (e *Engine) Abort(err error) {
	e.mu.Lock()
	pending := e.pending
	e.pending = make(map[string]*Deferred)
	e.mu.Unlock()
	for _, d := range pending {
		d.Reject(err)
	}
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

func (e *Engine) process(frame json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		e.log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	if id, ok := msg.RequestID(); ok {
		e.mu.Lock()
		d, pending := e.pending[id]
		e.mu.Unlock()
		if pending {
			e.processResponse(id, d, &msg)
			return
		}
	}
	e.enqueueNotification(&msg)
}

func (e *Engine) processResponse(id string, d *Deferred, msg *Message) {
	switch {
	case truthy(msg.Result):
		d.Resolve(msg.Result)
	case truthy(msg.Error):
		d.Reject(newResponseError(msg.Error))
	default:
		e.log.Debug().Str("id", id).Msg("response carries neither result nor error")
		return
	}
	e.forget(id)
}

// enqueueNotification snapshots the handlers of msg and queues it. Frames
// keep arriving on the transport while handlers run, so a handler waiting
// for a response does not block its delivery.
func (e *Engine) enqueueNotification(msg *Message) {
	e.mu.Lock()
	hs := append([]*Handler(nil), e.handlers[msg.Method]...)
	e.mu.Unlock()
	if len(hs) == 0 {
		return
	}

	e.queueMu.Lock()
	e.queue = append(e.queue, dispatch{msg: msg, handlers: hs})
	if !e.draining {
		e.draining = true
		go e.drain()
	}
	e.queueMu.Unlock()
}

func (e *Engine) drain() {
	for {
		e.queueMu.Lock()
		if len(e.queue) == 0 {
			e.draining = false
			e.idle.Broadcast()
			e.queueMu.Unlock()
			return
		}
		next := e.queue[0]
		e.queue[0] = dispatch{}
		e.queue = e.queue[1:]
		e.queueMu.Unlock()

		e.processNotification(next.msg, next.handlers)
	}
}

// waitIdle blocks until every queued notification has been dispatched. It
// must not be called from a handler.
func (e *Engine) waitIdle() {
	e.queueMu.Lock()
	for e.draining {
		e.idle.Wait()
	}
	e.queueMu.Unlock()
}

func (e *Engine) processNotification(msg *Message, hs []*Handler) {
	if !e.isolate {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error().Str("method", msg.Method).Interface("panic", r).Msg("notification handler panicked")
			}
		}()
	}
	for _, h := range hs {
		if e.isolate {
			e.invokeIsolated(h, msg.Params)
			continue
		}
		h.fn(msg.Params)
	}
}

func (e *Engine) invokeIsolated(h *Handler, params json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("method", h.method).Interface("panic", r).Msg("notification handler panicked")
		}
	}()
	h.fn(params)
}
