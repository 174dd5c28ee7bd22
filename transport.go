// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Event is a lifecycle event of a Transport.
type Event uint8

const (
	EventOpen Event = iota + 1
	EventClose
	EventError
	EventResponse
)

func (e Event) String() string {
	switch e {
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	case EventResponse:
		return "response"
	default:
		return fmt.Sprintf("event(%d)", uint8(e))
	}
}

// EventInfo is passed to listeners. Frame is set for EventResponse, Err for
// EventError and, when the connection ended abnormally, for EventClose.
type EventInfo struct {
	Event Event
	Frame json.RawMessage
	Err   error
}

// Listener observes transport events.
type Listener func(EventInfo)

// ListenerHandle identifies one registration of a Listener.
type ListenerHandle struct {
	fn Listener
}

// Transport is a bidirectional, message framed connection.
type Transport interface {
	// Connect opens a connection to entryPoint. It returns once the
	// connection is open or has failed.
	Connect(ctx context.Context, entryPoint string) error

	// Disconnect closes the current connection, if any.
	Disconnect() error

	// Send writes one envelope.
	Send(ctx context.Context, v interface{}) error

	AddListener(event Event, fn Listener) *ListenerHandle
	RemoveListener(event Event, h *ListenerHandle)
}

// Listeners is a registry of event listeners that Transport implementations
// can embed. The zero value is ready to use.
type Listeners struct {
	mu      sync.RWMutex
	byEvent map[Event][]*ListenerHandle
}

func (l *Listeners) AddListener(event Event, fn Listener) *ListenerHandle {
	h := &ListenerHandle{fn: fn}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byEvent == nil {
		l.byEvent = make(map[Event][]*ListenerHandle)
	}
	l.byEvent[event] = append(l.byEvent[event], h)
	return h
}

func (l *Listeners) RemoveListener(event Event, h *ListenerHandle) {
	if h == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	hs := l.byEvent[event]
	for i, cur := range hs {
		if cur == h {
			l.byEvent[event] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// Emit calls the listeners registered for info.Event in registration order.
func (l *Listeners) Emit(info EventInfo) {
	l.mu.RLock()
	hs := append([]*ListenerHandle(nil), l.byEvent[info.Event]...)
	l.mu.RUnlock()
	for _, h := range hs {
		h.fn(info)
	}
}

// Transport types
const (
	TransportWebSocket = "websocket"
)

// DefaultTransport is the transport used when none is named.
const DefaultTransport = TransportWebSocket

// TransportConfig carries the settings shared by every transport factory.
type TransportConfig struct {
	Logger zerolog.Logger
	Codec  Codec
}

// TransportFactory builds a Transport.
type TransportFactory func(cfg TransportConfig) Transport

var (
	transportsMu sync.RWMutex
	transports   = map[string]TransportFactory{
		TransportWebSocket: func(cfg TransportConfig) Transport {
			return NewWebSocket(WithWebSocketLogger(cfg.Logger), WithWebSocketCodec(cfg.Codec))
		},
	}
)

// RegisterTransport makes a transport available under name, replacing any
// previous registration.
func RegisterTransport(name string, f TransportFactory) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = f
}

// NewTransport builds the transport registered under name.
func NewTransport(name string, cfg TransportConfig) (Transport, error) {
	if name == "" {
		name = DefaultTransport
	}
	transportsMu.RLock()
	f, ok := transports[name]
	transportsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, name)
	}
	if cfg.Codec == nil {
		cfg.Codec = defaultCodec
	}
	return f(cfg), nil
}

// AvailableTransports returns the sorted names of registered transports.
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// HasTransport checks if a transport is available
func HasTransport(name string) bool {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	_, ok := transports[name]
	return ok
}
