// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultReadLimit    = 1024 * 1024 // 1MB
	defaultWriteTimeout = 10 * time.Second
)

// WebSocket is a Transport over a websocket connection. Each inbound text or
// binary message is one JSON frame.
type WebSocket struct {
	Listeners

	log          zerolog.Logger
	codec        Codec
	dialOptions  *websocket.DialOptions
	readLimit    int64
	writeTimeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// WebSocketOption configures a WebSocket transport.
type WebSocketOption func(*WebSocket)

// WithDialOptions sets the options passed to websocket.Dial.
func WithDialOptions(opts *websocket.DialOptions) WebSocketOption {
	return func(w *WebSocket) { w.dialOptions = opts }
}

// WithReadLimit sets the maximum size of an inbound message.
func WithReadLimit(n int64) WebSocketOption {
	return func(w *WebSocket) {
		if n > 0 {
			w.readLimit = n
		}
	}
}

// WithWriteTimeout bounds each Send. Zero disables the bound.
func WithWriteTimeout(d time.Duration) WebSocketOption {
	return func(w *WebSocket) { w.writeTimeout = d }
}

func WithWebSocketLogger(log zerolog.Logger) WebSocketOption {
	return func(w *WebSocket) { w.log = log }
}

func WithWebSocketCodec(c Codec) WebSocketOption {
	return func(w *WebSocket) {
		if c != nil {
			w.codec = c
		}
	}
}

// NewWebSocket returns a disconnected websocket transport.
func NewWebSocket(opts ...WebSocketOption) *WebSocket {
	w := &WebSocket{
		log:          zerolog.Nop(),
		codec:        defaultCodec,
		readLimit:    defaultReadLimit,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Connect dials entryPoint. A failed dial emits EventError followed by
// EventClose before the error is returned, the same sequence a browser
// websocket goes through.
func (w *WebSocket) Connect(ctx context.Context, entryPoint string) error {
	conn, resp, err := websocket.Dial(ctx, entryPoint, w.dialOptions)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status: %s)", err, resp.Status)
		}
		err = fmt.Errorf("websocket dial %s: %w", redactURL(entryPoint), err)
		w.Emit(EventInfo{Event: EventError, Err: err})
		w.Emit(EventInfo{Event: EventClose, Err: err})
		return err
	}
	conn.SetReadLimit(w.readLimit)

	w.mu.Lock()
	old := w.conn
	w.conn = conn
	w.mu.Unlock()
	if old != nil {
		// The replaced connection's read loop sees it is no longer current
		// and exits without emitting close.
		_ = old.CloseNow()
	}

	w.log.Debug().Str("url", redactURL(entryPoint)).Msg("websocket connection opened")
	w.Emit(EventInfo{Event: EventOpen})
	go w.readLoop(conn)
	return nil
}

// Disconnect closes the connection with a normal closure. Listeners still
// receive EventClose.
func (w *WebSocket) Disconnect() error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, "")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("websocket close: %w", err)
	}
	return nil
}

// Send encodes v and writes it as a single text message.
func (w *WebSocket) Send(ctx context.Context, v interface{}) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := w.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	if w.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.writeTimeout)
		defer cancel()
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Connected reports whether a connection is currently open.
func (w *WebSocket) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}

func (w *WebSocket) readLoop(conn *websocket.Conn) {
	ctx := context.Background()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			w.mu.Lock()
			current := w.conn == conn
			if current {
				w.conn = nil
			}
			w.mu.Unlock()
			if !current {
				return
			}

			var cause error
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				cause = err
				w.log.Warn().Err(err).Int("status", int(status)).Msg("websocket read failed")
			}
			w.Emit(EventInfo{Event: EventClose, Err: cause})
			return
		}

		if !json.Valid(data) {
			w.log.Warn().Int("size", len(data)).Msg("dropping websocket frame that is not valid JSON")
			continue
		}
		w.Emit(EventInfo{Event: EventResponse, Frame: json.RawMessage(data)})
	}
}

// redactURL strips the query, which carries the access token.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
