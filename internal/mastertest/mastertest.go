// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mastertest runs an in-process workspace master for tests. It
// accepts websocket connections on the websocket context, answers client id
// requests, records subscriptions and pushes events to connected clients.
package mastertest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/hashicorp/go-multierror"
)

// WebsocketContext is the path the server accepts websockets on.
const WebsocketContext = "/api/websocket"

// Call is a notification received from a client.
type Call struct {
	Method   string
	ClientID string
	Params   json.RawMessage
}

// Option configures a Server.
type Option func(*Server)

// WithMethod serves an extra method on every connection.
func WithMethod(name string, h jrpc2.Handler) Option {
	return func(s *Server) { s.extra[name] = h }
}

// WithToken makes the server refuse connections whose token differs.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// Server is a fake workspace master.
type Server struct {
	// URL is the entry point clients connect to.
	URL string

	t      testing.TB
	hs     *httptest.Server
	token  string
	extra  handler.Map
	closed bool

	mu       sync.Mutex
	conns    map[*conn]struct{}
	connects []url.Values
	calls    []Call
	reject   int
	nextID   int
}

type conn struct {
	ws       *websocket.Conn
	srv      *jrpc2.Server
	clientID string
}

// New starts a server that is closed when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		t:     t,
		extra: make(handler.Map),
		conns: make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(WebsocketContext, s.serveWebsocket)
	s.hs = httptest.NewServer(mux)
	s.URL = s.hs.URL
	t.Cleanup(s.Close)
	return s
}

// Close drops every connection and stops the server.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.DropAll()
	s.hs.Close()
}

// RejectNext makes the next n websocket upgrades fail with 503.
func (s *Server) RejectNext(n int) {
	s.mu.Lock()
	s.reject = n
	s.mu.Unlock()
}

// DropAll closes every open connection without a close handshake.
func (s *Server) DropAll() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.CloseNow()
	}
}

// Connects returns the query of every accepted or rejected upgrade request.
func (s *Server) Connects() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.connects...)
}

// Calls returns the notifications received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// OpenConns returns the number of open connections.
func (s *Server) OpenConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Notify pushes a notification to every open connection.
func (s *Server) Notify(ctx context.Context, method string, params interface{}) error {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var result *multierror.Error
	for _, c := range conns {
		if err := c.srv.Notify(ctx, method, params); err != nil {
			result = multierror.Append(result, fmt.Errorf("notify %s: %w", c.clientID, err))
		}
	}
	return result.ErrorOrNil()
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	s.mu.Lock()
	s.connects = append(s.connects, q)
	if s.reject > 0 {
		s.reject--
		s.mu.Unlock()
		http.Error(w, "master unavailable", http.StatusServiceUnavailable)
		return
	}
	id := q.Get("clientId")
	if id == "" {
		s.nextID++
		id = fmt.Sprintf("client-%d", s.nextID)
	}
	s.mu.Unlock()

	if s.token != "" && q.Get("token") != s.token {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.t.Logf("mastertest: accept: %v", err)
		return
	}
	c := &conn{ws: ws, clientID: id}
	c.srv = jrpc2.NewServer(s.methods(c), &jrpc2.ServerOptions{AllowPush: true})

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	c.srv.Start(wsChannel{ctx: r.Context(), ws: ws})
	_ = c.srv.Wait()
}

func (s *Server) methods(c *conn) handler.Map {
	m := handler.Map{
		"websocketIdService/getId": func(context.Context, *jrpc2.Request) (any, error) {
			return []string{c.clientID}, nil
		},
		"subscribe":   s.record(c, "subscribe"),
		"unSubscribe": s.record(c, "unSubscribe"),
	}
	for name, h := range s.extra {
		m[name] = h
	}
	return m
}

func (s *Server) record(c *conn, method string) jrpc2.Handler {
	return func(_ context.Context, req *jrpc2.Request) (any, error) {
		var params json.RawMessage
		if err := req.UnmarshalParams(&params); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: method, ClientID: c.clientID, Params: params})
		s.mu.Unlock()
		return nil, nil
	}
}

// wsChannel carries one JSON-RPC message per websocket text message.
type wsChannel struct {
	ctx context.Context
	ws  *websocket.Conn
}

func (c wsChannel) Send(msg []byte) error {
	return c.ws.Write(c.ctx, websocket.MessageText, msg)
}

func (c wsChannel) Recv() ([]byte, error) {
	_, msg, err := c.ws.Read(c.ctx)
	return msg, err
}

func (c wsChannel) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}
