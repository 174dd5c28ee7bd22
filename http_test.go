// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type EchoArgs struct {
	Text string `json:"text"`
}

type EchoReply struct {
	Text string `json:"text"`
}

type EchoService struct{}

func (*EchoService) Echo(_ *http.Request, args *EchoArgs, reply *EchoReply) error {
	reply.Text = args.Text
	return nil
}

func (*EchoService) Fail(_ *http.Request, args *EchoArgs, _ *EchoReply) error {
	return &json2.Error{Code: json2.E_BAD_PARAMS, Message: "bad text", Data: args.Text}
}

func newEchoServer(t *testing.T) *rpc.Server {
	t.Helper()
	s := rpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	require.NoError(t, s.RegisterService(new(EchoService), ""))
	return s
}

func TestCallHTTP(t *testing.T) {
	var (
		mu     sync.Mutex
		header http.Header
		query  string
	)
	rpcServer := newEchoServer(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		header = r.Header.Clone()
		query = r.URL.RawQuery
		mu.Unlock()
		rpcServer.ServeHTTP(w, r)
	}))
	defer srv.Close()

	var reply EchoReply
	err := CallHTTP(context.Background(), srv.URL+"?a=1", "EchoService.Echo", &EchoArgs{Text: "hello"}, &reply,
		WithBearerToken("secret"),
		WithHeader("X-Trace", "t1"),
		WithQueryParam("b", "2"),
	)
	require.NoError(t, err)
	assert.Equal(t, "hello", reply.Text)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer secret", header.Get("Authorization"))
	assert.Equal(t, "t1", header.Get("X-Trace"))
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "a=1&b=2", query)
}

func TestCallHTTPErrorObject(t *testing.T) {
	srv := httptest.NewServer(newEchoServer(t))
	defer srv.Close()

	var reply EchoReply
	err := CallHTTP(context.Background(), srv.URL, "EchoService.Fail", &EchoArgs{Text: "x"}, &reply)

	var re *ResponseError
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.Equal(t, jrpc2.Code(json2.E_BAD_PARAMS), re.ErrorCode())
	assert.Equal(t, "bad text", re.Message)
	assert.JSONEq(t, `"x"`, string(re.Data))
}

func TestCallHTTPErrorStatus(t *testing.T) {
	t.Run("plain body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		err := CallHTTP(context.Background(), srv.URL, "m", nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "received status code: 500")
	})

	t.Run("error object", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"no such method"}}`))
		}))
		defer srv.Close()

		err := CallHTTP(context.Background(), srv.URL, "m", nil, nil)
		var re *ResponseError
		require.True(t, errors.As(err, &re), "got %v", err)
		assert.Equal(t, jrpc2.MethodNotFound, re.ErrorCode())
	})
}

func TestCallHTTPRetriesDroppedConnection(t *testing.T) {
	var calls atomic.Int32
	rpcServer := newEchoServer(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		rpcServer.ServeHTTP(w, r)
	}))
	defer srv.Close()

	var reply EchoReply
	err := CallHTTP(context.Background(), srv.URL, "EchoService.Echo", &EchoArgs{Text: "again"}, &reply,
		WithRetry(3, time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "again", reply.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCallHTTPGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}))
	defer srv.Close()

	err := CallHTTP(context.Background(), srv.URL, "m", nil, nil, WithRetry(2, time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, int32(2), calls.Load())
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.True(t, isRetryableError(errors.New("read: connection reset by peer")))
	assert.True(t, isRetryableError(errors.New("unexpected EOF")))
	assert.False(t, isRetryableError(errors.New("no such host")))
}
