// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wsclient "github.com/eclipse-che/workspace-client-go"
	"github.com/eclipse-che/workspace-client-go/internal/mastertest"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

func dial(t *testing.T, srv *mastertest.Server, opts ...wsclient.Option) *wsclient.Master {
	t.Helper()
	opts = append([]wsclient.Option{wsclient.WithTokenRefresher(wsclient.StaticToken("secret"))}, opts...)
	m, err := wsclient.Dial(context.Background(), srv.URL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestDialAndRequest(t *testing.T) {
	srv := mastertest.New(t,
		mastertest.WithToken("secret"),
		mastertest.WithMethod("foo", func(context.Context, *jrpc2.Request) (any, error) {
			return []int{42}, nil
		}),
	)
	m := dial(t, srv)

	assert.Equal(t, "client-1", m.ClientID())
	assert.Equal(t, wsclient.StateConnected, m.State())

	result, err := m.Request(context.Background(), "foo", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[42]`, string(result))

	connects := srv.Connects()
	require.Len(t, connects, 1)
	assert.Equal(t, "secret", connects[0].Get("token"))
	assert.Empty(t, connects[0].Get("clientId"))
}

func TestRequestErrorResponse(t *testing.T) {
	srv := mastertest.New(t, mastertest.WithMethod("fail", func(context.Context, *jrpc2.Request) (any, error) {
		return nil, jrpc2.Errorf(jrpc2.Code(-32000), "workspace %s not found", "W9")
	}))
	m := dial(t, srv)

	_, err := m.Request(context.Background(), "fail", nil)
	var re *wsclient.ResponseError
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.Equal(t, jrpc2.Code(-32000), re.ErrorCode())
	assert.Equal(t, "workspace W9 not found", re.Message)
}

func TestDialRejectedToken(t *testing.T) {
	srv := mastertest.New(t, mastertest.WithToken("other"))
	_, err := wsclient.Dial(context.Background(), srv.URL,
		wsclient.WithTokenRefresher(wsclient.StaticToken("secret")))
	require.Error(t, err)
}

func TestWorkspaceStatusEvents(t *testing.T) {
	srv := mastertest.New(t)
	m := dial(t, srv)
	ctx := context.Background()

	events := make(chan wsclient.WorkspaceStatusEvent, 4)
	sub, err := m.SubscribeWorkspaceStatus(ctx, "W1", func(ev wsclient.WorkspaceStatusEvent) {
		events <- ev
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(srv.Calls()) == 1 }, waitFor, tick)
	call := srv.Calls()[0]
	assert.Equal(t, "subscribe", call.Method)
	assert.Equal(t, "client-1", call.ClientID)
	assert.JSONEq(t, `{"method":"workspace/statusChanged","scope":{"workspaceId":"W1"}}`, string(call.Params))

	require.NoError(t, srv.Notify(ctx, "workspace/statusChanged", map[string]string{"workspaceId": "W2", "status": "RUNNING"}))
	require.NoError(t, srv.Notify(ctx, "workspace/statusChanged", map[string]string{"workspaceId": "W1", "status": "STOPPED"}))

	select {
	case ev := <-events:
		assert.Equal(t, "W1", ev.WorkspaceID)
		assert.Equal(t, "STOPPED", ev.Status)
	case <-time.After(waitFor):
		t.Fatal("no workspace status event")
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}

	require.NoError(t, m.UnsubscribeWorkspaceStatus(ctx, sub))
	require.Eventually(t, func() bool { return len(srv.Calls()) == 2 }, waitFor, tick)
	assert.Equal(t, "unSubscribe", srv.Calls()[1].Method)
}

func TestSubscriberRequestsOverSameConnection(t *testing.T) {
	srv := mastertest.New(t, mastertest.WithMethod("foo", func(context.Context, *jrpc2.Request) (any, error) {
		return []int{42}, nil
	}))
	m := dial(t, srv)
	ctx := context.Background()

	results := make(chan string, 1)
	_, err := m.SubscribeWorkspaceStatus(ctx, "W1", func(wsclient.WorkspaceStatusEvent) {
		reqCtx, cancel := context.WithTimeout(ctx, waitFor)
		defer cancel()
		r, err := m.Request(reqCtx, "foo", nil)
		if err != nil {
			results <- err.Error()
			return
		}
		results <- string(r)
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(srv.Calls()) == 1 }, waitFor, tick)

	require.NoError(t, srv.Notify(ctx, "workspace/statusChanged", map[string]string{"workspaceId": "W1", "status": "RUNNING"}))

	select {
	case r := <-results:
		assert.JSONEq(t, `[42]`, r)
	case <-time.After(waitFor):
		t.Fatal("subscriber request did not complete")
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	srv := mastertest.New(t)
	m := dial(t, srv)

	got := make(chan json.RawMessage, 1)
	_, err := m.Subscribe(context.Background(), wsclient.ChannelEnvironmentOutput, "W1", func(p json.RawMessage) {
		got <- p
	})
	require.NoError(t, err)

	srv.DropAll()

	require.Eventually(t, func() bool {
		return len(srv.Connects()) == 2 && srv.OpenConns() == 1 && m.State() == wsclient.StateConnected
	}, waitFor, tick)
	assert.Equal(t, "client-1", srv.Connects()[1].Get("clientId"))

	// The handler registered before the drop still receives events.
	require.NoError(t, srv.Notify(context.Background(), "runtime/log", map[string]string{"text": "back"}))
	select {
	case p := <-got:
		assert.JSONEq(t, `{"text":"back"}`, string(p))
	case <-time.After(waitFor):
		t.Fatal("no event after reconnect")
	}
}

func TestFailingEndpointReported(t *testing.T) {
	srv := mastertest.New(t)

	var mu sync.Mutex
	var statuses [][]string
	m := dial(t, srv, wsclient.WithReconnectPolicy(wsclient.ReconnectPolicy{
		MaxAttempts: 1000,
		FastDelay:   5 * time.Millisecond,
		SlowDelay:   5 * time.Millisecond,
	}))
	m.OnDidWebSocketStatusChange(func(failing []string) {
		mu.Lock()
		statuses = append(statuses, failing)
		mu.Unlock()
	})
	snapshot := func() [][]string {
		mu.Lock()
		defer mu.Unlock()
		return append([][]string(nil), statuses...)
	}

	srv.RejectNext(1000)
	srv.DropAll()

	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{srv.URL}, snapshot()[0])

	srv.RejectNext(0)
	require.Eventually(t, func() bool {
		return len(snapshot()) == 2 && m.State() == wsclient.StateConnected
	}, waitFor, tick)
	assert.Empty(t, snapshot()[1])
}

func TestCloseStopsReconnecting(t *testing.T) {
	srv := mastertest.New(t)
	m := dial(t, srv)

	require.NoError(t, m.Close())
	assert.Equal(t, wsclient.StateClosed, m.State())

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, srv.Connects(), 1)

	_, err := m.Request(context.Background(), "foo", nil)
	assert.Error(t, err)
}

func TestConnectWithoutToken(t *testing.T) {
	srv := mastertest.New(t)
	m, err := wsclient.New(srv.URL)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))
	assert.Empty(t, srv.Connects())
	assert.Equal(t, wsclient.StateDisconnected, m.State())
}

func TestNewUnknownTransport(t *testing.T) {
	_, err := wsclient.New("http://localhost", wsclient.WithTransport("nope"))
	assert.ErrorIs(t, err, wsclient.ErrUnknownTransport)
}
