// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClientSubscribe(t *testing.T) {
	ft := newFakeTransport()
	c := NewAPIClient(ft)
	ctx := context.Background()

	var got []string
	params := map[string]string{"k": "v"}
	h, err := c.Subscribe(ctx, "subscribe", "event/x", func(p json.RawMessage) { got = append(got, string(p)) }, params)
	require.NoError(t, err)

	ft.deliver(`{"jsonrpc":"2.0","method":"event/x","params":1}`)
	require.NoError(t, c.Unsubscribe(ctx, "unSubscribe", "event/x", h, params))
	ft.deliver(`{"jsonrpc":"2.0","method":"event/x","params":2}`)
	c.Engine().waitIdle()

	assert.Equal(t, []string{"1"}, got)
	assert.Equal(t, []string{
		`{"jsonrpc":"2.0","method":"subscribe","params":{"k":"v"}}`,
		`{"jsonrpc":"2.0","method":"unSubscribe","params":{"k":"v"}}`,
	}, ft.sentFrames())
}

func TestAPIClientSubscribeKeepsHandlerOnSendError(t *testing.T) {
	ft := newFakeTransport()
	ft.sendErr = ErrNotConnected
	c := NewAPIClient(ft)

	calls := 0
	h, err := c.Subscribe(context.Background(), "subscribe", "event/x", func(json.RawMessage) { calls++ }, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
	require.NotNil(t, h)

	ft.deliver(`{"jsonrpc":"2.0","method":"event/x"}`)
	c.Engine().waitIdle()
	assert.Equal(t, 1, calls)
}

func TestAPIClientConnectAndRequest(t *testing.T) {
	ft := newFakeTransport()
	ft.setResult("ping", `"pong"`)
	c := NewAPIClient(ft)

	require.NoError(t, c.Connect(context.Background(), "ws://master"))
	assert.Equal(t, []string{"ws://master"}, ft.connectURLs())

	r, err := c.Request(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, `"pong"`, string(r))
	assert.NotNil(t, c.Engine())
}
