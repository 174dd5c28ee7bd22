// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"context"
	"encoding/json"
)

// APIClient maps subscriptions onto the engine: a subscription is a local
// notification handler plus a notification telling the server to start (or
// stop) sending events.
type APIClient struct {
	transport Transport
	engine    *Engine
}

// NewAPIClient builds the engine on top of t.
func NewAPIClient(t Transport, opts ...EngineOption) *APIClient {
	return &APIClient{
		transport: t,
		engine:    NewEngine(t, opts...),
	}
}

// Engine returns the underlying engine.
func (c *APIClient) Engine() *Engine { return c.engine }

// Subscribe registers fn for notification and sends event with params.
// The handler stays registered even if the notification cannot be sent, so
// that it starts receiving once the server is told again.
func (c *APIClient) Subscribe(ctx context.Context, event, notification string, fn NotificationHandler, params interface{}) (*Handler, error) {
	h := c.engine.AddNotificationHandler(notification, fn)
	return h, c.engine.Notify(ctx, event, params)
}

// Unsubscribe removes h from notification and sends event with params.
func (c *APIClient) Unsubscribe(ctx context.Context, event, notification string, h *Handler, params interface{}) error {
	c.engine.RemoveNotificationHandler(notification, h)
	return c.engine.Notify(ctx, event, params)
}

// Connect opens the transport to entryPoint.
func (c *APIClient) Connect(ctx context.Context, entryPoint string) error {
	return c.transport.Connect(ctx, entryPoint)
}

// Request performs a request through the engine.
func (c *APIClient) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return c.engine.Request(ctx, method, params)
}
