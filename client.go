// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"context"
	"encoding/json"
)

// Client is the interface application code uses to talk to the workspace
// master. *Master implements it.
type Client interface {
	// Connect opens the connection. Connection loss afterwards is handled
	// by reconnecting.
	Connect(ctx context.Context) error

	// Request makes a synchronous call.
	Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error)

	// Subscribe starts delivery of the raw events of ch narrowed to id.
	Subscribe(ctx context.Context, ch Channel, id string, fn NotificationHandler) (*Subscription, error)

	// Unsubscribe stops delivery for sub.
	Unsubscribe(ctx context.Context, sub *Subscription) error

	// ClientID returns the id the server assigned to the connection.
	ClientID() string

	// State returns the connection state.
	State() State

	// Close closes the connection and stops reconnecting.
	Close() error
}

var _ Client = (*Master)(nil)
