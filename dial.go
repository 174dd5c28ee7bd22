// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"context"
	"fmt"
)

// New builds a Master on the transport selected with WithTransport (the
// websocket transport by default). It does not connect.
func New(entryPoint string, opts ...Option) (*Master, error) {
	o := newOptions(opts)
	t, err := NewTransport(o.transport, TransportConfig{
		Logger: o.logger,
		Codec:  o.codec,
	})
	if err != nil {
		return nil, err
	}
	return NewMaster(t, entryPoint, opts...), nil
}

// Dial builds a Master and connects it. If the first connection fails the
// master is closed and the error returned; later connection losses are
// retried.
func Dial(ctx context.Context, entryPoint string, opts ...Option) (*Master, error) {
	m, err := New(entryPoint, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Connect(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("connect %s: %w", redactURL(entryPoint), err)
	}
	return m, nil
}
