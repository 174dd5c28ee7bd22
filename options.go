// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"context"

	"github.com/rs/zerolog"
)

// DefaultWebsocketContext is the path of the websocket endpoint below the
// entry point.
const DefaultWebsocketContext = "/api/websocket"

// TokenRefresher returns a fresh access token. It is called before every
// connection attempt.
type TokenRefresher func(ctx context.Context) (string, error)

// StaticToken returns a TokenRefresher that always yields token.
func StaticToken(token string) TokenRefresher {
	return func(context.Context) (string, error) { return token, nil }
}

// Option configures a Master.
type Option func(*options)

type options struct {
	logger           zerolog.Logger
	tokenRefresher   TokenRefresher
	websocketContext string
	policy           ReconnectPolicy
	scheduler        Scheduler
	isolate          bool
	transport        string
	codec            Codec
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:           zerolog.Nop(),
		websocketContext: DefaultWebsocketContext,
		policy:           DefaultReconnectPolicy(),
		scheduler:        realScheduler,
		transport:        DefaultTransport,
		codec:            defaultCodec,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.policy = o.policy.withDefaults()
	return o
}

// WithLogger sets the logger of the master and of the components it builds.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithTokenRefresher sets the source of access tokens. Without one, Connect
// does nothing.
func WithTokenRefresher(f TokenRefresher) Option {
	return func(o *options) { o.tokenRefresher = f }
}

// WithWebsocketContext overrides the websocket path appended to the entry
// point.
func WithWebsocketContext(path string) Option {
	return func(o *options) { o.websocketContext = path }
}

// WithReconnectPolicy sets the reconnection policy. Unset fields keep their
// defaults.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithScheduler sets the scheduler of reconnection attempts.
func WithScheduler(s Scheduler) Option {
	return func(o *options) {
		if s != nil {
			o.scheduler = s
		}
	}
}

// WithIsolatedHandlers keeps a panicking subscriber from affecting the
// other subscribers of the same channel.
func WithIsolatedHandlers() Option {
	return func(o *options) { o.isolate = true }
}

// WithTransport selects a registered transport by name. It is used by New.
func WithTransport(name string) Option {
	return func(o *options) { o.transport = name }
}

// WithCodec sets the codec of the transport built by New.
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}
