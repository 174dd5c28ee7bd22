// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wsclient is a client of the workspace master: a JSON-RPC 2.0
// channel over a persistent websocket that carries requests, subscriptions
// and server pushed events.
//
// # Usage
//
//	m, err := wsclient.Dial(ctx, "https://che.example.com",
//	    wsclient.WithTokenRefresher(wsclient.StaticToken(token)),
//	    wsclient.WithLogger(log),
//	)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	sub, err := m.SubscribeWorkspaceStatus(ctx, workspaceID, func(ev wsclient.WorkspaceStatusEvent) {
//	    fmt.Println(ev.PrevStatus, "->", ev.Status)
//	})
//	...
//	err = m.UnsubscribeWorkspaceStatus(ctx, sub)
//
// A closed websocket is reopened in the background: the first attempt is
// immediate, the following nine wait a second each and later ones wait 30
// seconds, up to 30 attempts. After five failed attempts the entry point is
// reported as failing to the OnDidWebSocketStatusChange observers until a
// connection opens again. Subscriptions survive reconnection.
//
// Subscription callbacks run one at a time, in arrival order, on a dispatch
// goroutine separate from the connection's reader, so a callback may call
// Request on the same Master.
//
// # Architecture
//
// The package separates concerns:
//
//   - deferred.go: one-shot result a response settles
//   - transport.go: Transport interface, listener registry and named factories
//   - websocket.go: websocket Transport
//   - codec.go, errors.go: envelopes and response errors
//   - jsonrpc.go: Engine correlating responses and dispatching notifications
//   - api_client.go: subscriptions as handler plus notification
//   - master.go, channels.go, reconnect.go: workspace master channels and
//     the reconnection controller
//   - client.go, dial.go: Client interface and New/Dial factories
//   - http.go: one-shot JSON-RPC calls over HTTP
//
// Application code should depend on the Client interface or *Master; the
// Engine is exposed for callers that speak other JSON-RPC methods over the
// same connection.
package wsclient
