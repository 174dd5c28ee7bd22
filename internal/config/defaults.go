// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import wsclient "github.com/eclipse-che/workspace-client-go"

// Default returns the configuration used when no file is present.
func Default() Config {
	p := wsclient.DefaultReconnectPolicy()
	return Config{
		Server: Server{
			EntryPoint:       "http://localhost:8080",
			WebsocketContext: wsclient.DefaultWebsocketContext,
		},
		Reconnect: Reconnect{
			MaxAttempts:      p.MaxAttempts,
			FailingThreshold: p.FailingThreshold,
			FastRetryLimit:   p.FastRetryLimit,
			FastDelay:        p.FastDelay.String(),
			SlowDelay:        p.SlowDelay.String(),
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
	}
}
