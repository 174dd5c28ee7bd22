// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"strings"
)

func (c *Config) normalize() {
	c.normalizeServer()
	c.normalizeLogging()
}

func (c *Config) normalizeServer() {
	if v, ok := os.LookupEnv("CHE_ENTRYPOINT"); ok && strings.TrimSpace(v) != "" {
		c.Server.EntryPoint = v
	}
	if v, ok := os.LookupEnv("CHE_TOKEN"); ok && strings.TrimSpace(v) != "" {
		c.Server.Token = v
	}
	c.Server.EntryPoint = strings.TrimRight(strings.TrimSpace(c.Server.EntryPoint), "/")
	c.Server.Token = strings.TrimSpace(c.Server.Token)
	c.Server.TokenCommand = strings.TrimSpace(c.Server.TokenCommand)
	if strings.TrimSpace(c.Server.WebsocketContext) == "" {
		c.Server.WebsocketContext = Default().Server.WebsocketContext
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "auto"
	}
}
