// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	wsclient "github.com/eclipse-che/workspace-client-go"
	"github.com/eclipse-che/workspace-client-go/internal/config"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// logger builds the logger for a command writing diagnostics to w.
func (c *commandContext) logger(w io.Writer) (zerolog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return zerolog.Nop(), err
	}
	level := cfg.Logging.Level
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		level = strings.TrimSpace(*c.logLevelFlag)
	}
	return newLogger(w, level, cfg.Logging.Format)
}

// masterOptions translates the configuration into master options.
func (c *commandContext) masterOptions(log zerolog.Logger) ([]wsclient.Option, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	refresher := cfg.TokenRefresher()
	if refresher == nil {
		return nil, errors.New("no token configured: set server.token, server.token_command or CHE_TOKEN")
	}
	return []wsclient.Option{
		wsclient.WithLogger(log),
		wsclient.WithTokenRefresher(refresher),
		wsclient.WithWebsocketContext(cfg.Server.WebsocketContext),
		wsclient.WithReconnectPolicy(cfg.ReconnectPolicy()),
	}, nil
}

// withMaster dials the configured master, runs fn and closes the master.
func (c *commandContext) withMaster(ctx context.Context, log zerolog.Logger, fn func(*wsclient.Master) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	opts, err := c.masterOptions(log)
	if err != nil {
		return err
	}
	m, err := wsclient.Dial(ctx, cfg.Server.EntryPoint, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Debug().Err(err).Msg("close master")
		}
	}()
	return fn(m)
}
