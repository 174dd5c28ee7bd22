// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Validate ensures the configuration is usable. Every problem found is
// reported.
func (c *Config) Validate() error {
	var result *multierror.Error
	result = multierror.Append(result, c.validateServer()...)
	result = multierror.Append(result, c.validateReconnect()...)
	result = multierror.Append(result, c.validateLogging()...)
	return result.ErrorOrNil()
}

func (c *Config) validateServer() []error {
	var errs []error
	u, err := url.Parse(c.Server.EntryPoint)
	switch {
	case c.Server.EntryPoint == "":
		errs = append(errs, errors.New("server.entrypoint must be set (or export CHE_ENTRYPOINT)"))
	case err != nil:
		errs = append(errs, fmt.Errorf("server.entrypoint: %w", err))
	case u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Errorf("server.entrypoint: unsupported scheme %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, errors.New("server.entrypoint: missing host"))
	}
	if !strings.HasPrefix(c.Server.WebsocketContext, "/") {
		errs = append(errs, errors.New("server.websocket_context must start with /"))
	}
	return errs
}

func (c *Config) validateReconnect() []error {
	var errs []error
	r := c.Reconnect
	if r.MaxAttempts <= 0 {
		errs = append(errs, errors.New("reconnect.max_attempts must be positive"))
	}
	if r.FailingThreshold <= 0 {
		errs = append(errs, errors.New("reconnect.failing_threshold must be positive"))
	} else if r.MaxAttempts > 0 && r.FailingThreshold > r.MaxAttempts {
		errs = append(errs, errors.New("reconnect.failing_threshold must not exceed reconnect.max_attempts"))
	}
	if r.FastRetryLimit <= 0 {
		errs = append(errs, errors.New("reconnect.fast_retry_limit must be positive"))
	}
	delays := []struct {
		name  string
		value string
	}{
		{"fast_delay", r.FastDelay},
		{"slow_delay", r.SlowDelay},
	}
	for _, delay := range delays {
		d, err := time.ParseDuration(delay.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconnect.%s: %w", delay.name, err))
		} else if d < 0 {
			errs = append(errs, fmt.Errorf("reconnect.%s must not be negative", delay.name))
		}
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be auto, console or json, got %q", c.Logging.Format))
	}
	return errs
}
