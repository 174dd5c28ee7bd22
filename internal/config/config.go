// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	wsclient "github.com/eclipse-che/workspace-client-go"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the workspace master connection settings.
type Server struct {
	EntryPoint       string `toml:"entrypoint"`
	WebsocketContext string `toml:"websocket_context"`
	Token            string `toml:"token"`
	// TokenCommand is run through the shell before every connection attempt;
	// its trimmed standard output is the token. It takes precedence over
	// Token.
	TokenCommand string `toml:"token_command"`
}

// Reconnect contains the reconnection policy.
type Reconnect struct {
	MaxAttempts      int    `toml:"max_attempts"`
	FailingThreshold int    `toml:"failing_threshold"`
	FastRetryLimit   int    `toml:"fast_retry_limit"`
	FastDelay        string `toml:"fast_delay"`
	SlowDelay        string `toml:"slow_delay"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for chews.
type Config struct {
	Server    Server    `toml:"server"`
	Reconnect Reconnect `toml:"reconnect"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/chews/config.toml")
}

// Load locates, parses, and validates a configuration file. It also reports
// the resolved path and whether a file existed there; defaults are used when
// it did not.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return "", false, err
		}
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// CreateSample writes the sample configuration to path.
func CreateSample(path string) error {
	return os.WriteFile(path, []byte(sampleConfig), 0o600)
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// ReconnectPolicy converts the reconnect section. The durations have been
// checked by Validate.
func (c *Config) ReconnectPolicy() wsclient.ReconnectPolicy {
	fast, _ := time.ParseDuration(c.Reconnect.FastDelay)
	slow, _ := time.ParseDuration(c.Reconnect.SlowDelay)
	return wsclient.ReconnectPolicy{
		MaxAttempts:      c.Reconnect.MaxAttempts,
		FailingThreshold: c.Reconnect.FailingThreshold,
		FastRetryLimit:   c.Reconnect.FastRetryLimit,
		FastDelay:        fast,
		SlowDelay:        slow,
	}
}

// TokenRefresher returns the token source described by the server section,
// or nil when neither a token nor a token command is set.
func (c *Config) TokenRefresher() wsclient.TokenRefresher {
	if command := c.Server.TokenCommand; command != "" {
		return func(ctx context.Context) (string, error) {
			var stderr bytes.Buffer
			cmd := exec.CommandContext(ctx, "sh", "-c", command)
			cmd.Stderr = &stderr
			out, err := cmd.Output()
			if err != nil {
				return "", fmt.Errorf("token command: %w: %s", err, strings.TrimSpace(stderr.String()))
			}
			token := strings.TrimSpace(string(out))
			if token == "" {
				return "", errors.New("token command printed nothing")
			}
			return token, nil
		}
	}
	if c.Server.Token != "" {
		return wsclient.StaticToken(c.Server.Token)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
