// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads, normalizes, and validates chews configuration.
//
// It reads a TOML file, fills repository defaults, and honours the
// CHE_ENTRYPOINT and CHE_TOKEN environment variables. Durations are written
// as Go duration strings ("1s", "30s").
package config
