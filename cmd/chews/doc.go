// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command chews talks to a workspace master from the command line.
//
//	chews watch --workspace W1 --output    # stream workspace events as JSON lines
//	chews call websocketIdService/getId    # one JSON-RPC request
//	chews config init                      # write a sample configuration
package main
