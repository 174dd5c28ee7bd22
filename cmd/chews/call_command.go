// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	wsclient "github.com/eclipse-che/workspace-client-go"
)

const defaultHTTPPath = "/api/jsonrpc"

func newCallCommand(ctx *commandContext) *cobra.Command {
	var overHTTP bool
	var httpPath string

	cmd := &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Send one JSON-RPC request and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := args[0]
			var params interface{}
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return errors.New("params must be valid JSON")
				}
				params = json.RawMessage(args[1])
			}

			log, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var result json.RawMessage
			if overHTTP {
				result, err = callHTTP(cmd.Context(), ctx, log, httpPath, method, params)
			} else {
				err = ctx.withMaster(cmd.Context(), log, func(m *wsclient.Master) error {
					var err error
					result, err = m.Request(cmd.Context(), method, params)
					return err
				})
			}
			if err != nil {
				return fmt.Errorf("call %s: %w", method, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(result))
			return nil
		},
	}

	cmd.Flags().BoolVar(&overHTTP, "http", false, "Send the request as an HTTP POST instead of over the websocket")
	cmd.Flags().StringVar(&httpPath, "path", defaultHTTPPath, "Path below the entry point used with --http")
	return cmd
}

func callHTTP(ctx context.Context, cc *commandContext, log zerolog.Logger, path, method string, params interface{}) (json.RawMessage, error) {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return nil, err
	}

	opts := []wsclient.HTTPOption{wsclient.WithHTTPLogger(log)}
	if refresher := cfg.TokenRefresher(); refresher != nil {
		token, err := refresher(ctx)
		if err != nil {
			return nil, fmt.Errorf("refresh token: %w", err)
		}
		opts = append(opts, wsclient.WithBearerToken(token))
	}

	var result json.RawMessage
	if err := wsclient.CallHTTP(ctx, cfg.Server.EntryPoint+path, method, params, &result, opts...); err != nil {
		return nil, err
	}
	return result, nil
}
