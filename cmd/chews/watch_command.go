// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	wsclient "github.com/eclipse-che/workspace-client-go"
)

type watchOptions struct {
	workspaces    []string
	organizations []string
	users         []string
	output        bool
	count         int
	timeout       time.Duration
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream workspace master events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(opts.workspaces) == 0 && len(opts.organizations) == 0 && len(opts.users) == 0 {
				return errors.New("nothing to watch: pass --workspace, --organization or --user")
			}
			log, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, opts.timeout)
				defer cancel()
			}

			return ctx.withMaster(runCtx, log, func(m *wsclient.Master) error {
				return watch(runCtx, m, log, cmd.OutOrStdout(), opts)
			})
		},
	}

	cmd.Flags().StringSliceVar(&opts.workspaces, "workspace", nil, "Workspace id to watch the status of (repeatable)")
	cmd.Flags().StringSliceVar(&opts.organizations, "organization", nil, "Organization id to watch (repeatable)")
	cmd.Flags().StringSliceVar(&opts.users, "user", nil, "User id to watch organization membership of (repeatable)")
	cmd.Flags().BoolVar(&opts.output, "output", false, "Also stream machine status, runtime and installer output of the watched workspaces")
	cmd.Flags().IntVar(&opts.count, "count", 0, "Exit after this many events (0 streams until interrupted)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Exit after this long (0 streams until interrupted)")
	return cmd
}

type eventLine struct {
	Channel wsclient.Channel `json:"channel"`
	ID      string           `json:"id"`
	Event   json.RawMessage  `json:"event"`
}

// eventPrinter writes events and ends the watch after a number of them.
type eventPrinter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	log    zerolog.Logger
	limit  int
	seen   int
	cancel context.CancelFunc
}

func (p *eventPrinter) print(ch wsclient.Channel, id string, raw json.RawMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limit > 0 && p.seen >= p.limit {
		return
	}
	if err := p.enc.Encode(eventLine{Channel: ch, ID: id, Event: raw}); err != nil {
		p.log.Warn().Err(err).Msg("write event")
	}
	p.seen++
	if p.limit > 0 && p.seen >= p.limit {
		p.cancel()
	}
}

func watch(ctx context.Context, m *wsclient.Master, log zerolog.Logger, out io.Writer, opts watchOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := &eventPrinter{enc: json.NewEncoder(out), log: log, limit: opts.count, cancel: cancel}

	m.OnDidWebSocketStatusChange(func(failing []string) {
		if len(failing) == 0 {
			log.Info().Msg("websocket recovered")
			return
		}
		log.Warn().Strs("failing", failing).Msg("websocket is failing")
	})

	var subs []*wsclient.Subscription
	var result *multierror.Error
	add := func(sub *wsclient.Subscription, err error) {
		if sub != nil {
			subs = append(subs, sub)
		}
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	for _, id := range opts.workspaces {
		id := id
		add(m.SubscribeWorkspaceStatus(ctx, id, func(ev wsclient.WorkspaceStatusEvent) {
			p.print(wsclient.ChannelWorkspaceStatus, id, ev.Raw)
		}))
		if !opts.output {
			continue
		}
		add(m.SubscribeEnvironmentStatus(ctx, id, func(ev wsclient.EnvironmentStatusEvent) {
			p.print(wsclient.ChannelEnvironmentStatus, id, ev.Raw)
		}))
		add(m.SubscribeEnvironmentOutput(ctx, id, func(ev wsclient.EnvironmentOutputEvent) {
			p.print(wsclient.ChannelEnvironmentOutput, id, ev.Raw)
		}))
		add(m.SubscribeWsAgentOutput(ctx, id, func(ev wsclient.WsAgentOutputEvent) {
			p.print(wsclient.ChannelWsAgentOutput, id, ev.Raw)
		}))
	}
	for _, id := range opts.organizations {
		id := id
		add(m.SubscribeOrganizationStatus(ctx, id, func(ev wsclient.OrganizationStatusEvent) {
			p.print(wsclient.ChannelOrganizationStatus, id, ev.Raw)
		}))
	}
	for _, id := range opts.users {
		id := id
		add(m.SubscribeOrganizationMembershipStatus(ctx, id, func(ev wsclient.OrganizationMembershipEvent) {
			p.print(wsclient.ChannelOrganizationMembershipStatus, id, ev.Raw)
		}))
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	log.Info().Int("subscriptions", len(subs)).Msg("watching")

	<-ctx.Done()

	unsubCtx, unsubCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer unsubCancel()
	for _, sub := range subs {
		if err := m.Unsubscribe(unsubCtx, sub); err != nil {
			log.Debug().Err(err).Str("channel", string(sub.Channel())).Msg("unsubscribe")
		}
	}
	return nil
}
