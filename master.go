// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the connection state of a Master.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StatePermanentlyFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StatePermanentlyFailed:
		return "permanently failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// StatusChangeFunc receives the sorted entry points that are currently
// failing.
type StatusChangeFunc func(failing []string)

var errTokenRefresh = errors.New("refresh token")

// Master is a client of the workspace master. It keeps one websocket to the
// entry point open, reconnecting when it closes, and maps the master's event
// channels onto typed subscriptions.
type Master struct {
	entryPoint string
	opts       *options
	log        zerolog.Logger

	transport Transport
	client    *APIClient

	// ctx bounds reconnection attempts and ends with Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	attempt  int
	clientID string
	timer    Timer

	failing endpointSet

	observersMu sync.Mutex
	observers   []StatusChangeFunc

	onOpenHandle  *ListenerHandle
	onCloseHandle *ListenerHandle
}

// NewMaster returns a Master that connects to entryPoint through t. The
// master owns t from now on.
func NewMaster(t Transport, entryPoint string, opts ...Option) *Master {
	o := newOptions(opts)
	log := o.logger.With().
		Str("session", uuid.NewString()).
		Str("entrypoint", redactURL(entryPoint)).
		Logger()

	engineOpts := []EngineOption{WithEngineLogger(log)}
	if o.isolate {
		engineOpts = append(engineOpts, WithHandlerIsolation(true))
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Master{
		entryPoint: entryPoint,
		opts:       o,
		log:        log,
		transport:  t,
		client:     NewAPIClient(t, engineOpts...),
		ctx:        ctx,
		cancel:     cancel,
	}
	m.onOpenHandle = t.AddListener(EventOpen, func(EventInfo) { m.onOpen() })
	m.onCloseHandle = t.AddListener(EventClose, func(info EventInfo) { m.onClose(info.Err) })
	return m
}

// EntryPoint returns the base URL of the workspace master.
func (m *Master) EntryPoint() string { return m.entryPoint }

// State returns the current connection state.
func (m *Master) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ClientID returns the id the server assigned to this client, or "" before
// the first successful FetchClientID.
func (m *Master) ClientID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientID
}

// OnDidWebSocketStatusChange registers fn to be called whenever an entry
// point starts or stops failing.
func (m *Master) OnDidWebSocketStatusChange(fn StatusChangeFunc) {
	m.observersMu.Lock()
	m.observers = append(m.observers, fn)
	m.observersMu.Unlock()
}

// Connect opens the websocket and fetches the client id. Without a token
// refresher it does nothing. A failed connection is retried in the
// background according to the reconnect policy, and Connect still returns
// the error of this attempt.
func (m *Master) Connect(ctx context.Context) error {
	if m.opts.tokenRefresher == nil {
		return nil
	}

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateReconnecting {
		m.state = StateConnecting
	}
	m.mu.Unlock()

	token, err := m.opts.tokenRefresher(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", errTokenRefresh, err)
	}
	if err := m.client.Connect(ctx, m.websocketURL(token)); err != nil {
		loggerFromContext(ctx, &m.log).Debug().Err(err).Msg("websocket connect failed")
		return err
	}

	// Close may have run while the dial was in flight.
	m.mu.Lock()
	closed := m.state == StateClosed
	m.mu.Unlock()
	if closed {
		if err := m.transport.Disconnect(); err != nil {
			m.log.Debug().Err(err).Msg("disconnect after close")
		}
		return ErrClosed
	}
	return m.FetchClientID(ctx)
}

// websocketURL appends the websocket context, the token and the known client
// id to the entry point.
func (m *Master) websocketURL(token string) string {
	params := []string{"token=" + url.QueryEscape(token)}
	if id := m.ClientID(); id != "" {
		params = append(params, "clientId="+url.QueryEscape(id))
	}
	u := m.entryPoint + m.opts.websocketContext
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + strings.Join(params, "&")
}

// FetchClientID asks the server for the id of this connection and stores
// the first element of the returned array.
func (m *Master) FetchClientID(ctx context.Context) error {
	result, err := m.client.Request(ctx, methodClientID, nil)
	if err != nil {
		return fmt.Errorf("fetch client id: %w", err)
	}
	var ids []json.RawMessage
	if err := json.Unmarshal(result, &ids); err != nil || len(ids) == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidClientID, result)
	}
	id := string(ids[0])
	var s string
	if json.Unmarshal(ids[0], &s) == nil {
		id = s
	}

	m.mu.Lock()
	m.clientID = id
	m.mu.Unlock()
	loggerFromContext(ctx, &m.log).Debug().Str("client_id", id).Msg("fetched client id")
	return nil
}

// Request sends a request over the websocket and waits for its result.
func (m *Master) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return m.client.Request(ctx, method, params)
}

// Close stops reconnecting and closes the websocket. Pending requests fail
// with ErrClosed.
func (m *Master) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosed
	timer := m.timer
	m.timer = nil
	m.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	m.cancel()
	m.transport.RemoveListener(EventOpen, m.onOpenHandle)
	m.transport.RemoveListener(EventClose, m.onCloseHandle)

	err := m.transport.Disconnect()
	m.client.Engine().Detach()
	m.client.Engine().Abort(ErrClosed)
	m.log.Debug().Msg("master closed")
	return err
}

func (m *Master) onOpen() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	reopened := m.attempt != 0
	m.attempt = 0
	m.state = StateConnected
	m.mu.Unlock()

	if reopened {
		m.failing.remove(m.entryPoint)
		m.emitStatus()
		m.log.Warn().Msg("websocket connection is opened")
	}
}

func (m *Master) onClose(cause error) {
	m.log.Warn().Err(cause).Msg("websocket connection is closed")

	p := m.opts.policy
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	failing := false
	switch m.attempt {
	case p.FailingThreshold:
		failing = true
	case p.MaxAttempts:
		m.state = StatePermanentlyFailed
		m.mu.Unlock()
		m.log.Warn().Int("attempts", p.MaxAttempts).Msg("the maximum number of attempts to reconnect websocket has been reached")
		return
	}
	m.attempt++
	attempt := m.attempt
	m.state = StateReconnecting
	delay := p.Delay(attempt)
	if m.timer != nil {
		m.timer.Stop()
	}
	// The scheduler must not call back synchronously: m.mu is held.
	m.timer = m.opts.scheduler.AfterFunc(delay, func() { m.reconnect(attempt) })
	m.mu.Unlock()

	if failing {
		m.failing.add(m.entryPoint)
		m.emitStatus()
	}
	if delay > 0 {
		m.log.Warn().Dur("delay", delay).Msg("websocket will be reconnected")
	}
}

func (m *Master) reconnect(attempt int) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	m.log.Warn().
		Int("attempt", attempt).
		Int("max_attempts", m.opts.policy.MaxAttempts).
		Msg("websocket is reconnecting")

	err := m.Connect(m.ctx)
	switch {
	case err == nil:
	case errors.Is(err, errTokenRefresh):
		// No dial happened, so no close event will drive the next attempt.
		m.onClose(err)
	default:
		m.log.Debug().Err(err).Int("attempt", attempt).Msg("reconnection attempt failed")
	}
}

func (m *Master) emitStatus() {
	failing := m.failing.snapshot()
	m.observersMu.Lock()
	observers := append([]StatusChangeFunc(nil), m.observers...)
	m.observersMu.Unlock()
	for _, fn := range observers {
		cp := make([]string, len(failing))
		copy(cp, failing)
		fn(cp)
	}
}

// Subscription is an active subscription to a channel.
type Subscription struct {
	channel Channel
	scope   Scope
	id      string
	handler *Handler
}

// Channel returns the channel s is subscribed to.
func (s *Subscription) Channel() Channel { return s.channel }

// ID returns the scope id s is narrowed to.
func (s *Subscription) ID() string { return s.id }

// Subscribe registers fn for the raw events of ch narrowed to id and asks
// the server to send them. The returned Subscription is valid even when the
// error is not nil: fn stays registered and receives events once the server
// is told again.
func (m *Master) Subscribe(ctx context.Context, ch Channel, id string, fn NotificationHandler) (*Subscription, error) {
	scope := ch.Scope()
	h, err := m.client.Subscribe(ctx, methodSubscribe, string(ch), fn, newDescriptor(ch, scope, id))
	sub := &Subscription{channel: ch, scope: scope, id: id, handler: h}
	if err != nil {
		return sub, fmt.Errorf("subscribe %s: %w", ch, err)
	}
	return sub, nil
}

// Unsubscribe removes sub and asks the server to stop sending its events.
func (m *Master) Unsubscribe(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return nil
	}
	err := m.client.Unsubscribe(ctx, methodUnsubscribe, string(sub.channel), sub.handler,
		newDescriptor(sub.channel, sub.scope, sub.id))
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w", sub.channel, err)
	}
	return nil
}

func (m *Master) unsubscribeChannel(ctx context.Context, ch Channel, sub *Subscription) error {
	if sub != nil && sub.channel != ch {
		return fmt.Errorf("subscription is for %s, not %s", sub.channel, ch)
	}
	return m.Unsubscribe(ctx, sub)
}

// typedHandler decodes events into T and passes those accepted by keep to
// fn. Events that cannot be decoded are logged and dropped.
func typedHandler[T any](log zerolog.Logger, ch Channel, set func(*T, json.RawMessage), keep func(T) bool, fn func(T)) NotificationHandler {
	return func(params json.RawMessage) {
		ev, err := decodeEvent(params, set)
		if err != nil {
			log.Warn().Err(err).Str("channel", string(ch)).Msg("dropping event")
			return
		}
		if keep != nil && !keep(ev) {
			return
		}
		fn(ev)
	}
}

// SubscribeEnvironmentOutput subscribes to the runtime output of a workspace.
func (m *Master) SubscribeEnvironmentOutput(ctx context.Context, workspaceID string, fn func(EnvironmentOutputEvent)) (*Subscription, error) {
	ch := ChannelEnvironmentOutput
	return m.Subscribe(ctx, ch, workspaceID, typedHandler(m.log, ch,
		func(e *EnvironmentOutputEvent, raw json.RawMessage) { e.Raw = raw }, nil, fn))
}

func (m *Master) UnsubscribeEnvironmentOutput(ctx context.Context, sub *Subscription) error {
	return m.unsubscribeChannel(ctx, ChannelEnvironmentOutput, sub)
}

// SubscribeEnvironmentStatus subscribes to the machine status changes of a
// workspace.
func (m *Master) SubscribeEnvironmentStatus(ctx context.Context, workspaceID string, fn func(EnvironmentStatusEvent)) (*Subscription, error) {
	ch := ChannelEnvironmentStatus
	return m.Subscribe(ctx, ch, workspaceID, typedHandler(m.log, ch,
		func(e *EnvironmentStatusEvent, raw json.RawMessage) { e.Raw = raw }, nil, fn))
}

func (m *Master) UnsubscribeEnvironmentStatus(ctx context.Context, sub *Subscription) error {
	return m.unsubscribeChannel(ctx, ChannelEnvironmentStatus, sub)
}

// SubscribeWsAgentOutput subscribes to the installer output of a workspace.
func (m *Master) SubscribeWsAgentOutput(ctx context.Context, workspaceID string, fn func(WsAgentOutputEvent)) (*Subscription, error) {
	ch := ChannelWsAgentOutput
	return m.Subscribe(ctx, ch, workspaceID, typedHandler(m.log, ch,
		func(e *WsAgentOutputEvent, raw json.RawMessage) { e.Raw = raw }, nil, fn))
}

func (m *Master) UnsubscribeWsAgentOutput(ctx context.Context, sub *Subscription) error {
	return m.unsubscribeChannel(ctx, ChannelWsAgentOutput, sub)
}

// SubscribeWorkspaceStatus subscribes to the status changes of a workspace.
// The server may deliver changes of other workspaces on the same channel;
// only those of workspaceID reach fn.
func (m *Master) SubscribeWorkspaceStatus(ctx context.Context, workspaceID string, fn func(WorkspaceStatusEvent)) (*Subscription, error) {
	ch := ChannelWorkspaceStatus
	return m.Subscribe(ctx, ch, workspaceID, typedHandler(m.log, ch,
		func(e *WorkspaceStatusEvent, raw json.RawMessage) { e.Raw = raw },
		func(e WorkspaceStatusEvent) bool { return e.WorkspaceID == workspaceID },
		fn))
}

func (m *Master) UnsubscribeWorkspaceStatus(ctx context.Context, sub *Subscription) error {
	return m.unsubscribeChannel(ctx, ChannelWorkspaceStatus, sub)
}

// SubscribeOrganizationStatus subscribes to the changes of an organization.
func (m *Master) SubscribeOrganizationStatus(ctx context.Context, organizationID string, fn func(OrganizationStatusEvent)) (*Subscription, error) {
	ch := ChannelOrganizationStatus
	return m.Subscribe(ctx, ch, organizationID, typedHandler(m.log, ch,
		func(e *OrganizationStatusEvent, raw json.RawMessage) { e.Raw = raw }, nil, fn))
}

func (m *Master) UnsubscribeOrganizationStatus(ctx context.Context, sub *Subscription) error {
	return m.unsubscribeChannel(ctx, ChannelOrganizationStatus, sub)
}

// SubscribeOrganizationMembershipStatus subscribes to the organization
// membership changes of a user.
func (m *Master) SubscribeOrganizationMembershipStatus(ctx context.Context, userID string, fn func(OrganizationMembershipEvent)) (*Subscription, error) {
	ch := ChannelOrganizationMembershipStatus
	return m.Subscribe(ctx, ch, userID, typedHandler(m.log, ch,
		func(e *OrganizationMembershipEvent, raw json.RawMessage) { e.Raw = raw }, nil, fn))
}

func (m *Master) UnsubscribeOrganizationMembershipStatus(ctx context.Context, sub *Subscription) error {
	return m.unsubscribeChannel(ctx, ChannelOrganizationMembershipStatus, sub)
}
