// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"encoding/json"
	"fmt"
)

// Channel is a server side event stream. Its value is the notification
// method the server uses to deliver events.
type Channel string

const (
	ChannelEnvironmentOutput            Channel = "runtime/log"
	ChannelEnvironmentStatus            Channel = "machine/statusChanged"
	ChannelWsAgentOutput                Channel = "installer/log"
	ChannelWorkspaceStatus              Channel = "workspace/statusChanged"
	ChannelOrganizationStatus           Channel = "organization/statusChanged"
	ChannelOrganizationMembershipStatus Channel = "organization/membershipChanged"
)

// Channels lists every known channel.
func Channels() []Channel {
	return []Channel{
		ChannelEnvironmentOutput,
		ChannelEnvironmentStatus,
		ChannelWsAgentOutput,
		ChannelWorkspaceStatus,
		ChannelOrganizationStatus,
		ChannelOrganizationMembershipStatus,
	}
}

// Scope returns the kind of id that narrows a subscription to c.
func (c Channel) Scope() Scope {
	switch c {
	case ChannelOrganizationStatus:
		return ScopeOrganization
	case ChannelOrganizationMembershipStatus:
		return ScopeUser
	default:
		return ScopeWorkspace
	}
}

// Scope is the key of the id a subscription is narrowed to.
type Scope string

const (
	ScopeOrganization Scope = "organizationId"
	ScopeUser         Scope = "userId"
	ScopeWorkspace    Scope = "workspaceId"
)

// Notifications that start and stop event delivery.
const (
	methodSubscribe   = "subscribe"
	methodUnsubscribe = "unSubscribe"
)

// methodClientID returns the id the server assigned to this connection.
const methodClientID = "websocketIdService/getId"

// SubscriptionDescriptor is the params of subscribe and unSubscribe.
type SubscriptionDescriptor struct {
	Method Channel          `json:"method"`
	Scope  map[Scope]string `json:"scope"`
}

func newDescriptor(ch Channel, scope Scope, id string) SubscriptionDescriptor {
	return SubscriptionDescriptor{
		Method: ch,
		Scope:  map[Scope]string{scope: id},
	}
}

// RuntimeIdentity identifies a workspace runtime.
type RuntimeIdentity struct {
	WorkspaceID string `json:"workspaceId"`
	EnvName     string `json:"envName,omitempty"`
	OwnerID     string `json:"ownerId,omitempty"`
}

// EnvironmentOutputEvent is a line of output of a runtime machine.
type EnvironmentOutputEvent struct {
	RuntimeID   RuntimeIdentity `json:"runtimeId"`
	MachineName string          `json:"machineName"`
	Text        string          `json:"text"`
	Time        string          `json:"time,omitempty"`
	Stream      string          `json:"stream,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// EnvironmentStatusEvent reports a status change of a runtime machine.
type EnvironmentStatusEvent struct {
	EventType   string          `json:"eventType"`
	MachineName string          `json:"machineName"`
	RuntimeID   RuntimeIdentity `json:"runtimeId"`
	Error       string          `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// WsAgentOutputEvent is a line of output of an installer.
type WsAgentOutputEvent struct {
	RuntimeID   RuntimeIdentity `json:"runtimeId"`
	MachineName string          `json:"machineName"`
	Installer   string          `json:"installer,omitempty"`
	Text        string          `json:"text"`
	Time        string          `json:"time,omitempty"`
	Stream      string          `json:"stream,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// WorkspaceStatusEvent reports a status change of a workspace.
type WorkspaceStatusEvent struct {
	WorkspaceID     string `json:"workspaceId"`
	Status          string `json:"status"`
	PrevStatus      string `json:"prevStatus,omitempty"`
	Error           string `json:"error,omitempty"`
	InitiatedByUser bool   `json:"initiatedByUser,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Organization is the organization an organization event is about.
type Organization struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	QualifiedName string `json:"qualifiedName,omitempty"`
	Parent        string `json:"parent,omitempty"`
}

// OrganizationStatusEvent reports that an organization was created,
// renamed or removed.
type OrganizationStatusEvent struct {
	Type         string       `json:"type"`
	Organization Organization `json:"organization"`
	Initiator    string       `json:"initiator,omitempty"`
	OldName      string       `json:"oldName,omitempty"`
	NewName      string       `json:"newName,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// OrganizationMembershipEvent reports that a user joined or left an
// organization.
type OrganizationMembershipEvent struct {
	Type         string       `json:"type"`
	Organization Organization `json:"organization"`
	Initiator    string       `json:"initiator,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// decodeEvent unmarshals params into a T and keeps the raw payload in the
// Raw field through set.
func decodeEvent[T any](params json.RawMessage, set func(*T, json.RawMessage)) (T, error) {
	var ev T
	if len(params) > 0 {
		if err := json.Unmarshal(params, &ev); err != nil {
			return ev, fmt.Errorf("decode event: %w", err)
		}
	}
	set(&ev, append(json.RawMessage(nil), params...))
	return ev, nil
}
